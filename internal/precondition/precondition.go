// Package precondition implements the host-readiness checks the CLI layer
// runs before a mutating command is allowed to touch the journal: the
// privilege check spec.md §6 requires for every mutating command, and the
// requirements check (minimum memory, disk, OS version, architecture) a
// manifest's requirements section declares. Both surface as a Result list
// in the same shape as the teacher's preflight checks, so install/status
// can render them identically.
package precondition

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"pkginstall/internal/manifest"
)

// Result reports the outcome of a single precondition check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Failure is returned when one or more precondition checks failed and the
// caller did not pass --force to bypass them.
type Failure struct {
	Results []Result
}

func (f *Failure) Error() string {
	var failed []string
	for _, r := range f.Results {
		if !r.Passed {
			failed = append(failed, fmt.Sprintf("%s (%s)", r.Name, r.Detail))
		}
	}
	return fmt.Sprintf("precondition check failed: %s", strings.Join(failed, "; "))
}

// CheckPrivilege reports whether the process has sufficient privilege to
// perform host-mutating operations.
func CheckPrivilege() Result {
	if os.Geteuid() == 0 {
		return Result{Name: "privilege", Passed: true, Detail: "running as root"}
	}
	return Result{Name: "privilege", Detail: fmt.Sprintf("running as uid %d, need root", os.Geteuid())}
}

// CheckRequirements evaluates a manifest's host requirements against the
// current machine. A nil requirements section yields no results.
func CheckRequirements(reqs *manifest.Requirements) []Result {
	if reqs == nil {
		return nil
	}

	var results []Result
	if reqs.MinMemoryMB > 0 {
		results = append(results, checkMemory(reqs.MinMemoryMB))
	}
	if reqs.MinDiskMB > 0 {
		results = append(results, checkDisk(reqs.MinDiskMB))
	}
	if reqs.OSVersion != "" {
		results = append(results, checkOSVersion(reqs.OSVersion))
	}
	if len(reqs.Architecture) > 0 {
		results = append(results, checkArchitecture(reqs.Architecture))
	}
	return results
}

// RunAll runs the privilege check (when required) followed by the
// manifest's requirements checks, matching the order the CLI reports them
// in: privilege first, since a privilege failure makes requirement checks
// moot.
func RunAll(reqs *manifest.Requirements, requirePrivilege bool) []Result {
	var results []Result
	if requirePrivilege {
		results = append(results, CheckPrivilege())
	}
	results = append(results, CheckRequirements(reqs)...)
	return results
}

// Evaluate returns a *Failure if any result failed, nil otherwise. Callers
// pass all results they intend to enforce; force handling (bypassing the
// failure) is the caller's decision, not this package's.
func Evaluate(results []Result) error {
	for _, r := range results {
		if !r.Passed {
			return &Failure{Results: results}
		}
	}
	return nil
}

func checkMemory(minMB int) Result {
	total, err := totalMemoryMB()
	if err != nil {
		return Result{Name: "memory", Detail: fmt.Sprintf("could not determine available memory: %v", err)}
	}
	if total < minMB {
		return Result{Name: "memory", Detail: fmt.Sprintf("have %d MB, need %d MB", total, minMB)}
	}
	return Result{Name: "memory", Passed: true, Detail: fmt.Sprintf("%d MB available", total)}
}

func totalMemoryMB() (int, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, err
	}
	totalBytes := uint64(info.Totalram) * uint64(info.Unit)
	return int(totalBytes / (1024 * 1024)), nil
}

func checkDisk(minMB int) Result {
	free, err := freeDiskMB("/")
	if err != nil {
		return Result{Name: "disk", Detail: fmt.Sprintf("could not determine free disk space: %v", err)}
	}
	if free < minMB {
		return Result{Name: "disk", Detail: fmt.Sprintf("have %d MB free, need %d MB", free, minMB)}
	}
	return Result{Name: "disk", Passed: true, Detail: fmt.Sprintf("%d MB free", free)}
}

func freeDiskMB(path string) (int, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	freeBytes := stat.Bavail * uint64(stat.Bsize)
	return int(freeBytes / (1024 * 1024)), nil
}

func checkOSVersion(minVersion string) Result {
	current, err := currentOSVersion()
	if err != nil {
		return Result{Name: "os_version", Detail: fmt.Sprintf("could not determine OS version: %v", err)}
	}
	if compareVersions(current, minVersion) < 0 {
		return Result{Name: "os_version", Detail: fmt.Sprintf("have %s, need at least %s", current, minVersion)}
	}
	return Result{Name: "os_version", Passed: true, Detail: fmt.Sprintf("running %s", current)}
}

// currentOSVersion reads VERSION_ID from /etc/os-release, the standard way
// a Debian-family host reports its release number.
func currentOSVersion() (string, error) {
	f, err := os.Open("/etc/os-release")
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "VERSION_ID=") {
			continue
		}
		return strings.Trim(strings.TrimPrefix(line, "VERSION_ID="), `"`), nil
	}
	return "", fmt.Errorf("VERSION_ID not found in /etc/os-release")
}

// compareVersions compares dotted numeric version strings component by
// component, returning -1, 0, or 1. Non-numeric components compare as 0.
func compareVersions(a, b string) int {
	aParts := strings.Split(a, ".")
	bParts := strings.Split(b, ".")
	for i := 0; i < len(aParts) || i < len(bParts); i++ {
		var av, bv int
		if i < len(aParts) {
			av, _ = strconv.Atoi(aParts[i])
		}
		if i < len(bParts) {
			bv, _ = strconv.Atoi(bParts[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

func checkArchitecture(supported []string) Result {
	for _, arch := range supported {
		if arch == runtime.GOARCH {
			return Result{Name: "architecture", Passed: true, Detail: fmt.Sprintf("%s supported", runtime.GOARCH)}
		}
	}
	return Result{Name: "architecture", Detail: fmt.Sprintf("host is %s, supported: %s", runtime.GOARCH, strings.Join(supported, ", "))}
}
