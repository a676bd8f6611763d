package manifest

import (
	"strings"
	"testing"
)

const indentedManifest = `
package:
  name: example-pkg
  version: 1.2.3
install_steps:
  - type: apt_package
    action: install
    packages:
      - nginx
  - type: file_copy
    src: ./a
    dest: /tmp/a
`

const flowManifest = `{package: {name: example-pkg, version: 1.2.3}, install_steps: [{type: apt_package, action: install, packages: [nginx]}, {type: file_copy, src: "./a", dest: /tmp/a}]}`

func TestParseBothEncodingsProduceSameManifest(t *testing.T) {
	indented, err := Parse([]byte(indentedManifest))
	if err != nil {
		t.Fatalf("parse indented: %v", err)
	}
	flow, err := Parse([]byte(flowManifest))
	if err != nil {
		t.Fatalf("parse flow: %v", err)
	}

	hashA, err := Hash(indented)
	if err != nil {
		t.Fatalf("hash indented: %v", err)
	}
	hashB, err := Hash(flow)
	if err != nil {
		t.Fatalf("hash flow: %v", err)
	}
	if hashA != hashB {
		t.Fatalf("expected equal hashes across encodings, got %s vs %s", hashA, hashB)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not: [valid")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateHappyPath(t *testing.T) {
	m, err := Parse([]byte(indentedManifest))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := Validate(m); err != nil {
		t.Fatalf("expected valid manifest, got %v", err)
	}
}

func TestValidateRejectsUnknownStepType(t *testing.T) {
	m, err := Parse([]byte(`
package: {name: pkg, version: 1.0.0}
install_steps:
  - type: reboot_host
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	err = Validate(m)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	vf, ok := err.(*ValidationFailure)
	if !ok {
		t.Fatalf("expected *ValidationFailure, got %T", err)
	}
	if !strings.Contains(vf.Path, "/install_steps/0/type") {
		t.Fatalf("expected path to name the step type field, got %q", vf.Path)
	}
}

func TestValidateRejectsEmptySteps(t *testing.T) {
	m := &Manifest{Package: Package{Name: "pkg", Version: "1.0.0"}}
	if err := Validate(m); err == nil {
		t.Fatal("expected validation failure for empty install_steps")
	}
}

func TestValidateRejectsBadVersion(t *testing.T) {
	m := Template("pkg", "not-a-version")
	if err := Validate(m); err == nil {
		t.Fatal("expected validation failure for malformed version")
	}
}

func TestHashInsensitiveToKeyOrder(t *testing.T) {
	a := `{package: {name: p, version: "1.0.0"}, install_steps: [{type: apt_package, action: install, packages: [x]}]}`
	b := `{install_steps: [{type: apt_package, packages: [x], action: install}], package: {version: "1.0.0", name: p}}`

	ma, err := Parse([]byte(a))
	if err != nil {
		t.Fatal(err)
	}
	mb, err := Parse([]byte(b))
	if err != nil {
		t.Fatal(err)
	}
	ha, err := Hash(ma)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := Hash(mb)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Fatalf("expected hash insensitive to key order: %s vs %s", ha, hb)
	}
}

func TestMergeEmptyIsIdentity(t *testing.T) {
	m, err := Parse([]byte(indentedManifest))
	if err != nil {
		t.Fatal(err)
	}
	merged := Merge(m, &Manifest{})
	if len(merged.InstallSteps) != len(m.InstallSteps) {
		t.Fatalf("merge(M, empty) changed step count: %d vs %d", len(merged.InstallSteps), len(m.InstallSteps))
	}

	mergedReverse := Merge(&Manifest{}, m)
	if len(mergedReverse.InstallSteps) != len(m.InstallSteps) {
		t.Fatalf("merge(empty, M).install_steps mismatch")
	}
}

func TestTemplateProducesValidManifest(t *testing.T) {
	tmpl := Template("my-pkg", "0.1.0")
	if err := Validate(tmpl); err != nil {
		t.Fatalf("template should be valid: %v", err)
	}
}
