package repro

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDetectHarness_Requirements(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "requirements.txt", "pytest\n")

	h := DetectHarness(dir)
	if !h.HasRequirements {
		t.Error("expected HasRequirements = true")
	}
	if h.HasSetupPy || h.HasPytestConfig {
		t.Errorf("expected only HasRequirements set, got %+v", h)
	}
}

func TestDetectHarness_SetupPy(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "setup.py", "from setuptools import setup\nsetup()\n")

	h := DetectHarness(dir)
	if !h.HasSetupPy {
		t.Error("expected HasSetupPy = true")
	}
}

func TestDetectHarness_PytestSection(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "pyproject.toml", "[tool.poetry]\nname = \"x\"\n\n[tool.pytest.ini_options]\naddopts = \"-ra\"\n")

	h := DetectHarness(dir)
	if !h.HasPytestConfig {
		t.Error("expected HasPytestConfig = true")
	}
}

func TestDetectHarness_NoPytestSection(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "pyproject.toml", "[tool.poetry]\nname = \"x\"\n")

	h := DetectHarness(dir)
	if h.HasPytestConfig {
		t.Error("expected HasPytestConfig = false")
	}
}

func TestDefaultCommand_WithPytestSection(t *testing.T) {
	h := Harness{HasPytestConfig: true}
	got := h.DefaultCommand()
	want := []string{"python", "-m", "pytest"}
	if !equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDefaultCommand_WithoutPytestSection(t *testing.T) {
	h := Harness{}
	got := h.DefaultCommand()
	want := []string{"python", "-m", "pytest", "tests/", "-v", "--tb=short"}
	if !equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
