package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func writeGo(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "a.go", "package x\n\nimport (\n\t\"fmt\"\n\t\"equiploan/internal/core\"\n)\n\nvar _ = fmt.Sprint\nvar _ core.Clock\n")
	writeGo(t, dir, "a_test.go", "package x\n\nimport \"equiploan/internal/config\"\n\nvar _ config.Config\n")
	writeGo(t, dir, "notes.txt", "import \"equiploan/internal/blob\"")

	viols, err := DirectImportViolations(dir, InternalImport)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "equiploan/internal/core (in a.go)" {
		t.Fatalf("unexpected violations %v", viols)
	}
}

func TestDirectImportViolationsParseError(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "broken.go", "package x\nimport (")
	if _, err := DirectImportViolations(dir, InternalImport); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestPredicates(t *testing.T) {
	under := Under("equiploan/internal/infra/blob")
	cases := map[string]bool{
		"equiploan/internal/infra/blob":      true,
		"equiploan/internal/infra/blob/s3":   true,
		"equiploan/internal/infra/blobstore": false,
		"equiploan/internal/blob":            false,
	}
	for path, want := range cases {
		if got := under(path); got != want {
			t.Fatalf("Under(%s) = %v, want %v", path, got, want)
		}
	}
	either := AnyOf(Under("a/b"), Under("c"))
	if !either("c/d") || !either("a/b") || either("a") {
		t.Fatalf("AnyOf mismatch")
	}
}

func TestAssertNoDirectImportsPasses(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "ok.go", "package x\n\nimport \"strings\"\n\nvar _ = strings.TrimSpace\n")
	AssertNoDirectImports(t, dir, InternalImport, "no internal deps")
}
