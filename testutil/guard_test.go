package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		fn   func(string) bool
		in   string
		want bool
	}{
		{"internal", InternalImportForbidden, "keyledger/internal/core", true},
		{"internal", InternalImportForbidden, "keyledger/pkg/domain", false},
		{"persistence", PersistenceImportForbidden, "keyledger/internal/infra/persistence/sqlite", true},
		{"persistence", PersistenceImportForbidden, "keyledger/internal/infra/persistence", true},
		{"persistence", PersistenceImportForbidden, "keyledger/internal/infra/persistenceX", false},
		{"persistence", PersistenceImportForbidden, "keyledger/internal/infra/blob/s3", false},
		{"memory", MemoryStoreImportForbidden, "keyledger/internal/infra/persistence/memory", true},
		{"memory", MemoryStoreImportForbidden, "keyledger/internal/infra/persistence/slots", false},
		{"domain-only", DomainOnlyForbidden, "keyledger/pkg/domain", false},
		{"domain-only", DomainOnlyForbidden, "keyledger/internal/core", true},
		{"domain-only", DomainOnlyForbidden, "modernc.org/sqlite", false},
	}
	for _, c := range cases {
		if got := c.fn(c.in); got != c.want {
			t.Fatalf("%s(%q)=%v want %v", c.name, c.in, got, c.want)
		}
	}
}

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package tmp\nimport (\n\t\"fmt\"\n\t\"keyledger/internal/infra/persistence/memory\"\n)\nvar _ = fmt.Sprint\n")
	writeFile(t, dir, "a_test.go", "package tmp\nimport \"keyledger/internal/infra/persistence/sqlite\"\n")
	writeFile(t, dir, "notes.txt", "import \"keyledger/internal/infra/persistence/sqlite\"")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(dir, "sub"), "b.go", "package sub\nimport \"keyledger/internal/infra/persistence/postgres\"\n")

	viols, err := directImportViolations(dir, PersistenceImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.Contains(viols[0], "memory (in a.go)") {
		t.Fatalf("unexpected violations %v", viols)
	}

	AssertNoDirectImports(t, dir, func(string) bool { return false }, "none")

	if _, err := directImportViolations(filepath.Join(dir, "missing"), PersistenceImportForbidden); err == nil {
		t.Fatalf("expected missing dir error")
	}
	writeFile(t, dir, "broken.go", "package tmp\nimport (")
	if _, err := directImportViolations(dir, PersistenceImportForbidden); err == nil {
		t.Fatalf("expected parse error")
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestFailIfViolations(t *testing.T) {
	rec := &recordingFatal{}
	failIfViolations(rec, "why", nil)
	if rec.msg != "" {
		t.Fatalf("unexpected failure %q", rec.msg)
	}
	failIfViolations(rec, "why", []string{"x (in a.go)"})
	if !strings.Contains(rec.msg, "why") || !strings.Contains(rec.msg, "x (in a.go)") {
		t.Fatalf("unexpected message %q", rec.msg)
	}
}
