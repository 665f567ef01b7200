// Package testutil holds helpers that enforce package boundaries in tests.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

const (
	persistencePrefix = "keyledger/internal/infra/persistence"
	memoryStorePath   = persistencePrefix + "/memory"
)

// AssertNoDirectImports parses every non-test .go file in dir and fails when
// an import satisfies forbidden. Build tags are not evaluated.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	failIfViolations(t, reason, viols)
}

// InternalImportForbidden matches any keyledger internal package. pkg/ must
// stay importable by other modules.
func InternalImportForbidden(path string) bool {
	return strings.HasPrefix(path, "keyledger/internal/")
}

// PersistenceImportForbidden matches the concrete persistence packages. The
// HTTP layer and binary reach storage through internal/core only.
func PersistenceImportForbidden(path string) bool {
	return path == persistencePrefix || strings.HasPrefix(path, persistencePrefix+"/")
}

// DomainOnlyForbidden matches every keyledger package except pkg/domain.
// Storage backends sit directly on the domain contracts.
func DomainOnlyForbidden(path string) bool {
	return strings.HasPrefix(path, "keyledger/") && path != "keyledger/pkg/domain"
}

// MemoryStoreImportForbidden matches the in-memory transactional store.
func MemoryStoreImportForbidden(path string) bool {
	return path == memoryStorePath
}

func directImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			ip := strings.Trim(imp.Path.Value, `"`)
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	sort.Strings(viols)
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden direct imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
