// Package testutil holds test helpers that enforce the import layering of the
// repository: domain depends on nothing internal, the service core never
// reaches into adapters, and validation stays free of I/O drivers.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Predicate reports whether an import path is forbidden.
type Predicate func(importPath string) bool

// AssertNoDirectImports parses the non-test .go files in dir (typically "."
// from within the package) and fails if any import matches forbidden.
// Build tags are not evaluated.
func AssertNoDirectImports(t testing.TB, dir string, forbidden Predicate, reason string) {
	t.Helper()
	viols, err := ImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	if len(viols) > 0 {
		t.Fatalf("forbidden direct imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

// ImportViolations lists "import (in file.go)" for every forbidden import in
// the non-test files of dir.
func ImportViolations(dir string, forbidden Predicate) ([]string, error) {
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
			ip := strings.Trim(imp.Path.Value, "\"")
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

// InternalImport matches any module-internal package.
func InternalImport(path string) bool {
	return strings.Contains(path, "/internal/")
}

// AdapterImport matches the outer surfaces: HTTP adapters and commands.
func AdapterImport(path string) bool {
	return strings.Contains(path, "/internal/adapters") || strings.Contains(path, "/cmd/")
}

var driverPrefixes = []string{
	"database/sql",
	"net/http",
	"modernc.org/sqlite",
	"github.com/jackc/pgx",
	"github.com/segmentio/kafka-go",
	"github.com/aws/",
}

// DriverImport matches database, network and cloud client packages.
func DriverImport(path string) bool {
	for _, p := range driverPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// AnyOf matches when any of preds matches.
func AnyOf(preds ...Predicate) Predicate {
	return func(path string) bool {
		for _, p := range preds {
			if p(path) {
				return true
			}
		}
		return false
	}
}
