package client

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// The tracking side talks to the server over HTTP only; it must not pull in
// the storage layer or its SQLite driver.
func TestClientSideDoesNotImportStorage(t *testing.T) {
	forbidden := []string{
		"github.com/balkashynov/tally/internal/db",
		"github.com/glebarez/sqlite",
	}
	for _, dir := range []string{".", "../tracker", "../tui", "../capture", "../segmenter", "../screenshot"} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range entries {
			name := e.Name()
			if !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
				continue
			}
			path := filepath.Join(dir, name)
			f, err := parser.ParseFile(token.NewFileSet(), path, nil, parser.ImportsOnly)
			if err != nil {
				t.Fatalf("parse %s: %v", path, err)
			}
			for _, imp := range f.Imports {
				p, _ := strconv.Unquote(imp.Path.Value)
				for _, bad := range forbidden {
					if p == bad {
						t.Errorf("%s imports %s", path, p)
					}
				}
			}
		}
	}
}
