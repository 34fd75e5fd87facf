package trace

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

var allowedModuleImports = map[string]struct{}{
	"almazara/pkg/domain": {},
	"almazara/pkg/lotid":  {},
}

// TestResolverStaysPure keeps the resolver free of persistence, transport and
// rendering dependencies so it can only ever read the snapshot it is given.
func TestResolverStaysPure(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports}
	pkgs, err := packages.Load(cfg, "almazara/internal/trace")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	var violations []string
	for _, pkg := range pkgs {
		for importPath := range pkg.Imports {
			if !strings.HasPrefix(importPath, "almazara/") {
				continue
			}
			if _, ok := allowedModuleImports[importPath]; !ok {
				violations = append(violations, importPath)
			}
		}
	}
	sort.Strings(violations)
	for _, v := range violations {
		t.Errorf("trace must not import %s", v)
	}
}
