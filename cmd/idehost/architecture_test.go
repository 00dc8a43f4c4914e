package main

import (
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

const moduleRoot = "github.com/musher-dev/idehost"

// Layer assignments for every internal package. A new package under
// internal/ must be classified here or TestAllInternalPackagesClassified fails.
var (
	featureOrchestration = map[string]bool{
		moduleRoot + "/internal/window": true,
		moduleRoot + "/internal/rpc":    true,
		moduleRoot + "/internal/doctor": true,
		moduleRoot + "/internal/output": true,
	}

	platformCore = map[string]bool{
		moduleRoot + "/internal/backend":       true,
		moduleRoot + "/internal/session":       true,
		moduleRoot + "/internal/profile":       true,
		moduleRoot + "/internal/config":        true,
		moduleRoot + "/internal/errors":        true,
		moduleRoot + "/internal/buildinfo":     true,
		moduleRoot + "/internal/terminal":      true,
		moduleRoot + "/internal/paths":         true,
		moduleRoot + "/internal/history":       true,
		moduleRoot + "/internal/observability": true,
		moduleRoot + "/internal/testutil":      true,
	}

	presentationPkgs = map[string]bool{
		moduleRoot + "/internal/output": true,
	}
)

func loadAllPackages(t *testing.T) []*packages.Package {
	t.Helper()

	cfg := &packages.Config{
		Mode:  packages.NeedName | packages.NeedImports | packages.NeedDeps,
		Tests: true,
	}

	pkgs, err := packages.Load(cfg, moduleRoot+"/...")
	if err != nil {
		t.Fatalf("loading packages: %v", err)
	}

	return pkgs
}

func isInternal(path string) bool {
	return strings.HasPrefix(path, moduleRoot+"/internal/")
}

// internalBase strips subpackages and test suffixes from an internal path.
func internalBase(path string) string {
	suffix := strings.TrimPrefix(path, moduleRoot+"/internal/")
	base := strings.SplitN(suffix, "/", 2)[0]
	base = strings.TrimSuffix(base, ".test")
	base = strings.TrimSuffix(base, "_test")

	return moduleRoot + "/internal/" + base
}

func isTestPackage(pkg *packages.Package) bool {
	return strings.HasSuffix(pkg.ID, ".test") ||
		strings.HasSuffix(pkg.ID, ".test]") ||
		strings.Contains(pkg.ID, " [")
}

// productionImports calls fn for every import of every non-test internal package.
func productionImports(t *testing.T, fn func(pkg *packages.Package, base, imp string)) {
	t.Helper()

	for _, pkg := range loadAllPackages(t) {
		if !isInternal(pkg.PkgPath) || isTestPackage(pkg) {
			continue
		}

		for imp := range pkg.Imports {
			fn(pkg, internalBase(pkg.PkgPath), imp)
		}
	}
}

func TestAllInternalPackagesClassified(t *testing.T) {
	seen := map[string]bool{}

	for _, pkg := range loadAllPackages(t) {
		if !isInternal(pkg.PkgPath) {
			continue
		}

		base := internalBase(pkg.PkgPath)
		if seen[base] {
			continue
		}

		seen[base] = true

		if !featureOrchestration[base] && !platformCore[base] {
			t.Errorf("internal package %s is not classified in architecture_test.go layer maps.\n"+
				"Add it to featureOrchestration or platformCore.", base)
		}
	}
}

func TestPlatformPackagesDoNotImportFeatures(t *testing.T) {
	productionImports(t, func(pkg *packages.Package, base, imp string) {
		if !platformCore[base] || !isInternal(imp) {
			return
		}

		if featureOrchestration[internalBase(imp)] || presentationPkgs[imp] {
			t.Errorf("%s imports %s; platform/core must not depend on feature or presentation packages", pkg.PkgPath, imp)
		}
	})
}

func TestInternalPackagesDoNotImportCmd(t *testing.T) {
	productionImports(t, func(pkg *packages.Package, _, imp string) {
		if strings.HasPrefix(imp, moduleRoot+"/cmd/") {
			t.Errorf("%s imports cmd package %s", pkg.PkgPath, imp)
		}
	})
}

// TestFeaturePackagesAreIndependent keeps window, rpc, doctor, and output
// from importing one another.
func TestFeaturePackagesAreIndependent(t *testing.T) {
	productionImports(t, func(pkg *packages.Package, base, imp string) {
		if !featureOrchestration[base] || !isInternal(imp) {
			return
		}

		impBase := internalBase(imp)
		if featureOrchestration[impBase] && impBase != base {
			t.Errorf("%s imports sibling feature package %s", pkg.PkgPath, imp)
		}
	})
}

func TestTestutilNotImportedByProductionCode(t *testing.T) {
	for _, pkg := range loadAllPackages(t) {
		if isTestPackage(pkg) {
			continue
		}

		if _, ok := pkg.Imports[moduleRoot+"/internal/testutil"]; ok {
			t.Errorf("%s imports internal/testutil; testutil is for tests only", pkg.PkgPath)
		}
	}
}
