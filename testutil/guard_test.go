package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		pred func(string) bool
		in   string
		want bool
	}{
		{"domain", DomainImportForbidden, "cabincore/pkg/domain", true},
		{"domain versioned", DomainImportForbidden, "example.com/mod/pkg/domain@v1", true},
		{"not domain", DomainImportForbidden, "cabincore/pkg/notdomain", false},
		{"internal", InternalImportForbidden, "cabincore/internal/core", true},
		{"public", InternalImportForbidden, "cabincore/pkg/domain", false},
		{"infra", InfraBlobImport, "cabincore/internal/infra/blob/s3", true},
		{"facade", InfraBlobImport, "cabincore/internal/blob", false},
		{"adapter", AdapterImport, "cabincore/internal/adapters/httpapi", true},
		{"appstate", AdapterImport, "cabincore/internal/appstate", false},
	}
	for _, c := range cases {
		if got := c.pred(c.in); got != c.want {
			t.Fatalf("%s: predicate(%q)=%v want %v", c.name, c.in, got, c.want)
		}
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a.go":       "package tmp\nimport \"fmt\"\nfunc A() { fmt.Println(1) }\n",
		"b.go":       "package tmp\nimport \"cabincore/internal/infra/blob/fs\"\nvar _ = fs.New\n",
		"b_test.go":  "package tmp\nimport \"cabincore/internal/infra/blob/s3\"\n",
		"readme.txt": "import \"cabincore/internal/infra/blob/redis\"",
	}
	for name, src := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatal(err)
	}
	viols, err := directImportViolations(dir, InfraBlobImport)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.HasPrefix(viols[0], "cabincore/internal/infra/blob/fs (in b.go)") {
		t.Fatalf("unexpected violations %v", viols)
	}
	AssertNoDirectImports(t, dir, AdapterImport, "no adapters")

	if _, err := directImportViolations(filepath.Join(dir, "missing"), InfraBlobImport); err == nil {
		t.Fatalf("expected error for missing dir")
	}
	broken := t.TempDir()
	if err := os.WriteFile(filepath.Join(broken, "x.go"), []byte("package"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := directImportViolations(broken, InfraBlobImport); err == nil {
		t.Fatalf("expected parse error")
	}
}

func stubLoader(t *testing.T, fn func(string) ([]*packages.Package, error)) {
	t.Helper()
	prev := loadPackages
	loadPackages = fn
	t.Cleanup(func() { loadPackages = prev })
}

func TestTransitiveDependencyViolations(t *testing.T) {
	leaf := &packages.Package{PkgPath: "cabincore/internal/infra/blob/fs", Imports: map[string]*packages.Package{}}
	mid := &packages.Package{PkgPath: "cabincore/internal/blob", Imports: map[string]*packages.Package{leaf.PkgPath: leaf}}
	root := &packages.Package{PkgPath: "cabincore/internal/core", Imports: map[string]*packages.Package{mid.PkgPath: mid}}
	stubLoader(t, func(string) ([]*packages.Package, error) { return []*packages.Package{root}, nil })

	viols, err := transitiveDependencyViolations("cabincore/internal/core", InfraBlobImport)
	if err != nil {
		t.Fatalf("violations: %v", err)
	}
	if len(viols) != 1 || viols[0] != leaf.PkgPath {
		t.Fatalf("unexpected violations %v", viols)
	}
	AssertNoTransitiveDependency(t, "cabincore/internal/core", AdapterImport, "core stays transport agnostic")

	stubLoader(t, func(string) ([]*packages.Package, error) { return nil, errors.New("boom") })
	if _, err := transitiveDependencyViolations("x", InfraBlobImport); err == nil {
		t.Fatalf("expected loader error")
	}
	stubLoader(t, func(string) ([]*packages.Package, error) { return nil, nil })
	if _, err := transitiveDependencyViolations("x", InfraBlobImport); err == nil {
		t.Fatalf("expected error for empty match")
	}
	stubLoader(t, func(string) ([]*packages.Package, error) {
		return []*packages.Package{{PkgPath: "x", Errors: []packages.Error{{Msg: "bad"}}}}, nil
	})
	if _, err := transitiveDependencyViolations("x", InfraBlobImport); err == nil {
		t.Fatalf("expected package error")
	}
}

func TestImporterViolations(t *testing.T) {
	driver := &packages.Package{PkgPath: "cabincore/internal/infra/blob/s3"}
	facade := &packages.Package{PkgPath: "cabincore/internal/blob", Imports: map[string]*packages.Package{driver.PkgPath: driver}}
	sneaky := &packages.Package{PkgPath: "cabincore/internal/docstore", Imports: map[string]*packages.Package{driver.PkgPath: driver, facade.PkgPath: facade}}
	stubLoader(t, func(string) ([]*packages.Package, error) {
		return []*packages.Package{driver, facade, sneaky}, nil
	})

	viols, err := importerViolations("cabincore/...", InfraBlobImport, BlobLayer)
	if err != nil {
		t.Fatalf("violations: %v", err)
	}
	want := "cabincore/internal/infra/blob/s3 (in cabincore/internal/docstore)"
	if len(viols) != 1 || viols[0] != want {
		t.Fatalf("unexpected violations %v", viols)
	}

	stubLoader(t, func(string) ([]*packages.Package, error) {
		return []*packages.Package{driver, facade}, nil
	})
	AssertImportedOnlyBy(t, "cabincore/...", InfraBlobImport, BlobLayer, "drivers sit behind the facade")

	stubLoader(t, func(string) ([]*packages.Package, error) { return nil, nil })
	if _, err := importerViolations("x", InfraBlobImport, BlobLayer); err == nil {
		t.Fatalf("expected error for empty match")
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) {
	r.msg = format
	if len(args) > 0 {
		r.msg = args[0].(string)
	}
}

func TestFailHelpers(t *testing.T) {
	var r recordingFatal
	failIfTransitiveViolations(&r, "why", nil)
	failIfDirectViolations(&r, "why", nil)
	if r.msg != "" {
		t.Fatalf("no violations must not fail")
	}
	failIfTransitiveViolations(&r, "layering", []string{"a"})
	if r.msg != "layering" {
		t.Fatalf("expected reason in failure, got %q", r.msg)
	}
	r = recordingFatal{}
	failIfDirectViolations(&r, "imports", []string{"b"})
	if r.msg != "imports" {
		t.Fatalf("expected reason in failure, got %q", r.msg)
	}
}
