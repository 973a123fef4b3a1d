package architecture_test

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// layer rules are prefixes under the module path unless they contain a dot,
// in which case they are third-party import paths.
type layer struct {
	name       string
	dir        string
	disallowed []string
}

var layers = []layer{
	{
		name: "platform",
		dir:  "internal/platform/",
		disallowed: []string{
			"/internal/learning/", "/internal/data/", "/internal/http/",
			"/internal/app", "/internal/jobs", "/internal/temporalx",
		},
	},
	{
		// The learner model only sees kv.Store; drivers stay in data and app.
		name: "learning",
		dir:  "internal/learning/",
		disallowed: []string{
			"/internal/http/", "/internal/app", "/internal/jobs", "/internal/temporalx",
			"/internal/db", "/internal/data/graph",
			"gorm.io/", "github.com/redis/go-redis", "github.com/neo4j/", "go.temporal.io/", "github.com/gin-gonic/",
		},
	},
	{
		name: "data",
		dir:  "internal/data/",
		disallowed: []string{
			"/internal/http/", "/internal/app", "/internal/jobs", "/internal/temporalx",
			"/internal/learning/engine", "/internal/learning/recommend",
		},
	},
	{
		name:       "http",
		dir:        "internal/http/",
		disallowed: []string{"/internal/app", "/internal/jobs", "/internal/temporalx", "/internal/db", "go.temporal.io/"},
	},
	{
		name:       "jobs",
		dir:        "internal/jobs/",
		disallowed: []string{"/internal/http/", "/internal/app", "/internal/temporalx"},
	},
	{
		name:       "temporalx",
		dir:        "internal/temporalx/",
		disallowed: []string{"/internal/http/", "/internal/app", "/internal/jobs"},
	},
}

func TestImportBoundaries(t *testing.T) {
	root, modulePath := moduleRoot(t)
	fset := token.NewFileSet()

	type violation struct {
		file string
		imp  string
		rule string
	}
	var violations []violation

	walkErr := filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		l, ok := layerFor(rel)
		if !ok {
			return nil
		}

		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, spec := range f.Imports {
			imp, err := strconv.Unquote(spec.Path.Value)
			if err != nil {
				continue
			}
			for _, bad := range l.disallowed {
				full := bad
				if strings.HasPrefix(bad, "/") {
					full = modulePath + bad
				}
				if strings.HasPrefix(imp, full) {
					violations = append(violations, violation{file: rel, imp: imp, rule: l.name})
					break
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk internal/: %v", walkErr)
	}

	if len(violations) > 0 {
		var b strings.Builder
		b.WriteString("import boundary violations:\n")
		for _, v := range violations {
			fmt.Fprintf(&b, "- %s imports %q (%s layer)\n", v.file, v.imp, v.rule)
		}
		t.Fatal(b.String())
	}
}

func TestLayerRulesMatch(t *testing.T) {
	cases := map[string]string{
		"internal/platform/logger/logger.go":  "platform",
		"internal/learning/bkt/estimator.go":  "learning",
		"internal/data/kv/store.go":           "data",
		"internal/http/router.go":             "http",
		"internal/jobs/scheduler.go":          "jobs",
		"internal/temporalx/outcome/types.go": "temporalx",
	}
	for rel, want := range cases {
		l, ok := layerFor(rel)
		if !ok || l.name != want {
			t.Fatalf("layerFor(%s) = %q, want %q", rel, l.name, want)
		}
	}
	if _, ok := layerFor("internal/app/app.go"); ok {
		t.Fatalf("app is the composition root and may import anything")
	}
}

func layerFor(rel string) (layer, bool) {
	for _, l := range layers {
		if strings.HasPrefix(rel, l.dir) {
			return l, true
		}
	}
	return layer{}, false
}

func moduleRoot(t *testing.T) (string, string) {
	t.Helper()
	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root, err := findModuleRoot(start)
	if err != nil {
		t.Fatalf("find module root: %v", err)
	}
	modulePath, err := readModulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}
	return root, modulePath
}

func findModuleRoot(start string) (string, error) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found from %s", start)
		}
		dir = parent
	}
}

func readModulePath(goModPath string) (string, error) {
	f, err := os.Open(goModPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "module ") {
			continue
		}
		mp := strings.TrimSpace(strings.TrimPrefix(line, "module "))
		if mp == "" {
			return "", fmt.Errorf("empty module path in %s", goModPath)
		}
		return mp, nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("module path not found in %s", goModPath)
}
