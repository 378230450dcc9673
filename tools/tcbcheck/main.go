// Command tcbcheck is a layering linter for the swarm's fixed lock order
// (spec.md §5: Ledger, then Plan, then Bus). A package that sits earlier
// in that order must never import one that sits later — if it did, a
// caller holding both locks in the documented order could deadlock
// against code that expects the reverse. It scans every package's
// non-test Go source and reports any import that violates the layering.
//
// Usage:
//
//	go run tools/tcbcheck/main.go [-root <project-root>]
package main

import (
	"flag"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
)

// layerForbidden maps a package directory (relative to pkgDir) to the
// import path fragments it must never contain, enforcing spec.md §5's
// fixed acquisition order: pkg/ledger (position 1) must not import
// pkg/plan or pkg/bus; pkg/plan (position 2) must not import pkg/bus.
// pkg/swarmerr is the vocabulary every other package reports errors
// through, so it must stay a leaf with no dependency on the rest of the
// tree at all.
var layerForbidden = map[string][]string{
	"ledger":   {"/pkg/plan", "/pkg/bus"},
	"plan":     {"/pkg/bus"},
	"swarmerr": {"/pkg/"},
}

func main() {
	root := flag.String("root", ".", "Project root directory")
	flag.Parse()

	pkgDir := filepath.Join(*root, "pkg")
	if _, err := os.Stat(pkgDir); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "ERROR: %s does not exist\n", pkgDir)
		os.Exit(1)
	}

	violations := 0
	fset := token.NewFileSet()

	for pkgName, forbidden := range layerForbidden {
		dir := filepath.Join(pkgDir, pkgName)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}

		err := filepath.Walk(dir, func(path string, info os.FileInfo, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if info.IsDir() {
				if info.Name() == "testdata" {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}

			f, parseErr := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
			if parseErr != nil {
				fmt.Fprintf(os.Stderr, "WARN: parse error in %s: %v\n", path, parseErr)
				return nil
			}

			for _, imp := range f.Imports {
				importPath := strings.Trim(imp.Path.Value, `"`)
				for _, frag := range forbidden {
					if strings.Contains(importPath, frag) {
						pos := fset.Position(imp.Pos())
						relPath, _ := filepath.Rel(*root, pos.Filename)
						fmt.Printf("LAYERING VIOLATION: %s:%d (pkg/%s) imports %q (forbidden fragment %q)\n",
							relPath, pos.Line, pkgName, importPath, frag)
						violations++
					}
				}
			}
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: walk failed for pkg/%s: %v\n", pkgName, err)
			os.Exit(1)
		}
	}

	if violations > 0 {
		fmt.Printf("\n%d layering violation(s) found\n", violations)
		os.Exit(1)
	}

	fmt.Println("layering check passed — lock order ledger -> plan -> bus is acyclic")
}
