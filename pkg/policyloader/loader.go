// Package policyloader provides external policy bundle loading for the
// Preflight/Ingress/Commit gates in pkg/policy.
//
// Policy bundles are JSON files containing CEL rules that can be loaded
// from the filesystem or embedded in container images, enabling policy
// changes without code deployments.
package policyloader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// bundleSchemaURL is a synthetic URL used only as a compiler cache key;
// the schema is loaded from bundleSchemaJSON, never fetched over the
// network.
const bundleSchemaURL = "https://swarmmesh.local/schemas/policy-bundle.schema.json"

// bundleSchemaJSON constrains every field LoadFile accepts, so a
// malformed or hand-edited bundle fails loudly at load time rather than
// silently producing an Ingress/Preflight gate with zero active rules.
const bundleSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "rules"],
  "properties": {
    "version": {"type": "string", "minLength": 1},
    "name": {"type": "string"},
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "expression", "action"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "description": {"type": "string"},
          "expression": {"type": "string", "minLength": 1},
          "action": {"type": "string", "enum": ["BLOCK", "WARN", "LOG"]},
          "priority": {"type": "integer"},
          "enabled": {"type": "boolean"}
        }
      }
    }
  }
}`

// isVersionRegression reports whether candidate is an older semver than
// current, guarding against an operator accidentally reloading a stale
// bundle over a newer one already in effect.
func isVersionRegression(current, candidate string) (bool, error) {
	curV, err := semver.NewVersion(current)
	if err != nil {
		return false, err
	}
	candV, err := semver.NewVersion(candidate)
	if err != nil {
		return false, err
	}
	return candV.LessThan(curV), nil
}

func compileBundleSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(bundleSchemaURL, strings.NewReader(bundleSchemaJSON)); err != nil {
		return nil, fmt.Errorf("policyloader: add schema resource: %w", err)
	}
	return c.Compile(bundleSchemaURL)
}

// PolicyRule represents a single CEL governance rule.
type PolicyRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"` // CEL expression
	Action      string `json:"action"`     // "BLOCK", "WARN", "LOG"
	Priority    int    `json:"priority"`   // Higher = evaluated first
	Enabled     bool   `json:"enabled"`
}

// PolicyBundle is a versioned collection of CEL rules.
type PolicyBundle struct {
	Version   string       `json:"version"`
	Name      string       `json:"name"`
	Rules     []PolicyRule `json:"rules"`
	CreatedAt time.Time    `json:"created_at"`
	Hash      string       `json:"hash,omitempty"` // Content-addressed hash
}

// Loader loads and manages policy bundles from external sources.
type Loader struct {
	mu        sync.RWMutex
	bundles   map[string]*PolicyBundle // name -> bundle
	bundleDir string
	onReload  func(bundle *PolicyBundle)
	schema    *jsonschema.Schema
}

// NewLoader creates a policy bundle loader for the given directory, which
// is read only when LoadAll is called.
// Panics only on a malformed compile-time schema, never on bad input —
// bundleSchemaJSON is a package constant, so a compile failure here
// indicates a programming error, not a runtime condition callers recover
// from.
func NewLoader(bundleDir string) *Loader {
	schema, err := compileBundleSchema()
	if err != nil {
		panic(fmt.Sprintf("policyloader: bundle schema failed to compile: %v", err))
	}
	return &Loader{
		bundles:   make(map[string]*PolicyBundle),
		bundleDir: bundleDir,
		schema:    schema,
	}
}

// OnReload registers a callback invoked when a bundle is loaded or reloaded.
func (l *Loader) OnReload(fn func(bundle *PolicyBundle)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReload = fn
}

// LoadAll loads all .json bundle files from the configured directory.
func (l *Loader) LoadAll() error {
	entries, err := os.ReadDir(l.bundleDir)
	if err != nil {
		return fmt.Errorf("policyloader: read dir %s: %w", l.bundleDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(l.bundleDir, entry.Name())
		if err := l.LoadFile(path); err != nil {
			return fmt.Errorf("policyloader: load %s: %w", entry.Name(), err)
		}
	}

	return nil
}

// LoadFile loads a single policy bundle from a JSON file.
func (l *Loader) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse bundle: %w", err)
	}
	if err := l.schema.Validate(raw); err != nil {
		return fmt.Errorf("policyloader: bundle %s failed schema validation: %w", filepath.Base(path), err)
	}

	var bundle PolicyBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return fmt.Errorf("parse bundle: %w", err)
	}

	if bundle.Name == "" {
		bundle.Name = filepath.Base(path)
	}

	l.mu.Lock()
	if existing, ok := l.bundles[bundle.Name]; ok {
		if regressed, err := isVersionRegression(existing.Version, bundle.Version); err != nil {
			l.mu.Unlock()
			return fmt.Errorf("policyloader: bundle %s has non-semver version %q: %w", bundle.Name, bundle.Version, err)
		} else if regressed {
			l.mu.Unlock()
			return fmt.Errorf("policyloader: refusing to load bundle %s version %s over already-loaded %s (rollback)",
				bundle.Name, bundle.Version, existing.Version)
		}
	}
	l.bundles[bundle.Name] = &bundle
	callback := l.onReload
	l.mu.Unlock()

	if callback != nil {
		callback(&bundle)
	}

	return nil
}

// GetBundle returns a loaded bundle by name.
func (l *Loader) GetBundle(name string) (*PolicyBundle, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.bundles[name]
	return b, ok
}

// AllBundles returns all loaded bundles.
func (l *Loader) AllBundles() []*PolicyBundle {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*PolicyBundle, 0, len(l.bundles))
	for _, b := range l.bundles {
		result = append(result, b)
	}
	return result
}

// ActiveRules returns all enabled rules across all bundles, sorted by priority.
func (l *Loader) ActiveRules() []PolicyRule {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var rules []PolicyRule
	for _, b := range l.bundles {
		for _, r := range b.Rules {
			if r.Enabled {
				rules = append(rules, r)
			}
		}
	}

	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })

	return rules
}
