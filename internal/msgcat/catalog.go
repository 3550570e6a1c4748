package msgcat

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	yaml "gopkg.in/yaml.v3"
)

//go:embed messages.en.yaml
var embedded embed.FS

const embeddedFile = "messages.en.yaml"

// Catalog holds compiled message templates keyed by dotted path
// ("errors.illegal_move"). It is immutable after New and safe to share.
type Catalog struct {
	tpl    map[string]*template.Template
	source map[string]string
}

// New loads the embedded English catalog, then every *.yaml / *.yml file in
// overrideDir (if set) in name order. Two override files may not define the
// same key. All templates are compiled up front.
func New(overrideDir string) (*Catalog, error) {
	raw, err := embedded.ReadFile(embeddedFile)
	if err != nil {
		return nil, fmt.Errorf("read embedded messages: %w", err)
	}
	entries, err := flatten(raw, embeddedFile)
	if err != nil {
		return nil, err
	}
	source := make(map[string]string, len(entries))
	texts := make(map[string]string, len(entries))
	for k, v := range entries {
		texts[k], source[k] = v, embeddedFile
	}

	if dir := strings.TrimSpace(overrideDir); dir != "" {
		files, err := overrideFiles(dir)
		if err != nil {
			return nil, err
		}
		overridden := make(map[string]string)
		for _, path := range files {
			b, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			name := filepath.Base(path)
			layer, err := flatten(b, name)
			if err != nil {
				return nil, err
			}
			for k, v := range layer {
				if prev, dup := overridden[k]; dup {
					return nil, fmt.Errorf("duplicate override key %q in %s and %s", k, prev, name)
				}
				overridden[k] = name
				texts[k], source[k] = v, name
			}
		}
	}

	c := &Catalog{tpl: make(map[string]*template.Template, len(texts)), source: source}
	for k, text := range texts {
		t, err := template.New(k).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("%s: key %q: %w", source[k], k, err)
		}
		c.tpl[k] = t
	}
	return c, nil
}

func overrideFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read messages dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			if !e.IsDir() {
				out = append(out, filepath.Join(dir, e.Name()))
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// flatten walks a YAML document of nested mappings with string leaves.
func flatten(b []byte, name string) (map[string]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	out := make(map[string]string)
	if len(doc.Content) == 0 {
		return out, nil
	}
	var walk func(n *yaml.Node, prefix string) error
	walk = func(n *yaml.Node, prefix string) error {
		switch n.Kind {
		case yaml.MappingNode:
			for i := 0; i+1 < len(n.Content); i += 2 {
				key := n.Content[i].Value
				if prefix != "" {
					key = prefix + "." + key
				}
				if err := walk(n.Content[i+1], key); err != nil {
					return err
				}
			}
			return nil
		case yaml.ScalarNode:
			if prefix == "" {
				return fmt.Errorf("%s:%d: top-level value without a key", name, n.Line)
			}
			if n.Tag != "!!str" && n.Tag != "!!null" {
				return fmt.Errorf("%s:%d: %s must be a string, got %s", name, n.Line, prefix, n.Tag)
			}
			if n.Tag == "!!str" {
				out[prefix] = n.Value
			}
			return nil
		}
		return fmt.Errorf("%s:%d: %s must be a mapping or a string", name, n.Line, prefix)
	}
	return out, walk(doc.Content[0], "")
}

// Has reports whether key is defined.
func (c *Catalog) Has(key string) bool {
	if c == nil {
		return false
	}
	_, ok := c.tpl[key]
	return ok
}

// Missing returns the keys not defined in the catalog.
func (c *Catalog) Missing(keys ...string) []string {
	var out []string
	for _, k := range keys {
		if !c.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// Render executes the template stored under key.
func (c *Catalog) Render(key string, data any) (string, error) {
	if c == nil {
		return "", fmt.Errorf("message %q: no catalog", key)
	}
	t, ok := c.tpl[strings.TrimSpace(key)]
	if !ok {
		return "", fmt.Errorf("message %q not defined", key)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("message %q (%s): %w", key, c.source[key], err)
	}
	return b.String(), nil
}

// Text renders key, or returns fallback when it is missing or fails.
func (c *Catalog) Text(key string, data any, fallback string) string {
	s, err := c.Render(key, data)
	if err != nil || strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// Error is the user-facing text for an error code, falling back to the code.
func (c *Catalog) Error(code string) string {
	return c.Text("errors."+code, nil, code)
}
