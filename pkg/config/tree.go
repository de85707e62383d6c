/*
Package config implements the configuration surface, including a
generic configuration tree: a JSON-like value tree addressable by
dotted path ("db.thread_count", "threads.0") with typed accessors,
decoded from YAML, an explicit Merge step for preloaded fragments, and
mandatory Validate after merge.
*/
package config

import (
	"strconv"
	"strings"

	"github.com/cuemby/strata/pkg/serr"
	"gopkg.in/yaml.v3"
)

// Tree is a generic, JSON-like configuration value: the root is
// typically a map[string]any decoded from YAML, but any value a YAML
// document can produce (scalar, []any, map[string]any) is valid.
type Tree struct {
	root any
}

// ParseTree decodes data as YAML into a Tree.
func ParseTree(data []byte) (*Tree, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, serr.Wrap(serr.ParseFailed, err, "config: parsing tree")
	}
	return &Tree{root: normalize(v)}, nil
}

// NewTree wraps an already-decoded value as a Tree root.
func NewTree(root any) *Tree {
	return &Tree{root: normalize(root)}
}

// normalize recursively converts map[any]any (which yaml.v3 never
// actually produces, but a caller-built tree might) to map[string]any
// so path lookups can assume one map type throughout.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[toString(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// splitPath breaks a dotted path into its segments.
func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Get walks path's segments against the tree, indexing into maps by
// key and into slices by a numeric segment, and returns the value
// found there.
func (t *Tree) Get(path string) (any, bool) {
	cur := t.root
	for _, seg := range splitPath(path) {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Set walks path, creating intermediate maps as needed, and assigns
// value at the leaf. Set cannot create new slice elements — the
// slices a path indexes into must already exist with enough length.
func (t *Tree) Set(path string, value any) error {
	segs := splitPath(path)
	if len(segs) == 0 {
		return serr.New(serr.ValidationFailed, "config: empty path")
	}
	if t.root == nil {
		t.root = map[string]any{}
	}
	root, ok := t.root.(map[string]any)
	if !ok {
		return serr.New(serr.ValidationFailed, "config: tree root is not a map")
	}
	return setIn(root, segs, value)
}

func setIn(node map[string]any, segs []string, value any) error {
	seg := segs[0]
	if len(segs) == 1 {
		node[seg] = value
		return nil
	}
	next, ok := node[seg]
	if !ok {
		child := map[string]any{}
		node[seg] = child
		return setIn(child, segs[1:], value)
	}
	child, ok := next.(map[string]any)
	if !ok {
		return serr.New(serr.ValidationFailed, "config: path segment %q is not a map", seg)
	}
	return setIn(child, segs[1:], value)
}

// Decode re-marshals the tree and decodes it into v, letting callers
// populate a typed struct (with `yaml` tags) from the generic tree in
// one step.
func (t *Tree) Decode(v any) error {
	data, err := yaml.Marshal(t.root)
	if err != nil {
		return serr.Wrap(serr.ParseFailed, err, "config: re-marshaling tree")
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return serr.Wrap(serr.ParseFailed, err, "config: decoding tree")
	}
	return nil
}

// Merge overlays other's values onto t: maps merge key by key
// recursively, any other value (scalar or slice) in other replaces
// t's value at that path outright. Merge is how a preloaded fragment
// (e.g. a crypto-plugin registry config) is combined with the file
// loaded at startup; Validate must run after every Merge, never
// skipped, so a merged fragment can't silently bypass validation.
func (t *Tree) Merge(other *Tree) error {
	if other == nil {
		return nil
	}
	merged, err := mergeValues(t.root, other.root)
	if err != nil {
		return err
	}
	t.root = merged
	return nil
}

func mergeValues(base, overlay any) (any, error) {
	baseMap, baseIsMap := base.(map[string]any)
	overlayMap, overlayIsMap := overlay.(map[string]any)
	if baseIsMap && overlayIsMap {
		out := make(map[string]any, len(baseMap))
		for k, v := range baseMap {
			out[k] = v
		}
		for k, v := range overlayMap {
			if existing, ok := out[k]; ok {
				merged, err := mergeValues(existing, v)
				if err != nil {
					return nil, err
				}
				out[k] = merged
			} else {
				out[k] = v
			}
		}
		return out, nil
	}
	return overlay, nil
}

// GetString, GetInt and GetBool are typed convenience accessors over
// Get, returning ok=false both when the path is absent and when the
// value there isn't the requested type.
func (t *Tree) GetString(path string) (string, bool) {
	v, ok := t.Get(path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (t *Tree) GetInt(path string) (int, bool) {
	v, ok := t.Get(path)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

func (t *Tree) GetBool(path string) (bool, bool) {
	v, ok := t.Get(path)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
