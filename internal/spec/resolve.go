package spec

import (
	"fmt"
	"path"
	"strings"
)

// resolveDoc returns a deep copy of the named document with every
// cross-file "$ref" replaced by the (recursively resolved) target
// document. Fragment-only refs ("#/...") are left alone: they stay
// valid inside a self-contained document and the validator understands
// them.
//
// inProgress guards against reference cycles between files.
func resolveDoc(docs map[string]map[string]any, name string, inProgress map[string]bool) (map[string]any, error) {
	doc, ok := docs[name]
	if !ok {
		return nil, fmt.Errorf("referenced schema not found: %s", name)
	}
	if inProgress[name] {
		return nil, fmt.Errorf("reference cycle through %s", name)
	}
	inProgress[name] = true
	defer delete(inProgress, name)

	out, err := resolveNode(docs, doc, path.Dir(name), inProgress)
	if err != nil {
		return nil, err
	}
	resolved, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("schema %s did not resolve to an object", name)
	}
	return resolved, nil
}

func resolveNode(docs map[string]map[string]any, node any, dir string, inProgress map[string]bool) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		if ref, ok := v["$ref"].(string); ok && !strings.HasPrefix(ref, "#") {
			target := path.Join(dir, ref)
			inlined, err := resolveDoc(docs, target, inProgress)
			if err != nil {
				return nil, fmt.Errorf("resolve $ref %q: %w", ref, err)
			}
			// The inlined document becomes a subschema; nested $schema
			// declarations are only valid at a document root.
			out := make(map[string]any, len(inlined))
			for k, val := range inlined {
				if k == "$schema" || k == "$id" {
					continue
				}
				out[k] = val
			}
			return out, nil
		}
		out := make(map[string]any, len(v))
		for k, val := range v {
			resolved, err := resolveNode(docs, val, dir, inProgress)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil

	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			resolved, err := resolveNode(docs, val, dir, inProgress)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil

	default:
		return v, nil
	}
}
