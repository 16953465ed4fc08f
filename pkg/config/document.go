// Copyright 2024-2026 Aiku AI

package config

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a string-keyed configuration tree with dotted-path addressing:
// Get("a.b.c", def) descends through nested maps. Missing intermediate
// segments are treated as empty maps on reads and materialized on writes,
// so no path operation ever fails.
type Document struct {
	data map[string]any
}

// NewDocument creates an empty Document.
func NewDocument() *Document {
	return &Document{data: make(map[string]any)}
}

// ParseDocument parses YAML bytes into a Document.
func ParseDocument(raw []byte) (*Document, error) {
	data := make(map[string]any)
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	if data == nil {
		data = make(map[string]any)
	}
	return &Document{data: data}, nil
}

// Marshal serializes the Document back to YAML.
func (d *Document) Marshal() ([]byte, error) {
	return yaml.Marshal(d.data)
}

// Get returns the value at the dotted path, or def if any segment is absent.
func (d *Document) Get(path string, def any) any {
	node := d.data
	for {
		key, rest, more := strings.Cut(path, ".")
		if !more {
			if val, ok := node[key]; ok {
				return val
			}
			return def
		}
		next, ok := node[key].(map[string]any)
		if !ok {
			return def
		}
		node = next
		path = rest
	}
}

// Has reports whether the dotted path resolves to a non-nil value.
func (d *Document) Has(path string) bool {
	return d.Get(path, nil) != nil
}

// Set writes the value at the dotted path, materializing intermediate maps
// as needed. An intermediate segment holding a non-map value is replaced
// with a map.
func (d *Document) Set(path string, value any) {
	node := d.data
	for {
		key, rest, more := strings.Cut(path, ".")
		if !more {
			node[key] = value
			return
		}
		next, ok := node[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[key] = next
		}
		node = next
		path = rest
	}
}

// Delete removes the value at the dotted path. Missing segments are a no-op.
func (d *Document) Delete(path string) {
	node := d.data
	for {
		key, rest, more := strings.Cut(path, ".")
		if !more {
			delete(node, key)
			return
		}
		next, ok := node[key].(map[string]any)
		if !ok {
			return
		}
		node = next
		path = rest
	}
}

// GetString returns the string at the path, or def if absent or not a string.
func (d *Document) GetString(path, def string) string {
	if val, ok := d.Get(path, nil).(string); ok {
		return val
	}
	return def
}

// GetBool returns the bool at the path, or def if absent or not a bool.
func (d *Document) GetBool(path string, def bool) bool {
	if val, ok := d.Get(path, nil).(bool); ok {
		return val
	}
	return def
}

// GetStringList returns the path's value coerced to a string slice.
// Non-string elements are skipped. Returns nil when the path is absent or
// not a list.
func (d *Document) GetStringList(path string) []string {
	list, ok := d.Get(path, nil).([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if str, ok := item.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

// GetMap returns the map at the path, or nil if absent or not a map.
func (d *Document) GetMap(path string) map[string]any {
	m, _ := d.Get(path, nil).(map[string]any)
	return m
}
