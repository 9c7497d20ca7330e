package fhir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Document is a decoded FHIR resource. The resourceType member is the type
// discriminator and id identifies the document within its type.
type Document map[string]interface{}

// typeMarker is the JSON member name every FHIR resource carries.
var typeMarker = []byte(`"resourceType"`)

// HasTypeMarker is a cheap pre-check that data may be a FHIR resource. It does
// not parse; it only looks for the resourceType member name.
func HasTypeMarker(data []byte) bool {
	return bytes.Contains(data, typeMarker)
}

// ParseDocument decodes a single JSON resource. The payload must be a JSON
// object with a non-empty string resourceType.
func ParseDocument(source string, data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}
	if doc == nil {
		return nil, &ParseError{Source: source, Err: errors.New("document is null")}
	}
	if doc.ResourceType() == "" {
		return nil, &ParseError{Source: source, Err: errors.New("missing resourceType")}
	}
	return doc, nil
}

// ResourceType returns the type discriminator or "" when absent.
func (d Document) ResourceType() string {
	return d.String("resourceType")
}

// ID returns the logical id or "" when absent.
func (d Document) ID() string {
	return d.String("id")
}

// SetID assigns the logical id.
func (d Document) SetID(id string) {
	d["id"] = id
}

// Key returns "Type/id".
func (d Document) Key() string {
	return d.ResourceType() + "/" + d.ID()
}

// String returns a top-level string member or "".
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Map returns a top-level object member or nil.
func (d Document) Map(key string) map[string]interface{} {
	m, _ := d[key].(map[string]interface{})
	return m
}

// Slice returns a top-level array member as a list of objects, skipping
// non-object items.
func (d Document) Slice(key string) []map[string]interface{} {
	return ObjectList(d[key])
}

// Clone returns a deep copy so callers never alias stored state.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneMap(d))
}

// MarshalIndent renders the document as indented JSON.
func (d Document) MarshalIndent() ([]byte, error) {
	out, err := json.MarshalIndent(map[string]interface{}(d), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", d.Key(), err)
	}
	return out, nil
}

// ObjectList normalizes a decoded JSON array (or a Go-built slice of maps)
// into a list of objects.
func ObjectList(v interface{}) []map[string]interface{} {
	switch items := v.(type) {
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	case []map[string]interface{}:
		return items
	}
	return nil
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies a decoded JSON value.
func CloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return cloneMap(val)
	case Document:
		return Document(cloneMap(val))
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	case []map[string]interface{}:
		out := make([]map[string]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneMap(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return val
	}
}
