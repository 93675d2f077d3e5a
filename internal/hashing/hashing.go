// Package hashing computes content hashes over declared field projections.
//
// A projection names the fields that make up an object's identity. The value
// is serialized to JSON, the declared paths are picked into a flat object keyed
// by the projection keys, and the SHA-256 of its RFC 8785 canonical form is the
// hash. Fields outside the projection never influence the result.
package hashing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"
)

var ErrEmptyProjection = errors.New("projection has no fields")

// Field maps a dot path in the source value onto a key of the hashed object.
// A path segment ending in "[]" maps the rest of the path over an array.
type Field struct {
	Key  string
	Path string
}

type Projection struct {
	Name   string
	Fields []Field
}

// Hash returns the hex SHA-256 content hash of value under p.
func Hash(value any, p Projection) (string, error) {
	canonical, err := Canonical(value, p)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Canonical returns the canonical bytes that Hash digests.
func Canonical(value any, p Projection) ([]byte, error) {
	if len(p.Fields) == 0 {
		return nil, fmt.Errorf("%s: %w", p.Name, ErrEmptyProjection)
	}
	doc, err := toDocument(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}
	picked := make(map[string]any, len(p.Fields))
	for _, f := range p.Fields {
		if v, ok := lookup(doc, strings.Split(f.Path, ".")); ok {
			picked[f.Key] = v
		}
	}
	raw, err := json.Marshal(picked)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: canonicalize: %w", p.Name, err)
	}
	return canonical, nil
}

// CanonicalJSON returns the RFC 8785 form of an arbitrary value.
func CanonicalJSON(value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}

func toDocument(value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func lookup(node any, path []string) (any, bool) {
	if len(path) == 0 {
		return node, node != nil
	}
	obj, ok := node.(map[string]any)
	if !ok {
		return nil, false
	}
	segment := path[0]
	if name, isArray := strings.CutSuffix(segment, "[]"); isArray {
		items, ok := obj[name].([]any)
		if !ok {
			return nil, false
		}
		out := make([]any, 0, len(items))
		for _, item := range items {
			if v, found := lookup(item, path[1:]); found {
				out = append(out, v)
			}
		}
		return out, true
	}
	child, ok := obj[segment]
	if !ok {
		return nil, false
	}
	return lookup(child, path[1:])
}
