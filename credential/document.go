// Package credential builds and checks the verifiable credential and
// presentation pair used by DID authentication.
package credential

import (
	"encoding/json"
	"fmt"
)

// Document is a JSON-LD style document held as a generic map
type Document map[string]interface{}

// Canonical serializes the document without its proof. Keys are emitted in
// sorted order at every level, so equal documents produce equal bytes.
func (d Document) Canonical() ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("document is nil")
	}
	cp := make(map[string]interface{}, len(d))
	for k, v := range d {
		if k != "proof" {
			cp[k] = v
		}
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize document: %w", err)
	}
	return data, nil
}

// JSON serializes the whole document including its proof
func (d Document) JSON() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return data, nil
}

// Proof returns the embedded proof if there is one
func (d Document) Proof() (*Proof, bool) {
	raw, ok := d["proof"]
	if !ok {
		return nil, false
	}
	switch p := raw.(type) {
	case *Proof:
		return p, true
	case Proof:
		return &p, true
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, false
	}
	var p Proof
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false
	}
	return &p, true
}

// Parse decodes a serialized document
func Parse(data []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return d, nil
}

// normalize round-trips a document through JSON so nested values become
// plain maps and slices
func normalize(d Document) (Document, error) {
	data, err := d.JSON()
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
