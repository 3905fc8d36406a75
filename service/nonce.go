package service

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"

	"github.com/talentbridge/trustlayer/core"
)

// DefaultNonceScanDepth bounds how deep ExtractNonce descends
const DefaultNonceScanDepth = 8

// ExtractNonce finds the first non-empty value stored under a key containing
// "nonce" (case-insensitive) in a decoded JSON tree. Keys are visited in
// sorted order and buffer-shaped values are decoded to text.
func ExtractNonce(tree any, maxDepth int) (string, error) {
	found, err := findNonce(tree, maxDepth)
	if err != nil {
		return "", err
	}
	return found.nonce, nil
}

// nonceSite is where a nonce was found: the object holding it and the key
// that object sits under in its parent
type nonceSite struct {
	nonce     string
	container map[string]any
	parentKey string
}

func findNonce(tree any, maxDepth int) (nonceSite, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultNonceScanDepth
	}
	s := nonceScan{maxDepth: maxDepth, seen: make(map[uintptr]bool)}
	if site, ok := s.walk(tree, 0, ""); ok {
		return site, nil
	}
	return nonceSite{}, core.ErrChallengeNonceMissing
}

type nonceScan struct {
	maxDepth int
	seen     map[uintptr]bool
}

func (s *nonceScan) walk(v any, depth int, parentKey string) (nonceSite, bool) {
	if depth > s.maxDepth || v == nil {
		return nonceSite{}, false
	}

	switch t := v.(type) {
	case map[string]any:
		if s.visited(t) {
			return nonceSite{}, false
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			if strings.Contains(strings.ToLower(k), "nonce") {
				if text, ok := nonceText(t[k]); ok {
					return nonceSite{nonce: text, container: t, parentKey: parentKey}, true
				}
			}
		}
		for _, k := range keys {
			if site, ok := s.walk(t[k], depth+1, k); ok {
				return site, true
			}
		}
	case []any:
		if s.visited(t) {
			return nonceSite{}, false
		}
		for _, item := range t {
			if site, ok := s.walk(item, depth+1, parentKey); ok {
				return site, true
			}
		}
	}
	return nonceSite{}, false
}

// visited guards against self-referencing trees built in memory
func (s *nonceScan) visited(v any) bool {
	p := reflect.ValueOf(v).Pointer()
	if p == 0 {
		return false
	}
	if s.seen[p] {
		return true
	}
	s.seen[p] = true
	return false
}

// nonceText decodes the value shapes a nonce is known to arrive in: plain
// strings, raw bytes, numbers, {"type":"Buffer","data":[...]} objects and
// bare byte arrays.
func nonceText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case []byte:
		return string(t), len(t) > 0
	case json.Number:
		return t.String(), true
	case map[string]any:
		if typ, _ := t["type"].(string); typ == "Buffer" {
			if data, ok := t["data"].([]any); ok {
				return bytesText(data)
			}
		}
	case []any:
		return bytesText(t)
	}
	return "", false
}

func bytesText(data []any) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	buf := make([]byte, 0, len(data))
	for _, d := range data {
		f, ok := d.(float64)
		if !ok || f < 0 || f > 255 || f != float64(int(f)) {
			return "", false
		}
		buf = append(buf, byte(f))
	}
	return string(buf), true
}
