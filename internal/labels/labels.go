// Package labels maps classifier output indices to ImageNet synset ids and
// display names.
package labels

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

var (
	ErrMalformedTable = errors.New("malformed label table")
	ErrUnknownIndex   = errors.New("unknown class index")
)

type Entry struct {
	Index int
	ID    string
	Name  string
}

// Table is immutable after Load and safe for concurrent lookups.
type Table struct {
	entries map[int]Entry
}

// Load reads a table such as imagenet_class_index.json:
//
//	{"0": ["n01440764", "tench"], "1": ["n01443537", "goldfish"], ...}
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTable, err)
	}
	defer f.Close()
	return Parse(f)
}

func Parse(r io.Reader) (*Table, error) {
	dec := json.NewDecoder(r)
	var raw map[string]json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTable, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedTable)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected data after the object", ErrMalformedTable)
	}

	entries := make(map[int]Entry, len(raw))
	for key, value := range raw {
		idx, err := parseIndex(key)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrMalformedTable, key, err)
		}
		var pair []*string
		if err := json.Unmarshal(value, &pair); err != nil {
			return nil, fmt.Errorf("%w: key %q: value must be an array of strings", ErrMalformedTable, key)
		}
		if len(pair) != 2 {
			return nil, fmt.Errorf("%w: key %q: expected 2 elements, got %d", ErrMalformedTable, key, len(pair))
		}
		if pair[0] == nil || pair[1] == nil {
			return nil, fmt.Errorf("%w: key %q: null element", ErrMalformedTable, key)
		}
		entries[idx] = Entry{Index: idx, ID: *pair[0], Name: *pair[1]}
	}
	return &Table{entries: entries}, nil
}

// parseIndex accepts the canonical decimal form only: no sign, whitespace or
// leading zero, so each index has exactly one key.
func parseIndex(key string) (int, error) {
	if key == "" {
		return 0, errors.New("empty key")
	}
	for _, c := range key {
		if c < '0' || c > '9' {
			return 0, errors.New("not a decimal index")
		}
	}
	if len(key) > 1 && key[0] == '0' {
		return 0, errors.New("leading zero")
	}
	return strconv.Atoi(key)
}

func (t *Table) Resolve(index int) (Entry, error) {
	e, ok := t.entries[index]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %d", ErrUnknownIndex, index)
	}
	return e, nil
}

func (t *Table) Len() int {
	return len(t.entries)
}
