// Package capture reads captured response documents off the filesystem.
//
// The input layout is fixed: a root directory whose immediate
// subdirectories each hold one UTF-8 JSON file at a fixed relative name.
// Unreadable or unparseable files are recorded and skipped; only a missing
// root directory is fatal.
package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Document is one successfully parsed capture.
type Document struct {
	// ID is the capture subdirectory name.
	ID string

	// Path is the file the document was read from.
	Path string

	// Root is the parsed top-level JSON object, decoded with UseNumber so
	// integers survive without a float64 round-trip.
	Root map[string]any
}

// ReadError records one skipped capture.
type ReadError struct {
	ID  string
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("capture %s: %v", e.ID, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// ReadDir walks the immediate subdirectories of root in stable name order
// and parses fileName inside each. Subdirectories without the file are
// silently ignored (captures in progress); files that fail to read or
// parse are returned as ReadErrors.
func ReadDir(root, fileName string) ([]Document, []*ReadError, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, fmt.Errorf("read input dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var (
		docs []Document
		bad  []*ReadError
	)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(root, e.Name(), fileName)
		b, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			bad = append(bad, &ReadError{ID: e.Name(), Err: err})
			continue
		}

		obj, err := decodeObject(b)
		if err != nil {
			bad = append(bad, &ReadError{ID: e.Name(), Err: err})
			continue
		}
		docs = append(docs, Document{ID: e.Name(), Path: path, Root: obj})
	}
	return docs, bad, nil
}

func decodeObject(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(string(b)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return obj, nil
}
