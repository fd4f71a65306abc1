package pallet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"
)

// TypeName identifies the pallet schema among a pallet.json's types.
const TypeName = "SLZ.Marrow.Warehouse.Pallet"

// Descriptor is the part of a pallet object this tool keeps.
type Descriptor struct {
	Barcode    string `json:"barcode"`
	Author     string `json:"author"`
	Version    string `json:"version"`
	SDKVersion string `json:"sdkVersion"`
}

type palletFile struct {
	Root *struct {
		Ref string `json:"ref"`
	} `json:"root"`
	Types   map[string]palletType      `json:"types"`
	Objects map[string]json.RawMessage `json:"objects"`
}

type palletType struct {
	FullName string `json:"fullname"`
}

type palletObject struct {
	Isa struct {
		Type string `json:"type"`
	} `json:"isa"`
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parse reads the pallet object out of a pallet.json document. Type keys in
// pallet files are opaque strings, so the document is read as plain JSON
// rather than as a reference graph.
func Parse(data []byte) (Descriptor, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return Descriptor{}, fmt.Errorf("%w: pallet is not UTF-8", ErrMalformedPallet)
	}

	var doc palletFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrMalformedPallet, err)
	}
	if doc.Types == nil {
		return Descriptor{}, fmt.Errorf(`%w: could not find "types" in json`, ErrMalformedPallet)
	}

	typeKey, ok := palletTypeKey(doc.Types)
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: could not find key for %s", ErrMalformedPallet, TypeName)
	}

	// The root object wins; otherwise the first matching key in sorted order.
	var keys []string
	if doc.Root != nil && doc.Root.Ref != "" {
		keys = append(keys, doc.Root.Ref)
	}
	keys = append(keys, sortedKeys(doc.Objects)...)

	for _, key := range keys {
		raw, ok := doc.Objects[key]
		if !ok {
			continue
		}
		var obj palletObject
		if err := json.Unmarshal(raw, &obj); err != nil || obj.Isa.Type != typeKey {
			continue
		}
		var d Descriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			return Descriptor{}, fmt.Errorf("%w: object %s: %v", ErrMalformedPallet, key, err)
		}
		if d.Barcode == "" {
			return Descriptor{}, fmt.Errorf("%w: object %s has no barcode", ErrMalformedPallet, key)
		}
		return d, nil
	}
	return Descriptor{}, fmt.Errorf("%w: no object with key %s found in pallet", ErrMalformedPallet, typeKey)
}

// palletTypeKey prefers a type named exactly TypeName over one that merely
// contains it, such as a reference type.
func palletTypeKey(types map[string]palletType) (string, bool) {
	var fallback string
	for _, key := range sortedKeys(types) {
		name := types[key].FullName
		if !strings.Contains(name, TypeName) {
			continue
		}
		short, _, _ := strings.Cut(name, ",")
		if strings.TrimSpace(short) == TypeName {
			return key, true
		}
		if fallback == "" {
			fallback = key
		}
	}
	return fallback, fallback != ""
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
