package refgraph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
)

// Type is a named schema tag. It encodes as {"type": "t:N", "fullname": ...}.
type Type struct {
	Ref      Ref
	FullName string
}

func (t *Type) ref() Ref     { return t.Ref }
func (t *Type) setRef(r Ref) { t.Ref = r }

func (t *Type) MarshalJSON() ([]byte, error) {
	return marshal(struct {
		Type     Ref    `json:"type"`
		FullName string `json:"fullname"`
	}{t.Ref, t.FullName})
}

// UnmarshalJSON requires both the "type" and the "fullname" markers.
func (t *Type) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type     *string `json:"type"`
		FullName *string `json:"fullname"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrBadDocument, err)
	}
	if raw.Type == nil || raw.FullName == nil {
		return fmt.Errorf("%w: type entry needs type and fullname", ErrBadDocument)
	}
	r, err := parseRefOfKind(*raw.Type, KindType)
	if err != nil {
		return err
	}
	*t = Type{Ref: r, FullName: *raw.FullName}
	return nil
}

// Fields is the open field bag of an object. Values are anything
// encoding/json can encode; Link values point at other objects.
type Fields map[string]any

// Object is a field bag tagged with a type. It encodes as its fields plus
// "isa": {"type": "t:N"}.
type Object struct {
	Ref    Ref
	Type   Ref
	Fields Fields
}

func (o *Object) ref() Ref     { return o.Ref }
func (o *Object) setRef(r Ref) { o.Ref = r }

// Link returns the {ref, type} pair pointing at o.
func (o *Object) Link() Link {
	return Link{Ref: o.Ref, Type: o.Type}
}

func (o *Object) MarshalJSON() ([]byte, error) {
	if _, ok := o.Fields["isa"]; ok {
		return nil, fmt.Errorf("%w: %s has a field named isa", ErrBadDocument, o.Ref)
	}
	out := make(map[string]any, len(o.Fields)+1)
	maps.Copy(out, o.Fields)
	out["isa"] = map[string]Ref{"type": o.Type}
	return marshal(out)
}

// UnmarshalJSON decodes the entry keyed by its "isa" discriminator. Numbers
// are kept as json.Number and nested {ref, type} pairs become Links.
func (o *Object) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %v", ErrBadDocument, err)
	}

	isa, ok := raw["isa"].(map[string]any)
	if !ok {
		return fmt.Errorf("%w: object entry without isa", ErrBadDocument)
	}
	token, ok := isa["type"].(string)
	if !ok {
		return fmt.Errorf("%w: isa without type", ErrBadDocument)
	}
	typ, err := parseRefOfKind(token, KindType)
	if err != nil {
		return err
	}
	delete(raw, "isa")

	fields := make(Fields, len(raw))
	for k, v := range raw {
		fields[k] = decodeValue(v)
	}
	*o = Object{Type: typ, Fields: fields}
	return nil
}

func decodeValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		if l, ok := asLink(v); ok {
			return l
		}
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = decodeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = decodeValue(e)
		}
		return out
	default:
		return v
	}
}

func asLink(m map[string]any) (Link, bool) {
	if len(m) != 2 {
		return Link{}, false
	}
	ref, ok1 := m["ref"].(string)
	typ, ok2 := m["type"].(string)
	if !ok1 || !ok2 {
		return Link{}, false
	}
	r, err := parseRefOfKind(ref, KindObject)
	if err != nil {
		return Link{}, false
	}
	t, err := parseRefOfKind(typ, KindType)
	if err != nil {
		return Link{}, false
	}
	return Link{Ref: r, Type: t}, true
}
