package refgraph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"strconv"
)

// element is implemented by the values a Container can hold.
type element interface {
	*Object | *Type
	ref() Ref
	setRef(Ref)
}

// Container maps references to objects or types and keeps insertion order,
// which is also the order they are encoded in.
type Container[T element] struct {
	kind  Kind
	order []Ref
	items map[Ref]T
}

func newContainer[T element](kind Kind) Container[T] {
	return Container[T]{kind: kind, items: make(map[Ref]T)}
}

// Put stores v under its own reference. Storing a reference twice replaces
// the value but keeps its original position.
func (c *Container[T]) Put(v T) {
	if c.items == nil {
		c.items = make(map[Ref]T)
	}
	r := v.ref()
	if _, ok := c.items[r]; !ok {
		c.order = append(c.order, r)
	}
	c.items[r] = v
}

// Get returns the value stored under r.
func (c Container[T]) Get(r Ref) (T, bool) {
	v, ok := c.items[r]
	return v, ok
}

// Len returns the number of stored values.
func (c Container[T]) Len() int { return len(c.order) }

// All iterates over the values in insertion order.
func (c Container[T]) All() iter.Seq2[Ref, T] {
	return func(yield func(Ref, T) bool) {
		for _, r := range c.order {
			if !yield(r, c.items[r]) {
				return
			}
		}
	}
}

func (c Container[T]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range c.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(r.String()))
		buf.WriteByte(':')
		b, err := marshal(c.items[r])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", r, err)
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the container token by token so that the document's
// key order survives a round trip.
func (c *Container[T]) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadDocument, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: container is not an object", ErrBadDocument)
	}

	fresh := newContainer[T](c.kind)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadDocument, err)
		}
		key, _ := tok.(string)
		r, err := ParseRef(key)
		if err != nil {
			return err
		}
		if c.kind != 0 && r.Kind != c.kind {
			return fmt.Errorf("%w: %s in a %c container", ErrBadRef, r, c.kind)
		}
		if _, dup := fresh.items[r]; dup {
			return fmt.Errorf("%w: %s appears twice", ErrBadRef, r)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrBadDocument, r, err)
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decode %s: %w", r, err)
		}
		if v == nil {
			return fmt.Errorf("%w: %s is null", ErrBadDocument, r)
		}
		if own := v.ref(); !own.IsZero() && own != r {
			return fmt.Errorf("%w: %s stored under %s", ErrBadRef, own, r)
		}
		v.setRef(r)
		fresh.Put(v)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadDocument, err)
	}
	*c = fresh
	return nil
}

// marshal encodes v without HTML escaping; listing titles carry rich-text tags.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}
