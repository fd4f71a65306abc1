package refgraph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// DocumentVersion is the only document version written and accepted.
const DocumentVersion = 1

// Document is the serialized form of a graph.
type Document struct {
	Version int                `json:"version"`
	Root    Link               `json:"root"`
	Objects Container[*Object] `json:"objects"`
	Types   Container[*Type]   `json:"types"`
}

// Decode reads a document and checks that its root and every link resolve.
func Decode(r io.Reader) (*Document, error) {
	doc := &Document{
		Objects: newContainer[*Object](KindObject),
		Types:   newContainer[*Type](KindType),
	}
	if err := json.NewDecoder(r).Decode(doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc.Version != DocumentVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadDocument, doc.Version)
	}
	if err := doc.check(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Encode writes the document as JSON followed by a newline.
func (d *Document) Encode(w io.Writer) error {
	b, err := marshal(d)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

// Bytes returns the encoded document.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Resolve returns the object a link points at.
func (d *Document) Resolve(l Link) (*Object, error) {
	o, ok := d.Objects.Get(l.Ref)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnresolved, l.Ref)
	}
	if o.Type != l.Type {
		return nil, fmt.Errorf("%w: %s is a %s, link says %s", ErrBadRef, l.Ref, o.Type, l.Type)
	}
	return o, nil
}

// TypeOf returns the type of an object.
func (d *Document) TypeOf(o *Object) (*Type, error) {
	t, ok := d.Types.Get(o.Type)
	if !ok {
		return nil, fmt.Errorf("%w: type %s of %s", ErrUnresolved, o.Type, o.Ref)
	}
	return t, nil
}

func (d *Document) check() error {
	if _, err := d.Resolve(d.Root); err != nil {
		return fmt.Errorf("root: %w", err)
	}
	for _, o := range d.Objects.All() {
		if _, err := d.TypeOf(o); err != nil {
			return err
		}
		for name, v := range o.Fields {
			if err := d.checkLinks(v); err != nil {
				return fmt.Errorf("%s.%s: %w", o.Ref, name, err)
			}
		}
	}
	return nil
}

func (d *Document) checkLinks(v any) error {
	switch v := v.(type) {
	case Link:
		_, err := d.Resolve(v)
		return err
	case []any:
		for _, e := range v {
			if err := d.checkLinks(e); err != nil {
				return err
			}
		}
	case map[string]any:
		for _, e := range v {
			if err := d.checkLinks(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// Graph builds a document. Every type and object gets its reference from the
// graph's namespace when it is created.
type Graph struct {
	ns      *Namespace
	types   Container[*Type]
	objects Container[*Object]
}

// NewGraph starts a graph that draws references from ns.
func NewGraph(ns *Namespace) *Graph {
	return &Graph{
		ns:      ns,
		types:   newContainer[*Type](KindType),
		objects: newContainer[*Object](KindObject),
	}
}

// NewType registers a type.
func (g *Graph) NewType(fullName string) *Type {
	t := &Type{Ref: g.ns.Next(KindType), FullName: fullName}
	g.types.Put(t)
	return t
}

// NewObject registers an object of type t. fields may be nil.
func (g *Graph) NewObject(t *Type, fields Fields) *Object {
	if fields == nil {
		fields = Fields{}
	}
	o := &Object{Ref: g.ns.Next(KindObject), Type: t.Ref, Fields: fields}
	g.objects.Put(o)
	return o
}

// LinksOfType returns links to every object of type t created so far, in
// creation order. The result is never nil.
func (g *Graph) LinksOfType(t *Type) []Link {
	links := []Link{}
	for _, o := range g.objects.All() {
		if o.Type == t.Ref {
			links = append(links, o.Link())
		}
	}
	return links
}

// Document snapshots the graph with root as its entry point.
func (g *Graph) Document(root *Object) *Document {
	return &Document{
		Version: DocumentVersion,
		Root:    root.Link(),
		Objects: g.objects,
		Types:   g.types,
	}
}
