// Package refgraph implements the typed-object graph used by BONELAB
// repository documents: objects and types stored in per-kind containers and
// pointing at each other through short "o:N" / "t:N" reference tokens.
package refgraph

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrBadRef is returned when a reference token cannot be parsed or has the wrong kind.
	ErrBadRef = errors.New("refgraph: bad reference")
	// ErrBadDocument is returned when a document does not have the expected shape.
	ErrBadDocument = errors.New("refgraph: malformed document")
	// ErrUnresolved is returned when a reference points at nothing.
	ErrUnresolved = errors.New("refgraph: unresolved reference")
)

// Kind is the namespace a reference lives in.
type Kind byte

const (
	KindObject Kind = 'o'
	KindType   Kind = 't'
)

func (k Kind) valid() bool { return k == KindObject || k == KindType }

// Ref points at an object or a type within one document.
type Ref struct {
	Kind Kind
	ID   int
}

// IsZero reports whether r was never assigned.
func (r Ref) IsZero() bool { return r.ID == 0 }

func (r Ref) String() string {
	return string(r.Kind) + ":" + strconv.Itoa(r.ID)
}

// ParseRef parses a token such as "o:3" or "t:2".
func ParseRef(s string) (Ref, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || len(kind) != 1 || !Kind(kind[0]).valid() {
		return Ref{}, fmt.Errorf("%w: %q", ErrBadRef, s)
	}
	// Only the canonical spelling is accepted, so every id has exactly one key.
	n, err := strconv.Atoi(id)
	if err != nil || n <= 0 || strconv.Itoa(n) != id {
		return Ref{}, fmt.Errorf("%w: %q", ErrBadRef, s)
	}
	return Ref{Kind: Kind(kind[0]), ID: n}, nil
}

func parseRefOfKind(s string, want Kind) (Ref, error) {
	r, err := ParseRef(s)
	if err != nil {
		return Ref{}, err
	}
	if r.Kind != want {
		return Ref{}, fmt.Errorf("%w: %q is not a %c reference", ErrBadRef, s, want)
	}
	return r, nil
}

func (r Ref) MarshalJSON() ([]byte, error) {
	if !r.Kind.valid() || r.ID <= 0 {
		return nil, fmt.Errorf("%w: cannot encode %+v", ErrBadRef, r)
	}
	return []byte(strconv.Quote(r.String())), nil
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBadRef, data)
	}
	parsed, err := ParseRef(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Link is the {"ref", "type"} pair objects use to point at other objects.
type Link struct {
	Ref  Ref `json:"ref"`
	Type Ref `json:"type"`
}

// Namespace hands out reference ids. Ids are unique per kind until Reset.
// A Namespace is owned by one build pass and is not safe for concurrent use.
type Namespace struct {
	last map[Kind]int
}

// NewNamespace returns an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{last: make(map[Kind]int)}
}

// Next assigns the next id of kind k, starting at 1.
func (n *Namespace) Next(k Kind) Ref {
	if n.last == nil {
		n.last = make(map[Kind]int)
	}
	n.last[k]++
	return Ref{Kind: k, ID: n.last[k]}
}

// Reset forgets every assigned id.
func (n *Namespace) Reset() {
	clear(n.last)
}
