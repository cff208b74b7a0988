// Package crdt wraps the mergeable-document library behind the narrow
// capability the collaboration engine needs. The engine never inspects
// document content; it applies deltas, encodes full state, and relies on
// the library's convergence guarantees (commutative, associative,
// idempotent merges).
package crdt

import (
	"fmt"

	"github.com/automerge/automerge-go"
)

// Document is an opaque mergeable document state. It is not safe for
// concurrent mutation; callers serialize access per session.
type Document struct {
	doc *automerge.Doc
}

// New constructs an empty document state.
func New() *Document {
	return &Document{doc: automerge.New()}
}

// Load hydrates a document from a full encoding produced by EncodeFull.
func Load(full []byte) (*Document, error) {
	doc, err := automerge.Load(full)
	if err != nil {
		return nil, fmt.Errorf("failed to load document state: %w", err)
	}
	return &Document{doc: doc}, nil
}

// ApplyDelta merges an incremental update into the document. Applying the
// same delta twice, or deltas in a different order, converges to the same
// content. A delta that fails to decode returns an error and leaves the
// document unchanged.
func (d *Document) ApplyDelta(delta []byte) error {
	if err := d.doc.LoadIncremental(delta); err != nil {
		return fmt.Errorf("failed to apply delta: %w", err)
	}
	return nil
}

// EncodeFull returns the complete serialized representation of the current
// content, suitable for persistence and for hydrating a newly joined peer.
func (d *Document) EncodeFull() []byte {
	return d.doc.Save()
}

// EncodeDelta returns the operations accumulated since the previous call
// to EncodeDelta or EncodeFull.
func (d *Document) EncodeDelta() []byte {
	return d.doc.SaveIncremental()
}

// Put writes a value at a top-level key. The engine itself never edits
// content; this exists for seeding and for exercising merge behavior in
// tests.
func (d *Document) Put(key string, value any) error {
	return d.doc.Path(key).Set(value)
}

// Dump renders the document's root map for comparison and debugging.
func (d *Document) Dump() string {
	return d.doc.RootMap().GoString()
}
