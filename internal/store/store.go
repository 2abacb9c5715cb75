package store

import (
	"context"
)

// Collection is a durable key-value JSON document store: one document per
// entity collection, read-all/write-all semantics. Every mutation by the
// repositories above this is a full read-modify-write, so implementations
// only need whole-document atomicity.
type Collection interface {
	// Read returns the raw document for name, or nil when the collection
	// does not exist yet.
	Read(ctx context.Context, name string) ([]byte, error)

	// Write replaces the document for name.
	Write(ctx context.Context, name string, doc []byte) error
}
