package storage

import (
	"context"
	"errors"
)

// ErrKeyExists is returned by no-overwrite puts when the key is taken.
var ErrKeyExists = errors.New("storage: key already exists")

// PutOptions controls a single object write.
type PutOptions struct {
	ContentType string
	// NoOverwrite makes the put fail with ErrKeyExists instead of silently
	// replacing an existing object.
	NoOverwrite bool
}

// ObjectStore is the object-storage collaborator: a flat keyed byte store
// with publicly resolvable URLs.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, opts PutOptions) error
	Remove(ctx context.Context, key string) error
	PublicURL(key string) string
}
