package patient

import "context"

// RecordStore persists the whole id → record document.
type RecordStore interface {
	// Init creates an empty store if none exists. An existing store is left
	// untouched.
	Init(ctx context.Context) error
	Load(ctx context.Context) (*Document, error)
	Save(ctx context.Context, doc *Document) error
}
