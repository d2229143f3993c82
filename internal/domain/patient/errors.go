package patient

import "errors"

var (
	ErrPatientNotFound  = errors.New("patient doesn't exist")
	ErrPatientExists    = errors.New("patient record already exists")
	ErrInvalidSortField = errors.New("unknown value for sort by")
	ErrInvalidSortOrder = errors.New("unknown value for order")

	// ErrStoreNotFound means the backing store does not exist yet. It is not
	// treated as an empty store.
	ErrStoreNotFound = errors.New("patient store not found")
	// ErrStoreCorrupt means the backing store exists but is not a JSON object.
	ErrStoreCorrupt = errors.New("patient store is corrupt")
)
