package patient

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Sort fields and orders accepted by Service.Sort.
const (
	SortByAge    = "age"
	SortByHeight = "height"
	SortByWeight = "weight"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

var sortFields = map[string]bool{
	SortByAge:    true,
	SortByHeight: true,
	SortByWeight: true,
}

type Service struct {
	store RecordStore

	// mu serializes the load-mutate-save cycle of Create within this process.
	mu sync.Mutex
}

func NewService(store RecordStore) *Service {
	return &Service{store: store}
}

// ViewAll returns the full store document as stored.
func (s *Service) ViewAll(ctx context.Context) (*Document, error) {
	return s.store.Load(ctx)
}

func (s *Service) ViewOne(ctx context.Context, id string) (json.RawMessage, error) {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	raw, ok := doc.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPatientNotFound, id)
	}
	return raw, nil
}

// Sort returns every stored record ordered by the numeric field named by by.
// An empty order means ascending. The sort is stable, so ties keep store
// order in both directions.
func (s *Service) Sort(ctx context.Context, by, order string) ([]json.RawMessage, error) {
	if !sortFields[by] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSortField, by)
	}
	if order == "" {
		order = OrderAsc
	}
	if order != OrderAsc && order != OrderDesc {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSortOrder, order)
	}

	doc, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	type entry struct {
		raw json.RawMessage
		key float64
	}
	entries := make([]entry, 0, doc.Len())
	for _, id := range doc.IDs() {
		raw, _ := doc.Get(id)
		key, err := sortKey(raw, by)
		if err != nil {
			return nil, fmt.Errorf("%w: record %s: %v", ErrStoreCorrupt, id, err)
		}
		entries = append(entries, entry{raw: raw, key: key})
	}

	desc := order == OrderDesc
	sort.SliceStable(entries, func(i, j int) bool {
		if desc {
			return entries[i].key > entries[j].key
		}
		return entries[i].key < entries[j].key
	})

	result := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		result[i] = e.raw
	}
	return result, nil
}

// sortKey reads the numeric field from a stored record. A missing or null
// field sorts as 0.
func sortKey(raw json.RawMessage, field string) (float64, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return 0, err
	}
	v, ok := fields[field]
	if !ok {
		return 0, nil
	}
	var n float64
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, fmt.Errorf("field %s: %w", field, err)
	}
	return n, nil
}

// Create validates p, derives bmi and verdict, and appends it under p.ID.
// Existing records are written back untouched and an existing id is never
// overwritten.
func (s *Service) Create(ctx context.Context, p *Patient) error {
	if err := p.Validate(); err != nil {
		return err
	}
	raw, err := encodeJSON(p.ToRecord())
	if err != nil {
		return fmt.Errorf("encode patient %s: %w", p.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	if _, exists := doc.Get(p.ID); exists {
		return fmt.Errorf("%w: %s", ErrPatientExists, p.ID)
	}

	doc.Set(p.ID, raw)
	if err := s.store.Save(ctx, doc); err != nil {
		return fmt.Errorf("save patient %s: %w", p.ID, err)
	}
	return nil
}

// Init prepares an empty store when none exists.
func (s *Service) Init(ctx context.Context) error {
	return s.store.Init(ctx)
}
