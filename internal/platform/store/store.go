package store

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ehr/planengine/internal/platform/fhir"
)

// bucket holds the documents of one resource type together with their
// insertion order.
type bucket struct {
	docs  map[string]fhir.Document
	order []string
}

func (b *bucket) remove(id string) {
	delete(b.docs, id)
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			return
		}
	}
}

// Store is an in-memory FHIR document store keyed by (resourceType, id).
// Documents are deep-copied on the way in and on the way out.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	created int
}

// New creates an empty Store.
func New() *Store {
	return &Store{buckets: make(map[string]*bucket)}
}

// Create inserts a document, replacing any existing document with the same
// (resourceType, id). A document without an id gets a generated one. The
// returned id is the one the document is stored under.
func (s *Store) Create(doc fhir.Document) (string, error) {
	if doc == nil || doc.ResourceType() == "" {
		return "", fhir.InvalidArgument("document has no resourceType")
	}

	stored := doc.Clone()
	id := stored.ID()
	if id == "" {
		id = uuid.New().String()
		stored.SetID(id)
	}
	rt := stored.ResourceType()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[rt]
	if !ok {
		b = &bucket{docs: make(map[string]fhir.Document)}
		s.buckets[rt] = b
	}
	if _, exists := b.docs[id]; !exists {
		b.order = append(b.order, id)
	}
	b.docs[id] = stored
	s.created++
	return id, nil
}

// Get returns a copy of the document stored under (resourceType, id).
func (s *Store) Get(resourceType, id string) (fhir.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.buckets[resourceType]; ok {
		if doc, ok := b.docs[id]; ok {
			return doc.Clone(), nil
		}
	}
	return nil, fhir.NotFound(resourceType, id)
}

// Search returns copies of every document of resourceType accepted by pred,
// in insertion order. A nil pred accepts everything.
func (s *Store) Search(resourceType string, pred Predicate) []fhir.Document {
	if pred == nil {
		pred = MatchAll
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.buckets[resourceType]
	if !ok {
		return []fhir.Document{}
	}
	out := make([]fhir.Document, 0, len(b.order))
	for _, id := range b.order {
		doc := b.docs[id]
		if pred(doc) {
			out = append(out, doc.Clone())
		}
	}
	return out
}

// Update replaces an existing document. The document must carry both a
// resourceType and an id; a missing key leaves the store unchanged.
func (s *Store) Update(doc fhir.Document) error {
	if doc == nil || doc.ResourceType() == "" {
		return fhir.InvalidArgument("document has no resourceType")
	}
	if doc.ID() == "" {
		return fhir.InvalidArgument("document has no id")
	}
	rt, id := doc.ResourceType(), doc.ID()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[rt]
	if !ok {
		return fhir.NotFound(rt, id)
	}
	if _, ok := b.docs[id]; !ok {
		return fhir.NotFound(rt, id)
	}
	b.docs[id] = doc.Clone()
	return nil
}

// Delete removes the document stored under (resourceType, id).
func (s *Store) Delete(resourceType, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[resourceType]
	if !ok {
		return fhir.NotFound(resourceType, id)
	}
	if _, ok := b.docs[id]; !ok {
		return fhir.NotFound(resourceType, id)
	}
	b.remove(id)
	if len(b.docs) == 0 {
		delete(s.buckets, resourceType)
	}
	return nil
}

// TypeCounts returns the number of stored documents per resource type.
func (s *Store) TypeCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int, len(s.buckets))
	for rt, b := range s.buckets {
		counts[rt] = len(b.docs)
	}
	return counts
}

// TotalCount returns the number of successful Create calls, replacements
// included. It is not the number of distinct documents; use TypeCounts for that.
func (s *Store) TotalCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.created
}

// Types returns the sorted names of resource types with at least one document.
func (s *Store) Types() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]string, 0, len(s.buckets))
	for rt := range s.buckets {
		types = append(types, rt)
	}
	sort.Strings(types)
	return types
}
