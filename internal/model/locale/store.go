package locale

import (
	"golang.org/x/text/language"
)

// Store exposes catalog lookup for handlers and the reply generator.
type Store interface {
	List() []Catalog
	FindByTag(tag string) (Catalog, bool)
	Match(acceptLanguage string) Catalog
	Default() Catalog
}

// MemoryStore implements Store over a fixed slice.
type MemoryStore struct {
	items   []Catalog
	matcher language.Matcher
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied catalogs.
// The first catalog is the fallback for unmatched languages.
func NewMemoryStore(items []Catalog) *MemoryStore {
	tags := make([]language.Tag, 0, len(items))
	for _, item := range items {
		tags = append(tags, language.Make(item.Tag))
	}
	return &MemoryStore{
		items:   append([]Catalog(nil), items...),
		matcher: language.NewMatcher(tags),
	}
}

// List returns every catalog.
func (s *MemoryStore) List() []Catalog {
	return append([]Catalog(nil), s.items...)
}

// FindByTag looks up a catalog by its exact tag.
func (s *MemoryStore) FindByTag(tag string) (Catalog, bool) {
	for _, item := range s.items {
		if item.Tag == tag {
			return item, true
		}
	}
	return Catalog{}, false
}

// Default returns the fallback catalog.
func (s *MemoryStore) Default() Catalog {
	return s.items[0]
}

// Match negotiates an Accept-Language header against the known catalogs.
func (s *MemoryStore) Match(acceptLanguage string) Catalog {
	if acceptLanguage == "" {
		return s.Default()
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return s.Default()
	}
	_, idx, confidence := s.matcher.Match(tags...)
	if confidence == language.No || idx < 0 || idx >= len(s.items) {
		return s.Default()
	}
	return s.items[idx]
}
