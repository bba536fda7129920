// Package directory is the in-memory view of the business directory that the
// CLI renders: category filtering, per-category counts, search, and the
// small presentation helpers (phone formatting, slugs, share text).
//
// State is safe for concurrent use. The sync engine replaces it wholesale
// and the realtime reconciler patches single records.
package directory

import (
	"sort"
	"strings"
	"sync"

	"github.com/teranos/jawala/directory/types"
)

// State holds the current directory
type State struct {
	mu         sync.RWMutex
	categories []types.Category
	businesses []types.Business // sorted by shop name, case-insensitive, then id
}

// NewState returns an empty directory
func NewState() *State {
	return &State{}
}

// Replace swaps in a complete snapshot
func (s *State) Replace(categories []types.Category, businesses []types.Business) {
	cats := append([]types.Category(nil), categories...)
	list := append([]types.Business(nil), businesses...)
	sortBusinesses(list)

	s.mu.Lock()
	s.categories = cats
	s.businesses = list
	s.mu.Unlock()
}

// Snapshot returns a copy of the whole directory
func (s *State) Snapshot() types.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.Snapshot{
		Categories: append([]types.Category{}, s.categories...),
		Businesses: append([]types.Business{}, s.businesses...),
	}
}

// Len returns the number of businesses
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.businesses)
}

// Categories returns every category in display order
func (s *State) Categories() []types.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Category{}, s.categories...)
}

// Category looks up a category by id
func (s *State) Category(id string) (types.Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.categories {
		if c.ID == id {
			return c, true
		}
	}
	return types.Category{}, false
}

// Lookup returns the business with id
func (s *State) Lookup(id string) (types.Business, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.businesses[i], true
	}
	return types.Business{}, false
}

// Filter returns the businesses in categoryID, or all of them for ""
func (s *State) Filter(categoryID string) []types.Business {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []types.Business{}
	for _, b := range s.businesses {
		if categoryID == "" || b.Category == categoryID {
			out = append(out, b)
		}
	}
	return out
}

// Counts returns the number of businesses per category id
func (s *State) Counts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int, len(s.categories))
	for _, b := range s.businesses {
		counts[b.Category]++
	}
	return counts
}

// Search returns businesses whose shop name, owner name or services contain
// every whitespace-separated term of query, ignoring case. An empty query
// matches nothing.
func (s *State) Search(query string) []types.Business {
	terms := strings.Fields(strings.ToLower(query))
	out := []types.Business{}
	if len(terms) == 0 {
		return out
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.businesses {
		haystack := strings.ToLower(b.ShopName + "\n" + b.OwnerName + "\n" + strings.Join(b.Services, "\n"))
		matched := true
		for _, term := range terms {
			if !strings.Contains(haystack, term) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, b)
		}
	}
	return out
}

// Group is one category with its businesses
type Group struct {
	Category   types.Category   `json:"category"`
	Businesses []types.Business `json:"businesses"`
}

// Grouped returns businesses grouped under their category, in category
// order. Businesses whose category is unknown are left out.
func (s *State) Grouped() []Group {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCategory := make(map[string][]types.Business)
	for _, b := range s.businesses {
		byCategory[b.Category] = append(byCategory[b.Category], b)
	}
	groups := []Group{}
	for _, c := range s.categories {
		if list := byCategory[c.ID]; len(list) > 0 {
			groups = append(groups, Group{Category: c, Businesses: list})
		}
	}
	return groups
}

// Apply patches one business change into the directory. Rating aggregates
// of an existing record are kept when the incoming record carries none.
func (s *State) Apply(ev types.ChangeEvent) {
	if ev.Table != types.TableBusinesses {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case types.ChangeInsert, types.ChangeUpdate:
		if ev.Business == nil {
			return
		}
		b := *ev.Business
		if i := s.indexOf(b.ID); i >= 0 {
			if b.RatingCount == 0 {
				b.AvgRating, b.RatingCount = s.businesses[i].AvgRating, s.businesses[i].RatingCount
			}
			s.businesses[i] = b
		} else {
			s.businesses = append(s.businesses, b)
		}
		sortBusinesses(s.businesses)
	case types.ChangeDelete:
		if i := s.indexOf(ev.ID); i >= 0 {
			s.businesses = append(s.businesses[:i], s.businesses[i+1:]...)
		}
	}
}

// PatchAggregate sets the rating summary of one business and returns the
// updated record. It reports false when the business is not loaded.
func (s *State) PatchAggregate(agg types.Aggregate) (types.Business, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(agg.BusinessID)
	if i < 0 {
		return types.Business{}, false
	}
	s.businesses[i].AvgRating = agg.AvgRating
	s.businesses[i].RatingCount = agg.RatingCount
	return s.businesses[i], true
}

func (s *State) indexOf(id string) int {
	for i := range s.businesses {
		if s.businesses[i].ID == id {
			return i
		}
	}
	return -1
}

func sortBusinesses(list []types.Business) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := strings.ToLower(list[i].ShopName), strings.ToLower(list[j].ShopName)
		if a != b {
			return a < b
		}
		return list[i].ID < list[j].ID
	})
}
