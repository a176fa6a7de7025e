package core

import (
	"context"

	"featurecore/internal/ctxlog"
	"featurecore/internal/loader"
	"featurecore/pkg/domain"
)

// DeclaredSet is an identity-keyed collection of declared objects. Each
// category keeps insertion order.
type DeclaredSet struct {
	byID       map[domain.Identity]Object
	byCategory map[domain.Category][]Object
}

// NewDeclaredSet returns an empty set.
func NewDeclaredSet() *DeclaredSet {
	return &DeclaredSet{
		byID:       make(map[domain.Identity]Object),
		byCategory: make(map[domain.Category][]Object),
	}
}

// Add inserts obj unless an object with the same identity is present. It
// reports whether obj was inserted.
func (s *DeclaredSet) Add(obj Object) bool {
	id := obj.Metadata().ID
	if _, ok := s.byID[id]; ok {
		return false
	}
	s.byID[id] = obj
	cat := obj.Metadata().Category
	s.byCategory[cat] = append(s.byCategory[cat], obj)
	return true
}

// Contains reports whether the identity of obj is a member.
func (s *DeclaredSet) Contains(obj Object) bool {
	_, ok := s.byID[obj.Metadata().ID]
	return ok
}

// Len returns the number of distinct identities.
func (s *DeclaredSet) Len() int { return len(s.byID) }

// Category returns the members of one category in insertion order.
func (s *DeclaredSet) Category(cat domain.Category) []Object {
	return append([]Object(nil), s.byCategory[cat]...)
}

// Objects returns every member in category dependency order.
func (s *DeclaredSet) Objects() []Object {
	out := make([]Object, 0, len(s.byID))
	for _, cat := range domain.Categories() {
		out = append(out, s.byCategory[cat]...)
	}
	return out
}

// Counts returns the number of members per category.
func (s *DeclaredSet) Counts() map[domain.Category]int {
	out := make(map[domain.Category]int, len(s.byCategory))
	for cat, objs := range s.byCategory {
		out[cat] = len(objs)
	}
	return out
}

// Discover merges the per-file namespaces of a load result into one set.
// Files are visited in path order; an object reachable from several files
// is kept once. Objects are never merged by name.
func Discover(ctx context.Context, res loader.Result) *DeclaredSet {
	set := NewDeclaredSet()
	skipped := 0
	for _, path := range res.Paths() {
		for _, b := range res.Files[path] {
			if !set.Add(b.Object) {
				skipped++
			}
		}
	}
	ctxlog.FromContext(ctx).Debug("discovered declarations", "objects", set.Len(), "duplicate_references", skipped)
	return set
}
