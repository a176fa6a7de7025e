package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Key addresses a registry entry. Name is stored exactly as declared.
type Key struct {
	Category Category `json:"category" yaml:"category"`
	Name     string   `json:"name" yaml:"name"`
}

// KeyOf returns the registry key of a declared object.
func KeyOf(obj Object) Key {
	m := obj.Metadata()
	return Key{Category: m.Category, Name: m.Name}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Category, k.Name)
}

// Folded returns the case-insensitive form of the key.
func (k Key) Folded() Key {
	return Key{Category: k.Category, Name: strings.ToLower(k.Name)}
}

// RegistryEntry is the persisted counterpart of a declared object.
type RegistryEntry struct {
	UID          string          `json:"uid"`
	Category     Category        `json:"category"`
	Name         string          `json:"name"`
	Version      int64           `json:"version"`
	Spec         json.RawMessage `json:"spec"`
	References   []Key           `json:"references,omitempty"`
	DefiningFile string          `json:"defining_file,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Key returns the storage key of the entry.
func (e RegistryEntry) Key() Key {
	return Key{Category: e.Category, Name: e.Name}
}

// Clone returns a deep copy of the entry.
func (e RegistryEntry) Clone() RegistryEntry {
	cp := e
	if e.Spec != nil {
		cp.Spec = append(json.RawMessage(nil), e.Spec...)
	}
	if e.References != nil {
		cp.References = append([]Key(nil), e.References...)
	}
	return cp
}

// SameContent reports whether two entries describe the same declaration.
// Bookkeeping fields (UID, version, timestamps, defining file) are ignored.
func (e RegistryEntry) SameContent(other RegistryEntry) bool {
	if e.Category != other.Category || e.Name != other.Name {
		return false
	}
	return bytes.Equal(CompactSpec(e.Spec), CompactSpec(other.Spec))
}

// CompactSpec strips insignificant whitespace from a stored spec so that
// documents written indented compare equal to freshly encoded specs. Invalid
// JSON is returned unchanged.
func CompactSpec(spec json.RawMessage) json.RawMessage {
	if len(spec) == 0 {
		return spec
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, spec); err != nil {
		return spec
	}
	return buf.Bytes()
}

// NewRegistryEntry projects a declared object into its persisted form. The
// spec is encoded canonically so unchanged declarations compare equal.
func NewRegistryEntry(obj Object) (RegistryEntry, error) {
	m := obj.Metadata()
	spec, err := json.Marshal(obj.Spec())
	if err != nil {
		return RegistryEntry{}, fmt.Errorf("encode %s %s: %w", m.Category.DisplayName(), m.Name, err)
	}
	entry := RegistryEntry{
		Category:     m.Category,
		Name:         m.Name,
		Spec:         spec,
		DefiningFile: m.DefiningFile,
	}
	for _, ref := range obj.References() {
		entry.References = append(entry.References, KeyOf(ref))
	}
	return entry, nil
}

// Project is the registry record of an applied project.
type Project struct {
	Name        string    `json:"name"`
	UID         string    `json:"uid"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// Snapshot is a point-in-time copy of a project's registry entries.
type Snapshot struct {
	Project Project
	Entries map[Key]RegistryEntry
}

// NewSnapshot builds a snapshot from a list of entries.
func NewSnapshot(project Project, entries []RegistryEntry) Snapshot {
	s := Snapshot{Project: project, Entries: make(map[Key]RegistryEntry, len(entries))}
	for _, e := range entries {
		s.Entries[e.Key()] = e.Clone()
	}
	return s
}

// Len returns the number of entries.
func (s Snapshot) Len() int { return len(s.Entries) }

// Sorted returns the entries in dependency order, then by name.
func (s Snapshot) Sorted() []RegistryEntry {
	out := make([]RegistryEntry, 0, len(s.Entries))
	for _, e := range s.Entries {
		out = append(out, e.Clone())
	}
	SortEntries(out)
	return out
}

// List returns the entries of a single category ordered by name.
func (s Snapshot) List(category Category) []RegistryEntry {
	var out []RegistryEntry
	for _, e := range s.Entries {
		if e.Category == category {
			out = append(out, e.Clone())
		}
	}
	SortEntries(out)
	return out
}

// FindFold looks up an entry by case-insensitive name.
func (s Snapshot) FindFold(category Category, name string) (RegistryEntry, bool) {
	if e, ok := s.Entries[Key{Category: category, Name: name}]; ok {
		return e.Clone(), true
	}
	for _, e := range s.Entries {
		if e.Category == category && strings.EqualFold(e.Name, name) {
			return e.Clone(), true
		}
	}
	return RegistryEntry{}, false
}

// SortEntries orders entries by category rank, then name.
func SortEntries(entries []RegistryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Category != b.Category {
			return a.Category.Rank() < b.Category.Rank()
		}
		return a.Name < b.Name
	})
}
