// Package domain defines the declarable feature-store objects, the persisted
// registry model, and the transactional contracts shared by every registry
// backend.
package domain

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

// Category classifies declarable objects.
type Category string

// Supported categories. Order of declaration is dependency order.
const (
	CategoryEntity         Category = "entity"
	CategoryDataSource     Category = "data_source"
	CategoryFeatureView    Category = "feature_view"
	CategoryFeatureService Category = "feature_service"
)

var categoryOrder = []Category{CategoryEntity, CategoryDataSource, CategoryFeatureView, CategoryFeatureService}

// Categories returns all categories with referenced objects first.
func Categories() []Category {
	return append([]Category(nil), categoryOrder...)
}

// ParseCategory resolves the wire form of a category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.TrimSpace(s))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c.Rank() >= 0
}

// Rank returns the dependency rank of the category, or -1 if unknown.
func (c Category) Rank() int {
	for i, v := range categoryOrder {
		if v == c {
			return i
		}
	}
	return -1
}

// DisplayName is the human-readable singular form used in CLI output.
func (c Category) DisplayName() string {
	return strings.ReplaceAll(string(c), "_", " ")
}

// PluralName is the human-readable plural form.
func (c Category) PluralName() string {
	if c == CategoryEntity {
		return "entities"
	}
	return c.DisplayName() + "s"
}

// Identity distinguishes declared objects independently of their names.
// Two declarations with identical content still carry different identities.
type Identity uint64

var identitySeq atomic.Uint64

// NewIdentity allocates a process-unique identity.
func NewIdentity() Identity {
	return Identity(identitySeq.Add(1))
}

// ObjectMeta carries the attributes shared by every declared object.
type ObjectMeta struct {
	ID           Identity
	Category     Category
	Name         string
	Symbol       string
	DefiningFile string
	Line         int
	Description  string
	Owner        string
	Tags         map[string]string
}

// Metadata returns the shared object attributes.
func (m ObjectMeta) Metadata() ObjectMeta {
	return m
}

// Location formats the defining file and line for diagnostics.
func (m ObjectMeta) Location() string {
	if m.Line > 0 {
		return fmt.Sprintf("%s:%d", m.DefiningFile, m.Line)
	}
	return m.DefiningFile
}

// Object is a declared registry object. Implementations are immutable once
// the loader hands them to discovery.
type Object interface {
	Metadata() ObjectMeta
	// Spec returns the canonical serializable content. References are
	// expressed by name.
	Spec() any
	// References lists the declared objects this object depends on.
	References() []Object
}

// Entity is a join key owner (e.g. a driver or customer).
type Entity struct {
	ObjectMeta
	JoinKeys  []string
	ValueType string
}

// EntitySpec is the persisted form of an Entity.
type EntitySpec struct {
	Name        string            `json:"name"`
	JoinKeys    []string          `json:"join_keys,omitempty"`
	ValueType   string            `json:"value_type,omitempty"`
	Description string            `json:"description,omitempty"`
	Owner       string            `json:"owner,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// Spec implements Object.
func (e *Entity) Spec() any {
	joinKeys := e.JoinKeys
	if len(joinKeys) == 0 {
		joinKeys = []string{e.Name}
	}
	return EntitySpec{
		Name:        e.Name,
		JoinKeys:    append([]string(nil), joinKeys...),
		ValueType:   e.ValueType,
		Description: e.Description,
		Owner:       e.Owner,
		Tags:        cloneTags(e.Tags),
	}
}

// References implements Object.
func (e *Entity) References() []Object { return nil }

// DataSource describes where feature rows come from.
type DataSource struct {
	ObjectMeta
	Kind                   string
	Path                   string
	Query                  string
	TimestampField         string
	CreatedTimestampColumn string
	FieldMapping           map[string]string
}

// DataSourceSpec is the persisted form of a DataSource.
type DataSourceSpec struct {
	Name                   string            `json:"name"`
	Kind                   string            `json:"kind"`
	Path                   string            `json:"path,omitempty"`
	Query                  string            `json:"query,omitempty"`
	TimestampField         string            `json:"timestamp_field,omitempty"`
	CreatedTimestampColumn string            `json:"created_timestamp_column,omitempty"`
	FieldMapping           map[string]string `json:"field_mapping,omitempty"`
	Description            string            `json:"description,omitempty"`
	Owner                  string            `json:"owner,omitempty"`
	Tags                   map[string]string `json:"tags,omitempty"`
}

// Spec implements Object.
func (d *DataSource) Spec() any {
	kind := d.Kind
	if kind == "" {
		kind = "file"
	}
	return DataSourceSpec{
		Name:                   d.Name,
		Kind:                   kind,
		Path:                   d.Path,
		Query:                  d.Query,
		TimestampField:         d.TimestampField,
		CreatedTimestampColumn: d.CreatedTimestampColumn,
		FieldMapping:           cloneTags(d.FieldMapping),
		Description:            d.Description,
		Owner:                  d.Owner,
		Tags:                   cloneTags(d.Tags),
	}
}

// References implements Object.
func (d *DataSource) References() []Object { return nil }

// Field is a single typed column of a feature view schema.
type Field struct {
	Name        string            `json:"name"`
	Dtype       string            `json:"dtype"`
	Description string            `json:"description,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// FeatureView groups features read from one source for a set of entities.
type FeatureView struct {
	ObjectMeta
	Entities []*Entity
	Source   *DataSource
	TTL      time.Duration
	Online   bool
	Schema   []Field
}

// FeatureViewSpec is the persisted form of a FeatureView.
type FeatureViewSpec struct {
	Name        string            `json:"name"`
	Entities    []string          `json:"entities,omitempty"`
	Source      string            `json:"source"`
	TTL         string            `json:"ttl,omitempty"`
	Online      bool              `json:"online"`
	Schema      []Field           `json:"schema,omitempty"`
	Description string            `json:"description,omitempty"`
	Owner       string            `json:"owner,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// Spec implements Object.
func (v *FeatureView) Spec() any {
	spec := FeatureViewSpec{
		Name:        v.Name,
		Online:      v.Online,
		Description: v.Description,
		Owner:       v.Owner,
		Tags:        cloneTags(v.Tags),
	}
	for _, e := range v.Entities {
		spec.Entities = append(spec.Entities, e.Name)
	}
	if v.Source != nil {
		spec.Source = v.Source.Name
	}
	if v.TTL > 0 {
		spec.TTL = v.TTL.String()
	}
	for _, f := range v.Schema {
		f.Tags = cloneTags(f.Tags)
		spec.Schema = append(spec.Schema, f)
	}
	return spec
}

// References implements Object.
func (v *FeatureView) References() []Object {
	refs := make([]Object, 0, len(v.Entities)+1)
	for _, e := range v.Entities {
		refs = append(refs, e)
	}
	if v.Source != nil {
		refs = append(refs, v.Source)
	}
	return refs
}

// FeatureService bundles feature views served together.
type FeatureService struct {
	ObjectMeta
	Features []*FeatureView
}

// FeatureServiceSpec is the persisted form of a FeatureService.
type FeatureServiceSpec struct {
	Name        string            `json:"name"`
	Features    []string          `json:"features"`
	Description string            `json:"description,omitempty"`
	Owner       string            `json:"owner,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// Spec implements Object.
func (s *FeatureService) Spec() any {
	spec := FeatureServiceSpec{
		Name:        s.Name,
		Features:    make([]string, 0, len(s.Features)),
		Description: s.Description,
		Owner:       s.Owner,
		Tags:        cloneTags(s.Tags),
	}
	for _, fv := range s.Features {
		spec.Features = append(spec.Features, fv.Name)
	}
	return spec
}

// References implements Object.
func (s *FeatureService) References() []Object {
	refs := make([]Object, 0, len(s.Features))
	for _, fv := range s.Features {
		refs = append(refs, fv)
	}
	return refs
}

// SortObjects orders objects by category rank, then name, then identity.
func SortObjects(objs []Object) {
	sort.SliceStable(objs, func(i, j int) bool {
		a, b := objs[i].Metadata(), objs[j].Metadata()
		if a.Category != b.Category {
			return a.Category.Rank() < b.Category.Rank()
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}

func cloneTags(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
