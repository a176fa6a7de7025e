package loader

import (
	"errors"
	"fmt"
	"os"
	"time"

	"featurecore/pkg/domain"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

const blockImport = "import"

var fileSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: blockImport, LabelNames: []string{"module"}},
		{Type: string(domain.CategoryEntity), LabelNames: []string{"symbol"}},
		{Type: string(domain.CategoryDataSource), LabelNames: []string{"symbol"}},
		{Type: string(domain.CategoryFeatureView), LabelNames: []string{"symbol"}},
		{Type: string(domain.CategoryFeatureService), LabelNames: []string{"symbol"}},
	},
}

type importBlock struct {
	Symbols hcl.Expression `hcl:"symbols"`
}

type entityBlock struct {
	Name        string            `hcl:"name,optional"`
	JoinKeys    []string          `hcl:"join_keys,optional"`
	ValueType   string            `hcl:"value_type,optional"`
	Description string            `hcl:"description,optional"`
	Owner       string            `hcl:"owner,optional"`
	Tags        map[string]string `hcl:"tags,optional"`
}

type dataSourceBlock struct {
	Name                   string            `hcl:"name,optional"`
	Kind                   string            `hcl:"kind,optional"`
	Path                   string            `hcl:"path,optional"`
	Query                  string            `hcl:"query,optional"`
	TimestampField         string            `hcl:"timestamp_field,optional"`
	CreatedTimestampColumn string            `hcl:"created_timestamp_column,optional"`
	FieldMapping           map[string]string `hcl:"field_mapping,optional"`
	Description            string            `hcl:"description,optional"`
	Owner                  string            `hcl:"owner,optional"`
	Tags                   map[string]string `hcl:"tags,optional"`
}

type fieldBlock struct {
	Name        string            `hcl:"name,label"`
	Dtype       string            `hcl:"dtype"`
	Description string            `hcl:"description,optional"`
	Tags        map[string]string `hcl:"tags,optional"`
}

type featureViewBlock struct {
	Name        string            `hcl:"name,optional"`
	Entities    hcl.Expression    `hcl:"entities,optional"`
	Source      hcl.Expression    `hcl:"source,optional"`
	TTL         string            `hcl:"ttl,optional"`
	Online      *bool             `hcl:"online,optional"`
	Fields      []*fieldBlock     `hcl:"field,block"`
	Description string            `hcl:"description,optional"`
	Owner       string            `hcl:"owner,optional"`
	Tags        map[string]string `hcl:"tags,optional"`
}

type featureServiceBlock struct {
	Name        string            `hcl:"name,optional"`
	Features    hcl.Expression    `hcl:"features"`
	Description string            `hcl:"description,optional"`
	Owner       string            `hcl:"owner,optional"`
	Tags        map[string]string `hcl:"tags,optional"`
}

// symbolRef is an unresolved reference to a namespace symbol.
type symbolRef struct {
	name string
	rng  hcl.Range
}

// declaration is a locally declared object whose references are resolved
// once the module namespace is complete.
type declaration struct {
	symbol   string
	rng      hcl.Range
	object   domain.Object
	entities []symbolRef
	source   *symbolRef
	features []symbolRef
}

type importDecl struct {
	module  string
	symbols []symbolRef
	rng     hcl.Range
}

// module is one parsed declaration file plus its resolution state.
type module struct {
	name    string
	path    string
	decls   []*declaration
	imports []*importDecl

	state    resolveState
	scope    map[string]domain.Object
	bindings []Binding
}

// parseModule reads and decodes one file. Objects are constructed here, which
// is where they receive their identities.
func parseModule(absPath, rel string) (*module, error) {
	src, err := os.ReadFile(absPath)
	if err != nil {
		return nil, &domain.LoadError{File: rel, Err: err}
	}
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, rel)
	if diags.HasErrors() {
		return nil, diagsError(rel, diags)
	}
	content, diags := file.Body.Content(fileSchema)
	if diags.HasErrors() {
		return nil, diagsError(rel, diags)
	}

	mod := &module{name: moduleName(rel), path: rel}
	for _, block := range content.Blocks {
		if block.Type == blockImport {
			imp, err := decodeImport(rel, block)
			if err != nil {
				return nil, err
			}
			mod.imports = append(mod.imports, imp)
			continue
		}
		decl, err := decodeDeclaration(rel, block)
		if err != nil {
			return nil, err
		}
		mod.decls = append(mod.decls, decl)
	}
	return mod, nil
}

func decodeImport(rel string, block *hcl.Block) (*importDecl, error) {
	var spec importBlock
	if diags := gohcl.DecodeBody(block.Body, nil, &spec); diags.HasErrors() {
		return nil, diagsError(rel, diags)
	}
	symbols, diags := symbolList(spec.Symbols)
	if diags.HasErrors() {
		return nil, diagsError(rel, diags)
	}
	return &importDecl{module: moduleName(block.Labels[0]), symbols: symbols, rng: block.DefRange}, nil
}

func decodeDeclaration(rel string, block *hcl.Block) (*declaration, error) {
	symbol := block.Labels[0]
	if !hclsyntax.ValidIdentifier(symbol) {
		return nil, &domain.LoadError{File: rel, Line: block.DefRange.Start.Line, Err: fmt.Errorf("invalid symbol %q", symbol)}
	}
	meta := domain.ObjectMeta{
		ID:           domain.NewIdentity(),
		Category:     domain.Category(block.Type),
		Symbol:       symbol,
		DefiningFile: rel,
		Line:         block.DefRange.Start.Line,
	}
	decl := &declaration{symbol: symbol, rng: block.DefRange}
	fail := func(err error) (*declaration, error) {
		return nil, &domain.LoadError{File: rel, Line: meta.Line, Err: err}
	}

	var diags hcl.Diagnostics
	switch meta.Category {
	case domain.CategoryEntity:
		var spec entityBlock
		if diags = gohcl.DecodeBody(block.Body, nil, &spec); diags.HasErrors() {
			return nil, diagsError(rel, diags)
		}
		meta.Name, meta.Description, meta.Owner, meta.Tags = nameOr(spec.Name, symbol), spec.Description, spec.Owner, spec.Tags
		decl.object = &domain.Entity{ObjectMeta: meta, JoinKeys: spec.JoinKeys, ValueType: spec.ValueType}

	case domain.CategoryDataSource:
		var spec dataSourceBlock
		if diags = gohcl.DecodeBody(block.Body, nil, &spec); diags.HasErrors() {
			return nil, diagsError(rel, diags)
		}
		meta.Name, meta.Description, meta.Owner, meta.Tags = nameOr(spec.Name, symbol), spec.Description, spec.Owner, spec.Tags
		decl.object = &domain.DataSource{
			ObjectMeta:             meta,
			Kind:                   spec.Kind,
			Path:                   spec.Path,
			Query:                  spec.Query,
			TimestampField:         spec.TimestampField,
			CreatedTimestampColumn: spec.CreatedTimestampColumn,
			FieldMapping:           spec.FieldMapping,
		}

	case domain.CategoryFeatureView:
		var spec featureViewBlock
		if diags = gohcl.DecodeBody(block.Body, nil, &spec); diags.HasErrors() {
			return nil, diagsError(rel, diags)
		}
		meta.Name, meta.Description, meta.Owner, meta.Tags = nameOr(spec.Name, symbol), spec.Description, spec.Owner, spec.Tags
		view := &domain.FeatureView{ObjectMeta: meta, Online: true}
		if spec.Online != nil {
			view.Online = *spec.Online
		}
		if spec.TTL != "" {
			ttl, err := time.ParseDuration(spec.TTL)
			if err != nil || ttl < 0 {
				return fail(fmt.Errorf("feature view %q: invalid ttl %q", meta.Name, spec.TTL))
			}
			view.TTL = ttl
		}
		for _, f := range spec.Fields {
			view.Schema = append(view.Schema, domain.Field{Name: f.Name, Dtype: f.Dtype, Description: f.Description, Tags: f.Tags})
		}
		if exprDefined(spec.Entities) {
			if decl.entities, diags = symbolList(spec.Entities); diags.HasErrors() {
				return nil, diagsError(rel, diags)
			}
		}
		if !exprDefined(spec.Source) {
			return fail(fmt.Errorf("feature view %q requires a source", meta.Name))
		}
		src, diags := symbolOf(spec.Source)
		if diags.HasErrors() {
			return nil, diagsError(rel, diags)
		}
		decl.source = &src
		decl.object = view

	case domain.CategoryFeatureService:
		var spec featureServiceBlock
		if diags = gohcl.DecodeBody(block.Body, nil, &spec); diags.HasErrors() {
			return nil, diagsError(rel, diags)
		}
		meta.Name, meta.Description, meta.Owner, meta.Tags = nameOr(spec.Name, symbol), spec.Description, spec.Owner, spec.Tags
		if decl.features, diags = symbolList(spec.Features); diags.HasErrors() {
			return nil, diagsError(rel, diags)
		}
		decl.object = &domain.FeatureService{ObjectMeta: meta}

	default:
		return fail(fmt.Errorf("unsupported block type %q", block.Type))
	}

	if decl.object.Metadata().Name == "" {
		return fail(fmt.Errorf("%s %q has an empty name", meta.Category.DisplayName(), symbol))
	}
	return decl, nil
}

func nameOr(name, symbol string) string {
	if name != "" {
		return name
	}
	return symbol
}

// exprDefined reports whether an optional expression attribute was set.
// gohcl substitutes a zero-width null expression for missing attributes.
func exprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	rng := expr.Range()
	if rng.Start.Byte == rng.End.Byte {
		return false
	}
	if len(expr.Variables()) == 0 {
		if v, diags := expr.Value(nil); !diags.HasErrors() && v.IsNull() {
			return false
		}
	}
	return true
}

// symbolList decodes a list of bare symbols or symbol name strings.
func symbolList(expr hcl.Expression) ([]symbolRef, hcl.Diagnostics) {
	items, diags := hcl.ExprList(expr)
	if diags.HasErrors() {
		return nil, diags
	}
	refs := make([]symbolRef, 0, len(items))
	for _, item := range items {
		ref, d := symbolOf(item)
		diags = append(diags, d...)
		if d.HasErrors() {
			continue
		}
		refs = append(refs, ref)
	}
	return refs, diags
}

// symbolOf decodes a single reference: a bare identifier or a string.
func symbolOf(expr hcl.Expression) (symbolRef, hcl.Diagnostics) {
	rng := expr.Range()
	if trav, diags := hcl.AbsTraversalForExpr(expr); !diags.HasErrors() {
		if len(trav) != 1 {
			return symbolRef{}, hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Invalid reference",
				Detail:   "References must name a single symbol.",
				Subject:  &rng,
			}}
		}
		return symbolRef{name: trav.RootName(), rng: rng}, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return symbolRef{}, diags
	}
	if val.IsNull() || !val.IsKnown() || val.Type() != cty.String {
		return symbolRef{}, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid reference",
			Detail:   "Expected a symbol or a string naming a symbol.",
			Subject:  &rng,
		}}
	}
	return symbolRef{name: val.AsString(), rng: rng}, nil
}

func diagsError(file string, diags hcl.Diagnostics) error {
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		line := 0
		if d.Subject != nil {
			line = d.Subject.Start.Line
		}
		msg := d.Summary
		if d.Detail != "" {
			msg += ": " + d.Detail
		}
		return &domain.LoadError{File: file, Line: line, Err: errors.New(msg)}
	}
	return &domain.LoadError{File: file, Err: diags}
}
