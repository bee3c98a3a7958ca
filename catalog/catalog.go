// Package catalog is the logical data model the target schema is derived from:
// resource types and the search parameters declared on them.
package catalog

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode"

	"github.com/go-openapi/inflect"
	"github.com/samber/lo"
)

var (
	// ErrInvalidCatalog is returned by the loaders and Validate.
	ErrInvalidCatalog = errors.New("invalid catalog")
)

// ParamType is the FHIR search parameter type.
type ParamType string

const (
	TypeBoolean   ParamType = "boolean"
	TypeDate      ParamType = "date"
	TypeDateTime  ParamType = "datetime"
	TypeNumber    ParamType = "number"
	TypeQuantity  ParamType = "quantity"
	TypeString    ParamType = "string"
	TypeToken     ParamType = "token"
	TypeReference ParamType = "reference"
	TypeURI       ParamType = "uri"
	TypeComposite ParamType = "composite"
	TypeSpecial   ParamType = "special"
)

var paramTypes = []ParamType{
	TypeBoolean, TypeDate, TypeDateTime, TypeNumber, TypeQuantity, TypeString,
	TypeToken, TypeReference, TypeURI, TypeComposite, TypeSpecial,
}

// Strategy is how a search parameter is stored.
type Strategy string

const (
	// StrategyColumn stores the value in one typed column of the resource table.
	StrategyColumn Strategy = "column"
	// StrategyTokenColumn stores tokens in a denormalized cluster of array columns.
	StrategyTokenColumn Strategy = "token-column"
	// StrategyLookupTable stores values in a shared lookup table.
	StrategyLookupTable Strategy = "lookup-table"
)

var strategies = []Strategy{StrategyColumn, StrategyTokenColumn, StrategyLookupTable}

// SearchParameter describes one searchable field.
type SearchParameter struct {
	ID       string    `yaml:"id" json:"id"`
	Code     string    `yaml:"code" json:"code"`
	Type     ParamType `yaml:"type" json:"type"`
	Base     []string  `yaml:"base,omitempty" json:"base,omitempty"`
	Strategy Strategy  `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	// Column overrides the column name derived from Code.
	Column string `yaml:"column,omitempty" json:"column,omitempty"`
	Array  bool   `yaml:"array,omitempty" json:"array,omitempty"`
	// SortColumn is the optional inline sort column of a lookup-table parameter.
	SortColumn string `yaml:"sortColumn,omitempty" json:"sortColumn,omitempty"`
}

// ColumnName is the column (or column cluster) name of the parameter.
func (p SearchParameter) ColumnName() string {
	if p.Column != "" {
		return p.Column
	}
	return ColumnNameForCode(p.Code)
}

// Label is the identifier used in error messages.
func (p SearchParameter) Label() string {
	if p.ID != "" {
		return p.ID
	}
	return p.Code
}

func isSeparator(r rune) bool {
	return r == '_' || r == '-' || unicode.IsSpace(r)
}

// ColumnNameForCode camel-cases a search parameter code:
//
//	general-practitioner => generalPractitioner
//	address-postalcode   => addressPostalcode
//	_tag                 => tag
func ColumnNameForCode(code string) string {
	words := strings.FieldsFunc(code, isSeparator)
	if len(words) == 0 {
		return code
	}
	for i := 1; i < len(words); i++ {
		words[i] = inflect.Capitalize(words[i])
	}
	return strings.Join(words, "")
}

// Catalog is the read side of the logical data model.
type Catalog interface {
	// ResourceTypes lists every resource type backed by tables, in a stable order.
	ResourceTypes() []string
	// SearchParameters lists the parameters that apply to resourceType, in declaration
	// order.
	SearchParameters(resourceType string) []SearchParameter
}

// Static is an in-memory Catalog.
type Static struct {
	types  []string
	params map[string][]SearchParameter
}

// NewStatic builds a catalog from resource types and their parameters. Parameters
// without Base get the resource type they are listed under; an empty Strategy means
// StrategyColumn.
func NewStatic(resourceTypes []string, params map[string][]SearchParameter) (*Static, error) {
	s := &Static{
		types:  slices.Clone(resourceTypes),
		params: make(map[string][]SearchParameter, len(params)),
	}
	for rt, list := range params {
		normalized := make([]SearchParameter, len(list))
		for i, p := range list {
			if len(p.Base) == 0 {
				p.Base = []string{rt}
			}
			if p.Strategy == "" {
				p.Strategy = StrategyColumn
			}
			normalized[i] = p
		}
		s.params[rt] = normalized
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ResourceTypes implements Catalog.
func (s *Static) ResourceTypes() []string {
	return slices.Clone(s.types)
}

// SearchParameters implements Catalog.
func (s *Static) SearchParameters(resourceType string) []SearchParameter {
	return slices.Clone(s.params[resourceType])
}

// Validate checks the catalog for duplicate resource types, unknown parameter types or
// strategies, and parameters whose Base does not include the type they apply to.
func (s *Static) Validate() error {
	if dups := duplicates(s.types); len(dups) > 0 {
		return fmt.Errorf("%w: duplicate resource types: %s", ErrInvalidCatalog, strings.Join(dups, ", "))
	}
	for rt := range s.params {
		if !lo.Contains(s.types, rt) {
			return fmt.Errorf("%w: search parameters for unknown resource type %s", ErrInvalidCatalog, rt)
		}
	}
	for _, rt := range s.types {
		for _, p := range s.params[rt] {
			if p.Code == "" {
				return fmt.Errorf("%w: %s: search parameter without code", ErrInvalidCatalog, rt)
			}
			if !lo.Contains(paramTypes, p.Type) {
				return fmt.Errorf("%w: %s: unknown type %q", ErrInvalidCatalog, p.Label(), p.Type)
			}
			if !lo.Contains(strategies, p.Strategy) {
				return fmt.Errorf("%w: %s: unknown strategy %q", ErrInvalidCatalog, p.Label(), p.Strategy)
			}
			if !lo.Contains(p.Base, rt) {
				return fmt.Errorf("%w: %s: base %s does not include resource type %s",
					ErrInvalidCatalog, p.Label(), strings.Join(p.Base, ","), rt)
			}
		}
	}
	return nil
}

func duplicates(values []string) []string {
	seen := make(map[string]int, len(values))
	for _, v := range values {
		seen[v]++
	}
	dups := lo.Filter(lo.Keys(seen), func(v string, _ int) bool { return seen[v] > 1 })
	sort.Strings(dups)
	return dups
}
