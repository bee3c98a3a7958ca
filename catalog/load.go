package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-extras/go-kit/must"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

type resourceTypeDocument struct {
	Name             string            `yaml:"name"`
	SearchParameters []SearchParameter `yaml:"searchParameters"`
}

type document struct {
	// Common parameters apply to every resource type.
	Common        []SearchParameter      `yaml:"common"`
	ResourceTypes []resourceTypeDocument `yaml:"resourceTypes"`
}

func (d document) build() (*Static, error) {
	types := make([]string, 0, len(d.ResourceTypes))
	params := make(map[string][]SearchParameter, len(d.ResourceTypes))
	for _, rt := range d.ResourceTypes {
		types = append(types, rt.Name)
		list := make([]SearchParameter, 0, len(d.Common)+len(rt.SearchParameters))
		list = append(list, d.Common...)
		list = append(list, rt.SearchParameters...)
		params[rt.Name] = list
	}
	return NewStatic(types, params)
}

// LoadYAML reads a catalog document:
//
//	common:
//	  - {id: Resource-id, code: _id, type: token}
//	resourceTypes:
//	  - name: Patient
//	    searchParameters:
//	      - {id: Patient-birthdate, code: birthdate, type: date}
func LoadYAML(data []byte) (*Static, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	return doc.build()
}

const (
	extStrategy   = "strategy"
	extColumn     = "column"
	extArray      = "array"
	extSortColumn = "sortColumn"
)

var abstractBases = []string{"Resource", "DomainResource"}

// LoadJSON reads either the YAML document shape encoded as JSON, or a FHIR Bundle of
// SearchParameter resources. For a Bundle the resource types are the union of the
// concrete bases; parameters based on Resource or DomainResource apply to all of them.
// Storage details are read from extensions with the urls "strategy", "column",
// "array" and "sortColumn".
func LoadJSON(data []byte) (*Static, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidCatalog)
	}
	root := gjson.ParseBytes(data)
	if root.Get("resourceType").String() != "Bundle" {
		var doc document
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
		}
		return doc.build()
	}

	var (
		common []SearchParameter
		byType = make(map[string][]SearchParameter)
		order  []string
	)
	for _, entry := range root.Get("entry").Array() {
		res := entry.Get("resource")
		if res.Get("resourceType").String() != "SearchParameter" {
			continue
		}
		p := SearchParameter{
			ID:         res.Get("id").String(),
			Code:       res.Get("code").String(),
			Type:       ParamType(res.Get("type").String()),
			Strategy:   Strategy(res.Get(`extension.#(url=="` + extStrategy + `").valueCode`).String()),
			Column:     res.Get(`extension.#(url=="` + extColumn + `").valueString`).String(),
			Array:      res.Get(`extension.#(url=="` + extArray + `").valueBoolean`).Bool(),
			SortColumn: res.Get(`extension.#(url=="` + extSortColumn + `").valueString`).String(),
		}
		bases := lo.Map(res.Get("base").Array(), func(r gjson.Result, _ int) string { return r.String() })
		if lo.Contains(bases, abstractBases[0]) || lo.Contains(bases, abstractBases[1]) {
			common = append(common, p)
			continue
		}
		p.Base = bases
		for _, b := range bases {
			if _, ok := byType[b]; !ok {
				order = append(order, b)
			}
			byType[b] = append(byType[b], p)
		}
	}

	sort.Strings(order)
	doc := document{Common: common}
	for _, rt := range order {
		doc.ResourceTypes = append(doc.ResourceTypes, resourceTypeDocument{Name: rt, SearchParameters: byType[rt]})
	}
	return doc.build()
}

// LoadFile loads a catalog by extension: .yaml/.yml or .json.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(data)
	case ".json":
		return LoadJSON(data)
	default:
		return nil, fmt.Errorf("%w: unsupported catalog file %s", ErrInvalidCatalog, path)
	}
}

//go:embed default.yaml
var defaultCatalog []byte

var loadDefault = sync.OnceValue(func() *Static {
	return must.Must(LoadYAML(defaultCatalog))
})

// Default returns the built-in catalog.
func Default() *Static {
	return loadDefault()
}
