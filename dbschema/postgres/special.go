package postgres

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/stokaro/resmigrate/dbschema/types"
)

// ErrUnusedSpecialCaseParser is returned by CheckUnused when a registered hook never
// matched an index. A hook nobody needs any more must be removed, not left to rot.
var ErrUnusedSpecialCaseParser = errors.New("unused special-case index parser")

// SpecialCaseParser handles one index, identified by name, whose DDL the generic
// parser cannot map onto the shape the target builder declares.
type SpecialCaseParser struct {
	IndexName string
	Parse     func(indexdef string) (types.IndexDefinition, error)
}

// DefaultSpecialCaseParsers are the hooks used by NewReader.
var DefaultSpecialCaseParsers = []SpecialCaseParser{
	{
		IndexName: "Coding_system_code_display_synonymOf_idx",
		Parse:     parseNullableBigintCoalesce,
	},
}

var (
	coalesceRe = regexp.MustCompile(`(?is)^COALESCE\(\s*\(?\s*"?(\w+)"?\s*\)?(?:::bigint)?\s*,\s*(.+)\)$`)
	integerRe  = regexp.MustCompile(`-?\d+`)
)

// parseNullableBigintCoalesce handles a unique index that folds a nullable BIGINT
// pointer into the key through COALESCE with an integer sentinel. PostgreSQL prints
// the sentinel cast in more than one way depending on how the index was created, so
// the expression is rewritten to the canonical ('<n>'::integer)::bigint form and named
// after the column it wraps.
func parseNullableBigintCoalesce(indexdef string) (types.IndexDefinition, error) {
	def, err := ParseIndexDefinition(indexdef)
	if err != nil {
		return types.IndexDefinition{}, err
	}
	found := false
	for i, col := range def.Columns {
		if !col.IsExpression() {
			continue
		}
		m := coalesceRe.FindStringSubmatch(strings.TrimSpace(col.Expression))
		if m == nil {
			continue
		}
		sentinel := integerRe.FindString(m[2])
		if sentinel == "" {
			return types.IndexDefinition{}, fmt.Errorf("%w: no integer fallback in %s", ErrMalformedIndexDefinition, col.Expression)
		}
		def.Columns[i] = types.Expr(fmt.Sprintf(`COALESCE(%q, ('%s'::integer)::bigint)`, m[1], sentinel), m[1])
		found = true
	}
	if !found {
		return types.IndexDefinition{}, fmt.Errorf("%w: no COALESCE column in %s", ErrMalformedIndexDefinition, indexdef)
	}
	return def, nil
}

// IndexParser parses index DDL, routing the special cases to their hooks and
// remembering which hooks fired.
type IndexParser struct {
	hooks map[string]SpecialCaseParser

	mu   sync.Mutex
	used map[string]bool
}

// NewIndexParser returns a parser with the given hooks.
func NewIndexParser(hooks ...SpecialCaseParser) *IndexParser {
	p := &IndexParser{
		hooks: make(map[string]SpecialCaseParser, len(hooks)),
		used:  make(map[string]bool, len(hooks)),
	}
	for _, h := range hooks {
		p.hooks[h.IndexName] = h
	}
	return p
}

// Parse parses one index definition.
func (p *IndexParser) Parse(indexdef string) (types.IndexDefinition, error) {
	if name, ok := ParseIndexName(indexdef); ok {
		if hook, ok := p.hooks[name]; ok {
			p.mu.Lock()
			p.used[name] = true
			p.mu.Unlock()
			def, err := hook.Parse(indexdef)
			if err != nil {
				return types.IndexDefinition{}, fmt.Errorf("special-case parser for %s: %w", name, err)
			}
			return def, nil
		}
	}
	return ParseIndexDefinition(indexdef)
}

// CheckUnused fails when any hook was never exercised. Call it after parsing a
// complete schema.
func (p *IndexParser) CheckUnused() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var unused []string
	for name := range p.hooks {
		if !p.used[name] {
			unused = append(unused, name)
		}
	}
	if len(unused) == 0 {
		return nil
	}
	sort.Strings(unused)
	return fmt.Errorf("%w: %s", ErrUnusedSpecialCaseParser, strings.Join(unused, ", "))
}
