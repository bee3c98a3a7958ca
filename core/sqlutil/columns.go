package sqlutil

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnbalancedParens is returned when an index column list has mismatched parentheses.
var ErrUnbalancedParens = errors.New("unbalanced parentheses in index expression")

type tokenKind int

const (
	tokenLParen tokenKind = iota
	tokenRParen
	tokenComma
	tokenText
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(s string) []token {
	var tokens []token
	var text strings.Builder

	flush := func() {
		if text.Len() > 0 {
			tokens = append(tokens, token{kind: tokenText, text: text.String()})
			text.Reset()
		}
	}

	for _, r := range s {
		switch r {
		case '(':
			flush()
			tokens = append(tokens, token{kind: tokenLParen, text: "("})
		case ')':
			flush()
			tokens = append(tokens, token{kind: tokenRParen, text: ")"})
		case ',':
			flush()
			tokens = append(tokens, token{kind: tokenComma, text: ","})
		default:
			text.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// ParseIndexColumns splits the column list of an index definition on top-level commas,
// so that function calls with several arguments stay in one piece.
//
//	ParseIndexColumns("system, to_tsvector('english'::regconfig, display)")
//	// ["system", "to_tsvector('english'::regconfig, display)"]
func ParseIndexColumns(expr string) ([]string, error) {
	var columns []string
	var current strings.Builder
	depth := 0

	push := func() error {
		col := strings.TrimSpace(current.String())
		current.Reset()
		if col == "" {
			return fmt.Errorf("empty column in index expression %q", expr)
		}
		columns = append(columns, col)
		return nil
	}

	for _, tok := range tokenize(expr) {
		switch tok.kind {
		case tokenLParen:
			depth++
		case tokenRParen:
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: %q", ErrUnbalancedParens, expr)
			}
		case tokenComma:
			if depth == 0 {
				if err := push(); err != nil {
					return nil, err
				}
				continue
			}
		}
		current.WriteString(tok.text)
	}

	if depth != 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnbalancedParens, expr)
	}
	if strings.TrimSpace(current.String()) == "" && len(columns) == 0 {
		return nil, nil
	}
	if err := push(); err != nil {
		return nil, err
	}
	return columns, nil
}

// SplitIndexColumnNames recovers column names from the underscore-joined middle part of
// a derived index name. Underscores beyond the single separator belong to the next name,
// so "col1__col2___col3" yields [col1 _col2 __col3].
//
// Column names containing a single inner underscore cannot be recovered; they come back
// as separate parts.
func SplitIndexColumnNames(s string) []string {
	var names []string
	prefix := ""
	for _, part := range strings.Split(s, "_") {
		if part == "" {
			prefix += "_"
			continue
		}
		names = append(names, prefix+part)
		prefix = ""
	}
	return names
}
