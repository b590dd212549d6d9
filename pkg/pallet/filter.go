package pallet

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"gorm.io/gorm/clause"
)

// A filter expression is a conjunction of comparisons:
//
//	client LIKE "ACME%" AND status = "En stock" AND quantity >= 10
//
// Fields: number, client, article, location, status, quantity.
// Operators: = != < <= > >= LIKE. Strings are double-quoted.

var filterLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Keyword", Pattern: `(?i)\b(AND|LIKE)\b`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Int", Pattern: `-?\d+`},
	{Name: "Operator", Pattern: `!=|<=|>=|=|<|>`},
	{Name: "whitespace", Pattern: `\s+`},
})

type filterAST struct {
	Terms []*filterTerm `parser:"@@ ( 'AND' @@ )*"`
}

type filterTerm struct {
	Field string       `parser:"@Ident"`
	Op    string       `parser:"@( '!=' | '<=' | '>=' | '=' | '<' | '>' | 'LIKE' )"`
	Value *filterValue `parser:"@@"`
}

type filterValue struct {
	String *string `parser:"  @String"`
	Int    *int    `parser:"| @Int"`
}

var filterParser = participle.MustBuild[filterAST](
	participle.Lexer(filterLexer),
	participle.Unquote("String"),
	participle.CaseInsensitive("Keyword"),
)

var filterColumns = map[string]clause.Column{
	"number":   colNumber,
	"client":   colClient,
	"article":  colArticle,
	"location": colLocation,
	"status":   colStatus,
	"quantity": {Name: "Quantite"},
}

// ParseFilter compiles a filter expression into a WHERE condition.
func ParseFilter(expr string) (clause.Expression, error) {
	ast, err := filterParser.ParseString("", expr)
	if err != nil {
		return nil, &ValidationError{Field: "filter", Message: err.Error()}
	}

	exprs := make([]clause.Expression, 0, len(ast.Terms))
	for _, term := range ast.Terms {
		e, err := term.compile()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	return clause.And(exprs...), nil
}

func (t *filterTerm) compile() (clause.Expression, error) {
	field := strings.ToLower(t.Field)
	col, ok := filterColumns[field]
	if !ok {
		return nil, &ValidationError{Field: "filter", Message: fmt.Sprintf("unknown field %q", t.Field)}
	}

	var value any
	switch {
	case field == "quantity":
		if t.Value.Int == nil {
			return nil, &ValidationError{Field: "filter", Message: "quantity must be compared to an integer"}
		}
		value = *t.Value.Int
	case t.Value.String == nil:
		return nil, &ValidationError{Field: "filter", Message: fmt.Sprintf("%s must be compared to a string", field)}
	case field == "status" && !strings.EqualFold(t.Op, "LIKE"):
		s, err := ParseStatus(*t.Value.String)
		if err != nil {
			return nil, err
		}
		value = s
	default:
		value = *t.Value.String
	}

	switch strings.ToUpper(t.Op) {
	case "=":
		return clause.Eq{Column: col, Value: value}, nil
	case "!=":
		return clause.Neq{Column: col, Value: value}, nil
	case "<":
		return clause.Lt{Column: col, Value: value}, nil
	case "<=":
		return clause.Lte{Column: col, Value: value}, nil
	case ">":
		return clause.Gt{Column: col, Value: value}, nil
	case ">=":
		return clause.Gte{Column: col, Value: value}, nil
	case "LIKE":
		if field == "quantity" {
			return nil, &ValidationError{Field: "filter", Message: "LIKE is not supported on quantity"}
		}
		return clause.Like{Column: col, Value: value}, nil
	}
	return nil, &ValidationError{Field: "filter", Message: fmt.Sprintf("unsupported operator %q", t.Op)}
}
