package godatautil

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	sb "fknsrs.biz/p/sqlbuilder"
	"github.com/gost/godata"

	"fknsrs.biz/p/clipcatalog/internal/sqlbuilderutil"
)

var (
	ErrFieldNotFound = errors.New("field not found")
	ErrInvalidQuery  = errors.New("invalid query")
)

// ParseQuery reads the $filter, $orderby, $top and $skip system query
// options. $top is capped at maxTop when maxTop is positive.
func ParseQuery(values url.Values, maxTop int) (*godata.GoDataQuery, error) {
	var q godata.GoDataQuery

	if s := values.Get("$filter"); s != "" {
		filter, err := godata.ParseFilterString(s)
		if err != nil {
			return nil, fmt.Errorf("godatautil.ParseQuery: $filter: %s: %w", err, ErrInvalidQuery)
		}
		q.Filter = filter
	}

	if s := values.Get("$orderby"); s != "" {
		orderBy, err := godata.ParseOrderByString(s)
		if err != nil {
			return nil, fmt.Errorf("godatautil.ParseQuery: $orderby: %s: %w", err, ErrInvalidQuery)
		}
		q.OrderBy = orderBy
	}

	if s := values.Get("$top"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("godatautil.ParseQuery: $top must be a non-negative integer: %w", ErrInvalidQuery)
		}
		if maxTop > 0 && n > maxTop {
			n = maxTop
		}
		top := godata.GoDataTopQuery(n)
		q.Top = &top
	}

	if s := values.Get("$skip"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("godatautil.ParseQuery: $skip must be a non-negative integer: %w", ErrInvalidQuery)
		}
		skip := godata.GoDataSkipQuery(n)
		q.Skip = &skip
	}

	return &q, nil
}

// MakeCondition translates $filter into a where clause over table's
// columns. Supported are the comparison operators, and/or, null checks and
// the contains, substringof, startswith and endswith functions.
func MakeCondition(q *godata.GoDataQuery, table *sqlbuilderutil.Table) (sb.AsExpr, error) {
	if q == nil || q.Filter == nil {
		return nil, nil
	}

	expr, err := translate(q.Filter.Tree, table)
	if err != nil {
		return nil, fmt.Errorf("godatautil.MakeCondition: %w", err)
	}

	return expr, nil
}

var comparisons = map[string]string{
	"eq": "=",
	"ne": "!=",
	"gt": ">",
	"ge": ">=",
	"lt": "<",
	"le": "<=",
}

var tokenNames = [...]string{
	godata.FilterTokenOpenParen:  "OpenParen",
	godata.FilterTokenCloseParen: "CloseParen",
	godata.FilterTokenWhitespace: "Whitespace",
	godata.FilterTokenNav:        "Nav",
	godata.FilterTokenColon:      "Colon",
	godata.FilterTokenComma:      "Comma",
	godata.FilterTokenLogical:    "Logical",
	godata.FilterTokenOp:         "Op",
	godata.FilterTokenFunc:       "Func",
	godata.FilterTokenLambda:     "Lambda",
	godata.FilterTokenNull:       "Null",
	godata.FilterTokenIt:         "It",
	godata.FilterTokenRoot:       "Root",
	godata.FilterTokenFloat:      "Float",
	godata.FilterTokenInteger:    "Integer",
	godata.FilterTokenString:     "String",
	godata.FilterTokenDate:       "Date",
	godata.FilterTokenTime:       "Time",
	godata.FilterTokenDateTime:   "DateTime",
	godata.FilterTokenBoolean:    "Boolean",
	godata.FilterTokenLiteral:    "Literal",
	godata.FilterTokenGeography:  "Geography",
}

func tokenName(t int) string {
	if t >= 0 && t < len(tokenNames) && tokenNames[t] != "" {
		return tokenNames[t]
	}

	return fmt.Sprintf("token(%d)", t)
}

func column(n *godata.ParseNode, table *sqlbuilderutil.Table) (*sb.BasicColumn, error) {
	if n.Token.Type != godata.FilterTokenLiteral {
		return nil, fmt.Errorf("expected a field name; found %s", tokenName(n.Token.Type))
	}

	c, ok := table.Column(n.Token.Value)
	if !ok {
		return nil, fmt.Errorf("%q: %w", n.Token.Value, ErrFieldNotFound)
	}

	return c, nil
}

func value(n *godata.ParseNode) (interface{}, error) {
	switch n.Token.Type {
	case godata.FilterTokenString:
		return unquote(n.Token.Value), nil
	case godata.FilterTokenInteger:
		return strconv.ParseInt(n.Token.Value, 10, 64)
	case godata.FilterTokenFloat:
		return strconv.ParseFloat(n.Token.Value, 64)
	case godata.FilterTokenBoolean:
		return strconv.ParseBool(strings.ToLower(n.Token.Value))
	default:
		return nil, fmt.Errorf("expected a string, number or boolean; found %s", tokenName(n.Token.Type))
	}
}

func operands(op string, n *godata.ParseNode, want int) error {
	if len(n.Children) != want {
		return fmt.Errorf("%s takes %d operands; found %d", op, want, len(n.Children))
	}

	return nil
}

func translate(n *godata.ParseNode, table *sqlbuilderutil.Table) (sb.AsExpr, error) {
	if n == nil {
		return nil, fmt.Errorf("empty expression")
	}

	op := strings.ToLower(strings.TrimSpace(n.Token.Value))

	switch n.Token.Type {
	case godata.FilterTokenLogical, godata.FilterTokenOp:
		if sqlOp, ok := comparisons[op]; ok {
			return translateComparison(op, sqlOp, n, table)
		}

		if op != "and" && op != "or" {
			return nil, fmt.Errorf("unsupported operator %q", n.Token.Value)
		}

		terms := make([]sb.AsExpr, 0, len(n.Children))
		for _, child := range n.Children {
			expr, err := translate(child, table)
			if err != nil {
				return nil, err
			}
			terms = append(terms, expr)
		}

		return sb.BooleanOperator(op, terms...), nil
	case godata.FilterTokenFunc:
		return translateFunc(op, n, table)
	default:
		return nil, fmt.Errorf("unexpected %s %q", tokenName(n.Token.Type), n.Token.Value)
	}
}

func translateComparison(op, sqlOp string, n *godata.ParseNode, table *sqlbuilderutil.Table) (sb.AsExpr, error) {
	if err := operands(op, n, 2); err != nil {
		return nil, err
	}

	c, err := column(n.Children[0], table)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if n.Children[1].Token.Type == godata.FilterTokenNull {
		switch op {
		case "eq":
			return sb.BinaryOperator("is", c, sb.Literal("null")), nil
		case "ne":
			return sb.BinaryOperator("is not", c, sb.Literal("null")), nil
		default:
			return nil, fmt.Errorf("%s can't be used with null", op)
		}
	}

	v, err := value(n.Children[1])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return sb.BinaryOperator(sqlOp, c, sb.Bind(v)), nil
}

// translateFunc handles the string functions. substringof takes its
// arguments in the opposite order to the others.
func translateFunc(op string, n *godata.ParseNode, table *sqlbuilderutil.Table) (sb.AsExpr, error) {
	if err := operands(op, n, 2); err != nil {
		return nil, err
	}

	field, needle := n.Children[0], n.Children[1]
	if op == "substringof" {
		field, needle = needle, field
	}

	c, err := column(field, table)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if needle.Token.Type != godata.FilterTokenString {
		return nil, fmt.Errorf("%s: expected a String; found %s", op, tokenName(needle.Token.Type))
	}

	s := unquote(needle.Token.Value)
	runes := utf8.RuneCountInString(s)

	if runes == 0 && op != "contains" && op != "substringof" {
		return sb.Literal("1"), nil
	}

	switch op {
	case "contains", "substringof":
		return sb.Ne(sb.Func("instr", c, sb.Bind(s)), sb.Literal("0")), nil
	case "startswith":
		return sb.BinaryOperator("=", sb.Func("substr", c, sb.Literal("1"), sb.Literal(strconv.Itoa(runes))), sb.Bind(s)), nil
	case "endswith":
		return sb.BinaryOperator("=", sb.Func("substr", c, sb.Literal(strconv.Itoa(-runes))), sb.Bind(s)), nil
	default:
		return nil, fmt.Errorf("unsupported function %s", n.Token.Value)
	}
}

func MakeOrders(q *godata.GoDataQuery, table *sqlbuilderutil.Table, defaultOrders ...sb.AsOrderingTerm) ([]sb.AsOrderingTerm, error) {
	if q == nil || q.OrderBy == nil {
		return defaultOrders, nil
	}

	var a []sb.AsOrderingTerm

	for _, item := range q.OrderBy.OrderByItems {
		c, ok := table.Column(item.Field.Value)
		if !ok {
			return nil, fmt.Errorf("godatautil.MakeOrders: could not find field %q: %w", item.Field.Value, ErrFieldNotFound)
		}

		switch strings.ToLower(item.Order) {
		case "desc":
			a = append(a, sb.OrderDesc(c))
		default:
			a = append(a, sb.OrderAsc(c))
		}
	}

	return a, nil
}

func MakeOffsetLimit(q *godata.GoDataQuery, defaultSkip, defaultTop int) *sb.OffsetLimitClause {
	skip := defaultSkip
	if q != nil && q.Skip != nil {
		skip = int(*q.Skip)
	}

	top := defaultTop
	if q != nil && q.Top != nil {
		top = int(*q.Top)
	}

	return sb.OffsetLimit(sb.Bind(skip), sb.Bind(top))
}

func unquote(s string) string {
	if len(s) < 2 {
		return s
	}

	return strings.Replace(s[1:len(s)-1], "''", "'", -1)
}
