package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PlaceholderType is the closed set of parameter types a template may
// declare. Each type carries its own validation and escaping rule; any
// other value is rejected both at validation and at instantiation time.
type PlaceholderType string

const (
	// PlaceholderSQLLiteral escapes the value for use inside a SQL string
	// literal (every single quote doubled).
	PlaceholderSQLLiteral PlaceholderType = "sql_literal"
	// PlaceholderSQLIdent escapes the value for use as a SQL identifier
	// (every double quote doubled).
	PlaceholderSQLIdent PlaceholderType = "sql_ident"
	// PlaceholderNumber accepts numeric values and numeric-literal strings.
	PlaceholderNumber PlaceholderType = "number"
	// PlaceholderCSSColor accepts color names and #hex values.
	PlaceholderCSSColor PlaceholderType = "css_color"
)

var (
	reNumber       = regexp.MustCompile(`^[-+]?[0-9.]?[0-9]+([eE][+-]?[0-9]+)?$`)
	reCSSColorName = regexp.MustCompile(`^[a-zA-Z]+$`)
	reCSSColorVal  = regexp.MustCompile(`^#[0-9a-fA-F]{3,6}$`)
)

type placeholderRule struct {
	resolve func(name string, value any) (string, error)
}

var placeholderRules = map[PlaceholderType]placeholderRule{
	PlaceholderSQLLiteral: {resolve: func(name string, value any) (string, error) {
		return strings.ReplaceAll(stringValue(value), "'", "''"), nil
	}},
	PlaceholderSQLIdent: {resolve: func(name string, value any) (string, error) {
		return strings.ReplaceAll(stringValue(value), `"`, `""`), nil
	}},
	PlaceholderNumber: {resolve: func(name string, value any) (string, error) {
		switch v := value.(type) {
		case float64, int, int64:
			return stringValue(v), nil
		}
		s := stringValue(value)
		if !reNumber.MatchString(s) {
			return "", &ValidationError{fmt.Sprintf("Invalid number value for template parameter '%s': %s", name, s)}
		}
		return s, nil
	}},
	PlaceholderCSSColor: {resolve: func(name string, value any) (string, error) {
		s := stringValue(value)
		if !reCSSColorName.MatchString(s) && !reCSSColorVal.MatchString(s) {
			return "", &ValidationError{fmt.Sprintf("Invalid css_color value for template parameter '%s': %s", name, s)}
		}
		return s, nil
	}},
}

// Valid reports whether the type is one of the supported placeholder types.
func (t PlaceholderType) Valid() bool {
	_, ok := placeholderRules[t]
	return ok
}

// Resolve validates and escapes a value according to the type's rule,
// returning the string to substitute into sql/cartocss fields.
func (t PlaceholderType) Resolve(name string, value any) (string, error) {
	rule, ok := placeholderRules[t]
	if !ok {
		// should have been rejected at template create/update time
		return "", &ValidationError{fmt.Sprintf("Invalid placeholder type '%s' for template parameter '%s'", t, name)}
	}
	return rule.resolve(name, value)
}

func stringValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}
