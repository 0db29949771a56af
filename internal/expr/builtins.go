package expr

import (
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/aidanlsb/moltrack/internal/dates"
)

type builtin struct {
	name  string
	arity int
	call  func(ev *evaluator, c *Call, args []interface{}) (interface{}, error)
}

// builtins is the closed set of callable functions.
var builtins map[string]*builtin

func init() {
	builtins = map[string]*builtin{
		"size":    {name: "size", arity: 1, call: callSize},
		"matches": {name: "matches", arity: 2, call: callMatches},
		"today":   {name: "today", arity: 0, call: callToday},
		"date":    {name: "date", arity: 1, call: callDate},
	}
}

func callSize(ev *evaluator, c *Call, args []interface{}) (interface{}, error) {
	switch v := args[0].(type) {
	case string:
		return float64(utf8.RuneCountInString(v)), nil
	case []interface{}:
		return float64(len(v)), nil
	}
	return nil, ev.errorf(c, "size() expects a string or list, got %s", typeName(args[0]))
}

func callMatches(ev *evaluator, c *Call, args []interface{}) (interface{}, error) {
	s, ok := args[0].(string)
	if !ok {
		return nil, ev.errorf(c, "matches() expects a string, got %s", typeName(args[0]))
	}
	re := c.Pattern
	if re == nil {
		pattern, ok := args[1].(string)
		if !ok {
			return nil, ev.errorf(c, "matches() pattern must be a string, got %s", typeName(args[1]))
		}
		var err error
		re, err = regexp.Compile(pattern)
		if err != nil {
			return nil, ev.errorf(c, "invalid pattern %q: %v", pattern, err)
		}
	}
	return re.MatchString(s), nil
}

func callToday(ev *evaluator, _ *Call, _ []interface{}) (interface{}, error) {
	return dates.Today(ev.now()).Format(dates.ISODate), nil
}

func callDate(ev *evaluator, c *Call, args []interface{}) (interface{}, error) {
	switch v := args[0].(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := dates.ParseDatetime(v)
		if err != nil {
			return nil, ev.errorf(c, "date() cannot parse %q", v)
		}
		return t, nil
	}
	return nil, ev.errorf(c, "date() expects an ISO date string, got %s", typeName(args[0]))
}
