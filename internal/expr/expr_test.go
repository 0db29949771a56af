package expr

import (
	"sync"
	"testing"
	"time"

	"github.com/aidanlsb/moltrack/internal/errs"
	"github.com/aidanlsb/moltrack/internal/schema"
)

func TestPreprocess(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"${name}.length > 3", "size(name) > 3"},
		{"${a} > ${b}", "a > b"},
		{"${x} is null", "x == null"},
		{"${x} IS NOT NULL", "x != null"},
		{"matches(${s}, r'^is null$')", "matches(s, r'^is null$')"},
		{`name == "${literal}"`, `name == "${literal}"`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Preprocess(tt.in); got != tt.want {
				t.Errorf("Preprocess(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	record := map[string]interface{}{
		"val_string_prop_1": "input_abc",
		"val_int_prop_1":    int64(12),
		"score":             2.5,
		"tags":              []interface{}{"a", "b"},
		"start_date":        "2024-01-01",
		"end_date":          "2024-01-02",
		"flag":              true,
		"empty":             nil,
	}
	tests := []struct {
		expr string
		want bool
	}{
		{"matches(${val_string_prop_1}, r'^input_') && ${val_int_prop_1} > 10", true},
		{"matches(${val_string_prop_1}, r'^output_') || ${val_int_prop_1} > 100", false},
		{"${val_string_prop_1}.matches('abc$')", true},
		{"${val_string_prop_1}.length == 9", true},
		{"size(tags) == 2 && 'a' in tags", true},
		{"'c' in tags", false},
		{"score * 2 == 5", true},
		{"score + 1 >= 3.5 && score - 1 < 2", true},
		{"val_int_prop_1 % 5 == 2", true},
		{"val_int_prop_1 in [10, 11, 12]", true},
		{"!flag", false},
		{"flag ? score > 2 : score < 2", true},
		{"-score < 0", true},
		{"1 + 2 * 3 == 7", true},
		{"(1 + 2) * 3 == 9", true},
		{"${empty} is null", true},
		{"${empty} is not null", false},
		{"date(${end_date}) > date(${start_date})", true},
		{"date(${start_date}) > date(${end_date})", false},
		{"end_date > start_date", true},
		{"date(end_date) == '2024-01-02'", true},
		{"true || undefined_field > 1", true},
		{"false && undefined_field > 1", false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			rule, err := Compile(tt.expr)
			if err != nil {
				t.Fatalf("Compile(%q) error: %v", tt.expr, err)
			}
			got, err := rule.Evaluate(record)
			if err != nil {
				t.Fatalf("Evaluate error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []string{
		"",
		"a & b",
		"a | b",
		"a = 1",
		"(a > 1",
		"a >",
		"unknown_fn(a)",
		"size(a, b)",
		"today(1)",
		"matches(a, '(')",
		"a.length",
		"a ? b",
		"[1, 2",
		"'unterminated",
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			_, err := Compile(src)
			if !errs.Is(err, errs.MalformedExpression) {
				t.Fatalf("Compile(%q) = %v, want MalformedExpression", src, err)
			}
		})
	}
}

func TestEvaluationErrors(t *testing.T) {
	tests := []struct {
		expr   string
		record map[string]interface{}
	}{
		{"missing > 1", map[string]interface{}{}},
		{"size(n) > 1", map[string]interface{}{"n": 3.0}},
		{"n > 'x'", map[string]interface{}{"n": 3.0}},
		{"n / 0 > 1", map[string]interface{}{"n": 3.0}},
		{"n + 1", map[string]interface{}{"n": 3.0}},
		{"n && true", map[string]interface{}{"n": 3.0}},
		{"date(s) > today()", map[string]interface{}{"s": "soon"}},
		{"n > 1", map[string]interface{}{"n": nil}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			rule, err := Compile(tt.expr)
			if err != nil {
				t.Fatalf("Compile error: %v", err)
			}
			if _, err := rule.Evaluate(tt.record); !errs.Is(err, errs.EvaluationError) {
				t.Errorf("Evaluate = %v, want EvaluationError", err)
			}
		})
	}
}

func TestDefaultsAndClock(t *testing.T) {
	rule, err := Compile("${expiry} is null || date(${expiry}) > today()")
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	clock := WithClock(func() time.Time { return time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC) })

	if _, err := rule.Evaluate(map[string]interface{}{}, clock); err == nil {
		t.Fatalf("expected missing field error without defaults")
	}
	ok, err := rule.Evaluate(map[string]interface{}{}, clock, WithDefaults(map[string]interface{}{"expiry": nil}))
	if err != nil || !ok {
		t.Errorf("null default should pass: %v %v", ok, err)
	}
	ok, _ = rule.Evaluate(map[string]interface{}{"expiry": "2024-05-31"}, clock)
	if ok {
		t.Errorf("expired date should fail")
	}
	ok, _ = rule.Evaluate(map[string]interface{}{"expiry": "2024-06-02"}, clock)
	if !ok {
		t.Errorf("future date should pass")
	}
}

func TestSchemaValuesInRecord(t *testing.T) {
	rule, err := Compile("mw > 100 && count == 3")
	if err != nil {
		t.Fatal(err)
	}
	ok, err := rule.Evaluate(map[string]interface{}{
		"mw":    schema.Double(150.5),
		"count": schema.Int(3),
	})
	if err != nil || !ok {
		t.Errorf("Evaluate = %v, %v", ok, err)
	}
}

func TestNonBoolResult(t *testing.T) {
	rule, err := Compile("1 + 1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rule.Evaluate(nil); !errs.Is(err, errs.EvaluationError) {
		t.Errorf("expected EvaluationError for non-bool result, got %v", err)
	}
}

func TestFields(t *testing.T) {
	rule, err := Compile("${b} > 1 && matches(${a}, 'x') && b < 10 ? true : c")
	if err != nil {
		t.Fatal(err)
	}
	got := rule.Fields()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("Fields() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Fields()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRuleConcurrentUse(t *testing.T) {
	rule, err := Compile("n % 2 == 0")
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	errCh := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := rule.Evaluate(map[string]interface{}{"n": i})
			if err != nil {
				errCh <- err
				return
			}
			if got != (i%2 == 0) {
				errCh <- errs.New(errs.EvaluationError, "wrong result for %d", i)
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}
}
