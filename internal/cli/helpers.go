package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/aidanlsb/moltrack/internal/registry"
	"github.com/aidanlsb/moltrack/internal/schema"
	"github.com/aidanlsb/moltrack/internal/ui"
)

// stdin is replaced in tests.
var stdin io.Reader = os.Stdin

// readInput reads a file argument; "-" reads stdin.
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// entityTypeValue is a pflag.Value accepting any spelling ParseEntityType
// does ("COMPOUND", "compounds", "assay_result").
type entityTypeValue struct {
	et *schema.EntityType
}

var _ pflag.Value = entityTypeValue{}

func newEntityTypeValue(p *schema.EntityType) entityTypeValue {
	return entityTypeValue{et: p}
}

func (v entityTypeValue) String() string {
	if v.et == nil {
		return ""
	}
	return string(*v.et)
}

func (v entityTypeValue) Set(s string) error {
	et, err := schema.ParseEntityType(s)
	if err != nil {
		return err
	}
	*v.et = et
	return nil
}

func (v entityTypeValue) Type() string {
	return "entity_type"
}

func entityTypeNames() []string {
	names := make([]string, len(schema.EntityTypes))
	for i, et := range schema.EntityTypes {
		names[i] = string(et)
	}
	return names
}

func parseEntityArg(arg string) (schema.EntityType, error) {
	et, err := schema.ParseEntityType(arg)
	if err != nil {
		return "", fmt.Errorf("%w (want one of %s)", err, strings.Join(entityTypeNames(), ", "))
	}
	return et, nil
}

// outcomeSummary counts registration outcomes by status.
type outcomeSummary struct {
	Success int `json:"success"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func summarize(outcomes []registry.Outcome) outcomeSummary {
	var s outcomeSummary
	for _, o := range outcomes {
		switch o.Status {
		case registry.Success:
			s.Success++
		case registry.Skipped:
			s.Skipped++
		case registry.Failed:
			s.Failed++
		}
	}
	return s
}

// outputOutcomes writes registration outcomes. Failed items are reported
// as warnings in JSON mode and as an error in text mode, after every item
// has been printed.
func outputOutcomes(outcomes []registry.Outcome) error {
	summary := summarize(outcomes)
	if isJSONOutput() {
		var warnings []Warning
		for _, o := range outcomes {
			if o.Status == registry.Failed {
				warnings = append(warnings, Warning{Code: errorCode(o.Err, WarnItemFailed), Message: o.Message, Name: o.Name})
			}
		}
		data := map[string]interface{}{"outcomes": outcomes, "summary": summary}
		outputSuccessWithWarnings(data, warnings, &Meta{Count: len(outcomes)})
		return nil
	}

	for _, o := range outcomes {
		label := fmt.Sprintf("%s %s", o.Kind, ui.Name(o.Name))
		if o.EntityType != "" {
			label += ui.Hint(" (" + string(o.EntityType) + ")")
		}
		switch o.Status {
		case registry.Success:
			fmt.Println(ui.Successf("%s %s", label, ui.Hint(o.Message)))
		case registry.Skipped:
			fmt.Println(ui.Skippedf("%s %s", label, ui.Hint(o.Message)))
		default:
			fmt.Println(ui.Errorf("%s: %s", label, o.Message))
		}
	}
	fmt.Printf("\n%d registered, %d unchanged, %d failed\n", summary.Success, summary.Skipped, summary.Failed)
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d definitions failed", summary.Failed, len(outcomes))
	}
	return nil
}
