package cli

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/moltrack/internal/ui"
	"github.com/aidanlsb/moltrack/internal/validation"
)

var validatePolicy string

var validateCmd = &cobra.Command{
	Use:   "validate <entity_type> <file>",
	Short: "Validate records against the registered schema",
	Long: `Validate one record (a JSON object) or a batch (a JSON array of objects)
against the properties, synonym types and active validators registered for
an entity type. Use "-" to read from stdin.

For a batch, --policy decides the outcome when some rows fail:
  reject_all  nothing is accepted (default, or validation.error_handling)
  reject_row  valid rows are accepted and failing rows are reported`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		et, err := parseEntityArg(args[0])
		if err != nil {
			return handleError(ErrInvalidInput, err, "")
		}
		var policy validation.Policy
		if validatePolicy != "" {
			if policy, err = validation.ParsePolicy(validatePolicy); err != nil {
				return handleError(ErrInvalidInput, err, "")
			}
		}
		data, err := readInput(args[1])
		if err != nil {
			return handleError(ErrFileReadError, err, "")
		}
		record, rows, err := decodeRecords(data)
		if err != nil {
			return handleError(ErrInvalidInput, err, "")
		}

		if record != nil {
			res, err := getEngine().Validate(cmd.Context(), et, record)
			if err != nil {
				return handleError(ErrInternal, err, "")
			}
			return outputResult(res)
		}
		batch, err := getEngine().ValidateRows(cmd.Context(), et, rows, policy)
		if err != nil {
			return handleError(ErrInternal, err, "")
		}
		return outputBatch(batch, len(rows))
	},
}

var checkSynonymCmd = &cobra.Command{
	Use:   "check-synonym <entity_type> <synonym_type> <value>",
	Short: "Check a synonym value against its synonym type's pattern",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		et, err := parseEntityArg(args[0])
		if err != nil {
			return handleError(ErrInvalidInput, err, "")
		}
		res, err := getEngine().ValidateSynonym(cmd.Context(), et, args[1], args[2])
		if err != nil {
			return handleError(ErrInvalidInput, err, "")
		}
		return outputResult(res)
	},
}

// decodeRecords accepts a single object or an array of objects.
func decodeRecords(data []byte) (map[string]interface{}, []map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var rows []map[string]interface{}
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, nil, fmt.Errorf("invalid record batch: %w", err)
		}
		return nil, rows, nil
	}
	var record map[string]interface{}
	if err := json.Unmarshal(trimmed, &record); err != nil {
		return nil, nil, fmt.Errorf("invalid record: %w", err)
	}
	if record == nil {
		return nil, nil, fmt.Errorf("record must be a JSON object")
	}
	return record, nil, nil
}

func outputResult(res *validation.Result) error {
	if isJSONOutput() {
		if !res.OK {
			outputError(ErrValidationFailed, fmt.Sprintf("record failed validation with %d failure(s)", len(res.Failures)), res, "")
			return nil
		}
		outputSuccess(res, nil)
		return nil
	}
	if res.OK {
		fmt.Println(ui.Success("valid"))
		return nil
	}
	fmt.Println(ui.Errorf("invalid %s", ui.Count(len(res.Failures), "failure", "failures")))
	fmt.Print(failureList(res.Failures).String())
	return fmt.Errorf("record failed validation")
}

func outputBatch(batch *validation.BatchResult, total int) error {
	if isJSONOutput() {
		if !batch.OK() && batch.Policy == validation.RejectAll {
			outputError(ErrValidationFailed, fmt.Sprintf("%d of %d rows failed validation; batch rejected", len(batch.Rejected), total), batch, "")
			return nil
		}
		var warnings []Warning
		for _, r := range batch.Rejected {
			warnings = append(warnings, Warning{Code: ErrValidationFailed, Message: fmt.Sprintf("row %d rejected", r.Row)})
		}
		outputSuccessWithWarnings(batch, warnings, &Meta{Count: len(batch.Accepted)})
		return nil
	}

	for _, r := range batch.Rejected {
		fmt.Println(ui.Errorf("row %d %s", r.Row, ui.Count(len(r.Failures), "failure", "failures")))
		fmt.Print(failureList(r.Failures).String())
	}
	fmt.Printf("%d accepted, %d rejected %s\n", len(batch.Accepted), len(batch.Rejected), ui.Hint("("+string(batch.Policy)+")"))
	if !batch.OK() && batch.Policy == validation.RejectAll {
		return fmt.Errorf("batch rejected: %d of %d rows failed validation", len(batch.Rejected), total)
	}
	return nil
}

func failureList(failures []validation.Failure) *ui.List {
	list := ui.NewList()
	list.SetBullet(ui.SymbolError)
	for _, f := range failures {
		switch {
		case f.Validator != "":
			list.Add(f.Message)
		case f.Field != "":
			list.Add(ui.Name(f.Field) + ": " + f.Message)
		default:
			list.Add(f.Message)
		}
	}
	return list
}

func init() {
	validateCmd.Flags().StringVar(&validatePolicy, "policy", "", "Batch policy: reject_all or reject_row (default from config)")
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(checkSynonymCmd)
}
