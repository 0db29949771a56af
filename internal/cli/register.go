package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/moltrack/internal/engine"
	"github.com/aidanlsb/moltrack/internal/ui"
	"github.com/aidanlsb/moltrack/internal/validation"
)

var registerPolicy string

var registerCmd = &cobra.Command{
	Use:   "register <entity_type> <rows.json>",
	Short: "Validate and store entity rows",
	Long: `Validate rows (a JSON object or an array of objects) and store the accepted
ones. Keys may be fixed columns, registered properties or synonym types. A
compound row's "smiles" is stored as its canonical structure, and a batch
row's "additions" lists the addition ids to link. Use "-" to read from stdin.

--policy decides what is written when some rows fail:
  reject_all  nothing unless every row is valid, in one transaction (default)
  reject_row  each valid row in its own transaction; failures are reported`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		et, err := parseEntityArg(args[0])
		if err != nil {
			return handleError(ErrInvalidInput, err, "")
		}
		var policy validation.Policy
		if registerPolicy != "" {
			if policy, err = validation.ParsePolicy(registerPolicy); err != nil {
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
			rows = []map[string]interface{}{record}
		}

		reg, err := getEngine().RegisterEntities(cmd.Context(), et, rows, policy)
		if err != nil {
			return handleError(ErrDatabaseError, err, "Nothing was written; fix the row and retry")
		}
		return outputRegistration(reg, len(rows))
	},
}

func outputRegistration(reg *engine.Registration, total int) error {
	rejectedAll := len(reg.Rejected) > 0 && reg.Policy == validation.RejectAll
	if isJSONOutput() {
		if rejectedAll {
			outputError(ErrValidationFailed, fmt.Sprintf("%d of %d rows failed validation; nothing written", len(reg.Rejected), total), reg, "")
			return nil
		}
		var warnings []Warning
		for _, r := range reg.Rejected {
			warnings = append(warnings, Warning{Code: ErrValidationFailed, Message: fmt.Sprintf("row %d rejected", r.Row)})
		}
		for _, f := range reg.Failed {
			warnings = append(warnings, Warning{Code: ErrDatabaseError, Message: fmt.Sprintf("row %d not written: %s", f.Row, f.Error)})
		}
		outputSuccessWithWarnings(reg, warnings, &Meta{Count: len(reg.Written)})
		return nil
	}

	for _, r := range reg.Rejected {
		fmt.Println(ui.Errorf("row %d %s", r.Row, ui.Count(len(r.Failures), "failure", "failures")))
		fmt.Print(failureList(r.Failures).String())
	}
	for _, f := range reg.Failed {
		fmt.Println(ui.Errorf("row %d not written: %s", f.Row, f.Error))
	}
	for _, w := range reg.Written {
		fmt.Println(ui.Successf("row %d stored as id %d", w.Row, w.ID))
	}
	fmt.Printf("%d written, %d rejected, %d failed %s\n", len(reg.Written), len(reg.Rejected), len(reg.Failed),
		ui.Hint("("+string(reg.Policy)+")"))
	if rejectedAll {
		return fmt.Errorf("batch rejected: %d of %d rows failed validation", len(reg.Rejected), total)
	}
	return nil
}

func init() {
	registerCmd.Flags().StringVar(&registerPolicy, "policy", "", "Batch policy: reject_all or reject_row (default from config)")
	rootCmd.AddCommand(registerCmd)
}
