package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/moltrack/internal/registry"
	"github.com/aidanlsb/moltrack/internal/schema"
	"github.com/aidanlsb/moltrack/internal/ui"
)

var (
	validatorEntity      schema.EntityType
	validatorName        string
	validatorExpression  string
	validatorDescription string
	validatorActiveOnly  bool
)

var validatorCmd = &cobra.Command{
	Use:   "validator",
	Short: "Manage record-level validators",
}

var validatorAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a record-level validator",
	Long: `Register a named rule evaluated against whole records of an entity type.

Field references use ${name} or a bare name. Expressions support
comparison, arithmetic, &&, ||, !, "is null" tests and the functions
date(), today(), size() and matches().

Example:
  mt validator add --entity ASSAY --name ordered_dates \
    --expression 'date(${end_date}) > date(${start_date})'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if validatorEntity == "" || validatorName == "" || validatorExpression == "" {
			return handleErrorMsg(ErrInvalidInput, "--entity, --name and --expression are required", "")
		}
		o := getEngine().RegisterValidator(cmd.Context(), schema.Validator{
			Name:        validatorName,
			EntityType:  validatorEntity,
			Expression:  validatorExpression,
			Description: validatorDescription,
		})
		return outputOutcomes([]registry.Outcome{o})
	},
}

var validatorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List validators, optionally for one entity type",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		types := schema.EntityTypes
		if validatorEntity != "" {
			types = []schema.EntityType{validatorEntity}
		}
		all := []schema.Validator{}
		for _, et := range types {
			vs, err := getEngine().Registry().Validators(cmd.Context(), et, validatorActiveOnly)
			if err != nil {
				return handleError(ErrDatabaseError, err, "")
			}
			all = append(all, vs...)
		}

		if isJSONOutput() {
			outputSuccess(all, &Meta{Count: len(all)})
			return nil
		}
		if len(all) == 0 {
			fmt.Println(ui.Hint("No validators registered."))
			return nil
		}
		tbl := ui.NewTable(5)
		tbl.SetHeader("NAME", "ENTITY", "ACTIVE", "EXPRESSION", "DESCRIPTION")
		for _, v := range all {
			tbl.AddRow(ui.Name(v.Name), string(v.EntityType), fmt.Sprint(v.IsActive), v.Expression, ui.Hint(v.Description))
		}
		fmt.Print(tbl.String())
		return nil
	},
}

func newValidatorToggleCmd(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := getEngine().SetValidatorActive(cmd.Context(), args[0], active); err != nil {
				return handleError(ErrNotFound, err, "Run 'mt validator list' to see registered validators")
			}
			if isJSONOutput() {
				outputSuccess(map[string]interface{}{"name": args[0], "is_active": active}, nil)
				return nil
			}
			fmt.Println(ui.Successf("%s validator %s", use+"d", ui.Name(args[0])))
			return nil
		},
	}
}

var (
	validatorDisableCmd = newValidatorToggleCmd("disable", "Stop a validator from running without deleting it", false)
	validatorEnableCmd  = newValidatorToggleCmd("enable", "Reactivate a disabled validator", true)
)

func init() {
	validatorAddCmd.Flags().Var(newEntityTypeValue(&validatorEntity), "entity", "Entity type the validator applies to")
	validatorAddCmd.Flags().StringVar(&validatorName, "name", "", "Unique validator name")
	validatorAddCmd.Flags().StringVar(&validatorExpression, "expression", "", "Boolean rule expression")
	validatorAddCmd.Flags().StringVar(&validatorDescription, "description", "", "Message shown when the rule fails")

	validatorListCmd.Flags().Var(newEntityTypeValue(&validatorEntity), "entity", "Only list validators of this entity type")
	validatorListCmd.Flags().BoolVar(&validatorActiveOnly, "active", false, "Only list active validators")

	validatorCmd.AddCommand(validatorAddCmd, validatorListCmd, validatorDisableCmd, validatorEnableCmd)
	rootCmd.AddCommand(validatorCmd)
}
