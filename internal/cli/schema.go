package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/moltrack/internal/audit"
	"github.com/aidanlsb/moltrack/internal/dates"
	"github.com/aidanlsb/moltrack/internal/registry"
	"github.com/aidanlsb/moltrack/internal/schema"
	"github.com/aidanlsb/moltrack/internal/ui"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Register and inspect properties, synonym types and validators",
}

var schemaRegisterCmd = &cobra.Command{
	Use:   "register <file>",
	Short: "Register definitions from a YAML or JSON file",
	Long: `Register properties, synonym types and validators from a definitions file.

Registration is idempotent and per item: an item that already exists with the
same definition is skipped, a conflicting one fails, and one failure never
undoes another item's success.

Example:
  properties:
    - name: ic50
      entity_type: ASSAY_RESULT
      value_type: double
      property_class: MEASURED
      unit: nM
      min: 0
  synonym_types:
    - name: corp_id
      entity_type: COMPOUND
      value_type: string
      semantic_type: Synonym
      pattern: "MT-[0-9]{6}"
  validators:
    - name: ordered_dates
      entity_type: ASSAY
      expression: "date(${end_date}) > date(${start_date})"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(args[0])
		if err != nil {
			return handleError(ErrFileReadError, err, "")
		}
		defs, err := schema.ParseDefinitions(data)
		if err != nil {
			return handleError(ErrInvalidInput, err, "")
		}
		outcomes := getEngine().RegisterSchema(cmd.Context(), defs)
		return outputOutcomes(outcomes)
	},
}

var schemaShowCmd = &cobra.Command{
	Use:   "show <entity_type>",
	Short: "Show the registered schema of an entity type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		et, err := parseEntityArg(args[0])
		if err != nil {
			return handleError(ErrInvalidInput, err, "")
		}
		s, err := getEngine().Schema(cmd.Context(), et)
		if err != nil {
			return handleError(ErrDatabaseError, err, "")
		}
		if isJSONOutput() {
			outputSuccess(s, &Meta{Count: len(s.Properties) + len(s.SynonymTypes) + len(s.Validators)})
			return nil
		}
		printSchema(s)
		return nil
	},
}

var schemaUpdateCmd = &cobra.Command{
	Use:   "update <id> <file>",
	Short: "Replace one property or synonym type definition",
	Long: `Replace the definition with the given id by the single property or
synonym type in the file. The value type of a definition referenced by stored
data cannot change.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(args[1])
		if err != nil {
			return handleError(ErrFileReadError, err, "")
		}
		entry, err := singleEntry(data)
		if err != nil {
			return handleError(ErrInvalidInput, err, "")
		}
		o := getEngine().UpdateDefinition(cmd.Context(), args[0], entry)
		return outputOutcomes([]registry.Outcome{o})
	},
}

var (
	historySince string
	historyName  string
)

var schemaHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded schema changes",
	Long: `Show registrations, updates and validator activation changes recorded in
the schema history (audit.path, or audit.log next to a sqlite database).

--since accepts a duration (24h, 90m) or a date (2024-03-01).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := audit.Filter{Name: historyName}
		if historySince != "" {
			since, err := parseSince(historySince, time.Now())
			if err != nil {
				return handleError(ErrInvalidInput, err, "")
			}
			filter.Since = since
		}
		e := getEngine()
		entries, err := e.History(filter)
		if err != nil {
			return handleError(ErrFileReadError, err, "")
		}

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{"path": e.AuditPath(), "entries": entries}, &Meta{Count: len(entries)})
			return nil
		}
		if e.AuditPath() == "" {
			fmt.Println(ui.Hint("Schema history is disabled. Set audit.path to enable it."))
			return nil
		}
		if len(entries) == 0 {
			fmt.Println(ui.Hint("No schema changes recorded."))
			return nil
		}
		tbl := ui.NewTable(6)
		tbl.SetHeader("TIME", "OP", "KIND", "NAME", "STATUS", "MESSAGE")
		for _, en := range entries {
			name := ui.Name(en.Name)
			if en.EntityType != "" {
				name += ui.Hint(" (" + en.EntityType + ")")
			}
			tbl.AddRow(en.Timestamp.Local().Format("2006-01-02 15:04:05"), en.Operation, en.Kind, name, en.Status, ui.Hint(en.Message))
		}
		fmt.Print(tbl.String())
		return nil
	},
}

// parseSince accepts a Go duration counted back from now or a date.
func parseSince(s string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	t, err := dates.ParseDatetime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q (want a duration like 24h or a date)", s)
	}
	return t, nil
}

func singleEntry(data []byte) (schema.Entry, error) {
	defs, err := schema.ParseDefinitions(data)
	if err != nil {
		return schema.Entry{}, err
	}
	switch {
	case len(defs.Validators) > 0:
		return schema.Entry{}, fmt.Errorf("validators cannot be updated; disable the old one and add a new one")
	case len(defs.Properties) == 1 && len(defs.SynonymTypes) == 0:
		return schema.PropertyEntry(defs.Properties[0]), nil
	case len(defs.SynonymTypes) == 1 && len(defs.Properties) == 0:
		return schema.SynonymEntry(defs.SynonymTypes[0]), nil
	}
	return schema.Entry{}, fmt.Errorf("expected exactly one property or synonym type, got %d properties and %d synonym types",
		len(defs.Properties), len(defs.SynonymTypes))
}

func printSchema(s *schema.Schema) {
	fmt.Println(ui.Header(string(s.EntityType)))
	if len(s.Properties) == 0 && len(s.SynonymTypes) == 0 && len(s.Validators) == 0 {
		fmt.Println(ui.Hint("  no definitions registered"))
		return
	}

	if len(s.Properties) > 0 {
		fmt.Println()
		tbl := ui.NewTable(6)
		tbl.SetHeader("PROPERTY", "TYPE", "CLASS", "UNIT", "CONSTRAINTS", "ID")
		for _, p := range s.Properties {
			tbl.AddRow(ui.Name(p.Name), string(p.ValueType), string(p.PropertyClass), p.Unit,
				describeConstraints(&p), ui.Hint(p.ID))
		}
		fmt.Print(tbl.String())
	}

	if len(s.SynonymTypes) > 0 {
		fmt.Println()
		tbl := ui.NewTable(3)
		tbl.SetHeader("SYNONYM", "PATTERN", "ID")
		for _, st := range s.SynonymTypes {
			tbl.AddRow(ui.Name(st.Name), st.Pattern, ui.Hint(st.ID))
		}
		fmt.Print(tbl.String())
	}

	if len(s.Validators) > 0 {
		fmt.Println()
		tbl := ui.NewTable(3)
		tbl.SetHeader("VALIDATOR", "ACTIVE", "EXPRESSION")
		for _, v := range s.Validators {
			tbl.AddRow(ui.Name(v.Name), fmt.Sprint(v.IsActive), v.Expression)
		}
		fmt.Print(tbl.String())
	}
}

func describeConstraints(p *schema.Property) string {
	var parts []string
	if p.Min != nil {
		parts = append(parts, fmt.Sprintf(">= %v", *p.Min))
	}
	if p.Max != nil {
		parts = append(parts, fmt.Sprintf("<= %v", *p.Max))
	}
	if len(p.Choices) > 0 {
		parts = append(parts, "in ["+strings.Join(p.Choices, ", ")+"]")
	}
	parts = append(parts, p.Validators...)
	if !p.IsNullable() {
		parts = append(parts, "required")
	}
	return strings.Join(parts, "; ")
}

func init() {
	schemaCmd.AddCommand(schemaRegisterCmd)
	schemaCmd.AddCommand(schemaShowCmd)
	schemaCmd.AddCommand(schemaUpdateCmd)
	schemaHistoryCmd.Flags().StringVar(&historySince, "since", "", "Only changes since a duration ago or a date")
	schemaHistoryCmd.Flags().StringVar(&historyName, "name", "", "Only changes to this definition")
	schemaCmd.AddCommand(schemaHistoryCmd)
	rootCmd.AddCommand(schemaCmd)
}
