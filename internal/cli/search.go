package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/moltrack/internal/config"
	"github.com/aidanlsb/moltrack/internal/lastresults"
	"github.com/aidanlsb/moltrack/internal/query"
	"github.com/aidanlsb/moltrack/internal/schema"
	"github.com/aidanlsb/moltrack/internal/ui"
)

var (
	searchEntity  schema.EntityType
	searchLevel   string
	searchOutput  []string
	searchAggs    []string
	searchFilter  string
	searchLimit   int
	searchShowSQL bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Compile filters, plan and run searches",
	Long: `Search compounds, batches, assays and results with property filters and
structure predicates.

Field references take the form <level>.<column> or <level>.details.<property>,
e.g. compounds.canonical_smiles or assay_results.details.ic50. Structure
predicates use <level>.structure with IS SIMILAR (needs a threshold),
HAS SUBSTRUCTURE, IS SUBSTRUCTURE OF and "=" for exact match.`,
}

var searchCompileCmd = &cobra.Command{
	Use:   "compile <filter.json>",
	Short: "Type-check a filter tree and show the SQL it compiles to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if searchEntity == "" {
			return handleErrorMsg(ErrInvalidInput, "--entity is required", "")
		}
		data, err := readInput(args[0])
		if err != nil {
			return handleError(ErrFileReadError, err, "")
		}
		filter, err := query.ParseFilter(data)
		if err != nil {
			return handleError(ErrQueryInvalid, err, "")
		}
		e := getEngine()
		cp, err := e.CompileFilter(cmd.Context(), filter, searchEntity)
		if err != nil {
			return handleError(ErrQueryInvalid, err, "")
		}
		sql, sqlArgs, err := cp.SQL(query.DialectFor(e.Store().Dialect()))
		if err != nil {
			return handleError(ErrQueryInvalid, err, "")
		}

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{"predicate": cp, "sql": sql, "args": sqlArgs}, nil)
			return nil
		}
		fmt.Println(ui.Header("Filter"))
		fmt.Println("  " + cp.String())
		printMetadata(cp.Metadata)
		fmt.Println(ui.Header("SQL"))
		printSQL(sql, sqlArgs)
		return nil
	},
}

var searchPlanCmd = &cobra.Command{
	Use:   "plan [request.json]",
	Short: "Plan a search request without running it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildSearchRequest(args)
		if err != nil {
			return handleError(ErrQueryInvalid, err, "")
		}
		e := getEngine()
		plan, err := e.PlanSearch(cmd.Context(), *req)
		if err != nil {
			return handleError(ErrQueryInvalid, err, "")
		}
		sql, sqlArgs, err := plan.SQL(query.DialectFor(e.Store().Dialect()))
		if err != nil {
			return handleError(ErrQueryInvalid, err, "")
		}

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{"plan": plan, "sql": sql, "args": sqlArgs}, nil)
			return nil
		}
		fmt.Printf("%s %s\n", ui.Header("Level"), plan.EntityType)
		tbl := ui.NewTable(4)
		tbl.SetHeader("COLUMN", "FIELD", "AGGREGATION", "TYPE")
		for _, c := range plan.Columns {
			tbl.AddRow(ui.Name(c.Alias), c.FieldRef, string(c.Aggregation), string(c.ValueType))
		}
		fmt.Print(tbl.String())
		printMetadata(plan.Metadata)
		fmt.Println(ui.Header("SQL"))
		printSQL(sql, sqlArgs)
		return nil
	},
}

var searchRunCmd = &cobra.Command{
	Use:   "run [request.json]",
	Short: "Run a search and print one row per entity of the search level",
	Long: `Run a search given as a request file or as flags.

Request file:
  {"level": "compounds",
   "output": ["compounds.canonical_smiles", "compounds.details.project"],
   "aggregations": [{"field": "assay_results.details.ic50", "operation": "AVG"}],
   "filter": {"field": "compounds.structure", "operator": "IS SIMILAR",
              "value": "c1ccccc1O", "threshold": 0.8},
   "limit": 50}

Equivalent flags:
  mt search run --level compounds \
    --output compounds.canonical_smiles,compounds.details.project \
    --aggregate AVG:assay_results.details.ic50 \
    --filter '{"field":"compounds.structure","operator":"IS SIMILAR","value":"c1ccccc1O","threshold":0.8}'`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildSearchRequest(args)
		if err != nil {
			return handleError(ErrQueryInvalid, err, "")
		}
		start := time.Now()
		res, err := getEngine().Search(cmd.Context(), *req)
		if err != nil {
			return handleError(ErrQueryInvalid, err, "")
		}
		elapsed := time.Since(start).Milliseconds()

		var warnings []Warning
		if err := lastresults.Write(stateDir(), lastresults.New(*req, res.Columns, res.Rows)); err != nil {
			warnings = append(warnings, Warning{Code: WarnLastSearchLost, Message: err.Error()})
		}

		if isJSONOutput() {
			if !searchShowSQL {
				res.SQL, res.Args = "", nil
			}
			outputSuccessWithWarnings(res, warnings, &Meta{Count: len(res.Rows), QueryTimeMs: elapsed})
			return nil
		}
		for _, w := range warnings {
			fmt.Println(ui.Warning(w.Message))
		}
		if len(res.Rows) == 0 {
			fmt.Println(ui.Hint("No matches."))
			return nil
		}
		headers := make([]string, len(res.Columns))
		for i, c := range res.Columns {
			headers[i] = c.Alias
		}
		printRows(headers, res.Rows, nil)
		fmt.Println(ui.Hint(fmt.Sprintf("%d rows in %dms", len(res.Rows), elapsed)))
		if searchShowSQL {
			fmt.Println()
			printSQL(res.SQL, res.Args)
		}
		return nil
	},
}

var searchLastCmd = &cobra.Command{
	Use:   "last [numbers...]",
	Short: "Show rows of the most recent search",
	Long: `Show the rows saved by the most recent 'mt search run'.

Rows are numbered from 1 as in the run output. Select rows with numbers,
lists or ranges:
  mt search last 2
  mt search last 1,3-5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		lr, err := lastresults.Read(stateDir())
		if err != nil {
			if errors.Is(err, lastresults.ErrNoLastResults) {
				return handleError(ErrNotFound, err, "Run 'mt search run' first")
			}
			return handleError(ErrFileReadError, err, "")
		}

		rows := lr.Rows
		var nums []int
		if len(args) > 0 {
			nums, err = lastresults.ParseNumberArgs(args)
			if err != nil {
				return handleError(ErrInvalidInput, err, "")
			}
			if rows, err = lr.GetByNumbers(nums); err != nil {
				return handleError(ErrInvalidInput, err, "")
			}
		}

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{
				"request":   lr.Request,
				"timestamp": lr.Timestamp,
				"columns":   lr.Columns,
				"rows":      rows,
			}, &Meta{Count: len(rows)})
			return nil
		}
		if len(rows) == 0 {
			fmt.Println(ui.Hint("The last search matched nothing."))
			return nil
		}
		printRows(lr.Columns, rows, nums)
		fmt.Println(ui.Hint(fmt.Sprintf("%d of %d rows from the %s search at %s",
			len(rows), len(lr.Rows), lr.Request.Level, lr.Timestamp.Local().Format("2006-01-02 15:04"))))
		return nil
	},
}

// printRows renders rows as a numbered table. nums gives each row's
// number; nil numbers them from 1.
func printRows(headers []string, rows []map[string]any, nums []int) {
	rt := ui.NewResultsTable(ui.NewDisplayContext(), headers)
	for r, row := range rows {
		cells := make([]string, len(headers))
		for i, h := range headers {
			cells[i] = ui.FormatCell(row[h])
		}
		if nums != nil {
			rt.AddNumberedRow(nums[r], cells...)
		} else {
			rt.AddRow(cells...)
		}
	}
	fmt.Println(rt.Render())
}

// stateDir holds files kept between invocations, next to the config file.
func stateDir() string {
	if resolvedConfigPath != "" {
		return filepath.Dir(resolvedConfigPath)
	}
	return filepath.Dir(config.DefaultPath())
}

// buildSearchRequest reads a request file when given, then applies flags
// on top of it.
func buildSearchRequest(args []string) (*query.SearchRequest, error) {
	req := &query.SearchRequest{}
	if len(args) == 1 {
		data, err := readInput(args[0])
		if err != nil {
			return nil, err
		}
		if req, err = query.ParseRequest(data); err != nil {
			return nil, err
		}
	}
	if searchLevel != "" {
		req.Level = searchLevel
	}
	if len(searchOutput) > 0 {
		req.Output = searchOutput
	}
	for _, spec := range searchAggs {
		op, field, ok := strings.Cut(spec, ":")
		if !ok || strings.TrimSpace(field) == "" {
			return nil, fmt.Errorf("invalid --aggregate %q (want OPERATION:field)", spec)
		}
		req.Aggregations = append(req.Aggregations, query.AggregationSpec{Operation: strings.TrimSpace(op), Field: strings.TrimSpace(field)})
	}
	if searchFilter != "" {
		filter, err := query.ParseFilter([]byte(searchFilter))
		if err != nil {
			return nil, err
		}
		req.Filter = filter
	}
	if searchLimit > 0 {
		req.Limit = searchLimit
	}
	if req.Level == "" {
		return nil, fmt.Errorf("a request file or --level is required")
	}
	return req, nil
}

func printMetadata(meta query.Metadata) {
	if len(meta.Fields) == 0 && len(meta.DefaultedThresholds) == 0 {
		return
	}
	fmt.Printf("%s sensitivity=%s metric=%s\n", ui.Header("Chemistry"), meta.Sensitivity, meta.SimilarityMetric)
	if meta.DefaultThreshold != nil {
		fmt.Println(ui.Warning(fmt.Sprintf("default similarity threshold %v used for %s",
			*meta.DefaultThreshold, strings.Join(meta.DefaultedThresholds, ", "))))
	}
}

func printSQL(sql string, args []any) {
	fmt.Println("  " + sql)
	if len(args) > 0 {
		encoded, _ := json.Marshal(args)
		fmt.Println(ui.Hint("  args: " + string(encoded)))
	}
}

func init() {
	searchCompileCmd.Flags().Var(newEntityTypeValue(&searchEntity), "entity", "Entity type the filter is anchored at")

	for _, c := range []*cobra.Command{searchPlanCmd, searchRunCmd} {
		c.Flags().StringVar(&searchLevel, "level", "", "Search level, e.g. compounds or assay_results")
		c.Flags().StringSliceVar(&searchOutput, "output", nil, "Output fields (comma-separated)")
		c.Flags().StringArrayVar(&searchAggs, "aggregate", nil, "Aggregation as OPERATION:field (repeatable)")
		c.Flags().StringVar(&searchFilter, "filter", "", "Filter tree as JSON")
		c.Flags().IntVar(&searchLimit, "limit", 0, "Maximum rows")
	}
	searchRunCmd.Flags().BoolVar(&searchShowSQL, "sql", false, "Include the executed SQL")

	searchCmd.AddCommand(searchCompileCmd, searchPlanCmd, searchRunCmd, searchLastCmd)
	rootCmd.AddCommand(searchCmd)
}
