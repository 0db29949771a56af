package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/moltrack/internal/config"
	"github.com/aidanlsb/moltrack/internal/engine"
	"github.com/aidanlsb/moltrack/internal/ui"
)

type initResult struct {
	ConfigPath    string `json:"config_path"`
	ConfigCreated bool   `json:"config_created"`
	Driver        string `json:"driver"`
	DSN           string `json:"dsn"`
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file and initialize the database",
	Long: `Create a config file with default settings (unless one exists) and create
the database tables. Running init again is safe: existing config and data
are left alone.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		created, err := config.CreateDefault(path)
		if err != nil {
			return handleError(ErrFileWriteError, err, "")
		}
		loaded, err := config.LoadFrom(path)
		if err != nil {
			return handleError(ErrConfigInvalid, err, "")
		}
		applyFlagOverrides(loaded)

		e, err := engine.Open(cmd.Context(), loaded)
		if err != nil {
			return handleError(ErrDatabaseError, err, "Check database.driver and database.dsn in "+path)
		}
		if err := e.Close(); err != nil {
			return handleError(ErrDatabaseError, err, "")
		}

		res := initResult{ConfigPath: path, ConfigCreated: created, Driver: loaded.Database.Driver, DSN: loaded.Database.DSN}
		if isJSONOutput() {
			outputSuccess(res, nil)
			return nil
		}
		if created {
			fmt.Println(ui.Successf("Created config %s", ui.Name(path)))
		} else {
			fmt.Println(ui.Skippedf("Config %s already exists", ui.Name(path)))
		}
		fmt.Println(ui.Successf("Database ready (%s) %s", res.Driver, ui.Hint(res.DSN)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
