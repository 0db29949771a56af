package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/moltrack/internal/buildinfo"
	"github.com/aidanlsb/moltrack/internal/chem"
	"github.com/aidanlsb/moltrack/internal/sqlutil"
	"github.com/aidanlsb/moltrack/internal/ui"
)

type versionInfo struct {
	buildinfo.Info
	Drivers []string `json:"drivers"`
	Metrics []string `json:"similarity_metrics"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show MolTrack version and build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := currentVersionInfo()
		if isJSONOutput() {
			outputSuccess(info, nil)
			return nil
		}

		fmt.Printf("mt %s\n", info.Short())
		tbl := ui.NewTable(2)
		tbl.AddRow(ui.Hint("module"), info.ModulePath)
		if info.CommitTime != "" {
			tbl.AddRow(ui.Hint("built from"), info.CommitTime)
		}
		tbl.AddRow(ui.Hint("go"), info.GoVersion+" "+info.Platform)
		tbl.AddRow(ui.Hint("drivers"), strings.Join(info.Drivers, ", "))
		tbl.AddRow(ui.Hint("similarity"), strings.Join(info.Metrics, ", "))
		fmt.Print(tbl.String())
		return nil
	},
}

func currentVersionInfo() versionInfo {
	return versionInfo{
		Info:    buildinfo.Current(),
		Drivers: []string{sqlutil.SQLite.String(), sqlutil.Postgres.String()},
		Metrics: []string{string(chem.Tanimoto), string(chem.Dice)},
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
