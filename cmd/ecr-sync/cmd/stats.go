package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pitstone-retail/ecr-sync/pkg/config"
	"github.com/pitstone-retail/ecr-sync/pkg/db"
	"github.com/pitstone-retail/ecr-sync/pkg/pathutil"
)

var (
	statsSite string
	statsDay  string
)

// statsCmd represents the stats command.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display emit-history statistics",
	Long: `Display statistics about emitted hourly rows and captured chunks.

Shows:
- Total number of emitted rows
- Number of distinct sites
- Number of raw chunks captured in monitor mode
- Last emit timestamp

With --site and --day, also lists that day's emitted windows.

Example:
  ecr-sync stats
  ecr-sync stats --site BKW --day 20240310`,
	Run: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsSite, "site", "", "site id for the per-day breakdown")
	statsCmd.Flags().StringVar(&statsDay, "day", "", "day (yyyymmdd) for the per-day breakdown")
}

func runStats(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(getConfigFile())
	exitOnError(err, "failed to load configuration")

	paths := pathutil.New(pathutil.Config{
		OutputDir:     cfg.OutputDir,
		DataDir:       cfg.DataDir,
		HistoryDBPath: cfg.HistoryDBPath,
	})

	dbPath := paths.GetHistoryDBPath()
	slog.Debug("Opening database", "path", dbPath)

	conn, err := db.Open(dbPath)
	exitOnError(err, "failed to open history database")
	defer conn.Close()

	history := db.NewEmitHistory(conn)

	stats, err := history.GetStats()
	exitOnError(err, "failed to get statistics")

	fmt.Println("\n=== Emit Statistics ===")
	fmt.Printf("Total emitted rows:    %d\n", stats.TotalRows)
	fmt.Printf("Distinct sites:        %d\n", stats.TotalSites)
	fmt.Printf("Captured chunks:       %d\n", stats.TotalChunks)

	if stats.LastEmit.Valid {
		fmt.Printf("Last emit:             %s\n", stats.LastEmit.String)
	} else {
		fmt.Printf("Last emit:             (never)\n")
	}

	fmt.Println()

	if statsSite != "" && statsDay != "" {
		records, err := history.GetRecordsForDay(statsSite, statsDay)
		exitOnError(err, "failed to get per-day records")

		fmt.Printf("=== %s %s ===\n", statsSite, statsDay)
		for _, r := range records {
			fmt.Printf("%s  £%.2f  %d customers\n", r.HourWindow, r.TotalTakings, r.Customers)
		}
		fmt.Println()
	}
}
