package cmd

import (
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pitstone-retail/ecr-sync/pkg/catalog"
	"github.com/pitstone-retail/ecr-sync/pkg/checkpoint"
	"github.com/pitstone-retail/ecr-sync/pkg/config"
	"github.com/pitstone-retail/ecr-sync/pkg/db"
	"github.com/pitstone-retail/ecr-sync/pkg/engine"
	"github.com/pitstone-retail/ecr-sync/pkg/normalize"
	"github.com/pitstone-retail/ecr-sync/pkg/output"
	"github.com/pitstone-retail/ecr-sync/pkg/pathutil"
	"github.com/pitstone-retail/ecr-sync/pkg/serial"
	"github.com/pitstone-retail/ecr-sync/pkg/sites"
)

// pollInterval bounds CPU use on the single-threaded read loop.
const pollInterval = 200 * time.Millisecond

// runCmd represents the run command.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest the register stream and write hourly takings rows",
	Long: `Run the agent loop: read one chunk per iteration from the serial
port, reconstruct transactions, and flush one row per business hour into
<output-dir>/<yyyymmdd>_<siteId>.csv.

The loop runs until killed. SIGUSR1 dumps the current hourly row to
stderr. Outside business hours the agent sleeps, re-checking once per
minute.

Example:
  ecr-sync run
  ecr-sync run --debug`,
	Run: runRun,
}

func runRun(cmd *cobra.Command, args []string) {
	// Load configuration
	cfg, err := config.Load(getConfigFile())
	exitOnError(err, "failed to load configuration")
	exitOnError(cfg.Validate(), "invalid configuration")

	paths := pathutil.New(pathutil.Config{
		OutputDir:     cfg.OutputDir,
		DataDir:       cfg.DataDir,
		LogDir:        cfg.LogDir,
		HistoryDBPath: cfg.HistoryDBPath,
	})

	if cfg.LoggingEnabled {
		closeSink, err := enableFileSink(paths)
		if err != nil {
			slog.Warn("file log sink unavailable", "error", err)
		} else {
			defer closeSink()
		}
	}

	// The catalog and the site directory are startup-fatal: without them
	// no row can be attributed or columned.
	cat, err := catalog.Load(cfg.CatalogPath)
	exitOnError(err, "failed to load PLU catalog")

	dir, err := sites.Load(cfg.SitesPath)
	exitOnError(err, "failed to load site directory")

	hostname, err := os.Hostname()
	exitOnError(err, "failed to determine hostname")
	siteID := dir.Resolve(hostname)
	if siteID == sites.Unknown {
		slog.Warn("hostname not in site directory", "hostname", hostname)
	}

	// History is best-effort unless monitor mode depends on it.
	var history *db.EmitHistory
	conn, err := db.Open(paths.GetHistoryDBPath())
	if err != nil {
		if cfg.MonitorMode {
			exitOnError(err, "monitor mode requires the history database")
		}
		slog.Warn("history database unavailable, duplicate guard disabled", "error", err)
	} else {
		defer conn.Close()
		history = db.NewEmitHistory(conn)
	}

	port, err := serial.OpenPort(cfg.SerialPort)
	exitOnError(err, "failed to open serial port")
	defer port.Close()
	producer := serial.NewStreamProducer(port, normalize.Dialect(cfg.Dialect))

	slog.Info("agent starting",
		"dialect", cfg.Dialect,
		"baud", cfg.Baud(),
		"port", cfg.SerialPort,
		"site", siteID,
		"monitor", cfg.MonitorMode,
	)

	writer := output.NewWriter(paths, siteID, cat, history, slog.Default())
	eng := engine.New(engine.Options{
		Dialect:       normalize.Dialect(cfg.Dialect),
		Currency:      cfg.CurrencySymbol,
		SingleItemCap: cfg.SingleItemCap,
		QuietSeconds:  cfg.QuietSeconds,
		Catalog:       cat,
		Sink:          writer,
		Checkpoints:   checkpoint.NewStore(paths),
		Logger:        slog.Default(),
	})

	restored, err := eng.Restore()
	if err != nil {
		slog.Warn("checkpoint restore failed", "error", err)
	} else if restored {
		slog.Info("resumed mid-hour from checkpoint")
	}

	// Dump-on-demand: SIGUSR1 prints the current row between iterations.
	dump := make(chan os.Signal, 1)
	signal.Notify(dump, syscall.SIGUSR1)

	idle := false
	for {
		select {
		case <-dump:
			eng.Dump(os.Stderr)
		default:
		}

		if !cfg.OpenAt(time.Now()) {
			if !idle {
				slog.Info("closing time, entering idle")
				eng.EnterIdle()
				idle = true
			}
			time.Sleep(time.Minute)
			continue
		}
		if idle {
			slog.Info("opening time, leaving idle")
			idle = false
		}

		// The synthetic CHANGE sub-chunk, if queued, goes first.
		eng.DrainPending()

		chunk, ok, err := producer.Next()
		if err != nil {
			slog.Warn("serial read failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if !ok {
			// A live port never exhausts; a redirected stream does.
			slog.Info("input stream ended")
			break
		}

		if chunk != "" {
			if cfg.MonitorMode {
				if err := history.CaptureChunk(cfg.Dialect, chunk); err != nil {
					slog.Warn("failed to capture chunk", "error", err)
				}
			} else {
				eng.Process(chunk)
			}
		}

		eng.CheckQuietFlush()
		time.Sleep(pollInterval)
	}

	eng.EnterIdle()
}

// enableFileSink duplicates log output to a dated file under the log dir.
func enableFileSink(paths *pathutil.PathResolver) (func(), error) {
	path := paths.GetLogFilePath(time.Now().Format("20060102"))
	if err := paths.EnsureParentDir(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(io.MultiWriter(os.Stderr, f), &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return func() { f.Close() }, nil
}
