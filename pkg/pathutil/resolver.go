// Package pathutil provides centralized path management for the agent's
// output, checkpoint and log files.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// PathResolver manages paths for takings files, checkpoints, the history
// database and log sinks.
type PathResolver struct {
	outputDir string
	dataDir   string
	logDir    string
	dbPath    string
}

// Config represents the configuration for PathResolver.
type Config struct {
	// OutputDir is the directory for per-day takings CSV files (e.g., ecr_data)
	OutputDir string
	// DataDir is the directory for checkpoints and the history database
	DataDir string
	// LogDir is the directory for the optional file log sink
	LogDir string
	// HistoryDBPath overrides the history database location
	HistoryDBPath string
}

// New creates a new PathResolver with the given configuration.
// If HistoryDBPath is empty, it defaults to {DataDir}/ecr-sync.db.
func New(config Config) *PathResolver {
	dbPath := config.HistoryDBPath
	if dbPath == "" {
		dbPath = filepath.Join(config.DataDir, "ecr-sync.db")
	}

	return &PathResolver{
		outputDir: config.OutputDir,
		dataDir:   config.DataDir,
		logDir:    config.LogDir,
		dbPath:    dbPath,
	}
}

// GetOutputDir returns the takings output directory.
func (p *PathResolver) GetOutputDir() string {
	return p.outputDir
}

// GetHistoryDBPath returns the history database file path.
func (p *PathResolver) GetHistoryDBPath() string {
	return p.dbPath
}

// GetOutputFilePath returns the takings file path for a day and site.
// day is in yyyymmdd format; siteID already carries any register suffix.
// Example: ecr_data/20240310_BKW_2.csv
func (p *PathResolver) GetOutputFilePath(day, siteID string) (string, error) {
	if len(day) != 8 {
		return "", fmt.Errorf("invalid day %q: expected yyyymmdd", day)
	}
	if siteID == "" {
		return "", fmt.Errorf("site id must not be empty")
	}
	return filepath.Join(p.outputDir, fmt.Sprintf("%s_%s.csv", day, siteID)), nil
}

// GetCheckpointPath returns the checkpoint file path for a clock hour.
// Example: checkpoint-09.dat
func (p *PathResolver) GetCheckpointPath(hour int) string {
	return filepath.Join(p.dataDir, fmt.Sprintf("checkpoint-%02d.dat", hour))
}

// GetCheckpointGlob returns the pattern matching every checkpoint file.
func (p *PathResolver) GetCheckpointGlob() string {
	return filepath.Join(p.dataDir, "checkpoint-*.dat")
}

// GetLogFilePath returns the file sink path for a day.
// Example: logs/ecr-sync-20240310.log
func (p *PathResolver) GetLogFilePath(day string) string {
	return filepath.Join(p.logDir, fmt.Sprintf("ecr-sync-%s.log", day))
}

// EnsureDir creates a directory if it doesn't exist.
// It creates all parent directories as needed (like mkdir -p).
func (p *PathResolver) EnsureDir(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dirPath, err)
	}
	return nil
}

// EnsureParentDir ensures the parent directory of a file exists.
func (p *PathResolver) EnsureParentDir(filePath string) error {
	return p.EnsureDir(filepath.Dir(filePath))
}

// FileExists checks if a file exists.
func (p *PathResolver) FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}
