// Package main replays a recorded pose stream through the rep counter,
// optionally saving the resulting session to a running service.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/2beens/repcounter/internal/logging"
	"github.com/2beens/repcounter/internal/sessions"
	"github.com/2beens/repcounter/internal/tracking"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// CLI flags
var (
	fileFlag       string
	serverFlag     string
	logLevelFlag   string
	historySize    int
	windowSize     int
	threshold      float64
	maxRetriesFlag uint64
)

var rootCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded pose stream and count reps",
	Long: `Replay reads pose samples (one JSON object per line, {"keypoints":[...]})
and runs them through the same smoother and classifier the service uses.
Recordings ending in .gz or .zst are decompressed on the fly.

When --server is given, the resulting session is saved through the sessions API
of that service. Otherwise it is kept in memory and only printed.

Examples:
  replay --file squats.jsonl
  replay -f session.jsonl.gz --server http://localhost:9000
  replay -f pushups.jsonl.zst --threshold 20`,
	RunE: runMain,
}

func init() {
	defaults := tracking.DefaultSmootherConfig()
	rootCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "pose recording (JSON lines, optionally .gz or .zst)")
	rootCmd.Flags().StringVarP(&serverFlag, "server", "s", "", "base URL of a running service to save the session to")
	rootCmd.Flags().StringVar(&logLevelFlag, "log-level", "info", "log level [trace | debug | info | warn | error]")
	rootCmd.Flags().IntVar(&historySize, "history-size", defaults.HistorySize, "position history capacity")
	rootCmd.Flags().IntVar(&windowSize, "window-size", defaults.WindowSize, "smoothing window size")
	rootCmd.Flags().Float64Var(&threshold, "threshold", defaults.MovementThreshold, "movement threshold in pixels")
	rootCmd.Flags().Uint64Var(&maxRetriesFlag, "max-retries", sessions.DefaultClientMaxRetries, "save retries against --server")
	_ = rootCmd.MarkFlagRequired("file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, _ []string) error {
	// no sentry here, setup cannot fail
	logsCleanup, _ := logging.Setup(logging.LoggerSetupParams{
		LogToStdout: true,
		LogLevel:    logLevelFlag,
	})
	defer logsCleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var creator tracking.SessionCreator
	if serverFlag != "" {
		creator = sessions.NewClient(serverFlag, nil, maxRetriesFlag)
		log.Infof("sessions will be saved to [%s]", serverFlag)
	} else {
		creator = sessions.NewMemoryRepo()
		log.Debugln("no server set, session kept in memory")
	}

	rc, err := openRecording(fileFlag)
	if err != nil {
		return err
	}

	summary, err := replay(ctx, rc, creator, tracking.SmootherConfig{
		HistorySize:       historySize,
		WindowSize:        windowSize,
		MovementThreshold: threshold,
	})
	if summary != nil {
		printSummary(cmd, summary)
	}
	if err != nil {
		return fmt.Errorf("replay [%s]: %w", fileFlag, err)
	}
	return nil
}

func printSummary(cmd *cobra.Command, summary *tracking.Summary) {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		log.Errorf("print summary: %s", err)
	}
}

