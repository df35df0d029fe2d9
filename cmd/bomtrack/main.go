package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cartage/bomtrack/pkg/config"
	"github.com/cartage/bomtrack/pkg/events"
	"github.com/cartage/bomtrack/pkg/log"
	"github.com/cartage/bomtrack/pkg/metrics"
	"github.com/cartage/bomtrack/pkg/storage"
	"github.com/cartage/bomtrack/pkg/tracker"
	"github.com/cartage/bomtrack/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bomtrack",
	Short: "Bomtrack - Live progress tracking for BOM enrichment jobs",
	Long: `Bomtrack follows a server-side BOM enrichment job in real time.

It rides the push event stream while the stream is healthy, falls back to
polling the snapshot endpoint when the stream is gone, and reconciles both
sources into one consistent view of the job.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Bomtrack version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Add subcommands
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
}

// Watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow an enrichment job until it finishes",
	Long: `Watch attaches to a running enrichment job and prints every progress
transition until the job completes or fails.

Connection handling is automatic: the push stream reconnects with backoff,
and after repeated failures the session switches to polling the snapshot
endpoint. The switch is one way for the life of the process.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := watchConfig(cmd)
		if err != nil {
			return err
		}

		initLogging(cmd)

		var store storage.Store
		if cfg.DataDir != "" {
			if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
				return fmt.Errorf("failed to create data dir: %v", err)
			}
			bs, err := storage.NewBoltStore(cfg.DataDir)
			if err != nil {
				return fmt.Errorf("failed to open checkpoint store: %v", err)
			}
			defer bs.Close()
			store = bs
		}

		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			go func() {
				if err := http.ListenAndServe(addr, mux); err != nil {
					fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
				}
			}()
		}

		tr, err := tracker.New(cfg, store, nil)
		if err != nil {
			return err
		}
		defer tr.Dispose()

		fmt.Printf("Watching job %s\n", cfg.JobID)
		fmt.Printf("  API: %s\n", cfg.APIBaseURL)
		fmt.Println()

		done := make(chan struct{})
		var once sync.Once
		finish := func() { once.Do(func() { close(done) }) }

		sub := tr.Subscribe(events.Handler{
			OnStarted: func(s *types.ProgressState) {
				fmt.Printf("Job started: %d items to enrich\n", s.TotalItems)
			},
			OnProgress: func(s *types.ProgressState) {
				printProgress(s)
			},
			OnComponentCompleted: func(u *types.ComponentUpdate) {
				supplier := ""
				if u.Result != nil {
					supplier = u.Result.Supplier
				}
				fmt.Printf("  ✓ %s enriched (%s)\n", u.ComponentID, supplier)
			},
			OnComponentFailed: func(u *types.ComponentUpdate) {
				fmt.Printf("  ✗ %s failed: %s\n", u.ComponentID, u.Error)
			},
			OnComplete: func(s *types.ProgressState) {
				fmt.Printf("\n✓ Job complete: %d enriched, %d failed, %d not found\n",
					s.EnrichedItems, s.FailedItems, s.NotFoundItems)
				finish()
			},
			OnError: func(err error) {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				if isTerminalError(err) {
					finish()
				}
			},
		})
		defer tr.Unsubscribe(sub)

		// Transports open only after the handler is registered, so even
		// an instant baseline snapshot reaches it
		tr.Start()

		// Wait for terminal status or interrupt
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nDetaching from job...")
		case <-done:
		}
		return nil
	},
}

// Status command
var statusCmd = &cobra.Command{
	Use:   "status JOB_ID",
	Short: "Show the last checkpointed state of a job",
	Long: `Status reads the local checkpoint database and prints the last state
the watch command recorded for a job. Works offline; nothing is fetched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID := args[0]
		dataDir, _ := cmd.Flags().GetString("data-dir")

		initLogging(cmd)

		store, err := storage.NewBoltStore(dataDir)
		if err != nil {
			return fmt.Errorf("failed to open checkpoint store: %v", err)
		}
		defer store.Close()

		state, err := store.GetProgress(jobID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("no checkpoint for job %s", jobID)
			}
			return err
		}

		fmt.Printf("Job: %s\n", state.JobID)
		fmt.Printf("  Status: %s\n", state.Status)
		fmt.Printf("  Progress: %d/%d (%.1f%%)\n",
			state.EnrichedItems+state.FailedItems+state.NotFoundItems,
			state.TotalItems, state.PercentComplete)
		if state.Stage != "" {
			fmt.Printf("  Stage: %s\n", state.Stage)
		}
		if state.ErrorMessage != "" {
			fmt.Printf("  Error: %s\n", state.ErrorMessage)
		}
		if state.StartedAt != nil {
			fmt.Printf("  Started: %s\n", state.StartedAt.Format(time.RFC3339))
		}
		if state.CompletedAt != nil {
			fmt.Printf("  Completed: %s\n", state.CompletedAt.Format(time.RFC3339))
		}
		if state.FailedAt != nil {
			fmt.Printf("  Failed: %s\n", state.FailedAt.Format(time.RFC3339))
		}

		components, err := store.ListComponents(jobID)
		if err != nil {
			return err
		}
		if len(components) > 0 {
			fmt.Printf("\nRecent components (%d):\n", len(components))
			for _, c := range components {
				marker := "✓"
				if c.Status != types.ComponentStatusEnriched {
					marker = "✗"
				}
				fmt.Printf("  %s %s %s\n", marker, c.ComponentID, c.Status)
			}
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().String("config", "", "Path to YAML config file")
	watchCmd.Flags().String("job", "", "Enrichment job ID")
	watchCmd.Flags().String("api", "", "API base URL")
	watchCmd.Flags().String("stream", "", "Websocket stream URL (derived from --api when empty)")
	watchCmd.Flags().String("token", "", "Bearer token")
	watchCmd.Flags().Duration("poll-interval", 0, "Snapshot poll cadence")
	watchCmd.Flags().String("data-dir", "", "Checkpoint directory (empty disables checkpoints)")
	watchCmd.Flags().String("metrics-addr", "", "Prometheus listen address (empty disables metrics)")
	watchCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	watchCmd.Flags().Bool("json-logs", false, "Emit JSON logs")

	statusCmd.Flags().String("data-dir", "./bomtrack-data", "Checkpoint directory")
	statusCmd.Flags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	statusCmd.Flags().Bool("json-logs", false, "Emit JSON logs")
}

// watchConfig merges the config file and flags, flags winning
func watchConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.DefaultConfig()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if v, _ := cmd.Flags().GetString("job"); v != "" {
		cfg.JobID = v
	}
	if v, _ := cmd.Flags().GetString("api"); v != "" {
		cfg.APIBaseURL = v
	}
	if v, _ := cmd.Flags().GetString("stream"); v != "" {
		cfg.StreamURL = v
	}
	if v, _ := cmd.Flags().GetString("token"); v != "" {
		cfg.BearerToken = v
	}
	if v, _ := cmd.Flags().GetDuration("poll-interval"); v > 0 {
		cfg.PollInterval = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}

	return cfg, cfg.Validate()
}

func initLogging(cmd *cobra.Command) {
	level, _ := cmd.Flags().GetString("log-level")
	jsonLogs, _ := cmd.Flags().GetBool("json-logs")
	log.Init(log.Config{
		Level:      log.Level(level),
		JSONOutput: jsonLogs,
	})
}

func printProgress(s *types.ProgressState) {
	line := fmt.Sprintf("[%5.1f%%] %d/%d enriched", s.PercentComplete, s.EnrichedItems, s.TotalItems)
	if s.FailedItems > 0 {
		line += fmt.Sprintf(", %d failed", s.FailedItems)
	}
	if s.NotFoundItems > 0 {
		line += fmt.Sprintf(", %d not found", s.NotFoundItems)
	}
	if s.Stage != "" {
		line += " (" + s.Stage + ")"
	}
	if s.TotalBatches > 0 {
		line += fmt.Sprintf(" batch %d/%d", s.CurrentBatch, s.TotalBatches)
	}
	fmt.Println(line)
}

// isTerminalError reports whether an error notification ends the watch.
// Transport exhaustion does not; the session keeps going in poll mode.
func isTerminalError(err error) bool {
	return errors.Is(err, types.ErrJobFailed)
}
