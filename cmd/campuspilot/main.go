package main

import (
	"campuspilot/cmd/campuspilot/chat"
	"campuspilot/internal/config"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string
	actorID    string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "campuspilot",
	Short: "CampusPilot - conversational assistant for school records",
	Long: `CampusPilot turns natural-language requests into actions against the
school record system: sending messages, scheduling meetings, and looking
up schedules, grades, and people.

Every action is checked against the configured autonomy mode before it
runs, every attempt lands in the audit log, and reversible actions can
be undone inside the configured window.

Run without arguments to start the interactive chat interface.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The chat UI owns the terminal; skip the structured logger there.
		if cmd.CalledAs() == "campuspilot" {
			return nil
		}

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, cancel := signalContext()
		defer cancel()
		app.Watch(ctx, configPath, zap.NewNop())

		return chat.Run(ctx, chat.Config{
			ActorID:  actorID,
			Pipeline: app.Pipeline,
			Undoer:   app.Undoer,
			Audit:    app.Audit,
			Runtime:  app.Runtime,
		})
	},
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "path to config file")
	rootCmd.PersistentFlags().StringVar(&actorID, "actor", defaultActor(), "acting user id")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(resetCmd)
}

// defaultActor falls back to the OS user when no actor is given.
func defaultActor() string {
	if id := os.Getenv("CAMPUSPILOT_ACTOR"); id != "" {
		return id
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
