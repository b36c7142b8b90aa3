package main

import (
	"bufio"
	"campuspilot/internal/pipeline"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	runForce     bool
	runBatchFile string
)

// runCmd executes a single command without the interactive UI.
var runCmd = &cobra.Command{
	Use:   "run [command...]",
	Short: "Run one natural-language command and exit",
	Long: `Processes one command through the full pipeline and prints the reply.

A command that needs confirmation is not executed; rerun with --yes to
approve it, or use the chat interface for a normal back-and-forth.

With --batch, commands are read one per line from a file and processed
concurrently. Lines starting with # are skipped.

Examples:
  campuspilot run "send a message to Jennifer: please see me tomorrow"
  campuspilot run --yes "schedule a meeting with the Parkers tomorrow at 4pm"
  campuspilot run --batch morning.txt`,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().BoolVarP(&runForce, "yes", "y", false, "pre-approve the action (skip confirmation)")
	runCmd.Flags().StringVar(&runBatchFile, "batch", "", "file of commands, one per line")
}

func runOnce(cmd *cobra.Command, args []string) error {
	app, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if runBatchFile != "" {
		return runBatch(ctx, app, runBatchFile)
	}
	if len(args) == 0 {
		return fmt.Errorf("nothing to run: give a command or --batch")
	}

	out, err := app.Pipeline.Turn(ctx, pipeline.TurnInput{
		ActorID: actorID,
		Text:    strings.Join(args, " "),
		Force:   runForce,
	})
	if err != nil {
		return err
	}
	printTurn(out)
	return outcomeErr(out)
}

// outcomeErr turns a failed outcome into a process-level error. Returning
// it instead of exiting lets the deferred store cleanup run.
func outcomeErr(out *pipeline.TurnOutput) error {
	if out.Outcome != pipeline.OutcomeError {
		return nil
	}
	return fmt.Errorf("command failed: %s", out.Detail)
}

// batchWorkers bounds concurrent pipeline turns in batch mode.
const batchWorkers = 4

// runBatch feeds each line through the pipeline. Force is implied: a
// batch run has nobody present to answer a confirmation prompt.
func runBatch(ctx context.Context, app *App, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read batch file: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchWorkers)

	var mu sync.Mutex
	failed := 0
	for i, line := range lines {
		g.Go(func() error {
			out, err := app.Pipeline.Turn(gctx, pipeline.TurnInput{
				ActorID: actorID,
				Text:    line,
				Force:   true,
			})
			if err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			mu.Lock()
			defer mu.Unlock()
			fmt.Printf("[%d] %s\n    %s\n", i+1, line, strings.ReplaceAll(out.Reply, "\n", "\n    "))
			if out.Outcome == pipeline.OutcomeError {
				failed++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("batch complete", zap.Int("commands", len(lines)), zap.Int("failed", failed))
	if failed > 0 {
		return fmt.Errorf("%d of %d commands failed", failed, len(lines))
	}
	return nil
}

func printTurn(out *pipeline.TurnOutput) {
	fmt.Println(out.Reply)
	if out.AuditID != "" {
		fmt.Printf("(audit id: %s)\n", out.AuditID)
	}
}
