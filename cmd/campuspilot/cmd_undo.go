package main

import (
	"campuspilot/internal/action"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// undoCmd reverses a prior action by audit id.
var undoCmd = &cobra.Command{
	Use:   "undo [audit-id]",
	Short: "Undo a reversible action inside the undo window",
	Long: `Reverses a previously executed action: sent messages are retracted and
scheduled meetings are cancelled. Only the actor who performed the
action can undo it, and only inside the configured window. Lookups are
not reversible.`,
	Args: cobra.ExactArgs(1),
	RunE: runUndo,
}

func runUndo(cmd *cobra.Command, args []string) error {
	app, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := signalContext()
	defer cancel()

	rec, err := app.Undoer.Undo(ctx, args[0], actorID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", undoFailureCode(err), err)
	}
	fmt.Printf("Undone: %s %s (performed %s)\n",
		rec.ActionType, rec.TargetType, rec.CreatedAt.Format(time.RFC3339))
	return nil
}

// undoFailureCode maps undo errors to their stable codes for scripts.
func undoFailureCode(err error) string {
	switch {
	case errors.Is(err, action.ErrUndoNotFound):
		return "NOT_FOUND"
	case errors.Is(err, action.ErrAlreadyUndone):
		return "ALREADY_UNDONE"
	case errors.Is(err, action.ErrWindowExpired):
		return "WINDOW_EXPIRED"
	case errors.Is(err, action.ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, action.ErrNotReversible):
		return "NOT_REVERSIBLE"
	case errors.Is(err, action.ErrReversalFailed):
		return "REVERSAL_FAILED"
	default:
		return "ERROR"
	}
}
