package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	auditLimit    int
	auditOffset   int
	auditUndone   bool
	auditFailures bool
)

// auditCmd lists the actor's audit trail.
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List your audit trail, newest first",
	Long: `Shows the append-only record of every action attempt for the current
actor. Undone actions stay in the log with an undone marker; failed
attempts have no target id.`,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "maximum records to show")
	auditCmd.Flags().IntVar(&auditOffset, "offset", 0, "records to skip")
	auditCmd.Flags().BoolVar(&auditUndone, "undone", false, "show only undone actions")
	auditCmd.Flags().BoolVar(&auditFailures, "failures", false, "show only failed attempts")
}

func runAudit(cmd *cobra.Command, args []string) error {
	app, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer app.Close()

	var undone *bool
	if auditUndone {
		undone = &auditUndone
	}
	recs, err := app.Audit.ListByActor(actorID, undone, auditLimit, auditOffset)
	if err != nil {
		return fmt.Errorf("list audit records: %w", err)
	}

	shown := 0
	for _, rec := range recs {
		if auditFailures && rec.Succeeded() {
			continue
		}
		shown++

		var marks []string
		if !rec.Succeeded() {
			marks = append(marks, "FAILED")
		}
		if rec.Undone {
			marks = append(marks, "undone "+rec.UndoneAt.Format(time.RFC3339))
		}
		suffix := ""
		if len(marks) > 0 {
			suffix = "  [" + strings.Join(marks, ", ") + "]"
		}
		target := "-"
		if rec.TargetID != nil {
			target = *rec.TargetID
		}
		fmt.Printf("%s  %-18s %-8s %s%s\n",
			rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.ActionType, target, rec.ID, suffix)
	}
	if shown == 0 {
		fmt.Println("No audit records.")
	}
	return nil
}
