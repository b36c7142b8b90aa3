package main

import (
	"campuspilot/internal/config"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configCmd groups configuration helpers.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or initialize configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("refusing to overwrite existing config at %s", configPath)
		}
		cfg := config.DefaultConfig()
		if err := cfg.Save(configPath); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Println("Wrote", configPath)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg.Oracle.APIKey = redact(cfg.Oracle.APIKey)
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

// resetCmd clears the actor's conversation state.
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget conversation context for the current actor",
	Long: `Clears the last recipient, last action, and any pending clarification
or confirmation. The audit log is untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, cancel := signalContext()
		defer cancel()
		if err := app.Pipeline.Reset(ctx, actorID); err != nil {
			return fmt.Errorf("reset conversation state: %w", err)
		}
		fmt.Println("Conversation context cleared for", actorID)
		return nil
	},
}

func redact(s string) string {
	if len(s) <= 6 {
		if s == "" {
			return ""
		}
		return "***"
	}
	return s[:3] + "..." + s[len(s)-3:]
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
