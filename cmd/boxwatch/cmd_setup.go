package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/boxwatch/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("boxwatch setup")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.Probe.BaseURL = prompt(scanner, "Box API URL", cfg.Probe.BaseURL)
		cfg.Storage.Backend = prompt(scanner, "Storage backend (file, badger, sqlite, nats, memory)", cfg.Storage.Backend)
		if cfg.Storage.Backend == "nats" {
			cfg.Storage.NATS.URL = prompt(scanner, "NATS URL", cfg.Storage.NATS.URL)
		}
		cfg.Monitor.Schedule = prompt(scanner, "Monitor schedule", cfg.Monitor.Schedule)

		attempts := prompt(scanner, "Probe attempts", strconv.Itoa(cfg.Probe.MaxAttempts))
		if n, err := strconv.Atoi(attempts); err == nil && n > 0 {
			cfg.Probe.MaxAttempts = n
		}

		cfg.Telegram.Token = prompt(scanner, "Telegram bot token (optional)", cfg.Telegram.Token)

		targets := prompt(scanner, "Notify targets (comma separated)", strings.Join(cfg.Notify.Targets, ","))
		cfg.Notify.Targets = splitList(targets)

		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
