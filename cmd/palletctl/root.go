package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	outputFmt string
	token     string

	// out receives command output; tests replace it.
	out io.Writer = os.Stdout
)

var rootCmd = &cobra.Command{
	Use:   "palletctl",
	Short: "CLI for the pallet registry",
	Long: `palletctl drives the pallet registry server: intake, relocation,
inventory and exit validation, consultation, and the administrative
purge, restore and archive expiry operations.

Run "palletctl login" first; the token is stored in the user config
directory and reused by later commands.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("PALLET_SERVER", "http://localhost:8080"), "Pallet server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token (default: PALLET_TOKEN or the stored login)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(getCmd, searchCmd, historyCmd)
	rootCmd.AddCommand(intakeCmd, moveCmd, registerCmd, nextNumberCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(locationsCmd, statsCmd, alertsCmd)
	rootCmd.AddCommand(statusCmd, purgeCmd, restoreCmd, archiveCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// tokenPath is where login stores the token.
func tokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "palletctl", "token"), nil
}

// resolvedToken returns the effective token.
// Priority: --token flag > PALLET_TOKEN env var > stored login.
func resolvedToken() string {
	if token != "" {
		return token
	}
	if t := os.Getenv("PALLET_TOKEN"); t != "" {
		return t
	}
	path, err := tokenPath()
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
