package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"insp/internal/syncclient"
)

var (
	version string

	serverURL string
	token     string
	userID    string
	deviceID  string
)

// SetVersion sets the version string
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:   "insp",
	Short: "Offline-first inspection sync CLI",
	Long: `insp - command-line client for the inspection sync daemon.

Queue changes while offline, run sync sessions, inspect and resolve
conflicts, and watch live sync activity.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// client builds a sync client from the global flags and environment.
func client() *syncclient.Client {
	return syncclient.New(serverURL, token, userID, deviceID)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&serverURL, "server", envOr("INSP_SERVER", "http://localhost:8080"), "sync daemon base URL")
	pf.StringVar(&token, "token", os.Getenv("INSP_TOKEN"), "bearer token for the daemon")
	pf.StringVar(&userID, "user", os.Getenv("INSP_USER"), "user id")
	pf.StringVar(&deviceID, "device", envOr("INSP_DEVICE", hostDeviceID()), "device id")
}

// hostDeviceID derives a stable default device id from the hostname.
func hostDeviceID() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown-device"
	}
	return h
}
