// Bleprobe is a BLE range and latency tester.
//
// One device advertises a counter and transmit timestamp inside a
// manufacturer-specific AD structure; another scans for that identity,
// decodes the payload, and reports the receive/transmit delta together
// with signal strength.
//
// Usage:
//
//	bleprobe advertise [flags]    # sender role
//	bleprobe scan [flags]         # receiver role
//	bleprobe analyze <trail>...   # summarize recorded sessions
//	bleprobe export <trail>...    # convert trails to CSV
//
// See 'bleprobe --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/avetra/bleprobe/internal/logging"
	"github.com/avetra/bleprobe/internal/version"
)

func main() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bleprobe",
	Short: "BLE advertising range/latency tester",
	Long: `A diagnostic tool for measuring BLE advertising range and latency.

The sender broadcasts a counter and transmit timestamp in a custom
manufacturer payload; the receiver scans for the configured identity and
correlates each received frame against the embedded send time.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Silent by default; BLEPROBE_LOG_LEVEL turns on zap output.
		return logging.InitializeFromEnv()
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bleprobe %s\n", version.Full())
	},
}
