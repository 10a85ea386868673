package commands

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/regorus/pkg/regorusapi"
)

var (
	// client is the regorus control API client, initialized in PersistentPreRunE.
	client regorusapi.Client

	// outputFormat controls the output format for all commands (table, json or yaml).
	outputFormat string

	// serverAddr is the daemon address (host:port) for the ConnectRPC connection.
	serverAddr string

	// timeout bounds unary calls. Streaming commands ignore it.
	timeout time.Duration
)

// rootCmd is the top-level cobra command for regorusctl.
var rootCmd = &cobra.Command{
	Use:   "regorusctl",
	Short: "CLI client for the regorus discovery daemon",
	Long:  "regorusctl talks to regorusd over ConnectRPC to start probes and inspect discovery cards.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if err := checkFormat(outputFormat); err != nil {
			return err
		}

		client = regorusapi.NewClient(
			http.DefaultClient,
			"http://"+serverAddr,
		)

		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:50061",
		"regorusd daemon address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", formatTable,
		"output format: table, json, yaml")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second,
		"timeout for unary API calls")

	rootCmd.AddCommand(cardCmd())
	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
