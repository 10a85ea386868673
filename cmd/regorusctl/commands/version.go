package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	appversion "github.com/dantte-lp/regorus/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print regorusctl build information",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if outputFormat == formatTable {
				fmt.Println(appversion.Full("regorusctl"))
				return nil
			}

			out, err := marshalStructured(appversion.Get("regorusctl"), outputFormat)
			if err != nil {
				return fmt.Errorf("format version: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}
