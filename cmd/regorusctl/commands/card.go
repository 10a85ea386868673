package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/regorus/pkg/regorusapi"
)

func cardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "card",
		Aliases: []string{"cards"},
		Short:   "Inspect and create discovery cards",
	}

	cmd.AddCommand(cardListCmd())
	cmd.AddCommand(cardShowCmd())
	cmd.AddCommand(cardProbeCmd())

	return cmd
}

// --- card list ---

func cardListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all discovery cards",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			resp, err := client.ListCards(ctx, &regorusapi.ListCardsRequest{Status: status})
			if err != nil {
				return fmt.Errorf("list cards: %w", err)
			}

			out, err := formatCards(resp.Cards, outputFormat)
			if err != nil {
				return fmt.Errorf("format cards: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only list cards in this status (Detecting or Detected)")

	return cmd
}

// --- card show ---

func cardShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <interface>",
		Short: "Show details of a discovery card",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			resp, err := client.GetCard(ctx, &regorusapi.GetCardRequest{InterfaceName: args[0]})
			if err != nil {
				return fmt.Errorf("get card: %w", err)
			}

			out, err := formatCard(resp.Card, outputFormat)
			if err != nil {
				return fmt.Errorf("format card: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

// --- card probe ---

func cardProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <interface>",
		Short: "Start discovery on an interface",
		Long: "Creates a card for the interface and starts sending Pings. " +
			"If a card already exists its status is printed and nothing else happens.",
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			resp, err := client.Probe(ctx, &regorusapi.ProbeRequest{InterfaceName: args[0]})
			if err != nil {
				return fmt.Errorf("probe %s: %w", args[0], err)
			}

			out, err := formatProbe(args[0], resp, outputFormat)
			if err != nil {
				return fmt.Errorf("format probe result: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}
