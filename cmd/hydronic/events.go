package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/thatsimonsguy/hydronic-controller/internal/history"
)

var (
	eventsDB    string
	eventsLimit int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print recent mode changes and faults from the history database",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(eventsDB)
		if err != nil {
			return err
		}
		defer store.Close()

		events, err := store.Recent(eventsLimit)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, e := range events {
			line := fmt.Sprintf("%s  %-15s %s -> %s", e.At.Local().Format(time.DateTime), e.Kind, e.From, e.To)
			if e.Detail != "" {
				line += "  " + e.Detail
			}
			fmt.Fprintln(w, line)
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsDB, "db", "data/hydronic.db", "Path to the SQLite history database")
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 20, "Number of events to show")
	rootCmd.AddCommand(eventsCmd)
}
