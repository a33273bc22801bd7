package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ayusman/signlink/internal/store"
)

var messagesLimit int

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "List sent messages, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMessages(messagesLimit)
	},
}

func init() {
	messagesCmd.Flags().IntVarP(&messagesLimit, "limit", "n", 20, "Maximum number of messages (0 for all)")
	rootCmd.AddCommand(messagesCmd)
}

func runMessages(limit int) error {
	st, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	msgs, err := st.Messages().List(limit)
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}

	if len(msgs) == 0 {
		fmt.Println("No messages found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SENT\tPLATFORM\tSTATUS\tLABEL\tTEXT")
	fmt.Fprintln(w, "----\t--------\t------\t-----\t----")

	for _, m := range msgs {
		label := "-"
		if m.Label != "" {
			label = fmt.Sprintf("%s (%.0f%%)", m.Label, m.Confidence)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.CreatedAt.Local().Format("2006-01-02 15:04"), m.Platform, m.Status, label, m.Text)
	}
	return w.Flush()
}
