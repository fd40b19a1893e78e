package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newConversationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversation",
		Aliases: []string{"convo"},
		Short:   "Inspect conversations",
	}

	cmd.AddCommand(newConversationListCmd())
	cmd.AddCommand(newConversationShowCmd())

	return cmd
}

func newConversationListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			convos, err := st.ListConversations(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(convos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No conversations.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tMESSAGES\tTASKS\tTITLE")
			for _, convo := range convos {
				fmt.Fprintf(w, "%d\t%d\t%d\t%s\n",
					convo.ConversationID, convo.MessageCount, convo.TaskCount, convo.Title)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of conversations to show")

	return cmd
}

func newConversationShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a conversation transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return fmt.Errorf("invalid conversation id %q", args[0])
			}
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			convo, err := st.GetConversation(cmd.Context(), id)
			if err != nil {
				return err
			}
			messages, err := st.ListMessages(cmd.Context(), id, 0)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Conversation #%d: %s (%d messages, %d tasks)\n\n",
				convo.ConversationID, convo.Title, convo.MessageCount, convo.TaskCount)
			for _, msg := range messages {
				fmt.Fprintf(out, "[%s] %s\n", msg.Role, msg.Content)
			}
			return nil
		},
	}
	return cmd
}
