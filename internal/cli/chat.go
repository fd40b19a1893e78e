package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tasktalk/tasktalk/internal/agent"
	"github.com/tasktalk/tasktalk/internal/config"
	"github.com/tasktalk/tasktalk/internal/store"
)

func newChatCmd() *cobra.Command {
	var conversationID int64

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to Tasktalk from the terminal",
		Long: `Talk to Tasktalk from the terminal.

With a message argument, processes that single turn and exits. Without one,
starts an interactive session; quit with "exit" or Ctrl-D.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			home := config.MustHomeFrom(ctx)
			settings, err := config.Load(home)
			if err != nil {
				return err
			}

			st, err := store.Open(home)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			ag := agent.New(st, buildClassifier(settings), agentOptions(settings))

			var convoID *int64
			if conversationID > 0 {
				convoID = &conversationID
			}

			if len(args) == 1 {
				return chatTurn(cmd, ag, args[0], &convoID)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Tasktalk chat. Type a request, or \"exit\" to quit.")
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					fmt.Fprintln(out)
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					return nil
				}
				if err := chatTurn(cmd, ag, line, &convoID); err != nil {
					return err
				}
			}
		},
	}

	cmd.Flags().Int64Var(&conversationID, "conversation", 0, "Continue an existing conversation by id")

	return cmd
}

// chatTurn processes one turn and keeps convoID pointing at the conversation
// so follow-ups (including confirmation replies) land in the same thread.
func chatTurn(cmd *cobra.Command, ag *agent.Agent, message string, convoID **int64) error {
	turn, err := ag.ProcessTurn(cmd.Context(), message, *convoID)
	if err != nil {
		return err
	}
	if *convoID == nil {
		id := turn.ConversationID
		*convoID = &id
	}
	fmt.Fprintln(cmd.OutOrStdout(), turn.Outcome.Message)
	return nil
}
