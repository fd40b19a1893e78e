package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tasktalk/tasktalk/internal/config"
	"github.com/tasktalk/tasktalk/internal/store"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the local Tasktalk setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			home := config.MustHomeFrom(ctx)
			out := cmd.OutOrStdout()
			failed := false

			fmt.Fprintf(out, "Home: %s\n", home)
			if _, err := os.Stat(home); err != nil {
				fmt.Fprintf(out, "  [warn] home directory missing, will be created on first use\n")
			} else {
				fmt.Fprintf(out, "  [ok] home directory exists\n")
			}

			settings, err := config.Load(home)
			if err != nil {
				fmt.Fprintf(out, "  [fail] config: %v\n", err)
				failed = true
			} else {
				fmt.Fprintf(out, "  [ok] config loaded (driver=%s, provider=%s)\n",
					settings.Database.Driver, settings.Model.Provider)
				switch settings.Model.Provider {
				case "openai":
					if settings.Model.APIKey == "" && os.Getenv("OPENAI_API_KEY") == "" {
						fmt.Fprintf(out, "  [warn] provider openai configured but no API key set\n")
					}
				case "anthropic":
					if settings.Model.APIKey == "" && os.Getenv("ANTHROPIC_API_KEY") == "" {
						fmt.Fprintf(out, "  [warn] provider anthropic configured but no API key set\n")
					}
				}
			}

			st, err := store.Open(home)
			if err != nil {
				fmt.Fprintf(out, "  [fail] store: %v\n", err)
				failed = true
			} else {
				defer func() { _ = st.Close() }()
				if _, err := st.ListTasks(ctx, store.TaskFilter{Limit: 1}); err != nil {
					fmt.Fprintf(out, "  [fail] store query: %v\n", err)
					failed = true
				} else {
					fmt.Fprintf(out, "  [ok] store opened and migrated\n")
				}
			}

			if failed {
				return fmt.Errorf("doctor found problems")
			}
			fmt.Fprintln(out, "All good.")
			return nil
		},
	}
	return cmd
}
