package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/autoreply/internal/engine"
	"github.com/nextlevelbuilder/autoreply/internal/variables"
)

func resolveCmd() *cobra.Command {
	var sender, message string
	cmd := &cobra.Command{
		Use:   "resolve <template>",
		Short: "Expand a reply template against the stored static variables",
		Long:  "Expands %variables% in a reply template the way a fired rule would, using the stored static variables and the given sender and message. Counters and history are empty.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, stores, err := loadConfigAndStores(ctx)
			if err != nil {
				return err
			}
			defer stores.Close()

			vars, err := stores.Variables.ListVariables(ctx)
			if err != nil {
				return fmt.Errorf("list variables: %w", err)
			}
			values := make(map[string]string, len(vars))
			for _, v := range vars {
				values[v.Name] = v.Value
			}

			bot := cfg.BotSnapshot()
			s := engine.ParseSender(sender, bot.AdminMarker)
			out := variables.NewResolver().ResolveOutcome(args[0], &variables.Context{
				SenderName: s.Name,
				IsGroup:    s.IsGroup,
				GroupName:  s.GroupName,
				Message:    message,
				ReceivedAt: time.Now(),
				Variables:  values,
				Location:   bot.Location(),
			})
			fmt.Println(out.Text)
			if out.Capped {
				fmt.Println("(warning: expansion stopped at the iteration cap; check for self-referencing variables)")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "Tester", `sender spec, e.g. "Alice" or "Team: Alice"`)
	cmd.Flags().StringVar(&message, "message", "", "incoming message text")
	return cmd
}
