package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sharpie78/nova/api"
	"github.com/sharpie78/nova/chatbot"
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "Manage saved chats",
}

var chatsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved chats, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		chats, err := client.ListChats(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tMODEL\tTITLE")
		for _, c := range chats {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.CreatedAt.Local().Format(time.DateTime), c.Model, c.Title)
		}
		return w.Flush()
	},
}

var chatsLoadCmd = &cobra.Command{
	Use:   "load <id>",
	Short: "Print a saved chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := session.Load(cmd.Context(), args[0]); err != nil {
			return err
		}
		chatbot.NewWriterSink(cmd.OutOrStdout()).Replay(session.Transcript().Messages())
		return nil
	},
}

var chatsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return session.Delete(cmd.Context(), args[0])
	},
}

var coreCmd = &cobra.Command{
	Use:   "core",
	Short: "Manage core memory",
	Long: `Core memory is the set of system messages the backend prepends to every chat.
Changes apply to the next message sent in any chat.`,
}

var coreListCmd = &cobra.Command{
	Use:   "list",
	Short: "List core memory messages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		msgs, err := client.CoreMemory(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tROLE\tCONTENT")
		for _, m := range msgs {
			fmt.Fprintf(w, "%d\t%s\t%s\n", m.ID, m.Role, m.Content)
		}
		return w.Flush()
	},
}

var coreRole string

var coreAddCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Add a core memory message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role := api.ParseRole(coreRole)
		id, err := client.AddCoreMemory(cmd.Context(), api.Message{Role: role, Content: args[0]})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var coreDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a core memory message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return errors.New("id must be a number")
		}
		return client.DeleteCoreMemory(cmd.Context(), id)
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models the backend offers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		syncSettings(ctx)
		current := session.Prefs().Model

		models, err := client.Models(ctx)
		if err != nil {
			return err
		}
		for _, m := range models {
			mark := " "
			if m == current {
				mark = "*"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", mark, m)
		}
		return nil
	},
}

func init() {
	chatsCmd.AddCommand(chatsListCmd, chatsLoadCmd, chatsDeleteCmd)

	coreAddCmd.Flags().StringVar(&coreRole, "role", "system", "message role")
	coreCmd.AddCommand(coreListCmd, coreAddCmd, coreDeleteCmd)
}
