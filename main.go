package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sharpie78/nova/chatbot"
	"github.com/sharpie78/nova/store"
)

//chatCacheBytes bounds the saved chats kept in memory
const chatCacheBytes = 16 << 20

var (
	logger  *zap.Logger
	st      *store.SQLStore
	client  *chatbot.Client
	session *chatbot.Session
)

var rootCmd = &cobra.Command{
	Use:   "novachat",
	Short: "Chat with the Nova backend from a terminal",
	Long: `novachat is a terminal front end for the Nova desktop backend.

Run without arguments to start an interactive chat. While it runs, the backend's
agent can read and write the chat's scratch buffer through the editor bridge.

Chat commands:
  /new              start a new chat
  /save [title]     save the conversation
  /agent on|off     toggle agent mode
  /hint <hint>      route agent requests (auto, memory, rag, web)
  /model [name]     show models or select one
  /editor           show the scratch buffer
  /quit             leave`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: teardown,
	RunE:              runChat,
}

func newLogger() (*zap.Logger, error) {
	if config.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

//setup opens the local store and loads the device's preferences
func setup(cmd *cobra.Command, args []string) error {
	var err error
	if logger, err = newLogger(); err != nil {
		return fmt.Errorf("could not create logger: %w", err)
	}

	ctx := cmd.Context()
	if st, err = store.Open(ctx, config.StoreDriver, config.StoreDSN); err != nil {
		return err
	}

	client = chatbot.NewClient(config.Backend, config.RequestTimeout, logger.Named("client"))
	session = chatbot.NewSession(client, st, chatbot.NewChatCache(chatCacheBytes), logger.Named("session"))

	if err := session.LoadPrefs(ctx); err != nil {
		return err
	}
	if config.Username != "" {
		if err := session.SetUsername(ctx, config.Username); err != nil {
			return err
		}
	}
	return nil
}

func teardown(cmd *cobra.Command, args []string) {
	if st != nil {
		st.Close()
	}
	if logger != nil {
		logger.Sync()
	}
}

//syncSettings applies the user's backend settings. The environment can only turn chat
//history off.
func syncSettings(ctx context.Context) {
	if _, err := session.SyncSettings(ctx); err != nil {
		logger.Warn("could not load settings", zap.Error(err))
	}
	if !config.ChatHistory {
		session.SetChatHistory(false)
	}
}

func main() {
	rootCmd.AddCommand(chatsCmd, coreCmd, modelsCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
