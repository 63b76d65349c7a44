// Package main provides the counsel CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/counsel/cli"
	"github.com/richinex/counsel/model"
)

var (
	// Global flags
	configPath string
	provider   string
	verbose    bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "counsel",
		Short: "Conversational assistant with durable history",
		Long: `A conversational assistant that keeps per-conversation history on disk,
runs every turn through an advisor chain and can call sandboxed tools.

Backends: file (default), sqlite, memory.
Providers: openai, anthropic, deepseek, gemini, ollama.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (openai, anthropic, deepseek, gemini, ollama)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logs")

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(clearCmd())
	rootCmd.AddCommand(conversationsCmd())
	rootCmd.AddCommand(toolsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withRuntime opens the runtime for one command and closes it afterwards.
func withRuntime(fn func(rt *cli.Runtime) error) error {
	rt, err := cli.Open(cli.Options{ConfigPath: configPath, Provider: provider, Verbose: verbose})
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

func chatCmd() *cobra.Command {
	var conversation string
	var stream bool
	var window int

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send one message, or start an interactive chat",
		Long: `Without a message, start an interactive chat that reads one turn per line.
Each turn is stored in the conversation once the reply is complete.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if conversation == "" {
				conversation = uuid.NewString()
			}
			message := ""
			if len(args) == 1 {
				message = args[0]
			}
			opts := cli.ChatOptions{Conversation: model.ConversationID(conversation), Stream: stream, Window: window}
			return withRuntime(func(rt *cli.Runtime) error {
				return cli.Chat(cmd.Context(), rt, opts, message, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().StringVarP(&conversation, "conversation", "c", "", "Conversation ID (default: new random id)")
	cmd.Flags().BoolVarP(&stream, "stream", "s", false, "Stream the reply as it is generated")
	cmd.Flags().IntVarP(&window, "window", "w", -1, "History messages sent with each turn (default: configured retrieve size)")

	return cmd
}

func reportCmd() *cobra.Command {
	var conversation string
	var window int

	cmd := &cobra.Command{
		Use:   "report [message]",
		Short: "Ask for structured advice as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if conversation == "" {
				conversation = uuid.NewString()
			}
			opts := cli.ChatOptions{Conversation: model.ConversationID(conversation), Window: window}
			return withRuntime(func(rt *cli.Runtime) error {
				return cli.Report(cmd.Context(), rt, opts, args[0], cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().StringVarP(&conversation, "conversation", "c", "", "Conversation ID (default: new random id)")
	cmd.Flags().IntVarP(&window, "window", "w", -1, "History messages sent with the turn")

	return cmd
}

func historyCmd() *cobra.Command {
	var conversation string
	var last int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the messages of a conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *cli.Runtime) error {
				return cli.History(cmd.Context(), rt, model.ConversationID(conversation), last, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().StringVarP(&conversation, "conversation", "c", "", "Conversation ID")
	cmd.Flags().IntVarP(&last, "last", "n", 0, "Print only the last n messages (0 = all)")
	_ = cmd.MarkFlagRequired("conversation")

	return cmd
}

func clearCmd() *cobra.Command {
	var conversation string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the stored history of a conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *cli.Runtime) error {
				return cli.Clear(cmd.Context(), rt, model.ConversationID(conversation), cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().StringVarP(&conversation, "conversation", "c", "", "Conversation ID")
	_ = cmd.MarkFlagRequired("conversation")

	return cmd
}

func conversationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conversations",
		Short: "List stored conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *cli.Runtime) error {
				return cli.Conversations(cmd.Context(), rt, cmd.OutOrStdout())
			})
		},
	}
}

func toolsCmd() *cobra.Command {
	var verboseTools bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List available tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *cli.Runtime) error {
				cli.ListTools(rt, verboseTools, cmd.OutOrStdout())
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&verboseTools, "verbose", "V", false, "Show tool parameters")

	return cmd
}
