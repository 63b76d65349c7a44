// Command execution for CLI commands.
//
// Information Hiding:
// - REPL loop and exit handling hidden
// - Output formatting hidden

package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/richinex/counsel/model"
	"github.com/richinex/counsel/orchestration"
)

// ChatOptions selects how chat turns run.
type ChatOptions struct {
	Conversation model.ConversationID
	Stream       bool
	Window       int // negative keeps the configured window
}

func (o ChatOptions) turnOptions() []orchestration.TurnOption {
	if o.Window < 0 {
		return nil
	}
	return []orchestration.TurnOption{orchestration.WithWindow(o.Window)}
}

// Chat runs one turn for message, or an interactive session reading from in
// when message is empty.
func Chat(ctx context.Context, rt *Runtime, opts ChatOptions, message string, in io.Reader, out io.Writer) error {
	if message != "" {
		return turn(ctx, rt, opts, message, out)
	}

	history, err := rt.Store.Read(ctx, opts.Conversation, 0)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	if len(history) > 0 {
		fmt.Fprintf(out, "Resuming conversation '%s' (%d messages)\n\n", opts.Conversation, len(history))
	}
	fmt.Fprintf(out, "Chat in conversation '%s'. Type 'exit' to quit.\n\n", opts.Conversation)

	return repl(ctx, in, out, func(input string) error {
		return turn(ctx, rt, opts, input, out)
	})
}

// repl reads lines from in until EOF, "exit" or "quit", passing each
// non-empty line to handle.
func repl(ctx context.Context, in io.Reader, out io.Writer, handle func(string) error) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}
		if err := handle(input); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return scanner.Err()
}

func turn(ctx context.Context, rt *Runtime, opts ChatOptions, input string, out io.Writer) error {
	if !opts.Stream {
		reply, err := rt.Orchestrator.Chat(ctx, opts.Conversation, input, opts.turnOptions()...)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s\n\n", reply)
		return nil
	}

	fmt.Fprintln(out)
	for fragment, err := range rt.Orchestrator.ChatStream(ctx, opts.Conversation, input, opts.turnOptions()...) {
		if err != nil {
			return err
		}
		fmt.Fprint(out, fragment.Text())
	}
	fmt.Fprint(out, "\n\n")
	return nil
}

// Report runs a report turn and prints the result as indented JSON.
func Report(ctx context.Context, rt *Runtime, opts ChatOptions, message string, out io.Writer) error {
	report := rt.Orchestrator.Report(ctx, opts.Conversation, message, opts.turnOptions()...)
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\n", data)
	return nil
}

// History prints the last n messages of a conversation; n <= 0 prints all.
func History(ctx context.Context, rt *Runtime, id model.ConversationID, n int, out io.Writer) error {
	history, err := rt.Store.Read(ctx, id, n)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Fprintf(out, "No messages in conversation '%s'.\n", id)
		return nil
	}
	for _, m := range history {
		fmt.Fprintf(out, "[%s] %s\n", m.Role, m.Text)
	}
	return nil
}

// Clear removes a conversation.
func Clear(ctx context.Context, rt *Runtime, id model.ConversationID, out io.Writer) error {
	if err := rt.Store.Clear(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "Cleared conversation '%s'.\n", id)
	return nil
}

// Conversations lists stored conversation ids.
func Conversations(ctx context.Context, rt *Runtime, out io.Writer) error {
	ids, err := rt.Store.Conversations(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "No stored conversations.")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return nil
}

// ListTools lists the tools the model can call.
func ListTools(rt *Runtime, verbose bool, out io.Writer) {
	if rt.Tools == nil {
		fmt.Fprintln(out, "Tools are disabled.")
		return
	}

	fmt.Fprintln(out, "Available tools:")
	fmt.Fprintln(out)

	for _, meta := range rt.Tools.List() {
		fmt.Fprintf(out, "  %s\n", meta.Name)
		fmt.Fprintf(out, "    %s\n", meta.Description)

		if verbose && len(meta.Parameters) > 0 {
			fmt.Fprintln(out, "    Parameters:")
			for _, param := range meta.Parameters {
				req := ""
				if param.Required {
					req = "*"
				}
				fmt.Fprintf(out, "      %s%s: %s - %s\n", param.Name, req, param.ParamType, param.Description)
			}
		}
		fmt.Fprintln(out)
	}
}
