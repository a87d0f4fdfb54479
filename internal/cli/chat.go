package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"parley/internal/runner"
	"parley/internal/storage"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewChatCmd creates the chat command.
func NewChatCmd() *cobra.Command {
	var (
		sessionID string
		modelURI  string
		stream    bool
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the configured model",
		Long: `Send a message to the configured model and print the response.

Conversation history is stored locally, so a session can be resumed
with --session. Long conversations are compacted automatically
according to the configured context strategy.

If no message is provided as an argument, an interactive chat
session is started.`,
		Example: `  # Send a single message
  parley chat "Hello, how are you?"

  # Continue an existing session
  parley chat --session abc123 "What did we discuss before?"

  # Stream the response
  parley chat --stream "Tell me a story"

  # Interactive chat
  parley chat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, args, sessionID, modelURI, stream)
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID to continue conversation")
	cmd.Flags().StringVarP(&modelURI, "model", "m", "", "model URI override for this run")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream the response")

	return cmd
}

func runChat(cmd *cobra.Command, args []string, sessionID, modelURI string, stream bool) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return fmt.Errorf("CLI context not initialized")
	}

	db, err := cliCtx.GetStorage()
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	cfg := *cliCtx.Config
	if modelURI != "" {
		cfg.Model.URI = modelURI
	}
	r := runner.NewRunner(db, &cfg)

	// If no arguments, start interactive mode
	if len(args) == 0 {
		return runInteractiveChat(cmd.Context(), r, sessionID, cliCtx.Verbose)
	}

	message := strings.Join(args, " ")

	newSession := sessionID == ""
	if newSession {
		sessionID = uuid.New().String()
	}

	if stream {
		if err := streamTurn(cmd.Context(), r, sessionID, message, cliCtx.Verbose); err != nil {
			return err
		}
	} else {
		reply, err := r.Ask(cmd.Context(), sessionID, message)
		if err != nil {
			return err
		}
		fmt.Println(reply.Content)
	}

	// Print session ID for reference
	if newSession {
		fmt.Printf("\n(Session ID: %s)\n", sessionID)
	}

	return nil
}

func runInteractiveChat(ctx context.Context, r *runner.Runner, sessionID string, verbose bool) error {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	fmt.Println("Parley Interactive Chat")
	fmt.Println("-----------------------")
	fmt.Printf("Session: %s\n", sessionID)
	fmt.Println("Type /stats for session statistics, /reset to clear history, /quit to exit")
	fmt.Println("")

	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print("You: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		message := strings.TrimSpace(input)

		switch strings.ToLower(message) {
		case "/quit", "/exit", "quit", "exit":
			fmt.Println("Goodbye!")
			return nil
		case "/stats":
			printStats(r, sessionID)
			continue
		case "/reset":
			if err := r.Reset(sessionID); err != nil {
				if err == storage.ErrNotFound {
					fmt.Println("Nothing to reset yet.")
				} else {
					fmt.Printf("Error: %v\n", err)
				}
				continue
			}
			fmt.Println("Conversation reset.")
			continue
		case "":
			continue
		}

		fmt.Print("Model: ")
		if err := streamTurn(ctx, r, sessionID, message, verbose); err != nil {
			fmt.Printf("\nError: %v\n", err)
		}
		fmt.Println()
	}
}

// streamTurn runs one turn and prints content deltas as they arrive.
func streamTurn(ctx context.Context, r *runner.Runner, sessionID, text string, verbose bool) error {
	events, err := r.Run(ctx, sessionID, text)
	if err != nil {
		return err
	}

	inThinking := false
	for event := range events {
		switch event.Type {
		case runner.EventTypeReasoning:
			if verbose {
				if !inThinking {
					fmt.Print("[thinking] ")
					inThinking = true
				}
				fmt.Print(event.Reasoning)
			}
		case runner.EventTypeContent:
			if inThinking {
				fmt.Println()
				inThinking = false
			}
			fmt.Print(event.Content)
		case runner.EventTypeDone:
			fmt.Println()
			if verbose && event.Usage != nil {
				fmt.Printf("[tokens] prompt=%d completion=%d total=%d\n",
					event.Usage.PromptTokens, event.Usage.CompletionTokens, event.Usage.TotalTokens)
			}
		case runner.EventTypeError:
			return fmt.Errorf("%s", event.ErrorMsg)
		}
	}

	return nil
}

func printStats(r *runner.Runner, sessionID string) {
	stats, err := r.Stats(sessionID)
	if err != nil {
		if err == storage.ErrNotFound {
			fmt.Println("No messages yet.")
		} else {
			fmt.Printf("Error: %v\n", err)
		}
		return
	}

	fmt.Printf("Messages: %d\n", stats.TotalMessages)

	roles := make([]string, 0, len(stats.ByRole))
	for role := range stats.ByRole {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		fmt.Printf("  %-10s %d\n", role, stats.ByRole[role])
	}

	fmt.Printf("Tokens: %s (input %s, output %s)\n",
		stats.TotalTokens, stats.InputTokens, stats.OutputTokens)
}
