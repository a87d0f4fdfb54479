package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"parley/internal/storage"

	"github.com/spf13/cobra"
)

// NewSessionCmd creates the session command.
func NewSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage conversation sessions",
		Long:  `List, view, and delete conversation sessions.`,
	}

	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionShowCmd())
	cmd.AddCommand(newSessionDeleteCmd())
	cmd.AddCommand(newSessionClearCmd())

	return cmd
}

func newSessionListCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all sessions",
		Long:  `List all conversation sessions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionList(cmd, limit, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "maximum number of sessions to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	return cmd
}

func newSessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show session details",
		Long:  `Display detailed information about a specific session.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionShow(cmd, args[0])
		},
	}
}

func newSessionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session",
		Long:  `Delete a specific conversation session.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionDelete(cmd, args[0])
		},
	}
}

func newSessionClearCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear all sessions",
		Long:  `Delete all conversation sessions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionClear(cmd, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation prompt")

	return cmd
}

func sessionStorage(cmd *cobra.Command) (*storage.DB, error) {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return nil, fmt.Errorf("CLI context not initialized")
	}
	return cliCtx.GetStorage()
}

func runSessionList(cmd *cobra.Command, limit int, jsonOutput bool) error {
	db, err := sessionStorage(cmd)
	if err != nil {
		return err
	}

	sessions, err := db.ListSessions(limit, 0)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tMODEL\tSTRATEGY\tUPDATED")
	fmt.Fprintln(w, "--\t-----\t-----\t--------\t-------")

	for _, s := range sessions {
		title := s.Title
		if len(title) > 30 {
			title = title[:30] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.ID,
			title,
			s.ModelURI,
			s.Strategy,
			s.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d sessions\n", len(sessions))

	return nil
}

func runSessionShow(cmd *cobra.Command, sessionID string) error {
	db, err := sessionStorage(cmd)
	if err != nil {
		return err
	}

	session, err := db.GetSession(sessionID)
	if err != nil {
		if err == storage.ErrNotFound {
			return fmt.Errorf("session not found: %s", sessionID)
		}
		return fmt.Errorf("get session: %w", err)
	}

	messages, err := db.GetMessages(sessionID, 0)
	if err != nil {
		return fmt.Errorf("get messages: %w", err)
	}

	fmt.Printf("Session:  %s\n", session.ID)
	fmt.Printf("Title:    %s\n", session.Title)
	fmt.Printf("Model:    %s\n", session.ModelURI)
	fmt.Printf("Strategy: %s\n", session.Strategy)
	fmt.Printf("Created:  %s\n", session.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Updated:  %s\n", session.UpdatedAt.Format(time.RFC3339))
	fmt.Printf("Messages: %d\n", len(messages))
	fmt.Println()

	if len(messages) > 0 {
		fmt.Println("Messages:")
		fmt.Println("---------")
		for _, msg := range messages {
			content := msg.Content
			if len(content) > 200 {
				content = content[:200] + "..."
			}

			fmt.Printf("\n[%s] %s\n", msg.Role, msg.CreatedAt.Format("15:04:05"))
			fmt.Println(content)
		}
	}

	return nil
}

func runSessionDelete(cmd *cobra.Command, sessionID string) error {
	db, err := sessionStorage(cmd)
	if err != nil {
		return err
	}

	if err := db.DeleteSession(sessionID); err != nil {
		if err == storage.ErrNotFound {
			return fmt.Errorf("session not found: %s", sessionID)
		}
		return fmt.Errorf("delete session: %w", err)
	}

	fmt.Printf("✓ Session deleted: %s\n", sessionID)
	return nil
}

func runSessionClear(cmd *cobra.Command, force bool) error {
	if !force {
		fmt.Print("Are you sure you want to delete all sessions? (y/N): ")
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" && response != "yes" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	db, err := sessionStorage(cmd)
	if err != nil {
		return err
	}

	sessions, err := db.ListSessions(0, 0)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions to delete.")
		return nil
	}

	deleted := 0
	for _, s := range sessions {
		if err := db.DeleteSession(s.ID); err == nil {
			deleted++
		}
	}

	fmt.Printf("✓ Deleted %d sessions\n", deleted)
	return nil
}
