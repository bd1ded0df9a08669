package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/strandkit/strand/internal/api"
	"github.com/strandkit/strand/internal/core"
	"github.com/strandkit/strand/internal/history"
	"github.com/strandkit/strand/internal/revert"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Session management commands",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsShowCmd())
	cmd.AddCommand(newSessionsNewCmd())
	cmd.AddCommand(newSessionsRenameCmd())
	cmd.AddCommand(newSessionsArchiveCmd())
	cmd.AddCommand(newSessionsDeleteCmd())
	cmd.AddCommand(newSessionsForkCmd())
	cmd.AddCommand(newSessionsShareCmd())
	cmd.AddCommand(newSessionsSummarizeCmd())

	return cmd
}

func newSessionsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions for a directory",
		Args:  cobra.NoArgs,
		RunE:  runSessionsListCmd,
	}

	cmd.Flags().String("search", "", "filter sessions by title")
	cmd.Flags().Bool("archived", false, "include archived sessions")
	cmd.Flags().Int("limit", 0, "maximum sessions to list")

	return cmd
}

func runSessionsListCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	directory, err := resolveDirectory(cmd)
	if err != nil {
		return err
	}

	search, _ := cmd.Flags().GetString("search")
	archived, _ := cmd.Flags().GetBool("archived")
	limit, _ := cmd.Flags().GetInt("limit")

	client := api.New(cfg.Endpoint)
	list, err := client.List(cmd.Context(), directory, api.ListFilters{
		Search:   search,
		Archived: archived,
		Limit:    limit,
	})
	if err != nil {
		return err
	}

	if len(list.Sessions) == 0 {
		fmt.Println(styleDim.Render("No sessions found."))
		return nil
	}

	var lastViewed core.SessionID
	if state, err := openLocalState(cfg); err == nil {
		lastViewed, _ = state.LastSession(directory)
		state.Close()
	}

	printSessionsTable(list.Sessions, lastViewed)

	if list.Total > len(list.Sessions) {
		fmt.Println(styleDim.Render(fmt.Sprintf("Showing %d of %d sessions.", len(list.Sessions), list.Total)))
	}

	return nil
}

func printSessionsTable(sessions []core.Session, lastViewed core.SessionID) {
	t := table.New().
		Headers("", "SESSION ID", "TITLE", "UPDATED", "FLAGS").
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderColumn(false).
		BorderHeader(true).
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleTableHeader
			}
			return lipgloss.NewStyle().PaddingRight(2)
		})

	for _, session := range sessions {
		marker := " "
		id := string(session.ID)
		if session.ID == lastViewed {
			marker = styleActive.Render("*")
			id = styleActive.Render(id)
		} else {
			id = styleSessionID.Render(id)
		}

		t.Row(marker, id, sessionTitle(session), formatTime(session.Time.Updated), sessionFlags(session))
	}

	fmt.Println(t.Render())
}

func sessionTitle(session core.Session) string {
	title := strings.TrimSpace(session.Title)
	if title == "" {
		return styleDim.Render("(untitled)")
	}
	if len(title) > 48 {
		title = title[:45] + "..."
	}
	return title
}

func sessionFlags(session core.Session) string {
	var flags []string
	if session.Archived() {
		flags = append(flags, "archived")
	}
	if session.Revert != nil {
		flags = append(flags, "reverted")
	}
	if session.Share != nil {
		flags = append(flags, "shared")
	}
	if session.ParentID != "" {
		flags = append(flags, "fork")
	}
	return styleDim.Render(strings.Join(flags, " "))
}

func newSessionsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session and its visible messages",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionsShowCmd,
	}

	cmd.Flags().Bool("full", false, "page in the complete message history")

	return cmd
}

func runSessionsShowCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	directory, err := resolveDirectory(cmd)
	if err != nil {
		return err
	}

	sessionID := core.SessionID(args[0])
	registry, client := newRegistry(cfg)

	st := registry.Child(directory, false)
	if err := st.Bootstrap(cmd.Context()); err != nil {
		return err
	}

	session, ok := st.Session(sessionID)
	if !ok {
		return fmt.Errorf("session %s not found in %s", sessionID, directory)
	}

	if err := st.LoadMessages(cmd.Context(), sessionID, cfg.History.PageSize); err != nil {
		return err
	}

	full, _ := cmd.Flags().GetBool("full")
	if full {
		pager := history.New(st, client, registry, cfg.History.PageSize)
		for pager.HasMore(sessionID) {
			if err := pager.LoadMore(cmd.Context(), sessionID); err != nil {
				return err
			}
		}
	}

	printSessionDetails(st, session)

	controller := revert.New(st, client, printNotifier{})
	for _, message := range controller.Visible(sessionID) {
		printMessage(st, message)
	}

	if hidden := st.MessageCount(sessionID) - len(controller.Visible(sessionID)); hidden > 0 {
		fmt.Println(styleDim.Render(fmt.Sprintf("(%d messages hidden by revert)", hidden)))
	}

	if state, err := openLocalState(cfg); err == nil {
		defer state.Close()
		if err := state.SetLastSession(directory, sessionID); err != nil {
			fmt.Println(styleDim.Render("could not record last session: " + err.Error()))
		}
	}

	return nil
}

func printSessionDetails(st sessionViews, session core.Session) {
	fmt.Println(kvLine("Session", string(session.ID)))
	fmt.Println(kvLine("Title", strings.TrimSpace(session.Title)))
	fmt.Println(kvLine("Status", statusStyle(string(st.SessionStatus(session.ID))).Render(string(st.SessionStatus(session.ID)))))
	fmt.Println(kvLine("Created", time.UnixMilli(session.Time.Created).Format(time.RFC3339)))
	fmt.Println(kvLine("Updated", formatTime(session.Time.Updated)))

	if session.ParentID != "" {
		fmt.Println(kvLine("Forked from", string(session.ParentID)))
	}
	if session.Archived() {
		fmt.Println(kvLine("Archived", time.UnixMilli(session.Time.Archived).Format(time.RFC3339)))
	}
	if session.Revert != nil {
		fmt.Println(kvLine("Reverted at", string(session.Revert.MessageID)))
	}
	if session.Share != nil {
		fmt.Println(kvLine("Share", session.Share.URL))
	}
	if session.Summary != nil {
		fmt.Println(kvLine("Changes", fmt.Sprintf("%d files +%d -%d",
			session.Summary.Files, session.Summary.Additions, session.Summary.Deletions)))
	}

	fmt.Println(kvLine("Messages", fmt.Sprintf("%d of %d loaded", st.MessageCount(session.ID), st.MessageTotal(session.ID))))
	fmt.Println()
}

// sessionViews is the read slice of the store the printers need.
type sessionViews interface {
	SessionStatus(sessionID core.SessionID) core.SessionStatus
	MessageCount(sessionID core.SessionID) int
	MessageTotal(sessionID core.SessionID) int
	Parts(messageID core.MessageID) []core.Part
}

func printMessage(st sessionViews, message core.Message) {
	role := styleHeading.Render(string(message.Role))
	fmt.Printf("%s %s\n", role, styleDim.Render(string(message.ID)))

	for _, part := range st.Parts(message.ID) {
		switch part.Type {
		case core.PartText:
			fmt.Println(indent(part.Text))
		case core.PartTool:
			if part.Tool != nil {
				fmt.Println(indent(styleDim.Render("tool: " + part.Tool.Name)))
			}
		case core.PartFile:
			if part.File != nil {
				fmt.Println(indent(styleDim.Render("file: " + part.File.Path)))
			}
		case core.PartImage:
			if part.Image != nil {
				fmt.Println(indent(styleDim.Render("image: " + part.Image.URL)))
			}
		}
	}

	fmt.Println()
}

func indent(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n")
}

func newSessionsNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new [title]",
		Short: "Create a session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			directory, err := resolveDirectory(cmd)
			if err != nil {
				return err
			}

			title := ""
			if len(args) > 0 {
				title = args[0]
			}

			registry, _ := newRegistry(cfg)
			session, err := registry.CreateSession(cmd.Context(), directory, title)
			if err != nil {
				return err
			}

			fmt.Printf("%s session %s\n", styleSuccess.Render("Created"), session.ID)
			return nil
		},
	}
}

func newSessionsRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <session-id> <title>",
		Short: "Rename a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			directory, err := resolveDirectory(cmd)
			if err != nil {
				return err
			}

			registry, _ := newRegistry(cfg)
			registry.Child(directory, false)

			if err := registry.Rename(cmd.Context(), directory, core.SessionID(args[0]), args[1]); err != nil {
				return err
			}

			fmt.Printf("%s session %s\n", styleSuccess.Render("Renamed"), args[0])
			return nil
		},
	}
}

func newSessionsArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <session-id>",
		Short: "Archive a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsArchiveCmd(cmd, args[0])
		},
	}

	cmd.Flags().Bool("undo", false, "restore an archived session")

	return cmd
}

func runSessionsArchiveCmd(cmd *cobra.Command, sessionID string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	directory, err := resolveDirectory(cmd)
	if err != nil {
		return err
	}

	undo, _ := cmd.Flags().GetBool("undo")

	registry, _ := newRegistry(cfg)
	registry.Child(directory, false)

	if err := registry.SetArchived(cmd.Context(), directory, core.SessionID(sessionID), !undo); err != nil {
		return err
	}

	verb := "Archived"
	if undo {
		verb = "Restored"
	}

	fmt.Printf("%s session %s\n", styleSuccess.Render(verb), sessionID)
	return nil
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its forks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			directory, err := resolveDirectory(cmd)
			if err != nil {
				return err
			}

			registry, _ := newRegistry(cfg)
			registry.Child(directory, false)

			if err := registry.DeleteSession(cmd.Context(), directory, core.SessionID(args[0])); err != nil {
				return err
			}

			if state, err := openLocalState(cfg); err == nil {
				defer state.Close()
				if last, _ := state.LastSession(directory); last == core.SessionID(args[0]) {
					state.Forget(directory)
				}
			}

			fmt.Printf("%s session %s\n", styleSuccess.Render("Deleted"), args[0])
			return nil
		},
	}
}

func newSessionsForkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fork <session-id> <message-id>",
		Short: "Fork a session at a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			directory, err := resolveDirectory(cmd)
			if err != nil {
				return err
			}

			registry, _ := newRegistry(cfg)
			registry.Child(directory, false)

			fork, err := registry.ForkSession(cmd.Context(), directory, core.SessionID(args[0]), core.MessageID(args[1]))
			if err != nil {
				return err
			}

			fmt.Printf("%s session %s from %s\n", styleSuccess.Render("Forked"), fork.ID, args[0])
			return nil
		},
	}
}

func newSessionsShareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share <session-id>",
		Short: "Share a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			directory, err := resolveDirectory(cmd)
			if err != nil {
				return err
			}

			undo, _ := cmd.Flags().GetBool("undo")

			registry, _ := newRegistry(cfg)
			st := registry.Child(directory, false)

			if err := registry.SetShared(cmd.Context(), directory, core.SessionID(args[0]), !undo); err != nil {
				return err
			}

			if undo {
				fmt.Printf("%s session %s\n", styleSuccess.Render("Unshared"), args[0])
				return nil
			}

			url := ""
			if session, ok := st.Session(core.SessionID(args[0])); ok && session.Share != nil {
				url = session.Share.URL
			}

			fmt.Printf("%s session %s %s\n", styleSuccess.Render("Shared"), args[0], styleDim.Render(url))
			return nil
		},
	}

	cmd.Flags().Bool("undo", false, "revoke the share link")

	return cmd
}

func newSessionsSummarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <session-id>",
		Short: "Request a server-side summary of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			registry, _ := newRegistry(cfg)
			if err := registry.Summarize(cmd.Context(), core.SessionID(args[0])); err != nil {
				return err
			}

			fmt.Printf("%s summary for %s\n", styleSuccess.Render("Requested"), args[0])
			return nil
		},
	}
}

func formatTime(millis int64) string {
	if millis == 0 {
		return styleDim.Render("never")
	}

	d := time.Since(time.UnixMilli(millis))

	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		m := int(d.Minutes())
		if m == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", m)
	case d < 24*time.Hour:
		h := int(d.Hours())
		if h == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", h)
	case d < 48*time.Hour:
		return "yesterday"
	default:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	}
}
