package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strandkit/strand/internal/core"
	"github.com/strandkit/strand/internal/revert"
	"github.com/strandkit/strand/internal/store"
)

func newRevertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revert <session-id> <message-id>",
		Short: "Roll a session back to before a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, _, err := buildController(cmd, core.SessionID(args[0]))
			if err != nil {
				return err
			}

			if err := controller.Revert(cmd.Context(), core.SessionID(args[0]), core.MessageID(args[1])); err != nil {
				return err
			}

			fmt.Printf("%s session %s to before %s\n", styleSuccess.Render("Reverted"), args[0], args[1])

			if draft := controller.Draft(core.SessionID(args[0])); draft != "" {
				fmt.Println(styleDim.Render("restored prompt:"))
				fmt.Println(indent(draft))
			}

			return nil
		},
	}
}

func newUnrevertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unrevert <session-id>",
		Short: "Restore a session's full history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, _, err := buildController(cmd, core.SessionID(args[0]))
			if err != nil {
				return err
			}

			if err := controller.Unrevert(cmd.Context(), core.SessionID(args[0])); err != nil {
				return err
			}

			fmt.Printf("%s session %s\n", styleSuccess.Render("Restored"), args[0])
			return nil
		},
	}
}

func newRedoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "redo <session-id>",
		Short: "Advance a reverted session forward one message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := core.SessionID(args[0])
			controller, st, err := buildController(cmd, sessionID)
			if err != nil {
				return err
			}

			if err := controller.Redo(cmd.Context(), sessionID); err != nil {
				return err
			}

			session, _ := st.Session(sessionID)
			if session.Revert == nil {
				fmt.Printf("%s session %s\n", styleSuccess.Render("Fully restored"), sessionID)
				return nil
			}

			fmt.Printf("%s session %s to before %s\n", styleSuccess.Render("Advanced"), sessionID, session.Revert.MessageID)
			return nil
		},
	}
}

// buildController bootstraps a store for the target directory, loads the
// session's history, and wraps both in a revert controller.
func buildController(cmd *cobra.Command, sessionID core.SessionID) (*revert.Controller, *store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	directory, err := resolveDirectory(cmd)
	if err != nil {
		return nil, nil, err
	}

	registry, client := newRegistry(cfg)
	st := registry.Child(directory, false)

	if err := st.Bootstrap(cmd.Context()); err != nil {
		return nil, nil, err
	}
	if err := st.LoadMessages(cmd.Context(), sessionID, 0); err != nil {
		return nil, nil, err
	}

	return revert.New(st, client, printNotifier{}), st, nil
}
