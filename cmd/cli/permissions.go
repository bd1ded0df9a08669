package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/strandkit/strand/internal/api"
	"github.com/strandkit/strand/internal/core"
)

func newPermissionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Pending permission requests",
	}

	cmd.AddCommand(newPermissionsListCmd())
	cmd.AddCommand(newPermissionsRespondCmd())

	return cmd
}

func newPermissionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending permission requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			client := api.New(cfg.Endpoint)
			pending, err := client.Permissions(cmd.Context())
			if err != nil {
				return err
			}

			if len(pending) == 0 {
				fmt.Println(styleDim.Render("No pending permissions."))
				return nil
			}

			t := table.New().
				Headers("ID", "SESSION", "TYPE", "TITLE").
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

			for _, permission := range pending {
				t.Row(string(permission.ID), string(permission.SessionID),
					permission.Type, styleWarning.Render(permission.Title))
			}

			fmt.Println(t.Render())
			return nil
		},
	}
}

func newPermissionsRespondCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "respond <session-id> <permission-id> <once|always|reject>",
		Short:     "Answer a permission request",
		Args:      cobra.ExactArgs(3),
		ValidArgs: []string{"once", "always", "reject"},
		RunE: func(cmd *cobra.Command, args []string) error {
			response := core.PermissionResponse(args[2])
			switch response {
			case core.PermissionOnce, core.PermissionAlways, core.PermissionReject:
			default:
				return fmt.Errorf("response must be once, always, or reject, got %q", args[2])
			}

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

			err = registry.RespondPermission(cmd.Context(), directory,
				core.SessionID(args[0]), core.PermissionID(args[1]), response)
			if err != nil {
				return err
			}

			fmt.Printf("%s %s with %s\n", styleSuccess.Render("Answered"), args[1], response)
			return nil
		},
	}
}
