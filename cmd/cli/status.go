package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/strandkit/strand/internal/api"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server connectivity and sync state",
		Args:  cobra.NoArgs,
		RunE:  runStatusCmd,
	}
}

func runStatusCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	directory, err := resolveDirectory(cmd)
	if err != nil {
		return err
	}

	fmt.Println(styleHeading.Render("strand"))
	fmt.Println(kvLine("endpoint", cfg.Endpoint))
	fmt.Println(kvLine("directory", directory))
	fmt.Println(kvLine("data_dir", cfg.DataDir))

	client := api.New(cfg.Endpoint)
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	start := time.Now()
	list, err := client.List(ctx, directory, api.ListFilters{Limit: 1})
	if err != nil {
		fmt.Println(kvLine("server", styleError.Render("unreachable")))
		fmt.Println(styledError(err.Error(), "is the server running at "+cfg.Endpoint+"?"))
		return nil
	}

	fmt.Println(kvLine("server", styleSuccess.Render("reachable")))
	fmt.Println(kvLine("latency", time.Since(start).Round(time.Millisecond).String()))
	fmt.Println(kvLine("sessions", fmt.Sprintf("%d", list.Total)))

	pending, err := client.Permissions(ctx)
	if err == nil && len(pending) > 0 {
		fmt.Println(kvLine("permissions", styleWarning.Render(fmt.Sprintf("%d pending", len(pending)))))
	}

	return nil
}
