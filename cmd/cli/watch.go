package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/strandkit/strand/internal/core"
	"github.com/strandkit/strand/internal/prefetch"
	"github.com/strandkit/strand/internal/stream"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the live event feed for a directory",
		Args:  cobra.NoArgs,
		RunE:  runWatchCmd,
	}
}

func runWatchCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	directory, err := resolveDirectory(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, client := newRegistry(cfg)
	registry.Child(directory, true)
	registry.SetActive(directory)

	scheduler := prefetch.New(registry, client, registry, prefetch.Options{
		PageSize:    cfg.Prefetch.PageSize,
		WarmSize:    cfg.Prefetch.WarmSize,
		Concurrency: cfg.Prefetch.Concurrency,
	})

	delay := time.Duration(cfg.Stream.ReconnectSeconds) * time.Second
	feed := stream.New(cfg.Endpoint, stream.FixedDelay(delay))

	fmt.Println(styleDim.Render("watching " + directory + " (ctrl-c to stop)"))

	for event := range feed.Subscribe(ctx, directory) {
		if event.Disconnected {
			registry.BumpGeneration()
			reason := "server closed the feed"
			if event.Err != nil {
				reason = event.Err.Error()
			}
			fmt.Println(styleWarning.Render("disconnected: " + reason))
			continue
		}

		printEvent(event.Envelope)
		registry.Route(event.Envelope)

		switch event.Envelope.Payload.Type {
		case core.EventServerConnected:
			// Events may have been missed while away; re-list everything.
			if err := registry.Child(directory, false).Refresh(ctx); err != nil {
				fmt.Println(styleWarning.Render("resync failed: " + err.Error()))
			}
		case core.EventMessageUpdated, core.EventPartUpdated:
			// Keep recently touched sessions warm so a later show is instant.
			if sessionID := sessionIDOf(event.Envelope.Payload); sessionID != "" {
				scheduler.Prefetch(ctx, directory, sessionID, prefetch.Normal)
			}
		}
	}

	return nil
}

func sessionIDOf(payload core.Payload) core.SessionID {
	switch payload.Type {
	case core.EventMessageUpdated:
		var props core.MessageUpdated
		if payload.Decode(&props) == nil {
			return props.Info.SessionID
		}
	case core.EventPartUpdated:
		var props core.PartUpdated
		if payload.Decode(&props) == nil {
			return props.Part.SessionID
		}
	}
	return ""
}

func printEvent(envelope core.Envelope) {
	if line, ok := eventLine(envelope); ok {
		fmt.Println(line)
	}
}

// eventLine formats one feed event for display; heartbeats are suppressed.
func eventLine(envelope core.Envelope) (string, bool) {
	line := styleEventType.Render(envelope.Payload.Type)

	switch envelope.Payload.Type {
	case core.EventServerHeartbeat:
		return "", false
	case core.EventSessionStatus:
		var props core.SessionStatusChanged
		if envelope.Payload.Decode(&props) == nil {
			line += " " + string(props.SessionID) + " " + statusStyle(string(props.Status)).Render(string(props.Status))
		}
	case core.EventSessionUpdated:
		var props core.SessionUpdated
		if envelope.Payload.Decode(&props) == nil {
			line += " " + string(props.Info.ID) + " " + styleDim.Render(props.Info.Title)
		}
	case core.EventSessionDeleted:
		var props core.SessionDeleted
		if envelope.Payload.Decode(&props) == nil {
			line += " " + string(props.Info.ID)
		}
	case core.EventMessageUpdated:
		var props core.MessageUpdated
		if envelope.Payload.Decode(&props) == nil {
			line += " " + string(props.Info.SessionID) + "/" + string(props.Info.ID)
		}
	case core.EventPermissionAsked:
		var props core.PermissionAsked
		if envelope.Payload.Decode(&props) == nil {
			line += " " + styleWarning.Render(props.Permission.Title)
		}
	}

	return line, true
}
