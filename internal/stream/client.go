// Package stream subscribes to the server's per-directory event feed and
// yields typed envelopes in arrival order. It performs no merging and
// synthesizes no events across reconnect gaps; consumers treat the feed as
// a hint to re-sync, never as the sole source of truth.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/strandkit/strand/internal/core"
)

// Event is one delivery on the subscription channel. Either Envelope is
// populated, or Disconnected is set with the underlying error; after a
// disconnect the client either reconnects (per policy) or closes the
// channel.
type Event struct {
	Envelope     core.Envelope
	Disconnected bool
	Err          error
}

// ReconnectPolicy decides whether and when to reconnect after a dropped
// feed. attempt counts drops since Subscribe.
type ReconnectPolicy func(attempt int, err error) (time.Duration, bool)

// FixedDelay reconnects forever with a constant delay.
func FixedDelay(delay time.Duration) ReconnectPolicy {
	return func(int, error) (time.Duration, bool) {
		return delay, true
	}
}

// NoReconnect gives up after the first drop.
func NoReconnect() ReconnectPolicy {
	return func(int, error) (time.Duration, bool) {
		return 0, false
	}
}

// Client subscribes to one server's event feed. The subscriber ID
// identifies this client instance across reconnects.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Policy     ReconnectPolicy

	subscriber string
}

// New creates a stream client. The HTTP client deliberately carries no
// timeout: the feed connection is long-lived and idles between events.
func New(baseURL string, policy ReconnectPolicy) *Client {
	if policy == nil {
		policy = NoReconnect()
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		Policy:     policy,
		subscriber: uuid.NewString(),
	}
}

// Subscribe opens the feed for a directory and delivers events on the
// returned channel until ctx is canceled or the policy stops reconnecting.
// The channel is closed on exit.
func (c *Client) Subscribe(ctx context.Context, directory string) <-chan Event {
	events := make(chan Event)

	go c.run(ctx, directory, events)

	return events
}

func (c *Client) run(ctx context.Context, directory string, events chan<- Event) {
	defer close(events)

	attempt := 0
	for {
		err := c.consume(ctx, directory, events)
		if ctx.Err() != nil {
			return
		}

		attempt++
		select {
		case events <- Event{Disconnected: true, Err: err}:
		case <-ctx.Done():
			return
		}

		delay, retry := c.Policy(attempt, err)
		if !retry {
			slog.Info("event feed closed", "directory", directory, "attempts", attempt)
			return
		}

		slog.Debug("event feed reconnecting", "directory", directory, "attempt", attempt, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// consume holds one feed connection open, forwarding decoded envelopes.
// Returns when the connection drops; a nil error means a clean server-side
// close.
func (c *Client) consume(ctx context.Context, directory string, events chan<- Event) error {
	query := url.Values{
		"directory":  {directory},
		"subscriber": {c.subscriber},
	}
	endpoint := c.BaseURL + "/event?" + query.Encode()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("stream: create request: %w", err)
	}
	request.Header.Set("Accept", "text/event-stream")

	response, err := c.HTTPClient.Do(request)
	if err != nil {
		return fmt.Errorf("stream: connect: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("stream: connect: HTTP %d", response.StatusCode)
	}

	scanner := newSSEScanner(response.Body)
	for scanner.Next() {
		var envelope core.Envelope
		if err := json.Unmarshal([]byte(scanner.Event().Data), &envelope); err != nil {
			slog.Warn("dropping malformed feed event", "directory", directory, "error", err)
			continue
		}

		select {
		case events <- Event{Envelope: envelope}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream: read: %w", err)
	}
	return nil
}
