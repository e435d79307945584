package testutil

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/turnwire/turnwire/pkg/types"
)

// SSEClient consumes a coordinator event feed, decoding each data frame as
// one envelope.
type SSEClient struct {
	Envelopes <-chan types.Envelope

	envelopes chan types.Envelope
	cancel    context.CancelFunc
	body      io.ReadCloser
	done      chan struct{}
}

// OpenFeed connects to the feed at path (e.g. "/api/events") and starts
// decoding frames in the background.
func OpenFeed(ctx context.Context, baseURL, path string) (*SSEClient, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("feed status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("unexpected content type %q", ct)
	}

	c := &SSEClient{
		envelopes: make(chan types.Envelope, 100),
		cancel:    cancel,
		body:      resp.Body,
		done:      make(chan struct{}),
	}
	c.Envelopes = c.envelopes

	go c.consume()
	return c, nil
}

// consume reads data frames until the connection drops.
func (c *SSEClient) consume() {
	defer close(c.done)
	defer close(c.envelopes)

	scanner := bufio.NewScanner(c.body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var env types.Envelope
		if err := env.UnmarshalJSON([]byte(strings.TrimPrefix(line, "data: "))); err != nil {
			continue
		}
		select {
		case c.envelopes <- env:
		default:
			// The test is not reading; dropping beats deadlocking.
		}
	}
}

// Close drops the connection and waits for the reader to finish.
func (c *SSEClient) Close() {
	c.cancel()
	c.body.Close()
	<-c.done
}
