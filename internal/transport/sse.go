package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/turnwire/turnwire/internal/logging"
	"github.com/turnwire/turnwire/pkg/types"
)

// feedConnectTimeout bounds how long a dispatch waits for the event feed
// to come up before failing.
const feedConnectTimeout = 10 * time.Second

// SSETransport relays turns through a remote coordinator. Dispatches go out
// as plain POSTs; the remote's event feed streams back over SSE and every
// received envelope is republished locally under its original correlation
// ids. A dropped feed reconnects with capped exponential backoff and jitter
// until the transport closes.
type SSETransport struct {
	pub    Publisher
	base   string
	client *http.Client

	startOnce   sync.Once
	connectOnce sync.Once
	connected   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	closed chan struct{}
	wg     sync.WaitGroup

	log zerolog.Logger
}

// NewSSETransport creates a transport relaying through the coordinator at
// remote, e.g. "http://coordinator.internal:4747".
func NewSSETransport(pub Publisher, remote string) *SSETransport {
	ctx, cancel := context.WithCancel(context.Background())
	return &SSETransport{
		pub:  pub,
		base: strings.TrimRight(remote, "/"),
		client: &http.Client{
			Timeout: 0, // No timeout: the feed connection stays open
		},
		connected: make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		closed:    make(chan struct{}),
		log:       logging.Component("transport"),
	}
}

// Dispatch sends the turn to the remote coordinator and returns its request
// id. The feed is brought up before the first send so no early events are
// missed.
func (t *SSETransport) Dispatch(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	select {
	case <-t.closed:
		return "", fmt.Errorf("sse transport closed")
	default:
	}

	if err := t.ensureFeed(ctx); err != nil {
		return "", err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		var created struct {
			ID string `json:"id"`
		}
		if err := t.postJSON(ctx, t.base+"/api/sessions", nil, &created); err != nil {
			return "", fmt.Errorf("creating remote session: %w", err)
		}
		sessionID = created.ID
	}

	var sent struct {
		RequestID string `json:"requestId"`
	}
	body := map[string]string{"prompt": req.Prompt}
	if err := t.postJSON(ctx, t.base+"/api/sessions/"+sessionID+"/send", body, &sent); err != nil {
		return "", err
	}
	if sent.RequestID == "" {
		return "", fmt.Errorf("remote send returned no request id")
	}

	return sent.RequestID, nil
}

// Close drops the feed and waits for the consumer goroutine.
func (t *SSETransport) Close() error {
	select {
	case <-t.closed:
		return nil
	default:
		close(t.closed)
	}
	t.cancel()
	t.wg.Wait()
	return nil
}

// ensureFeed starts the feed consumer once and waits for its first
// successful connection.
func (t *SSETransport) ensureFeed(ctx context.Context) error {
	t.startOnce.Do(func() {
		t.wg.Add(1)
		go t.consume()
	})

	select {
	case <-t.connected:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event feed not connected: %w", ctx.Err())
	case <-t.ctx.Done():
		return fmt.Errorf("sse transport closed")
	case <-time.After(feedConnectTimeout):
		return fmt.Errorf("event feed not connected after %v", feedConnectTimeout)
	}
}

// consume keeps the feed alive, reconnecting until the transport closes.
func (t *SSETransport) consume() {
	defer t.wg.Done()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // Reconnect for as long as the transport lives
	b.RandomizationFactor = 0.5
	bo := backoff.WithContext(b, t.ctx)

	for {
		wasConnected, err := t.readFeed()
		if t.ctx.Err() != nil {
			return
		}
		if err != nil {
			t.log.Warn().Err(err).Str("remote", t.base).Msg("Event feed dropped, reconnecting")
		}
		if wasConnected {
			bo.Reset()
		}

		next := bo.NextBackOff()
		if next == backoff.Stop {
			return
		}
		select {
		case <-time.After(next):
		case <-t.ctx.Done():
			return
		}
	}
}

// readFeed holds one feed connection, republishing every envelope it
// carries. Returns whether the connection was established at all.
func (t *SSETransport) readFeed() (bool, error) {
	req, err := http.NewRequestWithContext(t.ctx, http.MethodGet, t.base+"/api/events", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	t.connectOnce.Do(func() { close(t.connected) })
	t.log.Info().Str("remote", t.base).Msg("Event feed connected")

	reader := bufio.NewReader(resp.Body)
	var data strings.Builder

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return true, err
		}

		line = strings.TrimRight(line, "\r\n")

		// Empty line = event complete
		if line == "" {
			if data.Len() > 0 {
				t.republish(data.String())
			}
			data.Reset()
			continue
		}

		// Comment (heartbeat)
		if strings.HasPrefix(line, ":") {
			continue
		}

		if strings.HasPrefix(line, "data:") {
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}

// republish decodes a feed entry and publishes it locally. Entries that do
// not decode as envelopes are dropped, not fatal.
func (t *SSETransport) republish(payload string) {
	var env types.Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		t.log.Warn().Err(err).Msg("Dropping undecodable feed entry")
		return
	}
	t.pub.Publish(env)
}

// postJSON posts a JSON body and decodes a JSON response.
func (t *SSETransport) postJSON(ctx context.Context, url string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request failed with status code: %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
