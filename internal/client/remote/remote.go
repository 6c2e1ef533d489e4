// Package remote talks to the session authority over HTTP and its
// WebSocket push channel.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/gokatarajesh/live-quiz/internal/client"
	"github.com/gokatarajesh/live-quiz/internal/quiz/scoring"
	"github.com/gokatarajesh/live-quiz/pkg/http/api"
	httperrors "github.com/gokatarajesh/live-quiz/pkg/http/errors"
	ws "github.com/gokatarajesh/live-quiz/pkg/http/ws"
)

const defaultRedial = 2 * time.Second

// Client implements client.Authority against a running quiz server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
	redial     time.Duration
	logger     zerolog.Logger
	events     chan client.Event

	// joinID is proposed on every connect so retries map to one client.
	joinID string

	mu       sync.Mutex
	clientID string
	joined   chan struct{}
	joinOnce sync.Once
}

var _ client.Authority = (*Client)(nil)

// New builds a Client for baseURL (e.g. http://localhost:8080).
func New(baseURL string, httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		dialer:     websocket.DefaultDialer,
		redial:     defaultRedial,
		logger:     logger.With().Str("component", "remote_authority").Logger(),
		events:     make(chan client.Event, 32),
		joinID:     uuid.New().String(),
		joined:     make(chan struct{}),
	}
}

// WithRedial overrides the pause between push channel reconnects.
func (c *Client) WithRedial(d time.Duration) *Client {
	if d > 0 {
		c.redial = d
	}
	return c
}

func (c *Client) Connect(ctx context.Context) (client.JoinInfo, error) {
	var resp api.ConnectResponse
	if err := c.do(ctx, http.MethodPost, "/api/client/connect", api.ConnectRequest{ClientID: c.joinID}, &resp); err != nil {
		return client.JoinInfo{}, fmt.Errorf("connect: %w", err)
	}

	c.mu.Lock()
	c.clientID = resp.ClientID
	c.mu.Unlock()
	c.joinOnce.Do(func() { close(c.joined) })

	return client.JoinInfo{
		ClientID:      resp.ClientID,
		ClientName:    resp.ClientName,
		Bank:          resp.QuizData,
		SessionActive: resp.QuizInProgress,
		CurrentIndex:  resp.CurrentQuestion,
		TotalClients:  resp.TotalClients,
	}, nil
}

func (c *Client) PollStatus(ctx context.Context) (client.Status, error) {
	var resp api.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return client.Status{}, fmt.Errorf("poll status: %w", err)
	}
	return client.Status{
		SessionActive: resp.QuizInProgress,
		CurrentIndex:  resp.CurrentQuestion,
		Ended:         resp.QuizEnded,
	}, nil
}

func (c *Client) SubmitResult(ctx context.Context, clientID string, res scoring.Result) error {
	req := api.SubmitRequest{
		ClientID:  clientID,
		Answers:   res.Answers,
		TimeTaken: res.TimeTakenSeconds,
	}
	var resp api.SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/client/submit", req, &resp); err != nil {
		return fmt.Errorf("submit result: %w", err)
	}
	if resp.Score != res.Score {
		c.logger.Warn().Int("local_score", res.Score).Int("server_score", resp.Score).Msg("score mismatch with authority")
	}
	return nil
}

func (c *Client) Events() <-chan client.Event {
	return c.events
}

// Listen streams push notifications into Events until ctx ends. It waits for
// the first successful Connect and redials after every drop.
func (c *Client) Listen(ctx context.Context) error {
	select {
	case <-c.joined:
	case <-ctx.Done():
		return ctx.Err()
	}

	return retry.Do(ctx, retry.NewConstant(c.redial), func(ctx context.Context) error {
		err := c.listenOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn().Err(err).Msg("push channel dropped, redialing")
		return retry.RetryableError(err)
	})
}

func (c *Client) listenOnce(ctx context.Context) error {
	target, err := c.wsURL()
	if err != nil {
		return err
	}
	conn, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial push channel: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c.logger.Debug().Str("url", target).Msg("push channel open")
	for {
		var msg ws.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		ev, ok, err := decodeEvent(msg)
		if err != nil {
			c.logger.Warn().Err(err).Str("type", msg.Type).Msg("bad push payload")
			continue
		}
		if !ok {
			continue
		}
		select {
		case c.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func decodeEvent(msg ws.Message) (client.Event, bool, error) {
	switch msg.Type {
	case ws.TypeSessionStarted:
		var p ws.SessionStartedPayload
		if err := msg.Decode(&p); err != nil {
			return client.Event{}, false, err
		}
		return client.Event{Kind: client.EventSessionStarted, Bank: p.Quiz, Index: p.CurrentQuestion}, true, nil
	case ws.TypeQuestionChanged:
		var p ws.QuestionChangedPayload
		if err := msg.Decode(&p); err != nil {
			return client.Event{}, false, err
		}
		return client.Event{Kind: client.EventQuestionIndexChanged, Index: p.CurrentQuestion}, true, nil
	case ws.TypeSessionReset:
		return client.Event{Kind: client.EventSessionReset}, true, nil
	case ws.TypeSessionEnded:
		return client.Event{Kind: client.EventSessionEnded}, true, nil
	default:
		return client.Event{}, false, nil
	}
}

func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"

	c.mu.Lock()
	q := url.Values{}
	q.Set("clientId", c.clientID)
	c.mu.Unlock()
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// permanent reports whether a status means retrying the same request is pointless.
func permanent(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return status >= 400 && status < 500
}

// do performs a JSON round trip. Permanent failures wrap client.ErrRejected.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := httperrors.Decode(raw, http.StatusText(resp.StatusCode))
		if permanent(resp.StatusCode) {
			return fmt.Errorf("%w: %d %s", client.ErrRejected, resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("authority returned %d: %s", resp.StatusCode, apiErr.Message)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
