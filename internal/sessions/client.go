package sessions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/2beens/repcounter/internal/telemetry/tracing"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const DefaultClientMaxRetries = 3

// Client talks to the sessions REST API of a running service.
// Reads retry network errors and 5xx responses with exponential backoff.
// Create has no idempotency key, so it is only retried while the server
// could not have seen the request, i.e. when the connection was never made.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries uint64
	userAgent  string
}

func NewClient(baseURL string, httpClient *http.Client, maxRetries uint64) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		maxRetries: maxRetries,
		userAgent:  "repcounter/1",
	}
}

func (c *Client) Create(ctx context.Context, newSession NewSession) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "client.sessions.create")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	body, err := json.Marshal(newSession)
	if err != nil {
		return nil, fmt.Errorf("marshal new session: %w", err)
	}

	var session Session
	if err := c.do(ctx, http.MethodPost, "/api/sessions", body, http.StatusCreated, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) Get(ctx context.Context, id string) (*Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+id, nil, http.StatusOK, &session); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (c *Client) List(ctx context.Context) ([]Session, error) {
	var sessions []Session
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, http.StatusOK, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListByDay asks the service for the sessions of day's calendar date, in the service's time zone.
func (c *Client) ListByDay(ctx context.Context, day time.Time) ([]Session, error) {
	var sessions []Session
	path := "/api/sessions/day/" + day.Format(time.DateOnly)
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// StatusError is returned for unexpected response codes.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, expectedStatus int, out any) error {
	idempotent := method == http.MethodGet
	attempt := 0
	operation := func() error {
		attempt++

		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			log.Debugf("sessions client [%s %s] attempt %d: %s", method, path, attempt, err)
			if !idempotent && !isDialError(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()

		if resp.StatusCode != expectedStatus {
			statusErr := &StatusError{
				StatusCode: resp.StatusCode,
				Message:    readErrorMessage(resp.Body),
			}
			if idempotent && resp.StatusCode >= http.StatusInternalServerError {
				log.Debugf("sessions client [%s %s] attempt %d: %s", method, path, attempt, statusErr)
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries),
		ctx,
	)
	if err := backoff.Retry(operation, b); err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return permanent.Err
		}
		return err
	}
	return nil
}

// isDialError reports whether err happened before the request could be written.
func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	var msg struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &msg); err == nil && msg.Message != "" {
		return msg.Message
	}
	return strings.TrimSpace(string(raw))
}
