package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

// ErrTransport marks a request/response call that did not complete. Callers
// may retry; the client never retries on its own.
var ErrTransport = errors.New("backend call failed")

// Client is the request/response surface of the backend. Everything that
// mutates authoritative state goes through here, never through the push
// channel.
type Client interface {
	Login(ctx context.Context, username, password string) (models.User, error)
	ListDirectory(ctx context.Context) ([]models.User, error)
	ListMutualConsents(ctx context.Context) ([]models.User, error)
	ListRequests(ctx context.Context) ([]models.ChatRequest, error)
	CreateRequest(ctx context.Context, receiverID int) (models.ChatRequest, error)
	ResolveRequest(ctx context.Context, requestID int, outcome models.RequestStatus) (models.ChatRequest, error)
	ListMessages(ctx context.Context, counterpartID int) ([]models.Message, error)
	SendMessage(ctx context.Context, receiverID int, content string) (models.Message, error)
	UnreadCounts(ctx context.Context) (map[int]int, error)
}

// HTTPClient talks JSON over HTTP with a cookie-backed session.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// NewHTTPClient builds a client rooted at baseURL (".../api"). The returned
// cookie jar is shared with the realtime dialer so both carry the same
// session.
func NewHTTPClient(baseURL string, log *zap.Logger) (*HTTPClient, http.CookieJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "cookie jar")
	}
	client := &HTTPClient{
		baseURL: baseURL,
		http: &http.Client{
			Jar:     jar,
			Timeout: 15 * time.Second,
		},
		log: log,
	}
	return client, jar, nil
}

// Login authenticates and establishes the session cookie.
func (c *HTTPClient) Login(ctx context.Context, username, password string) (models.User, error) {
	body := map[string]string{"username": username, "password": password}
	var resp struct {
		User models.User `json:"user"`
	}
	if err := c.do(ctx, "login", http.MethodPost, "/login/", nil, body, &resp); err != nil {
		return models.User{}, err
	}
	return resp.User, nil
}

// ListDirectory returns every user except the caller.
func (c *HTTPClient) ListDirectory(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := c.do(ctx, "list_directory", http.MethodGet, "/profiles/", nil, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// ListMutualConsents returns the counterparts the caller may message.
func (c *HTTPClient) ListMutualConsents(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := c.do(ctx, "list_mutual", http.MethodGet, "/profiles/mutual_likes/", nil, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// ListRequests returns every chat request involving the caller.
func (c *HTTPClient) ListRequests(ctx context.Context) ([]models.ChatRequest, error) {
	var requests []models.ChatRequest
	if err := c.do(ctx, "list_requests", http.MethodGet, "/requests/", nil, nil, &requests); err != nil {
		return nil, err
	}
	return requests, nil
}

// CreateRequest sends a chat request to a counterpart.
func (c *HTTPClient) CreateRequest(ctx context.Context, receiverID int) (models.ChatRequest, error) {
	var req models.ChatRequest
	path := fmt.Sprintf("/profiles/%d/send_request/", receiverID)
	if err := c.do(ctx, "create_request", http.MethodPost, path, nil, struct{}{}, &req); err != nil {
		return models.ChatRequest{}, err
	}
	return req, nil
}

// ResolveRequest accepts or rejects a pending request addressed to the caller.
func (c *HTTPClient) ResolveRequest(ctx context.Context, requestID int, outcome models.RequestStatus) (models.ChatRequest, error) {
	var req models.ChatRequest
	path := fmt.Sprintf("/requests/%d/respond/", requestID)
	body := map[string]string{"response": string(outcome)}
	if err := c.do(ctx, "resolve_request", http.MethodPost, path, nil, body, &req); err != nil {
		return models.ChatRequest{}, err
	}
	return req, nil
}

// ListMessages returns the conversation with a counterpart.
func (c *HTTPClient) ListMessages(ctx context.Context, counterpartID int) ([]models.Message, error) {
	var msgs []models.Message
	query := url.Values{"user_id": {strconv.Itoa(counterpartID)}}
	if err := c.do(ctx, "list_messages", http.MethodGet, "/messages/", query, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SendMessage delivers a message and returns the authoritative record.
func (c *HTTPClient) SendMessage(ctx context.Context, receiverID int, content string) (models.Message, error) {
	var msg models.Message
	body := map[string]any{"receiver_id": receiverID, "content": content}
	if err := c.do(ctx, "send_message", http.MethodPost, "/messages/", nil, body, &msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// UnreadCounts returns unread totals keyed by counterpart id. The backend
// keys the JSON object with stringified ids.
func (c *HTTPClient) UnreadCounts(ctx context.Context) (map[int]int, error) {
	var raw map[string]int
	if err := c.do(ctx, "unread_counts", http.MethodGet, "/messages/unread_count/", nil, nil, &raw); err != nil {
		return nil, err
	}
	counts := make(map[int]int, len(raw))
	for key, n := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			c.log.Warn("skipping non-numeric unread key", zap.String("key", key))
			continue
		}
		counts[id] = n
	}
	return counts, nil
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	ctx, span := otel.Tracer("chat-client/api").Start(ctx, "api."+op)
	defer span.End()

	start := time.Now()
	err := c.roundTrip(ctx, method, path, query, body, out)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.ObserveAPIRequest(op, outcome, time.Since(start))
	return err
}

func (c *HTTPClient) roundTrip(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request body")
		}
		reader = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(ErrTransport, "%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(data, &apiErr)
		if apiErr.Error != "" {
			return errors.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return errors.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(ErrTransport, "%s %s: decode response: %v", method, path, err)
	}
	return nil
}

var _ Client = (*HTTPClient)(nil)
