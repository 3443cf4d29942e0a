package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 4 << 20

// Paths of the backend endpoints, relative to BaseURL.
type Paths struct {
	Chats         string
	Users         string
	Messages      string
	GroupMessages string
	Send          string
	SendGroup     string
	CreateGroup   string
}

func DefaultPaths() Paths {
	return Paths{
		Chats:         "/api/get_chats",
		Users:         "/api/get_users",
		Messages:      "/api/get_messages",
		GroupMessages: "/api/get_group_messages",
		Send:          "/api/send_message",
		SendGroup:     "/api/send_group_message",
		CreateGroup:   "/api/create_group",
	}
}

type Options struct {
	BaseURL string
	Paths   Paths
	Timeout time.Duration
	// Retries is how many extra attempts a GET gets after a transport error.
	Retries int
	Backoff time.Duration
	HTTP    *http.Client
	Logger  logrus.FieldLogger
}

// Client talks to the chat backend on behalf of one viewer.
type Client struct {
	base    *url.URL
	paths   Paths
	http    *http.Client
	retries int
	backoff time.Duration
	token   string
	log     logrus.FieldLogger
}

func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("base url %q must be absolute", opts.BaseURL)
	}

	paths := opts.Paths
	if paths == (Paths{}) {
		paths = DefaultPaths()
	}
	hc := opts.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{
		base:    base,
		paths:   paths,
		http:    hc,
		retries: opts.Retries,
		backoff: backoff,
		log:     logger,
	}, nil
}

// WithToken returns a copy that authenticates as the holder of token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) ListChats(ctx context.Context) ([]Chat, error) {
	env, err := c.get(ctx, "list chats", c.paths.Chats, nil)
	if err != nil {
		return nil, err
	}
	return env.Chats, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	env, err := c.get(ctx, "list users", c.paths.Users, nil)
	if err != nil {
		return nil, err
	}
	return env.Users, nil
}

// DirectMessages returns the messages exchanged with userID whose id is above lastID.
func (c *Client) DirectMessages(ctx context.Context, userID string, lastID int64) ([]Message, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("last_message_id", formatID(lastID))
	env, err := c.get(ctx, "direct messages", c.paths.Messages, q)
	if err != nil {
		return nil, err
	}
	return env.Messages, nil
}

// GroupMessages returns the messages of groupID whose id is above lastID.
func (c *Client) GroupMessages(ctx context.Context, groupID, lastID int64) ([]Message, error) {
	q := url.Values{}
	q.Set("group_id", formatID(groupID))
	q.Set("last_message_id", formatID(lastID))
	env, err := c.get(ctx, "group messages", c.paths.GroupMessages, q)
	if err != nil {
		return nil, err
	}
	return env.Messages, nil
}

func (c *Client) SendDirect(ctx context.Context, req SendDirectRequest) (Message, error) {
	return c.sendMessage(ctx, "send direct message", c.paths.Send, req)
}

func (c *Client) SendGroup(ctx context.Context, req SendGroupRequest) (Message, error) {
	return c.sendMessage(ctx, "send group message", c.paths.SendGroup, req)
}

// CreateGroup returns the created group when the backend echoes it, nil otherwise.
func (c *Client) CreateGroup(ctx context.Context, req CreateGroupRequest) (*Chat, error) {
	env, err := c.post(ctx, "create group", c.paths.CreateGroup, req)
	if err != nil {
		return nil, err
	}
	return env.Group, nil
}

func (c *Client) sendMessage(ctx context.Context, op, path string, body interface{}) (Message, error) {
	env, err := c.post(ctx, op, path, body)
	if err != nil {
		return Message{}, err
	}
	if env.Message == nil {
		return Message{}, &TransportError{Op: op, Err: errors.New("response has no message")}
	}
	return *env.Message, nil
}

func (c *Client) get(ctx context.Context, op, path string, q url.Values) (*envelope, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			wait := c.backoff << (attempt - 1)
			c.log.WithFields(logrus.Fields{"op": op, "attempt": attempt, "wait": wait}).
				WithError(lastErr).Warn("retrying backend read")
			select {
			case <-ctx.Done():
				return nil, &TransportError{Op: op, Err: ctx.Err()}
			case <-time.After(wait):
			}
		}

		env, err := c.do(ctx, op, http.MethodGet, c.endpoint(path, q), nil)
		if err == nil {
			return env, nil
		}
		if !IsTransport(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) post(ctx context.Context, op, path string, body interface{}) (*envelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: encode request", op)
	}
	return c.do(ctx, op, http.MethodPost, c.endpoint(path, nil), payload)
}

func (c *Client) do(ctx context.Context, op, method, target string, payload []byte) (*envelope, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &TransportError{Op: op, Status: resp.StatusCode, Err: errors.Wrap(err, "decode response")}
	}
	if env.Error != "" {
		return nil, &APIError{Op: op, Status: resp.StatusCode, Message: env.Error}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &TransportError{Op: op, Status: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}
	return &env, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
