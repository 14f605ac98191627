package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/WailSalutem-Health-Care/user-directory/internal/users"
)

// TokenHeader carries the session token on a successful login
const TokenHeader = "Jwt-Token"

// DefaultTimeout applies when Options.Timeout is zero
const DefaultTimeout = 30 * time.Second

var tracer = otel.Tracer("github.com/WailSalutem-Health-Care/user-directory/directory")

// TokenSource supplies the bearer token for each request
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// MetricsRecorder receives per-request measurements
type MetricsRecorder interface {
	RecordDirectoryOperation(ctx context.Context, operation string, statusCode int, durationMs float64)
	RecordUploadBytes(ctx context.Context, n int64)
}

// Options configures a Client
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Tokens     TokenSource
	HTTPClient *http.Client
	Metrics    MetricsRecorder
}

// Client talks to the remote user directory over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	metrics    MetricsRecorder
}

// UploadResult is the completion of a profile image upload
type UploadResult struct {
	StatusCode int
	User       *users.User
}

// Credentials for POST /user/login
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// NewClient creates a new directory client
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid directory base URL: %w", err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		httpClient: httpClient,
		tokens:     opts.Tokens,
		metrics:    opts.Metrics,
	}, nil
}

// Login exchanges credentials for the user record and a session token
func (c *Client) Login(ctx context.Context, creds Credentials) (*users.User, string, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal credentials: %w", err)
	}
	var u users.User
	resp, err := c.do(ctx, "login", http.MethodPost, "/user/login", "application/json", bytes.NewReader(body), &u, false)
	if err != nil {
		return nil, "", err
	}
	token := resp.Header.Get(TokenHeader)
	if token == "" {
		return nil, "", ErrMissingToken
	}
	log.Printf("✓ Logged in as %s", u.Username)
	return &u, token, nil
}

// ListUsers fetches the full user list
func (c *Client) ListUsers(ctx context.Context) ([]users.User, error) {
	var list []users.User
	if _, err := c.do(ctx, "list", http.MethodGet, "/user/list", "", nil, &list, true); err != nil {
		return nil, err
	}
	if list == nil {
		list = []users.User{}
	}
	return list, nil
}

// CreateUser submits a new user
func (c *Client) CreateUser(ctx context.Context, sub users.Submission) (*users.User, error) {
	return c.submit(ctx, "create", "/user/add", sub)
}

// UpdateUser submits changes for the user named by sub.CurrentUsername
func (c *Client) UpdateUser(ctx context.Context, sub users.Submission) (*users.User, error) {
	return c.submit(ctx, "update", "/user/update", sub)
}

func (c *Client) submit(ctx context.Context, op, path string, sub users.Submission) (*users.User, error) {
	body, contentType, err := encodeSubmission(sub)
	if err != nil {
		return nil, err
	}
	var u users.User
	if _, err := c.do(ctx, op, http.MethodPost, path, contentType, bytes.NewReader(body), &u, true); err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteUser removes a user by id and returns the server's reply
func (c *Client) DeleteUser(ctx context.Context, id string) (*users.HTTPResponse, error) {
	var reply users.HTTPResponse
	if _, err := c.do(ctx, "delete", http.MethodDelete, "/user/delete/"+url.PathEscape(id), "", nil, &reply, true); err != nil {
		return nil, err
	}
	return &reply, nil
}

// ResetPassword asks the directory to send a new password to email
func (c *Client) ResetPassword(ctx context.Context, email string) (*users.HTTPResponse, error) {
	var reply users.HTTPResponse
	if _, err := c.do(ctx, "reset_password", http.MethodGet, "/user/resetpassword/"+url.PathEscape(email), "", nil, &reply, true); err != nil {
		return nil, err
	}
	return &reply, nil
}

// do performs one request. out is decoded from a 2xx body; other statuses
// become *RemoteError.
func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader, out interface{}, authenticated bool) (*http.Response, error) {
	ctx, span := tracer.Start(ctx, "directory."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", path),
		),
	)
	defer span.End()
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		span.SetStatus(codes.Error, "request build failed")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if authenticated && c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err == nil && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		c.record(ctx, op, 0, start)
		return nil, fmt.Errorf("failed to %s: %w", strings.ReplaceAll(op, "_", " "), err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.record(ctx, op, resp.StatusCode, start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		remote := decodeRemoteError(resp)
		log.Printf("Directory %s failed: %d - %s", op, resp.StatusCode, remote.Message)
		span.SetStatus(codes.Error, remote.Error())
		return resp, remote
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			span.SetStatus(codes.Error, "decode failure")
			return resp, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	}
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

func (c *Client) record(ctx context.Context, op string, status int, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordDirectoryOperation(ctx, op, status, float64(time.Since(start).Milliseconds()))
	}
}

func decodeRemoteError(resp *http.Response) *RemoteError {
	remote := &RemoteError{StatusCode: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(raw) == 0 {
		return remote
	}
	var envelope users.HTTPResponse
	if err := json.Unmarshal(raw, &envelope); err == nil {
		remote.Message = envelope.Message
	}
	return remote
}
