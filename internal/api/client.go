package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"inpass/internal/domain"
	"inpass/internal/session"
)

const defaultTimeout = 5 * time.Second

// Client mediates every HTTP exchange with the absence backend under
// one base URL and timeout policy. The token store is an injected
// collaborator: the client reads it before each call and clears it
// when the backend rejects the token.
type Client struct {
	baseURL      string
	client       *http.Client
	tokens       session.TokenStore
	logger       *zap.Logger
	onAuthReject func()
}

// Option tweaks a Client at construction time.
type Option func(*Client)

// WithTimeout replaces the default 5s bound on every call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithHTTPClient substitutes the underlying transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithAuthRejectHook registers the navigate-to-login side effect. It
// fires exactly once per rejected call, after the token is cleared.
func WithAuthRejectHook(fn func()) Option {
	return func(c *Client) {
		c.onAuthReject = fn
	}
}

// NewClient builds a gateway for the given base URL and token store.
func NewClient(baseURL string, tokens session.TokenStore, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
		tokens:  tokens,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do runs one request through the shared pipeline: attach the stored
// token when present, execute, and map the failure statuses. A 401 on
// an authenticated request clears the session and fires the reject
// hook before the error is propagated.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		if clearErr := c.tokens.ClearToken(ctx); clearErr != nil {
			c.logger.Warn("clear token after auth reject", zap.Error(clearErr))
		}
		if c.onAuthReject != nil {
			c.onAuthReject()
		}
		return nil, ErrUnauthenticated
	}

	switch {
	case resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrInvalidCredentials
	case resp.StatusCode < 500:
		return nil, &ValidationError{Message: serverMessage(respBody)}
	default:
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
}

// serverMessage extracts {"error": "..."} bodies, falling back to the
// raw payload so the caller always sees the backend's words verbatim.
func serverMessage(body []byte) string {
	var wire struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &wire); err == nil && wire.Error != "" {
		return wire.Error
	}
	return strings.TrimSpace(string(body))
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Login exchanges credentials for a bearer token and stores it.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (string, error) {
	payload, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("marshal credentials: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, "/account/login", nil, bytes.NewReader(payload), "application/json")
	if err != nil {
		return "", err
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("unmarshal token: %w", err)
	}
	if err := c.tokens.SetToken(ctx, tr.Token); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return tr.Token, nil
}

// Register creates an account, then stores the returned token.
func (c *Client) Register(ctx context.Context, creds domain.Credentials, fullName string) (string, error) {
	payload, err := json.Marshal(struct {
		domain.Credentials
		FullName string `json:"fullName"`
	}{Credentials: creds, FullName: fullName})
	if err != nil {
		return "", fmt.Errorf("marshal registration: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, "/account/register", nil, bytes.NewReader(payload), "application/json")
	if err != nil {
		return "", err
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("unmarshal token: %w", err)
	}
	if err := c.tokens.SetToken(ctx, tr.Token); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return tr.Token, nil
}

// Profile fetches the authenticated student's projection.
func (c *Client) Profile(ctx context.Context) (domain.Profile, error) {
	body, err := c.do(ctx, http.MethodGet, "/account/profile", nil, nil, "")
	if err != nil {
		return domain.Profile{}, err
	}
	var p domain.Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.Profile{}, fmt.Errorf("unmarshal profile: %w", err)
	}
	return p, nil
}

// ListAbsences fetches one page of summaries. An empty page is a valid
// "no results", not an error.
func (c *Client) ListAbsences(ctx context.Context, params domain.ListParams) ([]domain.AbsenceRequest, error) {
	query := url.Values{}
	if params.Size > 0 {
		query.Set("size", strconv.Itoa(params.Size))
	}
	if params.Page > 0 {
		query.Set("page", strconv.Itoa(params.Page))
	}
	if params.Sorting != "" {
		query.Set("sorting", params.Sorting)
	}
	if params.Status != "" {
		query.Set("status", string(params.Status))
	}
	body, err := c.do(ctx, http.MethodGet, "/absences", query, nil, "")
	if err != nil {
		return nil, err
	}
	var wire struct {
		Absences []domain.AbsenceRequest `json:"absences"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal absences: %w", err)
	}
	return wire.Absences, nil
}

// Absence fetches the full record for one request id.
func (c *Client) Absence(ctx context.Context, id string) (domain.AbsenceRequest, error) {
	body, err := c.do(ctx, http.MethodGet, "/absences/"+url.PathEscape(id), nil, nil, "")
	if err != nil {
		return domain.AbsenceRequest{}, err
	}
	var a domain.AbsenceRequest
	if err := json.Unmarshal(body, &a); err != nil {
		return domain.AbsenceRequest{}, fmt.Errorf("unmarshal absence: %w", err)
	}
	return a, nil
}

// CreateAbsence validates the draft locally, then submits it as a
// multipart form. The server's canonical record is returned.
func (c *Client) CreateAbsence(ctx context.Context, draft domain.Draft) (domain.AbsenceRequest, error) {
	if err := draft.Validate(); err != nil {
		return domain.AbsenceRequest{}, err
	}
	return c.submitDraft(ctx, http.MethodPost, "/absences", draft)
}

// UpdateAbsence replaces the mutable fields of an existing request.
func (c *Client) UpdateAbsence(ctx context.Context, id string, draft domain.Draft) (domain.AbsenceRequest, error) {
	if err := draft.Validate(); err != nil {
		return domain.AbsenceRequest{}, err
	}
	return c.submitDraft(ctx, http.MethodPut, "/absences/"+url.PathEscape(id), draft)
}

func (c *Client) submitDraft(ctx context.Context, method, path string, draft domain.Draft) (domain.AbsenceRequest, error) {
	body, contentType, err := encodeDraft(draft)
	if err != nil {
		return domain.AbsenceRequest{}, err
	}
	respBody, err := c.do(ctx, method, path, nil, body, contentType)
	if err != nil {
		return domain.AbsenceRequest{}, err
	}
	var a domain.AbsenceRequest
	if err := json.Unmarshal(respBody, &a); err != nil {
		return domain.AbsenceRequest{}, fmt.Errorf("unmarshal absence: %w", err)
	}
	return a, nil
}
