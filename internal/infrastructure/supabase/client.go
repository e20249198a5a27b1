// Package supabase adapts a Supabase project (GoTrue auth, PostgREST tables,
// Storage and Realtime) to the client core ports.
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	gotrue "github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/postgrest-go"
	storage_go "github.com/supabase-community/storage-go"

	"github.com/framez/framez-core/internal/core/domain"
)

const (
	defaultTimeout = 15 * time.Second
	restSchema     = "public"
)

// Config holds the project coordinates shared by all adapters.
type Config struct {
	URL            string
	AnonKey        string
	Bucket         string
	HTTPTimeout    time.Duration
	ReconnectDelay time.Duration
}

// Client holds the project coordinates and the source of the user access
// token, and hands out SDK clients for GoTrue, PostgREST and Storage that
// carry the token current at the time of the call.
type Client struct {
	baseURL string
	anonKey string
	timeout time.Duration
	log     zerolog.Logger

	mu     sync.RWMutex
	bearer func() string
}

// NewClient creates a Client for the project at cfg.URL.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		anonKey: cfg.AnonKey,
		timeout: timeout,
		log:     log,
	}
}

// setBearer installs the source of the user access token. Without one, or
// while it returns "", requests are authorised with the anon key.
func (c *Client) setBearer(fn func() string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bearer = fn
}

func (c *Client) accessToken() string {
	c.mu.RLock()
	fn := c.bearer
	c.mu.RUnlock()
	if fn != nil {
		if tok := fn(); tok != "" {
			return tok
		}
	}
	return c.anonKey
}

// authAPI returns a GoTrue client. token authorises user-scoped calls such
// as logout; empty means anonymous.
func (c *Client) authAPI(token string) gotrue.Client {
	api := gotrue.New("", c.anonKey).WithCustomGoTrueURL(c.baseURL + "/auth/v1")
	if token != "" {
		api = api.WithToken(token)
	}
	return api
}

func (c *Client) restAPI() *postgrest.Client {
	return postgrest.NewClient(c.baseURL+"/rest/v1", restSchema, map[string]string{
		"apikey":        c.anonKey,
		"Authorization": "Bearer " + c.accessToken(),
	})
}

func (c *Client) storageAPI() *storage_go.Client {
	return storage_go.NewClient(c.baseURL+"/storage/v1", c.accessToken(), map[string]string{
		"apikey": c.anonKey,
	})
}

// call runs fn under ctx and the client timeout. The SDK calls take no
// context, so when ctx ends first the call is left to finish in the
// background and its result is dropped.
func call[T any](ctx context.Context, c *Client, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// APIError is a non-2xx response from any Supabase service. Status is zero
// when the SDK did not report it.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase: %s (status %d, %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("supabase: %s (status %d)", e.Message, e.Status)
}

// Unwrap maps well-known auth failures onto domain sentinels.
func (e *APIError) Unwrap() error {
	code := strings.ToLower(e.Code)
	msg := strings.ToLower(e.Message)
	switch {
	case code == "invalid_credentials" || strings.Contains(msg, "invalid login credentials"):
		return domain.ErrInvalidCredentials
	case code == "user_already_exists" || code == "email_exists" || strings.Contains(msg, "already registered"):
		return domain.ErrAccountExists
	case code == "refresh_token_not_found" || code == "refresh_token_already_used" || code == "session_not_found" ||
		code == "bad_jwt" || strings.Contains(msg, "refresh token"):
		return domain.ErrSessionExpired
	}
	return nil
}

const authStatusPrefix = "response status code "

// authError recovers the status and body that gotrue-go folds into its
// error text ("response status code 400: {...}"). Anything else is a
// transport failure and is returned unchanged.
func authError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	i := strings.Index(msg, authStatusPrefix)
	if i < 0 {
		return err
	}
	statusText, body, _ := strings.Cut(msg[i+len(authStatusPrefix):], ":")
	status, convErr := strconv.Atoi(strings.TrimSpace(statusText))
	if convErr != nil {
		return err
	}
	return parseAPIError(status, []byte(strings.TrimSpace(body)))
}

// restError recovers the PostgREST error code that postgrest-go renders as
// "(code) message".
func restError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "(") {
		return err
	}
	code, text, ok := strings.Cut(msg[1:], ") ")
	if !ok {
		return err
	}
	return &APIError{Code: code, Message: text}
}

// parseAPIError reads the error envelopes used by GoTrue, PostgREST and
// Storage.
func parseAPIError(status int, body []byte) *APIError {
	var raw struct {
		Error            any    `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorCode        string `json:"error_code"`
		Code             any    `json:"code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	e := &APIError{Status: status}
	if err := json.Unmarshal(body, &raw); err != nil {
		e.Message = strings.TrimSpace(string(body))
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
		return e
	}

	errText, _ := raw.Error.(string)
	switch {
	case raw.ErrorCode != "":
		e.Code = raw.ErrorCode
	case raw.Code != nil:
		if s, ok := raw.Code.(string); ok {
			e.Code = s
		}
	}
	if e.Code == "" && errText != "" && !strings.Contains(errText, " ") {
		e.Code = errText
	}

	for _, m := range []string{raw.ErrorDescription, raw.Msg, raw.Message, errText} {
		if m != "" {
			e.Message = m
			break
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// isRejected reports whether err is a definitive refusal by the backend, as
// opposed to a transport failure.
func isRejected(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status >= 400 && apiErr.Status < 500
}
