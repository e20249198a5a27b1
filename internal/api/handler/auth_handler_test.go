package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/framez/framez-core/internal/core/domain"
)

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func expectHTTPError(t *testing.T, err error, code int) *echo.HTTPError {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError %d, got %v", code, err)
	}
	if he.Code != code {
		t.Fatalf("expected %d, got %d (%v)", code, he.Code, he.Message)
	}
	return he
}

func TestAuthHandler_Register_Success(t *testing.T) {
	e := newEcho()
	stub := &stubSessionService{}
	stub.registerFn = func(ctx context.Context, email, password, displayName string) (*domain.Identity, error) {
		if email != "ana@example.com" || password != "secret1" || displayName != "Ana" {
			t.Fatalf("unexpected args: %s %s %s", email, password, displayName)
		}
		stub.snap = signedIn("u-1", email, displayName)
		return stub.snap.Identity, nil
	}
	handler := NewAuthHandler(stub)

	req := jsonRequest(http.MethodPost, "/v1/auth/register",
		`{"email":"ana@example.com","password":"secret1","confirm_password":"secret1","display_name":"Ana"}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.Register(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp registerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.User.ID != "u-1" || resp.User.DisplayName != "Ana" || resp.AwaitingConfirmation {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestAuthHandler_Register_AwaitingConfirmation(t *testing.T) {
	e := newEcho()
	stub := &stubSessionService{
		snap: domain.SessionSnapshot{State: domain.StateUnauthenticated},
		registerFn: func(ctx context.Context, email, password, displayName string) (*domain.Identity, error) {
			return &domain.Identity{ID: "u-2", Email: email, DisplayName: displayName}, nil
		},
	}

	req := jsonRequest(http.MethodPost, "/v1/auth/register",
		`{"email":"bo@example.com","password":"secret1","confirm_password":"secret1","display_name":"Bo"}`)
	rec := httptest.NewRecorder()

	if err := NewAuthHandler(stub).Register(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var resp registerResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.AwaitingConfirmation {
		t.Fatalf("expected awaiting confirmation, got %+v", resp)
	}
}

func TestAuthHandler_Register_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"missing email", `{"password":"secret1","confirm_password":"secret1","display_name":"Ana"}`, "Email is required"},
		{"bad email", `{"email":"nope","password":"secret1","confirm_password":"secret1","display_name":"Ana"}`, "Email must be a valid email"},
		{"short password", `{"email":"a@b.co","password":"123","confirm_password":"123","display_name":"Ana"}`, "Password must be at least 6 characters"},
		{"mismatch", `{"email":"a@b.co","password":"secret1","confirm_password":"secret2","display_name":"Ana"}`, "Passwords do not match"},
		{"missing name", `{"email":"a@b.co","password":"secret1","confirm_password":"secret1"}`, "Display name is required"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newEcho()
			stub := &stubSessionService{
				registerFn: func(context.Context, string, string, string) (*domain.Identity, error) {
					t.Fatalf("should not be called")
					return nil, nil
				},
			}

			c := e.NewContext(jsonRequest(http.MethodPost, "/v1/auth/register", tc.body), httptest.NewRecorder())
			he := expectHTTPError(t, NewAuthHandler(stub).Register(c), http.StatusUnprocessableEntity)
			if he.Message != tc.wantMsg {
				t.Fatalf("expected %q, got %q", tc.wantMsg, he.Message)
			}
		})
	}
}

func TestAuthHandler_Register_AccountExists(t *testing.T) {
	e := newEcho()
	stub := &stubSessionService{
		registerFn: func(context.Context, string, string, string) (*domain.Identity, error) {
			return nil, domain.NewError(domain.KindAuth, "register", domain.ErrAccountExists)
		},
	}

	req := jsonRequest(http.MethodPost, "/v1/auth/register",
		`{"email":"ana@example.com","password":"secret1","confirm_password":"secret1","display_name":"Ana"}`)
	err := NewAuthHandler(stub).Register(e.NewContext(req, httptest.NewRecorder()))
	expectHTTPError(t, err, http.StatusConflict)
}

func TestAuthHandler_Register_InvalidPayload(t *testing.T) {
	e := newEcho()
	stub := &stubSessionService{
		registerFn: func(context.Context, string, string, string) (*domain.Identity, error) {
			t.Fatalf("should not be called")
			return nil, nil
		},
	}

	c := e.NewContext(jsonRequest(http.MethodPost, "/v1/auth/register", "not-json"), httptest.NewRecorder())
	expectHTTPError(t, NewAuthHandler(stub).Register(c), http.StatusBadRequest)
}

func TestAuthHandler_Login_Success(t *testing.T) {
	e := newEcho()
	stub := &stubSessionService{}
	stub.loginFn = func(ctx context.Context, email, password string) (*domain.Identity, error) {
		if email != "ana@example.com" || password != "secret1" {
			t.Fatalf("unexpected args: %s %s", email, password)
		}
		stub.snap = signedIn("u-1", email, "Ana")
		return stub.snap.Identity, nil
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/v1/auth/login", `{"email":"ana@example.com","password":"secret1"}`), rec)
	if err := NewAuthHandler(stub).Login(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.State != "authenticated" || resp.Identity == nil || resp.Identity.ID != "u-1" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	e := newEcho()
	stub := &stubSessionService{
		loginFn: func(context.Context, string, string) (*domain.Identity, error) {
			return nil, domain.NewError(domain.KindAuth, "login", domain.ErrInvalidCredentials)
		},
	}

	c := e.NewContext(jsonRequest(http.MethodPost, "/v1/auth/login", `{"email":"ana@example.com","password":"wrong"}`), httptest.NewRecorder())
	he := expectHTTPError(t, NewAuthHandler(stub).Login(c), http.StatusUnauthorized)
	if he.Message != "Invalid email or password" {
		t.Fatalf("unexpected message %q", he.Message)
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		e := newEcho()
		stub := &stubSessionService{snap: signedIn("u-1", "ana@example.com", "Ana")}
		stub.logoutFn = func(context.Context) error {
			stub.snap = domain.SessionSnapshot{State: domain.StateUnauthenticated, Revision: 2}
			return nil
		}

		rec := httptest.NewRecorder()
		if err := NewAuthHandler(stub).Logout(e.NewContext(httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil), rec)); err != nil {
			t.Fatalf("handler error: %v", err)
		}
		var resp sessionResponse
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.State != "unauthenticated" || resp.Identity != nil {
			t.Fatalf("unexpected payload: %+v", resp)
		}
	})

	t.Run("backend failure", func(t *testing.T) {
		e := newEcho()
		stub := &stubSessionService{
			snap: signedIn("u-1", "ana@example.com", "Ana"),
			logoutFn: func(context.Context) error {
				return domain.NewError(domain.KindAuth, "logout", errors.New("connection reset"))
			},
		}
		c := e.NewContext(httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil), httptest.NewRecorder())
		expectHTTPError(t, NewAuthHandler(stub).Logout(c), http.StatusBadGateway)
	})
}

func TestAuthHandler_Session(t *testing.T) {
	e := newEcho()
	stub := &stubSessionService{snap: domain.SessionSnapshot{State: domain.StateLoading}}

	rec := httptest.NewRecorder()
	if err := NewAuthHandler(stub).Session(e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/auth/session", nil), rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"state":"loading"`) || !strings.Contains(rec.Body.String(), `"identity":null`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}
