package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/framez/framez-core/internal/core/domain"
	"github.com/framez/framez-core/internal/core/ports"
)

func displayPost(id, userID, author string, age time.Duration) domain.DisplayPost {
	return domain.DisplayPost{
		Post: domain.Post{
			ID:        id,
			Caption:   ptr("caption " + id),
			UserID:    userID,
			CreatedAt: fixedNow.Add(-age),
		},
		AuthorName: author,
	}
}

func newPostHandler(posts *stubPostService, sessions *stubSessionService) *PostHandler {
	h := NewPostHandler(posts, sessions)
	h.now = func() time.Time { return fixedNow }
	return h
}

func multipartRequest(t *testing.T, caption string, image []byte, contentType string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if caption != "" {
		_ = w.WriteField("caption", caption)
	}
	if image != nil {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="image"; filename="photo.png"`)
		hdr.Set("Content-Type", contentType)
		part, err := w.CreatePart(hdr)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = part.Write(image)
	}
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/posts", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func withIdentity(c echo.Context, id, email string) {
	c.Set(IdentityKey, &domain.Identity{ID: id, Email: email, DisplayName: "Ana"})
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestPostHandler_List(t *testing.T) {
	e := newEcho()
	posts := &stubPostService{
		listAllFn: func(context.Context) ([]domain.DisplayPost, error) {
			return []domain.DisplayPost{
				displayPost("p-2", "u-1", "ana", 30*time.Second),
				displayPost("p-1", "u-2", "bo", 3*time.Hour),
			}, nil
		},
	}
	sessions := &stubSessionService{snap: signedIn("u-1", "ana@example.com", "Ana")}

	rec := httptest.NewRecorder()
	if err := newPostHandler(posts, sessions).List(e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/posts", nil), rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp postListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.Posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(resp.Posts))
	}
	first, second := resp.Posts[0], resp.Posts[1]
	if first.ID != "p-2" || !first.CanDelete || first.Age != "Just now" || first.AuthorName != "ana" {
		t.Errorf("unexpected first post %+v", first)
	}
	if second.ID != "p-1" || second.CanDelete || second.Age != "3h ago" {
		t.Errorf("unexpected second post %+v", second)
	}
}

func TestPostHandler_List_SignedOutCannotDelete(t *testing.T) {
	e := newEcho()
	posts := &stubPostService{
		listAllFn: func(context.Context) ([]domain.DisplayPost, error) {
			return []domain.DisplayPost{displayPost("p-1", "u-1", "ana", time.Minute)}, nil
		},
	}
	sessions := &stubSessionService{snap: domain.SessionSnapshot{State: domain.StateUnauthenticated}}

	rec := httptest.NewRecorder()
	_ = newPostHandler(posts, sessions).List(e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/posts", nil), rec))

	var resp postListResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Posts) != 1 || resp.Posts[0].CanDelete {
		t.Fatalf("signed-out viewer must not delete: %+v", resp.Posts)
	}
}

func TestPostHandler_List_EmptyIsArray(t *testing.T) {
	e := newEcho()
	posts := &stubPostService{listAllFn: func(context.Context) ([]domain.DisplayPost, error) { return nil, nil }}

	rec := httptest.NewRecorder()
	_ = newPostHandler(posts, &stubSessionService{}).List(e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/posts", nil), rec))
	if rec.Body.String() != "{\"posts\":[]}\n" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestPostHandler_List_FetchFailure(t *testing.T) {
	e := newEcho()
	posts := &stubPostService{
		listAllFn: func(context.Context) ([]domain.DisplayPost, error) {
			return nil, domain.NewError(domain.KindFetch, "list posts", errBackend)
		},
	}

	err := newPostHandler(posts, &stubSessionService{}).List(e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/posts", nil), httptest.NewRecorder()))
	expectHTTPError(t, err, http.StatusBadGateway)
}

func TestPostHandler_ListByAuthor(t *testing.T) {
	e := newEcho()
	var gotAuthor string
	posts := &stubPostService{
		listByAuthorFn: func(_ context.Context, authorID string) ([]domain.DisplayPost, error) {
			gotAuthor = authorID
			return []domain.DisplayPost{displayPost("p-9", authorID, "bo", time.Minute)}, nil
		},
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/users/u-2/posts", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues("u-2")

	if err := newPostHandler(posts, &stubSessionService{}).ListByAuthor(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if gotAuthor != "u-2" {
		t.Fatalf("expected author u-2, got %q", gotAuthor)
	}
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestPostHandler_Create_WithImage(t *testing.T) {
	e := newEcho()
	var got ports.CreatePostInput
	posts := &stubPostService{
		createFn: func(_ context.Context, identity domain.Identity, in ports.CreatePostInput) (*domain.Post, error) {
			if identity.ID != "u-1" {
				t.Fatalf("unexpected identity %+v", identity)
			}
			got = in
			return &domain.Post{ID: "p-1", Caption: ptr(in.Caption), ImageURL: ptr("https://cdn/u-1/1.png"), UserID: identity.ID, CreatedAt: fixedNow}, nil
		},
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(multipartRequest(t, "sunset", []byte("\x89PNG fake"), "image/png"), rec)
	withIdentity(c, "u-1", "ana@example.com")

	if err := newPostHandler(posts, &stubSessionService{}).Create(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if got.Caption != "sunset" || got.Image == nil || got.Image.Filename != "photo.png" || got.Image.ContentType != "image/png" {
		t.Fatalf("unexpected input %+v", got)
	}
	if string(got.Image.Data) != "\x89PNG fake" {
		t.Fatalf("unexpected image data %q", got.Image.Data)
	}

	var resp createPostResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.ID != "p-1" || resp.ImageURL == nil {
		t.Fatalf("unexpected payload %+v", resp)
	}
}

func TestPostHandler_Create_CaptionOnly(t *testing.T) {
	e := newEcho()
	var got ports.CreatePostInput
	posts := &stubPostService{
		createFn: func(_ context.Context, identity domain.Identity, in ports.CreatePostInput) (*domain.Post, error) {
			got = in
			return &domain.Post{ID: "p-2", Caption: ptr(in.Caption), UserID: identity.ID}, nil
		},
	}

	c := e.NewContext(multipartRequest(t, "just words", nil, ""), httptest.NewRecorder())
	withIdentity(c, "u-1", "ana@example.com")

	if err := newPostHandler(posts, &stubSessionService{}).Create(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if got.Image != nil || got.Caption != "just words" {
		t.Fatalf("unexpected input %+v", got)
	}
}

func TestPostHandler_Create_Empty(t *testing.T) {
	e := newEcho()
	posts := &stubPostService{
		createFn: func(context.Context, domain.Identity, ports.CreatePostInput) (*domain.Post, error) {
			return nil, domain.NewError(domain.KindPostCreation, "create post", domain.ErrEmptyPost)
		},
	}

	c := e.NewContext(multipartRequest(t, "", nil, ""), httptest.NewRecorder())
	withIdentity(c, "u-1", "ana@example.com")

	he := expectHTTPError(t, newPostHandler(posts, &stubSessionService{}).Create(c), http.StatusUnprocessableEntity)
	if he.Message != "Add a caption or an image" {
		t.Fatalf("unexpected message %q", he.Message)
	}
}

func TestPostHandler_Create_RequiresIdentity(t *testing.T) {
	e := newEcho()
	posts := &stubPostService{
		createFn: func(context.Context, domain.Identity, ports.CreatePostInput) (*domain.Post, error) {
			t.Fatalf("should not be called")
			return nil, nil
		},
	}

	c := e.NewContext(multipartRequest(t, "hi", nil, ""), httptest.NewRecorder())
	expectHTTPError(t, newPostHandler(posts, &stubSessionService{}).Create(c), http.StatusUnauthorized)
}

// ---------------------------------------------------------------------------
// Delete
// ---------------------------------------------------------------------------

func TestPostHandler_Delete(t *testing.T) {
	e := newEcho()
	var got ports.DeletePostInput
	posts := &stubPostService{
		deleteFn: func(_ context.Context, in ports.DeletePostInput) error {
			got = in
			return nil
		},
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodDelete, "/v1/posts/p-1",
		`{"user_id":"u-1","image_url":"https://cdn/u-1/1.png","confirm":true}`), rec)
	c.SetParamNames("id")
	c.SetParamValues("p-1")
	withIdentity(c, "u-1", "ana@example.com")

	if err := newPostHandler(posts, &stubSessionService{}).Delete(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	want := ports.DeletePostInput{PostID: "p-1", AuthorID: "u-1", ImageURL: "https://cdn/u-1/1.png", RequesterID: "u-1", Confirmed: true}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestPostHandler_Delete_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"not confirmed", domain.NewError(domain.KindDeletion, "delete post", domain.ErrNotConfirmed), http.StatusBadRequest},
		{"not owner", domain.NewError(domain.KindDeletion, "delete post", domain.ErrForbidden), http.StatusForbidden},
		{"missing", domain.NewError(domain.KindDeletion, "delete post", domain.ErrPostNotFound), http.StatusNotFound},
		{"backend", domain.NewError(domain.KindDeletion, "delete post", errBackend), http.StatusBadGateway},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newEcho()
			posts := &stubPostService{deleteFn: func(context.Context, ports.DeletePostInput) error { return tc.err }}

			c := e.NewContext(jsonRequest(http.MethodDelete, "/v1/posts/p-1", `{"user_id":"u-2","confirm":true}`), httptest.NewRecorder())
			c.SetParamNames("id")
			c.SetParamValues("p-1")
			withIdentity(c, "u-1", "ana@example.com")

			expectHTTPError(t, newPostHandler(posts, &stubSessionService{}).Delete(c), tc.wantCode)
		})
	}
}
