package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/framez/framez-core/internal/api/metrics"
	"github.com/framez/framez-core/internal/core/domain"
	"github.com/framez/framez-core/internal/core/ports"
)

// maxImageBytes caps uploaded images.
const maxImageBytes = 10 << 20

// PostHandler handles HTTP requests for post operations.
type PostHandler struct {
	posts    ports.PostService
	sessions ports.SessionService
	now      func() time.Time
}

func NewPostHandler(posts ports.PostService, sessions ports.SessionService) *PostHandler {
	return &PostHandler{posts: posts, sessions: sessions, now: time.Now}
}

// List handles GET /v1/posts.
//
// @Summary      List all posts, newest first
// @Tags         posts
// @Produce      json
// @Success      200  {object}  postListResponse
// @Failure      502  {object}  errorResponse
// @Router       /v1/posts [get]
func (h *PostHandler) List(c echo.Context) error {
	posts, err := h.posts.ListAll(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, postListResponse{Posts: toPostResponses(posts, h.viewer(), h.now())})
}

// ListByAuthor handles GET /v1/users/:id/posts.
//
// @Summary      List one author's posts, newest first
// @Tags         posts
// @Produce      json
// @Param        id   path      string  true  "Author id"
// @Success      200  {object}  postListResponse
// @Failure      502  {object}  errorResponse
// @Router       /v1/users/{id}/posts [get]
func (h *PostHandler) ListByAuthor(c echo.Context) error {
	authorID := c.Param("id")
	if authorID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "author id is required")
	}
	posts, err := h.posts.ListByAuthor(c.Request().Context(), authorID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, postListResponse{Posts: toPostResponses(posts, h.viewer(), h.now())})
}

// Create handles POST /v1/posts.
//
// @Summary      Create a post
// @Tags         posts
// @Accept       multipart/form-data
// @Produce      json
// @Param        caption  formData  string  false  "Caption"
// @Param        image    formData  file    false  "Image"
// @Success      201      {object}  createPostResponse
// @Failure      401      {object}  errorResponse
// @Failure      413      {object}  errorResponse
// @Failure      422      {object}  errorResponse
// @Failure      502      {object}  errorResponse
// @Router       /v1/posts [post]
func (h *PostHandler) Create(c echo.Context) error {
	identity, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	image, err := readImage(c)
	if err != nil {
		return err
	}

	post, err := h.posts.Create(c.Request().Context(), *identity, ports.CreatePostInput{
		Caption: c.FormValue("caption"),
		Image:   image,
	})
	if err != nil {
		return toHTTPError(err)
	}
	metrics.PostsCreatedTotal.WithLabelValues(strconv.FormatBool(post.ImageURL != nil)).Inc()

	return c.JSON(http.StatusCreated, createPostResponse{
		ID:        post.ID,
		Caption:   post.Caption,
		ImageURL:  post.ImageURL,
		UserID:    post.UserID,
		CreatedAt: post.CreatedAt,
	})
}

// Delete handles DELETE /v1/posts/:id.
//
// @Summary      Delete one of your posts
// @Tags         posts
// @Accept       json
// @Produce      json
// @Param        id    path      string             true  "Post id"
// @Param        body  body      deletePostRequest  true  "Post owner, image and confirmation"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /v1/posts/{id} [delete]
func (h *PostHandler) Delete(c echo.Context) error {
	identity, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	var req deletePostRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	err = h.posts.Delete(c.Request().Context(), ports.DeletePostInput{
		PostID:      c.Param("id"),
		AuthorID:    req.UserID,
		ImageURL:    req.ImageURL,
		RequesterID: identity.ID,
		Confirmed:   req.Confirm,
	})
	if err != nil {
		return toHTTPError(err)
	}
	metrics.PostsDeletedTotal.Inc()
	return c.JSON(http.StatusOK, messageResponse{Message: "post deleted"})
}

func (h *PostHandler) viewer() *domain.Identity {
	return h.sessions.Current().Identity
}

// readImage loads the optional "image" form file.
func readImage(c echo.Context) (*domain.ImageAsset, error) {
	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid image upload")
	}
	if fh.Size > maxImageBytes {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Image must be smaller than %d MB", maxImageBytes>>20))
	}

	f, err := fh.Open()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid image upload")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxImageBytes+1))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid image upload")
	}
	if len(data) > maxImageBytes {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Image must be smaller than %d MB", maxImageBytes>>20))
	}

	contentType := fh.Header.Get(echo.HeaderContentType)
	if contentType == "" || contentType == echo.MIMEOctetStream {
		contentType = http.DetectContentType(data)
	}
	return &domain.ImageAsset{Filename: fh.Filename, ContentType: contentType, Data: data}, nil
}
