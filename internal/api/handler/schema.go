package handler

import "time"

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// --- Auth ---

type registerRequest struct {
	Email           string `json:"email"            validate:"required,email"`
	Password        string `json:"password"         validate:"required,min=6"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
	DisplayName     string `json:"display_name"     validate:"required,max=100"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type identityResponse struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	DisplayName string  `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
}

type sessionResponse struct {
	State    string            `json:"state"`
	Identity *identityResponse `json:"identity"`
	Revision uint64            `json:"revision"`
}

type registerResponse struct {
	User                 identityResponse `json:"user"`
	AwaitingConfirmation bool             `json:"awaiting_confirmation"`
}

// --- Posts ---

type deletePostRequest struct {
	UserID   string `json:"user_id"   validate:"required"`
	ImageURL string `json:"image_url"`
	Confirm  bool   `json:"confirm"`
}

type postResponse struct {
	ID              string    `json:"id"`
	Caption         *string   `json:"caption"`
	ImageURL        *string   `json:"image_url"`
	UserID          string    `json:"user_id"`
	CreatedAt       time.Time `json:"created_at"`
	AuthorName      string    `json:"author_name"`
	AuthorAvatarURL *string   `json:"author_avatar_url"`
	Age             string    `json:"age"`
	CanDelete       bool      `json:"can_delete"`
}

type postListResponse struct {
	Posts []postResponse `json:"posts"`
}

type createPostResponse struct {
	ID        string    `json:"id"`
	Caption   *string   `json:"caption"`
	ImageURL  *string   `json:"image_url"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// --- Feed ---

type feedFrame struct {
	Scope     string         `json:"scope"`
	Revision  uint64         `json:"revision"`
	FetchedAt time.Time      `json:"fetched_at"`
	Posts     []postResponse `json:"posts"`
}
