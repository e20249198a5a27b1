package domain

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxCaptionLength is the longest caption accepted, in characters.
const MaxCaptionLength = 500

const (
	defaultImageExt         = "jpg"
	defaultImageContentType = "image/jpeg"
	anonymousAuthor         = "Anonymous"
)

// Post is a row of the posts table.
type Post struct {
	ID        string    `json:"id"`
	Caption   *string   `json:"caption"`
	ImageURL  *string   `json:"image_url"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Author carries the profile fields joined onto a post.
type Author struct {
	Username  string  `json:"username"`
	FullName  *string `json:"full_name"`
	AvatarURL *string `json:"avatar_url"`
}

// PostWithAuthor is a post row as returned by the author join. Author is nil
// when the profile row is missing.
type PostWithAuthor struct {
	Post
	Author *Author
}

// DisplayPost is a post enriched with denormalized author fields.
type DisplayPost struct {
	Post
	AuthorName      string  `json:"author_name"`
	AuthorAvatarURL *string `json:"author_avatar_url"`
}

// NewDisplayPost projects a joined row into its display shape.
func NewDisplayPost(row PostWithAuthor) DisplayPost {
	dp := DisplayPost{Post: row.Post, AuthorName: anonymousAuthor}
	if a := row.Author; a != nil {
		switch {
		case a.Username != "":
			dp.AuthorName = a.Username
		case a.FullName != nil && *a.FullName != "":
			dp.AuthorName = *a.FullName
		}
		dp.AuthorAvatarURL = a.AvatarURL
	}
	return dp
}

// OwnedBy reports whether the post belongs to the given identity.
func (p Post) OwnedBy(id *Identity) bool {
	return id != nil && id.ID != "" && p.UserID == id.ID
}

// ImageAsset is a local image selected for upload.
type ImageAsset struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Ext returns the file extension used for the stored object.
func (a *ImageAsset) Ext() string {
	ext := strings.TrimPrefix(path.Ext(a.Filename), ".")
	if ext == "" {
		return defaultImageExt
	}
	return strings.ToLower(ext)
}

// MIMEType returns the content type used for the upload.
func (a *ImageAsset) MIMEType() string {
	if a.ContentType == "" {
		return defaultImageContentType
	}
	return a.ContentType
}

// ValidatePostContent enforces that a post has a caption or an image and
// that the caption fits.
func ValidatePostContent(caption string, image *ImageAsset) error {
	hasImage := image != nil && len(image.Data) > 0
	if strings.TrimSpace(caption) == "" && !hasImage {
		return ErrEmptyPost
	}
	if utf8.RuneCountInString(caption) > MaxCaptionLength {
		return fmt.Errorf("%w (max %d characters)", ErrCaptionTooLong, MaxCaptionLength)
	}
	return nil
}

// ObjectPath returns the per-user storage path for an uploaded image.
func ObjectPath(userID string, at time.Time, ext string) string {
	return fmt.Sprintf("%s/%d.%s", userID, at.UnixMilli(), ext)
}

// ObjectPathFromURL derives the storage path of a post image from its public
// URL: the author namespace plus the last URL segment, percent-decoded.
func ObjectPathFromURL(userID, imageURL string) string {
	name := imageURL
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	if name == "" {
		return ""
	}
	return userID + "/" + name
}

// RelativeAge renders how long ago t was, relative to now.
func RelativeAge(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "Just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff/time.Minute))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff/time.Hour))
	default:
		return fmt.Sprintf("%dd ago", int(diff/(24*time.Hour)))
	}
}
