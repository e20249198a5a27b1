package supabase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/supabase-community/postgrest-go"

	"github.com/framez/framez-core/internal/core/domain"
)

const (
	// postSelect embeds the author's profile through the user_id foreign key.
	postSelect = "*,profiles:user_id(username,avatar_url,full_name)"

	uniqueViolation = "23505"
)

// Tables implements ports.ProfileStore and ports.PostStore over PostgREST.
// Row-level security on the backend decides what the signed-in user may
// read and write.
type Tables struct {
	client *Client
}

// NewTables creates a Tables adapter.
func NewTables(client *Client) *Tables {
	return &Tables{client: client}
}

// InsertIfAbsent inserts p and reports whether it created the row. The
// primary key makes the insert atomic: a concurrent or earlier row shows up
// as a unique violation and is left untouched.
func (t *Tables) InsertIfAbsent(ctx context.Context, p domain.Profile) (bool, error) {
	_, err := call(ctx, t.client, func() (struct{}, error) {
		_, _, err := t.client.restAPI().From(domain.TableProfiles).
			Insert(p, false, "", "minimal", "").
			Execute()
		return struct{}{}, err
	})
	if err != nil {
		err = restError(err)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == uniqueViolation {
			return false, nil
		}
		return false, fmt.Errorf("insert profile: %w", err)
	}
	return true, nil
}

// List returns posts newest first with their authors. An empty authorID
// lists every post.
func (t *Tables) List(ctx context.Context, authorID string) ([]domain.PostWithAuthor, error) {
	rows, err := call(ctx, t.client, func() ([]postRow, error) {
		q := t.client.restAPI().From(domain.TablePosts).Select(postSelect, "", false)
		if authorID != "" {
			q = q.Eq("user_id", authorID)
		}
		var rows []postRow
		_, err := q.Order("created_at", &postgrest.OrderOpts{Ascending: false}).ExecuteTo(&rows)
		return rows, err
	})
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", restError(err))
	}

	out := make([]domain.PostWithAuthor, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// Insert writes p and copies back the backend-assigned id and timestamp.
func (t *Tables) Insert(ctx context.Context, p *domain.Post) error {
	row := newPostRow{
		Caption:   p.Caption,
		ImageURL:  p.ImageURL,
		UserID:    p.UserID,
		CreatedAt: p.CreatedAt.UTC(),
	}
	rows, err := call(ctx, t.client, func() ([]postRow, error) {
		var rows []postRow
		_, err := t.client.restAPI().From(domain.TablePosts).
			Insert(row, false, "", "representation", "").
			ExecuteTo(&rows)
		return rows, err
	})
	if err != nil {
		return fmt.Errorf("insert post: %w", restError(err))
	}
	if len(rows) == 0 {
		return fmt.Errorf("insert post: no row returned")
	}
	p.ID = rows[0].ID
	if !rows[0].CreatedAt.IsZero() {
		p.CreatedAt = rows[0].CreatedAt
	}
	return nil
}

// Delete removes the post with id. A row that does not exist, or that the
// caller may not delete, yields domain.ErrPostNotFound.
func (t *Tables) Delete(ctx context.Context, id string) error {
	rows, err := call(ctx, t.client, func() ([]postRow, error) {
		var rows []postRow
		_, err := t.client.restAPI().From(domain.TablePosts).
			Delete("representation", "").
			Eq("id", id).
			ExecuteTo(&rows)
		return rows, err
	})
	if err != nil {
		return fmt.Errorf("delete post: %w", restError(err))
	}
	if len(rows) == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

type postRow struct {
	ID        string         `json:"id"`
	Caption   *string        `json:"caption"`
	ImageURL  *string        `json:"image_url"`
	UserID    string         `json:"user_id"`
	CreatedAt time.Time      `json:"created_at"`
	Profiles  *domain.Author `json:"profiles"`
}

func (r postRow) toDomain() domain.PostWithAuthor {
	return domain.PostWithAuthor{
		Post: domain.Post{
			ID:        r.ID,
			Caption:   r.Caption,
			ImageURL:  r.ImageURL,
			UserID:    r.UserID,
			CreatedAt: r.CreatedAt,
		},
		Author: r.Profiles,
	}
}

type newPostRow struct {
	Caption   *string   `json:"caption"`
	ImageURL  *string   `json:"image_url"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
