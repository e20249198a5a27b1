package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/framez/framez-core/internal/core/domain"
)

const listPostsSQL = `
SELECT p.id, p.caption, p.image_url, p.user_id, p.created_at,
       pr.username, pr.full_name, pr.avatar_url
FROM posts p
LEFT JOIN profiles pr ON pr.id = p.user_id
WHERE ($1 = '' OR p.user_id = $1)
ORDER BY p.created_at DESC`

// Store implements ports.ProfileStore and ports.PostStore on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InsertIfAbsent inserts p unless a profile with the same id exists.
func (s *Store) InsertIfAbsent(ctx context.Context, p domain.Profile) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (id, username, full_name, avatar_url, bio)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Username, p.FullName, p.AvatarURL, p.Bio,
	)
	if err != nil {
		return false, fmt.Errorf("insert profile: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns posts newest first joined with their author's profile.
func (s *Store) List(ctx context.Context, authorID string) ([]domain.PostWithAuthor, error) {
	rows, err := s.pool.Query(ctx, listPostsSQL, authorID)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var out []domain.PostWithAuthor
	for rows.Next() {
		var (
			row                           domain.PostWithAuthor
			username, fullName, avatarURL *string
		)
		if err := rows.Scan(&row.ID, &row.Caption, &row.ImageURL, &row.UserID, &row.CreatedAt,
			&username, &fullName, &avatarURL); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		row.Author = joinedAuthor(username, fullName, avatarURL)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return out, nil
}

// Insert writes p and fills in the generated id.
func (s *Store) Insert(ctx context.Context, p *domain.Post) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO posts (caption, image_url, user_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		p.Caption, p.ImageURL, p.UserID, p.CreatedAt.UTC(),
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// Delete removes the post with id, returning domain.ErrPostNotFound when no
// row matched.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

// joinedAuthor builds the author of a LEFT JOIN row; a missing profile
// leaves every column NULL.
func joinedAuthor(username, fullName, avatarURL *string) *domain.Author {
	if username == nil {
		return nil
	}
	return &domain.Author{Username: *username, FullName: fullName, AvatarURL: avatarURL}
}
