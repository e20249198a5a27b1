package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/framez/framez-core/internal/core/domain"
	"github.com/framez/framez-core/internal/core/ports"
)

// PostService implements ports.PostService over the posts table and the
// image bucket.
type PostService struct {
	profiles ports.ProfileReconciler
	posts    ports.PostStore
	objects  ports.ObjectStorage
	activity ports.ActivityRecorder
	now      func() time.Time
	log      zerolog.Logger
}

// NewPostService returns a PostService. activity may be nil.
func NewPostService(
	profiles ports.ProfileReconciler,
	posts ports.PostStore,
	objects ports.ObjectStorage,
	activity ports.ActivityRecorder,
	log zerolog.Logger,
) *PostService {
	return &PostService{
		profiles: profiles,
		posts:    posts,
		objects:  objects,
		activity: activity,
		now:      time.Now,
		log:      log,
	}
}

// ListAll returns every post, newest first.
func (s *PostService) ListAll(ctx context.Context) ([]domain.DisplayPost, error) {
	return s.list(ctx, "list posts", "")
}

// ListByAuthor returns one author's posts, newest first.
func (s *PostService) ListByAuthor(ctx context.Context, authorID string) ([]domain.DisplayPost, error) {
	if authorID == "" {
		return nil, domain.NewError(domain.KindFetch, "list author posts", fmt.Errorf("author id is required"))
	}
	return s.list(ctx, "list author posts", authorID)
}

func (s *PostService) list(ctx context.Context, op, authorID string) ([]domain.DisplayPost, error) {
	rows, err := s.posts.List(ctx, authorID)
	if err != nil {
		return nil, domain.NewError(domain.KindFetch, op, err)
	}

	out := make([]domain.DisplayPost, 0, len(rows))
	for _, row := range rows {
		if authorID != "" && row.UserID != authorID {
			continue
		}
		out = append(out, domain.NewDisplayPost(row))
	}
	slices.SortStableFunc(out, func(a, b domain.DisplayPost) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
	return out, nil
}

// Create validates, reconciles the author profile, uploads the optional
// image and inserts the post row. Steps run strictly in order; any failure
// is reported as a single post creation error.
func (s *PostService) Create(ctx context.Context, identity domain.Identity, in ports.CreatePostInput) (*domain.Post, error) {
	if identity.ID == "" {
		return nil, domain.NewError(domain.KindPostCreation, "create post", domain.ErrNotAuthenticated)
	}
	if err := domain.ValidatePostContent(in.Caption, in.Image); err != nil {
		return nil, domain.NewError(domain.KindPostCreation, "create post", err)
	}

	if err := s.profiles.EnsureProfile(ctx, identity); err != nil {
		s.log.Warn().Err(err).Str("user_id", identity.ID).Msg("profile reconcile failed, creating post anyway")
	}

	var imageURL *string
	if in.Image != nil && len(in.Image.Data) > 0 {
		objectPath := domain.ObjectPath(identity.ID, s.now(), in.Image.Ext())
		if err := s.objects.Upload(ctx, objectPath, in.Image.Data, in.Image.MIMEType()); err != nil {
			return nil, domain.NewError(domain.KindPostCreation, "create post", fmt.Errorf("upload image: %w", err))
		}
		url := s.objects.PublicURL(objectPath)
		imageURL = &url
	}

	post := &domain.Post{
		ImageURL:  imageURL,
		UserID:    identity.ID,
		CreatedAt: s.now().UTC(),
	}
	if strings.TrimSpace(in.Caption) != "" {
		caption := in.Caption
		post.Caption = &caption
	}

	if err := s.posts.Insert(ctx, post); err != nil {
		ev := s.log.Error().Err(err).Str("user_id", identity.ID)
		if imageURL != nil {
			ev = ev.Str("orphaned_object", domain.ObjectPathFromURL(identity.ID, *imageURL))
		}
		ev.Msg("post insert failed")
		return nil, domain.NewError(domain.KindPostCreation, "create post", fmt.Errorf("insert post: %w", err))
	}

	s.record(ctx, domain.ActivityPostCreated, identity.ID, post.ID)
	s.log.Info().Str("post_id", post.ID).Str("user_id", identity.ID).Bool("with_image", imageURL != nil).Msg("post created")
	return post, nil
}

// Delete removes a post owned by the requester. Removing the stored image is
// best-effort and never blocks the row deletion.
func (s *PostService) Delete(ctx context.Context, in ports.DeletePostInput) error {
	if !in.Confirmed {
		return domain.NewError(domain.KindDeletion, "delete post", domain.ErrNotConfirmed)
	}
	if in.RequesterID == "" || in.AuthorID != in.RequesterID {
		return domain.NewError(domain.KindDeletion, "delete post", domain.ErrForbidden)
	}

	if in.ImageURL != "" {
		if objectPath := domain.ObjectPathFromURL(in.AuthorID, in.ImageURL); objectPath != "" {
			if err := s.objects.Remove(ctx, objectPath); err != nil {
				s.log.Warn().Err(err).Str("post_id", in.PostID).Str("object", objectPath).Msg("failed to remove post image")
			}
		}
	}

	if err := s.posts.Delete(ctx, in.PostID); err != nil {
		return domain.NewError(domain.KindDeletion, "delete post", err)
	}

	s.record(ctx, domain.ActivityPostDeleted, in.RequesterID, in.PostID)
	s.log.Info().Str("post_id", in.PostID).Msg("post deleted")
	return nil
}

// CanDelete reports whether the delete affordance may be shown for post.
func CanDelete(post domain.DisplayPost, identity *domain.Identity) bool {
	return post.OwnedBy(identity)
}

func (s *PostService) record(ctx context.Context, kind domain.ActivityKind, userID, subject string) {
	if s.activity == nil {
		return
	}
	ev := domain.ActivityEvent{Kind: kind, UserID: userID, Subject: subject, At: s.now().UTC()}
	if err := s.activity.Record(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("kind", string(kind)).Msg("failed to record activity")
	}
}
