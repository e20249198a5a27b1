package domain

import "time"

// TablePosts and TableProfiles are the backend tables the client touches.
const (
	TablePosts    = "posts"
	TableProfiles = "profiles"
)

// FeedScope selects which posts a feed shows. An empty AuthorID is the global feed.
type FeedScope struct {
	AuthorID string
}

// GlobalFeed is the scope of the public feed.
var GlobalFeed = FeedScope{}

// AuthorFeed returns the scope of a single author's posts.
func AuthorFeed(authorID string) FeedScope {
	return FeedScope{AuthorID: authorID}
}

// Key identifies the scope for routing and metrics.
func (s FeedScope) Key() string {
	if s.AuthorID == "" {
		return "global"
	}
	return "author:" + s.AuthorID
}

// ChangeType is the kind of row change reported by the change stream.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeFilter narrows a change-stream subscription. An empty AuthorID
// matches every row of Table.
type ChangeFilter struct {
	Table    string
	AuthorID string
}

// ChangeEvent is a single change notification.
type ChangeEvent struct {
	Table     string         `json:"table"`
	Type      ChangeType     `json:"type"`
	Record    map[string]any `json:"record,omitempty"`
	OldRecord map[string]any `json:"old_record,omitempty"`
}

// FeedSnapshot is one revision of a synchronized feed.
type FeedSnapshot struct {
	Scope     FeedScope     `json:"-"`
	Posts     []DisplayPost `json:"posts"`
	Revision  uint64        `json:"revision"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// ActivityKind names an audited user action.
type ActivityKind string

const (
	ActivitySignedUp    ActivityKind = "signed_up"
	ActivitySignedIn    ActivityKind = "signed_in"
	ActivitySignedOut   ActivityKind = "signed_out"
	ActivityPostCreated ActivityKind = "post_created"
	ActivityPostDeleted ActivityKind = "post_deleted"
)

// ActivityEvent is an audit record of a user action.
type ActivityEvent struct {
	Kind    ActivityKind
	UserID  string
	Subject string // optional: post id
	At      time.Time
}
