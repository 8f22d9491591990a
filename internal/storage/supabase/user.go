package supabase

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"

	"codeweave/backend/internal/logging"
	"codeweave/backend/pkg/models"
)

// UserAdapter persists user profiles through the user_profiles
// resource.
type UserAdapter struct {
	adapter[models.UserProfile]
}

// NewUserAdapter creates a user profile adapter over the shared client.
func NewUserAdapter(client *Client, logger *logging.Logger) *UserAdapter {
	return &UserAdapter{adapter[models.UserProfile]{
		client: client,
		logger: logger,
		meta: restMeta[models.UserProfile]{
			table: "user_profiles",
			columns: []string{
				"id", "username", "display_name", "avatar_url",
				"timezone", "preferences", "created_at", "updated_at",
			},
			prepare: func(u *models.UserProfile) {
				if u.ID == "" {
					u.ID = uuid.New().String()
				}
				if u.Timezone == "" {
					u.Timezone = "UTC"
				}
				if u.Preferences == nil {
					u.Preferences = map[string]any{}
				}
				now := time.Now().UTC()
				if u.CreatedAt.IsZero() {
					u.CreatedAt = now
				}
				u.UpdatedAt = now
			},
		},
	}}
}

// GetByUsername returns the profile with the given username, or nil.
func (a *UserAdapter) GetByUsername(ctx context.Context, username string) (out *models.UserProfile, err error) {
	op := a.op("get_by_username")
	defer func() { a.done(ctx, "get_by_username", err) }()
	return a.getOne(ctx, op, url.Values{"username": {"eq." + username}})
}

// GetByEmail returns the profile whose preferences carry the given
// email, or nil. The lookup uses the json accessor on the preferences
// document, mirroring the relational backend.
func (a *UserAdapter) GetByEmail(ctx context.Context, email string) (out *models.UserProfile, err error) {
	op := a.op("get_by_email")
	defer func() { a.done(ctx, "get_by_email", err) }()
	return a.getOne(ctx, op, url.Values{"preferences->>email": {"eq." + email}})
}
