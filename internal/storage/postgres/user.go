package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"codeweave/backend/internal/logging"
	"codeweave/backend/pkg/models"
)

// UserAdapter persists user profiles in the user_profiles table.
type UserAdapter struct {
	adapter[models.UserProfile]
}

// NewUserAdapter creates a user profile adapter over the shared client.
func NewUserAdapter(client *Client, logger *logging.Logger) *UserAdapter {
	return &UserAdapter{adapter[models.UserProfile]{
		client: client,
		logger: logger,
		meta: tableMeta[models.UserProfile]{
			table: "user_profiles",
			columns: []string{
				"id", "username", "display_name", "avatar_url",
				"timezone", "preferences", "created_at", "updated_at",
			},
			selectExprs: []string{
				"id::text", "username", "display_name", "avatar_url",
				"timezone", "preferences", "created_at", "updated_at",
			},
			scan: func(row rowScanner) (*models.UserProfile, error) {
				var u models.UserProfile
				err := row.Scan(
					&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL,
					&u.Timezone, &u.Preferences, &u.CreatedAt, &u.UpdatedAt,
				)
				if err != nil {
					return nil, err
				}
				return &u, nil
			},
			insertArgs: func(u *models.UserProfile) []any {
				return []any{
					u.ID, u.Username, u.DisplayName, u.AvatarURL,
					u.Timezone, u.Preferences, u.CreatedAt, u.UpdatedAt,
				}
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
			hasUpdated: true,
		},
	}}
}

// GetByUsername returns the profile with the given username, or nil.
func (a *UserAdapter) GetByUsername(ctx context.Context, username string) (out *models.UserProfile, err error) {
	op := a.op("get_by_username")
	defer func() { a.done(ctx, "get_by_username", err) }()
	sql := "SELECT " + a.meta.selectList() + " FROM user_profiles WHERE username = $1 LIMIT 1"
	return a.queryOne(ctx, op, sql, username)
}

// GetByEmail returns the profile whose preferences carry the given
// email, or nil. Email lives inside the preferences document rather
// than as a first-class column, so the lookup goes through the json
// accessor.
func (a *UserAdapter) GetByEmail(ctx context.Context, email string) (out *models.UserProfile, err error) {
	op := a.op("get_by_email")
	defer func() { a.done(ctx, "get_by_email", err) }()
	sql := "SELECT " + a.meta.selectList() + " FROM user_profiles WHERE preferences->>'email' = $1 LIMIT 1"
	return a.queryOne(ctx, op, sql, email)
}
