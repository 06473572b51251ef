package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account resolved from GitHub OAuth.
type User struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	GithubID  int64     `db:"github_id"  json:"github_id"`
	Login     string    `db:"login"      json:"login"`
	Email     *string   `db:"email"      json:"email,omitempty"`
	AvatarURL *string   `db:"avatar_url" json:"avatar_url,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
