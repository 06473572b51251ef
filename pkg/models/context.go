package models

import (
	"time"

	"github.com/google/uuid"
)

// Context binds a user to a GitHub repository/branch that can be analyzed.
type Context struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	UserID    uuid.UUID `db:"user_id"    json:"user_id"`
	Name      string    `db:"name"       json:"name"`
	RepoURL   string    `db:"repo_url"   json:"repo_url"`
	Branch    string    `db:"branch"     json:"branch"`
	IsActive  bool      `db:"is_active"  json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
