package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the persisted account record the realtime core reads to decide
// reachability and activity. Account CRUD lives outside this service.
type User struct {
	ID       uuid.UUID `db:"id" json:"id"`
	Username string    `db:"username" json:"username"`
	Active   bool      `db:"active" json:"active"`
	Online   bool      `db:"online" json:"online"`
	LastSeen time.Time `db:"last_seen" json:"last_seen"`
}
