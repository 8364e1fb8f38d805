package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutputState string

const (
	OutputStateRunning OutputState = "RUNNING"
	OutputStateStopped OutputState = "STOPPED"
)

// Output is a persisted record output definition (where forwarded records go).
type Output struct {
	ID            uuid.UUID       `db:"id"`
	Type          string          `db:"type"`
	Title         string          `db:"title"`
	Configuration json.RawMessage `db:"configuration"`
	CreatedAt     time.Time       `db:"created_at"`
	DesiredState  OutputState     `db:"desired_state"`
}
