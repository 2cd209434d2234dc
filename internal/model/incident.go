// Package model defines the core incident and remediation data types.
package model

import (
	"encoding/json"
	"time"
)

// Kind classifies an incident.
type Kind string

const (
	KindQuery       Kind = "query"
	KindRemediation Kind = "remediation"
	KindHealthCheck Kind = "health_check"
)

// ValidKinds are the allowed incident kinds.
var ValidKinds = map[Kind]bool{
	KindQuery:       true,
	KindRemediation: true,
	KindHealthCheck: true,
}

// Incident is one persisted record of a query, remediation run, or health check.
// Incidents are append-only: created once, never mutated or deleted.
type Incident struct {
	ID        string          `json:"id"`
	Seq       int64           `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Kind      Kind            `json:"kind"`
	Narrative string          `json:"narrative"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Embedding []float32       `json:"embedding,omitempty"`
	Tags      []string        `json:"tags,omitempty"`
	Outcome   string          `json:"outcome,omitempty"`
	Tools     []string        `json:"tools,omitempty"`
}

// HasTag reports whether the incident carries tag.
func (i *Incident) HasTag(tag string) bool {
	for _, t := range i.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Relation names for incident links.
const (
	RelContextFor   = "context_for"
	RelRecurrenceOf = "recurrence_of"
)

// Link relates two incidents. FromID is always the newer incident.
type Link struct {
	FromID    string    `json:"from_id"`
	ToID      string    `json:"to_id"`
	Rel       string    `json:"rel"`
	CreatedAt time.Time `json:"created_at"`
}
