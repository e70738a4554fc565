// Package domain contains the core data model of the port registry:
// the assignment record tying a service identity to a port number.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// AssignmentStatus represents the lifecycle state of an assignment
type AssignmentStatus string

const (
	// StatusActive means the assignment currently consumes its port
	StatusActive AssignmentStatus = "active"
	// StatusReleased means the port has been given back and may be
	// reassigned to a different service
	StatusReleased AssignmentStatus = "released"
)

// Assignment represents one service-to-port assignment record
type Assignment struct {
	ID          string           `json:"id"`
	Service     string           `json:"service"`
	Project     string           `json:"project,omitempty"`
	Description string           `json:"description,omitempty"`
	Port        int              `json:"port"`
	Status      AssignmentStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	LastSeen    time.Time        `json:"last_seen"`
	ReleasedAt  time.Time        `json:"released_at,omitempty"`
}

// NewAssignment creates an active assignment for the given service
func NewAssignment(service, project, description string, port int, now time.Time) *Assignment {
	return &Assignment{
		ID:          uuid.NewString(),
		Service:     service,
		Project:     project,
		Description: description,
		Port:        port,
		Status:      StatusActive,
		CreatedAt:   now,
		LastSeen:    now,
	}
}

// IsActive reports whether the assignment still holds its port
func (a *Assignment) IsActive() bool {
	return a.Status == StatusActive
}

// Touch refreshes the last-seen timestamp
func (a *Assignment) Touch(now time.Time) {
	a.LastSeen = now
}

// MarkReleased transitions the assignment to released. The record is kept
// for history; its port becomes eligible for reuse by other services.
func (a *Assignment) MarkReleased(now time.Time) {
	a.Status = StatusReleased
	a.ReleasedAt = now
}

// Clone returns a copy so callers can't mutate store-held records
func (a *Assignment) Clone() *Assignment {
	c := *a
	return &c
}

// RequestPortRequest is the body of POST /ports/request
type RequestPortRequest struct {
	Service       string `json:"service" binding:"required"`
	Project       string `json:"project"`
	Description   string `json:"description"`
	PreferredPort int    `json:"preferred_port"`
}

// ReleasePortRequest is the body of POST /ports/release
type ReleasePortRequest struct {
	Service string `json:"service" binding:"required"`
}
