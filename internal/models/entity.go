// Package models provides data model definitions for the FieldSync agent.
package models

import (
	"fmt"

	"github.com/google/uuid"
)

// EntityType identifies a syncable entity kind.
type EntityType string

const (
	EntityWorkOrder EntityType = "work_order"
	EntityTimeEntry EntityType = "time_entry"
	EntityPhoto     EntityType = "photo"
)

// Action represents a mutation intent against the remote system of record.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Sync priorities. Lower value drains first.
const (
	PriorityHigh   = 1
	PriorityNormal = 2
	PriorityLow    = 3
)

// Valid reports whether the entity type is one of the known kinds.
func (t EntityType) Valid() bool {
	switch t {
	case EntityWorkOrder, EntityTimeEntry, EntityPhoto:
		return true
	}
	return false
}

// Table returns the remote data-service table for the entity type.
func (t EntityType) Table() string {
	switch t {
	case EntityWorkOrder:
		return "work_orders"
	case EntityTimeEntry:
		return "time_entries"
	case EntityPhoto:
		return "photos"
	}
	return string(t)
}

// Priority returns the drain priority for the entity type. Work orders
// always go out before time entries and photos.
func (t EntityType) Priority() int {
	if t == EntityWorkOrder {
		return PriorityHigh
	}
	return PriorityNormal
}

// Valid reports whether the action is a known mutation kind.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// NewID generates a new UUID v4 string, used for local record and queue
// item identifiers. Never reused; unique per device.
func NewID() string {
	return uuid.New().String()
}

// ValidateID returns an error if s is not a well-formed UUID.
func ValidateID(s string) error {
	if _, err := uuid.Parse(s); err != nil {
		return fmt.Errorf("invalid id %q: %w", s, err)
	}
	return nil
}
