// Package model defines the persisted entities of the planning domain.
package model

import (
	"time"

	"github.com/google/uuid"
)

// PlanType partitions a user's plans. sort_order is dense within (user, type).
type PlanType string

const (
	PlanTypeMain     PlanType = "Main"
	PlanTypeArchived PlanType = "Archived"
)

// Valid reports whether t is a known plan type.
func (t PlanType) Valid() bool {
	return t == PlanTypeMain || t == PlanTypeArchived
}

// User is the identity anchor. A user with no email is anonymous: it exists
// only through the device that created it and can later be merged into a
// full account.
type User struct {
	ID        uuid.UUID
	Email     *string
	Name      *string
	CreatedAt time.Time
}

// Anonymous reports whether the user has not yet attached an email.
func (u User) Anonymous() bool { return u.Email == nil }

// Device is an authenticated client installation. Fingerprint is unique
// across all devices; a user holds at most quota.MaxDevicesPerUser of them.
type Device struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Platform    string
	Fingerprint string
	Info        string
	CreatedAt   time.Time
}

// Plan is a named ordered container of tasks. SortOrder is its zero-based
// position within the (UserID, Type) partition. DonePercent is the derived
// "done/total" summary of its tasks.
type Plan struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Title       *string
	Starts      *time.Time
	Ends        *time.Time
	Type        PlanType
	DonePercent string
	SortOrder   int
	Shared      bool
	Members     []User
	Owner       User
	CreatedAt   time.Time
}

// Task belongs to exactly one plan. SortOrder is its zero-based position
// within the plan.
type Task struct {
	ID        uuid.UUID
	PlanID    uuid.UUID
	Title     string
	Done      bool
	SortOrder int
	CreatedAt time.Time
}

// PlanMember grants a non-owner access to a plan. Unique per (plan, user).
type PlanMember struct {
	PlanID    uuid.UUID
	UserID    uuid.UUID
	CreatedAt time.Time
}

// SuggestedEmail records a contact suggested to a user after a share.
// Unique per (user, email); duplicate inserts are no-ops.
type SuggestedEmail struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Email     string
	CreatedAt time.Time
}

// Traffic is an audit record written off the request path.
type Traffic struct {
	ID        uuid.UUID
	ActorID   uuid.UUID
	Action    string
	Detail    string
	CreatedAt time.Time
}
