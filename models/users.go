package models

import "time"

// User represents a user account in the system. Credential and policy
// fields are never serialized directly; the response projector decides
// what a caller may see.
type User struct {
	ID                     int64      `json:"id"`
	Login                  string     `json:"login"`
	DisplayName            string     `json:"display_name"`
	Nickname               string     `json:"nickname"`
	Enabled                bool       `json:"enabled"`
	CredentialHash         string     `json:"-"`
	PasswordChangeRequired bool       `json:"-"`
	EmailEnabled           bool       `json:"-"`
	DisabledReason         string     `json:"-"`
	MFAEnabled             bool       `json:"-"`
	ExternalHandle         *string    `json:"-"`
	LastSeenAt             *time.Time `json:"-"`
	CreatedAt              time.Time  `json:"-"`
}

// Group represents a named group.
type Group struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Membership ties a user to a group. CanBless marks the right to grant or
// revoke other users' membership in this group.
type Membership struct {
	Group    Group `json:"group"`
	CanBless bool  `json:"can_bless"`
}

// SavedSearch is a stored query owned by a single user.
type SavedSearch struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Query string `json:"query"`
}

// Fault is a non-fatal per-item resolution failure, reported alongside
// successful results when the caller opted into permissive resolution.
type Fault struct {
	Token   string `json:"name"`
	Message string `json:"message"`
}

// FieldDelta records a single field change as before/after strings.
// Absent values are normalized to the empty string.
type FieldDelta struct {
	Removed string `json:"removed"`
	Added   string `json:"added"`
}

// UserChangeRecord reports the per-field deltas applied to one user.
type UserChangeRecord struct {
	ID      int64                 `json:"id"`
	Changes map[string]FieldDelta `json:"changes"`
}

// UserUpdate is a fully validated change plan for a single user. Nil
// pointers mean "leave unchanged". Group deltas reference group ids and
// are applied together with the field updates in one transaction.
type UserUpdate struct {
	UserID            int64
	SetLogin          *string
	SetDisplayName    *string
	SetDisabledReason *string
	SetCredentialHash *string
	SetEmailEnabled   *bool
	GroupAdds         []int64
	GroupRemoves      []int64
	BlessAdds         []int64
	BlessRemoves      []int64
}
