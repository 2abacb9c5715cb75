package model

import (
	"sort"
	"time"
)

// Mode selects the persistence partition a room lives in. It is fixed at
// creation and never changes.
type Mode string

const (
	ModeDurable   Mode = "durable"
	ModeEphemeral Mode = "ephemeral"
)

// IsValid reports whether the mode is one of the two known partitions.
func (m Mode) IsValid() bool {
	return m == ModeDurable || m == ModeEphemeral
}

type AttendanceAction string

const (
	AttendanceJoined AttendanceAction = "joined"
	AttendanceLeft   AttendanceAction = "left"
	AttendanceKicked AttendanceAction = "kicked"
)

// AttendanceEntry is one record in a room's append-only audit trail.
type AttendanceEntry struct {
	Username  string           `json:"username"`
	Action    AttendanceAction `json:"action"`
	Actor     string           `json:"actor,omitempty"` // set for kicks
	Timestamp time.Time        `json:"timestamp"`
}

// FailedAttempt tracks wrong-password joins per username within a room.
type FailedAttempt struct {
	Username    string    `json:"username"`
	Count       int       `json:"count"`
	LastAttempt time.Time `json:"last_attempt"`
	Reason      string    `json:"reason"`
}

// LeftUser records a member who departed (voluntarily or kicked) so the
// host's dashboard can show who is gone and why.
type LeftUser struct {
	Username string    `json:"username"`
	Reason   string    `json:"reason"`
	LeftAt   time.Time `json:"left_at"`
}

type Room struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Description      string            `json:"description,omitempty"`
	CreatedBy        string            `json:"created_by"`
	PasswordHash     string            `json:"password_hash,omitempty"`
	BurnAfterReading bool              `json:"burn_after_reading"`
	TimeLimit        int               `json:"time_limit,omitempty"` // minutes, 0 = none
	ExpiresAt        *time.Time        `json:"expires_at,omitempty"`
	MessageExpiry    int               `json:"message_expiry,omitempty"` // hours, durable only, 0 = never
	Mode             Mode              `json:"mode"`
	Members          []string          `json:"members"`
	Attendance       []AttendanceEntry `json:"attendance"`
	FailedAttempts   []FailedAttempt   `json:"failed_attempts,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// RoomSummary is the outward-facing view of a room. The password hash and
// security bookkeeping stay server-side.
type RoomSummary struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Description      string     `json:"description,omitempty"`
	CreatedBy        string     `json:"created_by"`
	HasPassword      bool       `json:"has_password"`
	BurnAfterReading bool       `json:"burn_after_reading"`
	TimeLimit        int        `json:"time_limit,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	MessageExpiry    int        `json:"message_expiry,omitempty"`
	Mode             Mode       `json:"mode"`
	MemberCount      int        `json:"member_count"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Summary returns the outward-facing view of the room.
func (r *Room) Summary() *RoomSummary {
	return &RoomSummary{
		ID:               r.ID,
		Name:             r.Name,
		Description:      r.Description,
		CreatedBy:        r.CreatedBy,
		HasPassword:      r.HasPassword(),
		BurnAfterReading: r.BurnAfterReading,
		TimeLimit:        r.TimeLimit,
		ExpiresAt:        r.ExpiresAt,
		MessageExpiry:    r.MessageExpiry,
		Mode:             r.Mode,
		MemberCount:      len(r.Members),
		CreatedAt:        r.CreatedAt,
	}
}

// HasPassword reports whether joining requires a password.
func (r *Room) HasPassword() bool {
	return r.PasswordHash != ""
}

// IsExpired reports whether the room's wall-clock limit has passed.
func (r *Room) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// IsHost reports whether userID created the room.
func (r *Room) IsHost(userID string) bool {
	return r.CreatedBy == userID
}

// IsMember reports whether userID is in the membership set.
func (r *Room) IsMember(userID string) bool {
	for _, m := range r.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// AddMember adds userID to the membership set. Adding an existing member is
// a no-op; the return value reports whether the set changed.
func (r *Room) AddMember(userID string) bool {
	if r.IsMember(userID) {
		return false
	}
	r.Members = append(r.Members, userID)
	return true
}

// RemoveMember removes userID from the membership set. Removing an absent
// member is a no-op; the return value reports whether the set changed.
func (r *Room) RemoveMember(userID string) bool {
	for i, m := range r.Members {
		if m == userID {
			r.Members = append(r.Members[:i], r.Members[i+1:]...)
			return true
		}
	}
	return false
}

// RecordAttendance appends an entry to the audit trail.
func (r *Room) RecordAttendance(username string, action AttendanceAction, actor string, at time.Time) {
	r.Attendance = append(r.Attendance, AttendanceEntry{
		Username:  username,
		Action:    action,
		Actor:     actor,
		Timestamp: at,
	})
}

// RecordFailedAttempt bumps the failure counter for username, creating the
// entry on first failure. The list stays ordered by username.
func (r *Room) RecordFailedAttempt(username, reason string, at time.Time) *FailedAttempt {
	for i := range r.FailedAttempts {
		if r.FailedAttempts[i].Username == username {
			r.FailedAttempts[i].Count++
			r.FailedAttempts[i].LastAttempt = at
			r.FailedAttempts[i].Reason = reason
			return &r.FailedAttempts[i]
		}
	}

	r.FailedAttempts = append(r.FailedAttempts, FailedAttempt{
		Username:    username,
		Count:       1,
		LastAttempt: at,
		Reason:      reason,
	})
	sort.Slice(r.FailedAttempts, func(i, j int) bool {
		return r.FailedAttempts[i].Username < r.FailedAttempts[j].Username
	})
	for i := range r.FailedAttempts {
		if r.FailedAttempts[i].Username == username {
			return &r.FailedAttempts[i]
		}
	}
	return nil
}
