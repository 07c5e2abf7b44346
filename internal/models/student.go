package models

import "time"

// Student is a swimmer profile linked to a portal account. A parent account
// may own several profiles (siblings enrolled separately).
type Student struct {
	ID          string     `db:"id" json:"id"`
	UserID      string     `db:"user_id" json:"user_id"`
	FullName    string     `db:"full_name" json:"full_name"`
	Level       string     `db:"level" json:"level"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}
