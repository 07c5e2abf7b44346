package models

import "time"

// Class is a recurring swim course (e.g. "Dolphins", level 2).
type Class struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Level      string    `db:"level" json:"level"`
	Instructor string    `db:"instructor" json:"instructor"`
	Capacity   int       `db:"capacity" json:"capacity"`
	PriceCents int64     `db:"price_cents" json:"price_cents"`
	Currency   string    `db:"currency" json:"currency"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// ClassSession is a single scheduled occurrence of a class, shown on the
// booking calendar.
type ClassSession struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	StartsAt  time.Time `db:"starts_at" json:"starts_at"`
	EndsAt    time.Time `db:"ends_at" json:"ends_at"`
	Lane      string    `db:"lane" json:"lane"`
	Capacity  int       `db:"capacity" json:"capacity"`
	Booked    int       `db:"booked" json:"booked"`
	Cancelled bool      `db:"cancelled" json:"cancelled"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ClassSessionDetail enriches a session with its class info for calendar rows.
type ClassSessionDetail struct {
	ClassSession
	ClassName  string `db:"class_name" json:"class_name"`
	ClassLevel string `db:"class_level" json:"class_level"`
	Instructor string `db:"instructor" json:"instructor"`
}

// SessionFilter narrows down calendar sessions.
type SessionFilter struct {
	ClassID  string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}
