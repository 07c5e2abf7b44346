package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
)

// EnrollmentPaymentStatus tracks whether the enrollment has been paid for.
type EnrollmentPaymentStatus string

// Possible payment statuses on an enrollment.
const (
	EnrollmentPaymentPending EnrollmentPaymentStatus = "PENDING"
	EnrollmentPaymentPaid    EnrollmentPaymentStatus = "PAID"
)

// Enrollment registers a student in a class. Cancelled enrollments keep their
// row: CancelledAt drives the visibility window and CleanupLoggedAt marks
// rows the expiry sweep has already processed.
type Enrollment struct {
	ID              string                  `db:"id" json:"id"`
	StudentID       string                  `db:"student_id" json:"student_id"`
	ClassID         string                  `db:"class_id" json:"class_id"`
	Status          EnrollmentStatus        `db:"status" json:"status"`
	PaymentStatus   EnrollmentPaymentStatus `db:"payment_status" json:"payment_status"`
	CancelledAt     *time.Time              `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CleanupLoggedAt *time.Time              `db:"cleanup_logged_at" json:"-"`
	EnrolledAt      time.Time               `db:"enrolled_at" json:"enrolled_at"`
	UpdatedAt       time.Time               `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student and class info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	ClassName   string `db:"class_name" json:"class_name"`
	ClassLevel  string `db:"class_level" json:"class_level"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	ClassID   string
	Status    EnrollmentStatus
	OwnerID   string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
