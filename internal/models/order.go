package models

import "time"

// PaymentStatus is the lifecycle of an order's payment fields. Once an order
// reaches StatusPaid it never leaves it.
type PaymentStatus string

const (
	StatusPending PaymentStatus = "pending"
	StatusPaid    PaymentStatus = "paid"
	StatusFailed  PaymentStatus = "failed"
)

// Order is a general event order. The reconciliation engine is the sole
// writer of its payment fields.
type Order struct {
	OrderNo        string
	Email          string
	Name           string
	ExpectedAmount float64
	PaymentStatus  PaymentStatus
	GatewayTradeID string
	PaidAt         *time.Time
	CreatedAt      time.Time
}

// Attendee is one participant on a course registration.
type Attendee struct {
	Name  string
	Email string
}

// CourseRegistration is a course-signup order. Its order number on the wire
// carries a course prefix followed by the numeric registration id.
type CourseRegistration struct {
	ID             int64
	Attendees      []Attendee
	Newsletter     bool
	ExpectedAmount float64
	PaymentStatus  PaymentStatus
	GatewayTradeID string
	PaidAt         *time.Time
	CreatedAt      time.Time
}
