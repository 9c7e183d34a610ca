package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/coursedesk/payment-service/internal/interfaces"
	"github.com/coursedesk/payment-service/internal/models"
)

type RegistrationRepository struct {
	db *sql.DB
}

func NewRegistrationRepository(db *sql.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

func (r *RegistrationRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS course_registrations (
			id BIGSERIAL PRIMARY KEY,
			attendee_name VARCHAR(255) NOT NULL,
			attendee_email VARCHAR(255) NOT NULL,
			attendee2_name VARCHAR(255),
			attendee2_email VARCHAR(255),
			newsletter BOOLEAN NOT NULL DEFAULT FALSE,
			expected_amount NUMERIC(12,2) NOT NULL,
			payment_status VARCHAR(20) NOT NULL DEFAULT 'pending',
			gateway_trade_id VARCHAR(64),
			paid_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_course_registrations_payment_status ON course_registrations(payment_status)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (r *RegistrationRepository) Create(ctx context.Context, reg *models.CourseRegistration) error {
	if len(reg.Attendees) == 0 {
		return errors.New("registration requires at least one attendee")
	}
	var name2, email2 sql.NullString
	if len(reg.Attendees) > 1 {
		name2 = sql.NullString{String: reg.Attendees[1].Name, Valid: true}
		email2 = sql.NullString{String: reg.Attendees[1].Email, Valid: true}
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO course_registrations
			(attendee_name, attendee_email, attendee2_name, attendee2_email, newsletter, expected_amount, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, reg.Attendees[0].Name, reg.Attendees[0].Email, name2, email2,
		reg.Newsletter, reg.ExpectedAmount, models.StatusPending).Scan(&reg.ID)
}

func (r *RegistrationRepository) GetByID(ctx context.Context, id int64) (*models.CourseRegistration, error) {
	var (
		reg          models.CourseRegistration
		name, email  string
		name2        sql.NullString
		email2       sql.NullString
		tradeID      sql.NullString
		paidAt       sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, attendee_name, attendee_email, attendee2_name, attendee2_email,
			newsletter, expected_amount, payment_status, gateway_trade_id, paid_at, created_at
		FROM course_registrations WHERE id = $1
	`, id).Scan(&reg.ID, &name, &email, &name2, &email2,
		&reg.Newsletter, &reg.ExpectedAmount, &reg.PaymentStatus, &tradeID, &paidAt, &reg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	reg.Attendees = []models.Attendee{{Name: name, Email: email}}
	if name2.Valid && email2.Valid {
		reg.Attendees = append(reg.Attendees, models.Attendee{Name: name2.String, Email: email2.String})
	}
	reg.GatewayTradeID = tradeID.String
	if paidAt.Valid {
		reg.PaidAt = &paidAt.Time
	}
	return &reg, nil
}

// MarkPaid mirrors OrderRepository.MarkPaid: one atomic conditional update,
// already=true for every caller that lost the race or arrived late.
func (r *RegistrationRepository) MarkPaid(ctx context.Context, id int64, gatewayTradeID string, paidAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE course_registrations
		SET payment_status = $1, gateway_trade_id = $2, paid_at = $3
		WHERE id = $4 AND payment_status = $5
	`, models.StatusPaid, gatewayTradeID, paidAt, id, models.StatusPending)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 1 {
		return false, nil
	}

	var status models.PaymentStatus
	err = r.db.QueryRowContext(ctx,
		`SELECT payment_status FROM course_registrations WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, interfaces.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	if status == models.StatusPending {
		return false, fmt.Errorf("registration %d: conditional update affected no rows while pending", id)
	}
	return true, nil
}

func (r *RegistrationRepository) MarkFailed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE course_registrations SET payment_status = $1
		WHERE id = $2 AND payment_status = $3
	`, models.StatusFailed, id, models.StatusPending)
	return err
}
