package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"course-service/internal/models"
)

const paymentColumns = `p.id, p.user_id, p.course_id, p.amount, p.status, p.external_payment_ref,
	p.payment_link_ref, p.payment_link_url, p.created_at, p.updated_at`

// CompletePaymentParams identifies the checkout a completion webhook reported
type CompletePaymentParams struct {
	UserID             string
	CourseID           string
	ExternalPaymentRef string
	Currency           string
	// NewID generates row ids for rows the reconciliation may insert
	NewID func() string
	// NewInvoiceID generates the human-facing invoice number
	NewInvoiceID func() string
}

// Reconciliation is the outcome of completing a payment
type Reconciliation struct {
	Payment           *models.Payment
	Transitioned      bool // payment moved pending -> completed in this call
	Enrollment        *models.Enrollment
	EnrollmentCreated bool
	Invoice           *models.Invoice
	InvoiceCreated    bool
}

// CreatePayment creates a new payment record
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (id, user_id, course_id, amount, status, external_payment_ref, payment_link_ref, payment_link_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		payment.ID, payment.UserID, payment.CourseID, payment.Amount, payment.Status,
		payment.ExternalPaymentRef, payment.PaymentLinkRef, payment.PaymentLinkURL).
		Scan(&payment.CreatedAt, &payment.UpdatedAt)
}

// GetPaymentByID retrieves a payment with its course title
func (s *Store) GetPaymentByID(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, `
		SELECT `+paymentColumns+`, COALESCE(c.title, '') AS course_title
		FROM payments p LEFT JOIN courses c ON c.id = p.course_id
		WHERE p.id = $1`, id)
	if err != nil {
		return nil, notFound(err, "payment", id)
	}
	return &payment, nil
}

// ListPaymentsByUser returns a user's payments, newest first
func (s *Store) ListPaymentsByUser(ctx context.Context, userID string) ([]models.Payment, error) {
	payments := []models.Payment{}
	err := s.db.SelectContext(ctx, &payments, `
		SELECT `+paymentColumns+`, COALESCE(c.title, '') AS course_title
		FROM payments p LEFT JOIN courses c ON c.id = p.course_id
		WHERE p.user_id = $1
		ORDER BY p.created_at DESC`, userID)
	return payments, err
}

// FindLatestPayment returns the newest payment for the pair in the given status
func (s *Store) FindLatestPayment(ctx context.Context, userID, courseID, status string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, `
		SELECT `+paymentColumns+`
		FROM payments p
		WHERE p.user_id = $1 AND p.course_id = $2 AND p.status = $3
		ORDER BY p.created_at DESC
		LIMIT 1`, userID, courseID, status)
	if err != nil {
		return nil, notFound(err, "payment for course", courseID)
	}
	return &payment, nil
}

// FailPendingPayment marks the newest pending payment for the pair as failed.
// Returns ErrNotFound when nothing is pending, which makes redelivery a no-op.
func (s *Store) FailPendingPayment(ctx context.Context, userID, courseID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, `
		UPDATE payments p SET status = 'failed', updated_at = NOW()
		WHERE p.id = (
			SELECT id FROM payments
			WHERE user_id = $1 AND course_id = $2 AND status = 'pending'
			ORDER BY created_at DESC
			LIMIT 1
			FOR UPDATE
		) AND p.status = 'pending'
		RETURNING `+paymentColumns, userID, courseID)
	if err != nil {
		return nil, notFound(err, "pending payment for course", courseID)
	}
	return &payment, nil
}

// CompletePaymentTx completes the matching payment and ensures the enrollment
// and invoice in one transaction. Safe to call repeatedly and concurrently for
// the same checkout: the payment row is locked and the enrollment and invoice
// inserts are guarded by unique constraints.
func (s *Store) CompletePaymentTx(ctx context.Context, p CompletePaymentParams) (*Reconciliation, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var payment models.Payment
	err = tx.GetContext(ctx, &payment, `
		SELECT `+paymentColumns+`
		FROM payments p
		WHERE p.user_id = $1 AND p.course_id = $2 AND p.status IN ('pending', 'completed')
		ORDER BY (p.external_payment_ref = $3) DESC, (p.status = 'pending') DESC, p.created_at DESC
		LIMIT 1
		FOR UPDATE`, p.UserID, p.CourseID, p.ExternalPaymentRef)
	if err != nil {
		return nil, notFound(err, "open payment for course", p.CourseID)
	}

	result := &Reconciliation{Payment: &payment}

	if payment.Status == models.PaymentStatusPending {
		err = tx.QueryRowxContext(ctx, `
			UPDATE payments SET status = 'completed', external_payment_ref = $1, updated_at = NOW()
			WHERE id = $2
			RETURNING status, external_payment_ref, updated_at`, p.ExternalPaymentRef, payment.ID).
			Scan(&payment.Status, &payment.ExternalPaymentRef, &payment.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to complete payment: %w", err)
		}
		result.Transitioned = true
	}

	var enrollment models.Enrollment
	err = tx.GetContext(ctx, &enrollment, `
		INSERT INTO enrollments (id, student_id, course_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id, course_id) DO NOTHING
		RETURNING id, student_id, course_id, created_at`, p.NewID(), p.UserID, p.CourseID)
	switch {
	case err == nil:
		result.EnrollmentCreated = true
	case errors.Is(err, sql.ErrNoRows):
		err = tx.GetContext(ctx, &enrollment,
			"SELECT id, student_id, course_id, created_at FROM enrollments WHERE student_id = $1 AND course_id = $2",
			p.UserID, p.CourseID)
		if err != nil {
			return nil, fmt.Errorf("failed to load existing enrollment: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to ensure enrollment: %w", err)
	}
	result.Enrollment = &enrollment

	var invoice models.Invoice
	err = tx.GetContext(ctx, &invoice, `
		INSERT INTO invoices (id, invoice_id, user_id, course_id, amount, currency, external_payment_ref, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, course_id, external_payment_ref) DO NOTHING
		RETURNING id, invoice_id, user_id, course_id, amount, currency, external_payment_ref, status, created_at`,
		p.NewID(), p.NewInvoiceID(), p.UserID, p.CourseID, payment.Amount, p.Currency,
		p.ExternalPaymentRef, models.InvoiceStatusCompleted)
	switch {
	case err == nil:
		result.InvoiceCreated = true
	case errors.Is(err, sql.ErrNoRows):
		err = tx.GetContext(ctx, &invoice, `
			SELECT id, invoice_id, user_id, course_id, amount, currency, external_payment_ref, status, created_at
			FROM invoices WHERE user_id = $1 AND course_id = $2 AND external_payment_ref = $3`,
			p.UserID, p.CourseID, p.ExternalPaymentRef)
		if err != nil {
			return nil, fmt.Errorf("failed to load existing invoice: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to ensure invoice: %w", err)
	}
	result.Invoice = &invoice

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetInvoice retrieves the invoice issued for a checkout
func (s *Store) GetInvoice(ctx context.Context, userID, courseID, externalRef string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := s.db.GetContext(ctx, &invoice, `
		SELECT id, invoice_id, user_id, course_id, amount, currency, external_payment_ref, status, created_at
		FROM invoices WHERE user_id = $1 AND course_id = $2 AND external_payment_ref = $3`,
		userID, courseID, externalRef)
	if err != nil {
		return nil, notFound(err, "invoice for payment", externalRef)
	}
	return &invoice, nil
}

// ListInvoicesByUser returns the user's invoices, newest first
func (s *Store) ListInvoicesByUser(ctx context.Context, userID string) ([]models.Invoice, error) {
	invoices := []models.Invoice{}
	err := s.db.SelectContext(ctx, &invoices, `
		SELECT id, invoice_id, user_id, course_id, amount, currency, external_payment_ref, status, created_at
		FROM invoices WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return invoices, nil
}
