// Package contact validates contact form submissions and delivers them.
package contact

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Delivery states of a stored message.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

var (
	// ErrDelivery is returned when the backend refuses or cannot take a message.
	ErrDelivery = errors.New("contact delivery failed")
	// ErrInvalid wraps validation failures of a submission.
	ErrInvalid = errors.New("invalid contact message")
)

// Message is one contact form submission.
type Message struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"required,max=200"`
	Email       string    `json:"email" validate:"required,email,max=320"`
	Body        string    `json:"message" validate:"required,max=5000"`
	SubmittedAt time.Time `json:"submitted_at"`
}

var validate = validator.New()

// NewMessage trims the form fields and stamps a fresh id.
func NewMessage(name, email, body string, now time.Time) Message {
	return Message{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(name),
		Email:       strings.TrimSpace(email),
		Body:        strings.TrimSpace(body),
		SubmittedAt: now.UTC(),
	}
}

// Validate reports missing fields and malformed addresses.
func (m Message) Validate() error {
	if err := validate.Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, strings.ToLower(fe.Field()))
			}
			return &ValidationError{Fields: fields}
		}
		return err
	}
	return nil
}

// ValidationError lists the offending form fields.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid contact message: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Sender delivers a message to its owner.
type Sender interface {
	Send(ctx context.Context, m Message) error
}
