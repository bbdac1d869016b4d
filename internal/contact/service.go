package contact

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tasfrl/api/internal/email"
	"github.com/tasfrl/api/internal/logging"
)

var (
	ErrMissingFields  = errors.New("all fields (name, email, message) are required")
	ErrInvalidEmail   = errors.New("invalid email format")
	ErrMessageTooLong = errors.New("message cannot exceed 2000 characters")
)

// listLimit caps the admin listing.
const listLimit = 100

// SubmissionRepository is the persistence capability the service needs.
type SubmissionRepository interface {
	Create(ctx context.Context, name, email, message string) (*Submission, error)
	ListRecent(ctx context.Context, limit int) ([]Submission, error)
}

// Notifier delivers the admin notification for a new submission.
type Notifier interface {
	SendContactNotification(ctx context.Context, n email.ContactNotification) error
}

// SubmitInput is a raw contact-form payload before normalization.
type SubmitInput struct {
	Name    string `validate:"required"`
	Email   string `validate:"required,email"`
	Message string `validate:"required,max=2000"`
}

// Service records contact submissions and notifies the admin mailbox.
// Notification delivery is best effort: a failure is logged and never
// fails the submission.
type Service struct {
	repo     SubmissionRepository
	notifier Notifier
	logger   *logging.Logger
	validate *validator.Validate
}

func NewService(repo SubmissionRepository, notifier Notifier, logger *logging.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		validate: validator.New(),
	}
}

// Submit validates and records a contact message, then fires the admin
// notification without blocking the caller.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (*Submission, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	submission, err := s.repo.Create(ctx,
		strings.TrimSpace(input.Name),
		strings.ToLower(strings.TrimSpace(input.Email)),
		strings.TrimSpace(input.Message),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to store contact submission: %w", err)
	}

	go func() {
		// Detached context: the HTTP response must not wait on SMTP.
		notifyCtx := context.Background()
		err := s.notifier.SendContactNotification(notifyCtx, email.ContactNotification{
			SubmissionID: submission.ID,
			Name:         submission.Name,
			Email:        submission.Email,
			Message:      submission.Message,
		})
		if err != nil {
			s.logger.Warn("failed to send contact notification",
				"submission_id", submission.ID,
				"error", err,
			)
		}
	}()

	return submission, nil
}

// ListRecent returns the newest submissions for the admin view.
func (s *Service) ListRecent(ctx context.Context) ([]Submission, error) {
	submissions, err := s.repo.ListRecent(ctx, listLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list contact submissions: %w", err)
	}
	return submissions, nil
}

// validateInput maps validator failures onto the ordered error taxonomy:
// any missing field wins over a malformed email, which wins over an
// overlong message.
func (s *Service) validateInput(input SubmitInput) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return fmt.Errorf("failed to validate input: %w", err)
	}

	for _, fe := range fieldErrors {
		if fe.Tag() == "required" {
			return ErrMissingFields
		}
	}
	for _, fe := range fieldErrors {
		if fe.Tag() == "email" {
			return ErrInvalidEmail
		}
	}
	for _, fe := range fieldErrors {
		if fe.Tag() == "max" {
			return ErrMessageTooLong
		}
	}

	return fmt.Errorf("failed to validate input: %w", err)
}
