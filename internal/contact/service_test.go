package contact

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasfrl/api/internal/email"
	"github.com/tasfrl/api/internal/logging"
)

type fakeRepo struct {
	mu          sync.Mutex
	submissions []Submission
	err         error
}

func (r *fakeRepo) Create(ctx context.Context, name, emailAddr, message string) (*Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}

	s := Submission{
		ID:        int64(len(r.submissions) + 1),
		Name:      name,
		Email:     emailAddr,
		Message:   message,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	r.submissions = append(r.submissions, s)
	return &s, nil
}

func (r *fakeRepo) ListRecent(ctx context.Context, limit int) ([]Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	if len(r.submissions) > limit {
		return r.submissions[:limit], nil
	}
	return r.submissions, nil
}

type fakeNotifier struct {
	err    error
	called chan email.ContactNotification
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{called: make(chan email.ContactNotification, 1)}
}

func (n *fakeNotifier) SendContactNotification(ctx context.Context, notification email.ContactNotification) error {
	n.called <- notification
	return n.err
}

func newTestService(t *testing.T) (*Service, *fakeRepo, *fakeNotifier) {
	t.Helper()
	repo := &fakeRepo{}
	notifier := newFakeNotifier()
	return NewService(repo, notifier, logging.NewLogger(true)), repo, notifier
}

func waitForNotification(t *testing.T, n *fakeNotifier) email.ContactNotification {
	t.Helper()
	select {
	case notification := <-n.called:
		return notification
	case <-time.After(time.Second):
		t.Fatal("notification was never attempted")
		return email.ContactNotification{}
	}
}

func TestSubmit_StoresNormalizedSubmission(t *testing.T) {
	svc, repo, notifier := newTestService(t)

	submission, err := svc.Submit(context.Background(), SubmitInput{
		Name:    "  Jane Doe  ",
		Email:   " Jane@Example.COM ",
		Message: "  Hello there\nsecond line  ",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), submission.ID)
	assert.Equal(t, "Jane Doe", submission.Name)
	assert.Equal(t, "jane@example.com", submission.Email)
	assert.Equal(t, "Hello there\nsecond line", submission.Message)
	assert.False(t, submission.CreatedAt.IsZero())

	require.Len(t, repo.submissions, 1)

	notification := waitForNotification(t, notifier)
	assert.Equal(t, submission.ID, notification.SubmissionID)
	assert.Equal(t, "jane@example.com", notification.Email)
}

func TestSubmit_Validation(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		input   SubmitInput
		wantErr error
	}{
		{
			name:    "missing name",
			input:   SubmitInput{Email: "a@x.com", Message: "hi"},
			wantErr: ErrMissingFields,
		},
		{
			name:    "missing email",
			input:   SubmitInput{Name: "Jane", Message: "hi"},
			wantErr: ErrMissingFields,
		},
		{
			name:    "missing message",
			input:   SubmitInput{Name: "Jane", Email: "a@x.com"},
			wantErr: ErrMissingFields,
		},
		{
			name:    "invalid email",
			input:   SubmitInput{Name: "Jane", Email: "not-an-email", Message: "hi"},
			wantErr: ErrInvalidEmail,
		},
		{
			name:    "message too long",
			input:   SubmitInput{Name: "Jane", Email: "a@x.com", Message: strings.Repeat("a", 2001)},
			wantErr: ErrMessageTooLong,
		},
		{
			name: "missing field wins over bad email",
			input: SubmitInput{
				Email:   "not-an-email",
				Message: strings.Repeat("a", 2001),
			},
			wantErr: ErrMissingFields,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Empty(t, repo.submissions)
}

func TestSubmit_MessageAtLimit(t *testing.T) {
	svc, _, notifier := newTestService(t)

	_, err := svc.Submit(context.Background(), SubmitInput{
		Name:    "Jane",
		Email:   "a@x.com",
		Message: strings.Repeat("a", 2000),
	})
	require.NoError(t, err)
	waitForNotification(t, notifier)
}

func TestSubmit_NotificationFailureDoesNotFailSubmission(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	notifier.err = errors.New("smtp unreachable")

	submission, err := svc.Submit(context.Background(), SubmitInput{
		Name:    "Jane",
		Email:   "a@x.com",
		Message: "hello",
	})
	require.NoError(t, err)
	require.NotNil(t, submission)
	assert.Len(t, repo.submissions, 1)

	waitForNotification(t, notifier)
}

func TestListRecent(t *testing.T) {
	svc, repo, _ := newTestService(t)

	repo.submissions = []Submission{
		{ID: 2, Name: "B"},
		{ID: 1, Name: "A"},
	}

	submissions, err := svc.ListRecent(context.Background())
	require.NoError(t, err)
	assert.Len(t, submissions, 2)
}
