package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasfrl/api/internal/logging"
	"github.com/tasfrl/api/internal/ratelimit"
	"github.com/tasfrl/api/internal/user"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*user.User

	// getByOTPCode, when set, replaces the default code lookup.
	getByOTPCode func(code string) (*user.User, error)
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*user.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, email, passwordHash, otpCode string, otpExpiresAt time.Time) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	normalized := strings.ToLower(email)
	for _, u := range r.users {
		if u.Email == normalized {
			return nil, user.ErrDuplicateEmail
		}
	}

	now := time.Now()
	u := &user.User{
		ID:           uuid.New(),
		Email:        normalized,
		PasswordHash: passwordHash,
		IsVerified:   false,
		OTPCode:      &otpCode,
		OTPExpiresAt: &otpExpiresAt,
		OTPAttempts:  0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.users[u.ID] = u

	clone := *u
	return &clone, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	normalized := strings.ToLower(email)
	for _, u := range r.users {
		if u.Email == normalized {
			clone := *u
			return &clone, nil
		}
	}
	return nil, user.ErrNotFound
}

func (r *fakeUserRepo) GetByOTPCode(ctx context.Context, code string) (*user.User, error) {
	if r.getByOTPCode != nil {
		return r.getByOTPCode(code)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.OTPCode != nil && *u.OTPCode == code {
			clone := *u
			return &clone, nil
		}
	}
	return nil, user.ErrNotFound
}

func (r *fakeUserRepo) RefreshOTP(ctx context.Context, userID uuid.UUID, code string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok || u.IsVerified {
		return user.ErrNotFound
	}
	u.OTPCode = &code
	u.OTPExpiresAt = &expiresAt
	u.OTPAttempts = 0
	return nil
}

func (r *fakeUserRepo) IncrementOTPAttempts(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return user.ErrNotFound
	}
	u.OTPAttempts++
	return nil
}

func (r *fakeUserRepo) MarkVerified(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok || u.IsVerified {
		return user.ErrNotFound
	}
	u.IsVerified = true
	u.OTPCode = nil
	u.OTPExpiresAt = nil
	u.OTPAttempts = 0
	return nil
}

// mustGet returns the stored (not cloned) user for assertions.
func (r *fakeUserRepo) mustGet(t *testing.T, email string) *user.User {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == strings.ToLower(email) {
			return u
		}
	}
	t.Fatalf("user %s not found", email)
	return nil
}

type sentEmail struct {
	to   string
	code string
	link string
}

type fakeEmailService struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (s *fakeEmailService) SendVerificationEmail(ctx context.Context, toEmail, code, link string) error {
	return s.record(toEmail, code, link)
}

func (s *fakeEmailService) SendNewOTPEmail(ctx context.Context, toEmail, code, link string) error {
	return s.record(toEmail, code, link)
}

func (s *fakeEmailService) record(to, code, link string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentEmail{to: to, code: code, link: link})
	return nil
}

type fakeTokenService struct{}

func (fakeTokenService) CreateToken(userID uuid.UUID, email string, duration time.Duration) (string, error) {
	return fmt.Sprintf("token-%s", email), nil
}

func (fakeTokenService) VerifyToken(tokenStr string) (*TokenClaims, error) {
	return nil, ErrInvalidToken
}

func newTestService(t *testing.T) (*Service, *fakeUserRepo, *fakeEmailService) {
	t.Helper()

	repo := newFakeUserRepo()
	sender := &fakeEmailService{}
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), 5, 30*time.Minute)
	logger := logging.NewLogger(true)

	svc := NewService(repo, sender, fakeTokenService{}, limiter, logger, 10*time.Minute, time.Hour)
	return svc, repo, sender
}

var otpCodePattern = regexp.MustCompile(`^[0-9]{6}$`)

func TestRegister_CreatesUnverifiedUserWithOTP(t *testing.T) {
	svc, repo, sender := newTestService(t)

	newUser, err := svc.Register(context.Background(), "A@X.com", "password123", "https://example.org")
	require.NoError(t, err)
	require.NotNil(t, newUser)

	stored := repo.mustGet(t, "a@x.com")
	assert.Equal(t, "a@x.com", stored.Email)
	assert.False(t, stored.IsVerified)
	assert.Equal(t, 0, stored.OTPAttempts)
	require.NotNil(t, stored.OTPCode)
	assert.Regexp(t, otpCodePattern, *stored.OTPCode)
	require.NotNil(t, stored.OTPExpiresAt)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), *stored.OTPExpiresAt, 5*time.Second)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "a@x.com", sender.sent[0].to)
	assert.Equal(t, *stored.OTPCode, sender.sent[0].code)
	assert.Equal(t,
		fmt.Sprintf("https://example.org/verify?verification_code=%s", *stored.OTPCode),
		sender.sent[0].link,
	)
}

func TestRegister_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"missing email", "", "password123", ErrEmailRequired},
		{"bad email", "not-an-email", "password123", ErrInvalidEmailFormat},
		{"missing password", "a@x.com", "", ErrPasswordRequired},
		{"short password", "a@x.com", "short", ErrPasswordTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.email, tt.password, "http://localhost")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@x.com", "password123", "http://localhost")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "A@x.com", "password123", "http://localhost")
	assert.ErrorIs(t, err, user.ErrDuplicateEmail)
}

func TestRegister_EmailFailureKeepsAccount(t *testing.T) {
	svc, repo, sender := newTestService(t)
	sender.err = errors.New("smtp unreachable")

	_, err := svc.Register(context.Background(), "a@x.com", "password123", "http://localhost")
	assert.ErrorIs(t, err, ErrEmailDelivery)

	// The account survives the delivery failure; resend is the recovery path.
	stored := repo.mustGet(t, "a@x.com")
	assert.False(t, stored.IsVerified)
	assert.NotNil(t, stored.OTPCode)
}

func TestLogin(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@x.com", "password123", "http://localhost")
	require.NoError(t, err)

	token, err := svc.Login(ctx, "a@x.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "bearer", token.Type)
	assert.Equal(t, "token-a@x.com", token.Value)

	_, err = svc.Login(ctx, "a@x.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@x.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyOTP_SuccessThenAlreadyVerified(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@x.com", "password123", "http://localhost")
	require.NoError(t, err)

	code := *repo.mustGet(t, "a@x.com").OTPCode

	require.NoError(t, svc.VerifyOTP(ctx, code))

	stored := repo.mustGet(t, "a@x.com")
	assert.True(t, stored.IsVerified)
	assert.Nil(t, stored.OTPCode)
	assert.Nil(t, stored.OTPExpiresAt)
	assert.Equal(t, 0, stored.OTPAttempts)

	// The account no longer holds the code, so a repeat submission has to
	// find it some other way; simulate the second lookup still resolving
	// to the same account.
	repo.getByOTPCode = func(string) (*user.User, error) {
		clone := *stored
		return &clone, nil
	}

	err = svc.VerifyOTP(ctx, code)
	assert.ErrorIs(t, err, ErrAlreadyVerified)
	assert.True(t, stored.IsVerified)
}

func TestVerifyOTP_UnknownCode(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@x.com", "password123", "http://localhost")
	require.NoError(t, err)

	err = svc.VerifyOTP(ctx, "000000")
	assert.ErrorIs(t, err, user.ErrNotFound)

	// A miss records nothing against anyone.
	assert.Equal(t, 0, repo.mustGet(t, "a@x.com").OTPAttempts)
}

func TestVerifyOTP_MismatchIncrementsAttempts(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@x.com", "password123", "http://localhost")
	require.NoError(t, err)

	stored := repo.mustGet(t, "a@x.com")

	// Lookup resolves the account but the stored code no longer matches
	// (e.g. a resend raced the submission).
	repo.getByOTPCode = func(string) (*user.User, error) {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		clone := *stored
		return &clone, nil
	}

	for i := 1; i <= 3; i++ {
		err = svc.VerifyOTP(ctx, "999999")
		assert.ErrorIs(t, err, ErrInvalidOTP)
		assert.Equal(t, i, stored.OTPAttempts)
	}
	assert.False(t, stored.IsVerified)
}

func TestVerifyOTP_ExpiredCode(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@x.com", "password123", "http://localhost")
	require.NoError(t, err)

	stored := repo.mustGet(t, "a@x.com")
	past := time.Now().Add(-time.Minute)
	stored.OTPExpiresAt = &past

	err = svc.VerifyOTP(ctx, *stored.OTPCode)
	assert.ErrorIs(t, err, ErrOTPExpired)

	// Expiry is not a failed guess.
	assert.Equal(t, 0, stored.OTPAttempts)
	assert.False(t, stored.IsVerified)
}

func TestResendOTP_RegeneratesUnderLimit(t *testing.T) {
	svc, repo, sender := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@x.com", "password123", "http://localhost")
	require.NoError(t, err)

	stored := repo.mustGet(t, "a@x.com")
	stored.OTPAttempts = 3

	previous := *stored.OTPCode
	for i := 0; i < 5; i++ {
		require.NoError(t, svc.ResendOTP(ctx, "A@X.com", "http://localhost"))

		require.NotNil(t, stored.OTPCode)
		assert.Regexp(t, otpCodePattern, *stored.OTPCode)
		assert.Equal(t, 0, stored.OTPAttempts)
		previous = *stored.OTPCode
	}

	// 1 registration email + 5 resends.
	assert.Len(t, sender.sent, 6)

	err = svc.ResendOTP(ctx, "a@x.com", "http://localhost")
	assert.ErrorIs(t, err, ErrRateLimited)

	// The sixth attempt changes nothing.
	assert.Equal(t, previous, *stored.OTPCode)
	assert.Equal(t, 0, stored.OTPAttempts)
	assert.Len(t, sender.sent, 6)
}

func TestResendOTP_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.ResendOTP(context.Background(), "nobody@x.com", "http://localhost")
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestResendOTP_AlreadyVerified(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@x.com", "password123", "http://localhost")
	require.NoError(t, err)
	require.NoError(t, svc.VerifyOTP(ctx, *repo.mustGet(t, "a@x.com").OTPCode))

	err = svc.ResendOTP(ctx, "a@x.com", "http://localhost")
	assert.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestResendOTP_DeliveryFailureDoesNotCountAgainstLimit(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@x.com", "password123", "http://localhost")
	require.NoError(t, err)

	sender.err = errors.New("smtp unreachable")
	err = svc.ResendOTP(ctx, "a@x.com", "http://localhost")
	assert.ErrorIs(t, err, ErrEmailDelivery)

	// The failed send was never incremented, so five sends still fit.
	sender.err = nil
	for i := 0; i < 5; i++ {
		require.NoError(t, svc.ResendOTP(ctx, "a@x.com", "http://localhost"))
	}
	err = svc.ResendOTP(ctx, "a@x.com", "http://localhost")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestRegisterThenVerify_EndToEnd(t *testing.T) {
	svc, repo, sender := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@x.com", "pw123456", "https://app.example.org")
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	code := sender.sent[0].code
	require.Regexp(t, otpCodePattern, code)

	require.NoError(t, svc.VerifyOTP(ctx, code))

	stored := repo.mustGet(t, "a@x.com")
	assert.True(t, stored.IsVerified)
	assert.Nil(t, stored.OTPCode)
	assert.Nil(t, stored.OTPExpiresAt)
	assert.Equal(t, 0, stored.OTPAttempts)
}
