package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/tasfrl/api/internal/logging"
	"github.com/tasfrl/api/internal/otp"
	"github.com/tasfrl/api/internal/ratelimit"
	"github.com/tasfrl/api/internal/user"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailRequired      = errors.New("email is required")
	ErrPasswordRequired   = errors.New("password is required")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
	ErrInvalidEmailFormat = errors.New("invalid email format")
	ErrAlreadyVerified    = errors.New("user is already verified")
	ErrInvalidOTP         = errors.New("invalid otp code")
	ErrOTPExpired         = errors.New("otp code has expired")
	ErrRateLimited        = errors.New("too many otp resend attempts")
	ErrEmailDelivery      = errors.New("email failed to send")
)

// resendNamespace prefixes limiter keys so OTP resends get their own
// fixed window per email.
const resendNamespace = "otp_resend"

// UserRepository is the persistence capability the verification flow needs.
type UserRepository interface {
	Create(ctx context.Context, email, passwordHash, otpCode string, otpExpiresAt time.Time) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByOTPCode(ctx context.Context, code string) (*user.User, error)
	RefreshOTP(ctx context.Context, userID uuid.UUID, code string, expiresAt time.Time) error
	IncrementOTPAttempts(ctx context.Context, userID uuid.UUID) error
	MarkVerified(ctx context.Context, userID uuid.UUID) error
}

// EmailService defines the interface for OTP email delivery
type EmailService interface {
	SendVerificationEmail(ctx context.Context, toEmail, code, verificationLink string) error
	SendNewOTPEmail(ctx context.Context, toEmail, code, verificationLink string) error
}

// TokenService defines the interface for token creation and validation
type TokenService interface {
	CreateToken(userID uuid.UUID, email string, duration time.Duration) (string, error)
	VerifyToken(tokenStr string) (*TokenClaims, error)
}

// Token is the bearer credential returned by a successful login.
type Token struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Service governs an account's progression from unverified to verified:
// registration issues a code, verification consumes it, resend regenerates
// it behind a fixed-window rate limit.
type Service struct {
	userRepo            UserRepository
	emailService        EmailService
	tokenService        TokenService
	limiter             *ratelimit.Limiter
	logger              *logging.Logger
	otpTTL              time.Duration
	accessTokenDuration time.Duration
}

func NewService(
	userRepo UserRepository,
	emailService EmailService,
	tokenService TokenService,
	limiter *ratelimit.Limiter,
	logger *logging.Logger,
	otpTTL time.Duration,
	accessTokenDuration time.Duration,
) *Service {
	return &Service{
		userRepo:            userRepo,
		emailService:        emailService,
		tokenService:        tokenService,
		limiter:             limiter,
		logger:              logger,
		otpTTL:              otpTTL,
		accessTokenDuration: accessTokenDuration,
	}
}

// Register creates an unverified account with a fresh OTP and emails the
// code. A delivery failure is surfaced as ErrEmailDelivery but does not
// roll back the account; the user recovers via /resend-otp.
func (s *Service) Register(ctx context.Context, email, password, verifyBaseURL string) (*user.User, error) {
	if email == "" {
		return nil, ErrEmailRequired
	}
	if len(email) > 254 {
		return nil, ErrInvalidEmailFormat
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmailFormat
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}
	if len(password) < 8 {
		return nil, ErrPasswordTooShort
	}

	passwordHash, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	code, err := otp.Generate(s.otpTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate otp: %w", err)
	}

	newUser, err := s.userRepo.Create(ctx, email, passwordHash, code.Value, code.ExpiresAt)
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			return nil, user.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	link := verificationLink(verifyBaseURL, code.Value)
	if err := s.emailService.SendVerificationEmail(ctx, newUser.Email, code.Value, link); err != nil {
		s.logger.Warn("failed to send verification email", "email", newUser.Email, "error", err)
		return newUser, ErrEmailDelivery
	}

	return newUser, nil
}

// Login authenticates a user and returns a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (*Token, error) {
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	existingUser, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !verifyPassword(existingUser.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	value, err := s.tokenService.CreateToken(existingUser.ID, existingUser.Email, s.accessTokenDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}

	return &Token{Type: "bearer", Value: value}, nil
}

// VerifyOTP consumes a submitted code. The account is looked up by code
// value; a mismatch against the stored code records a failed attempt, a
// match transitions the account to verified and clears the pending cycle.
func (s *Service) VerifyOTP(ctx context.Context, code string) error {
	existingUser, err := s.userRepo.GetByOTPCode(ctx, code)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.ErrNotFound
		}
		return fmt.Errorf("failed to get user by otp code: %w", err)
	}

	if existingUser.IsVerified {
		return ErrAlreadyVerified
	}

	if existingUser.OTPCode == nil || *existingUser.OTPCode != code {
		if err := s.userRepo.IncrementOTPAttempts(ctx, existingUser.ID); err != nil {
			return fmt.Errorf("failed to record otp attempt: %w", err)
		}
		return ErrInvalidOTP
	}

	// A stale code is rejected without touching the attempt counter;
	// the way out is a resend.
	if existingUser.OTPExpiresAt != nil && time.Now().After(*existingUser.OTPExpiresAt) {
		return ErrOTPExpired
	}

	if err := s.userRepo.MarkVerified(ctx, existingUser.ID); err != nil {
		// A concurrent verification won the race; the account is
		// verified either way.
		if errors.Is(err, user.ErrNotFound) {
			return ErrAlreadyVerified
		}
		return fmt.Errorf("failed to mark user as verified: %w", err)
	}

	return nil
}

// ResendOTP regenerates the code for an unverified account, guarded by a
// fixed window of resends per email. Unlike Register, a delivery failure
// fails the whole call; the limiter only counts sends that went out.
func (s *Service) ResendOTP(ctx context.Context, email, verifyBaseURL string) error {
	key := ratelimit.Key(resendNamespace, email)

	remaining, err := s.limiter.Remaining(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to check resend limit: %w", err)
	}
	if remaining <= 0 {
		return ErrRateLimited
	}

	existingUser, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.ErrNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if existingUser.IsVerified {
		return ErrAlreadyVerified
	}

	code, err := otp.Generate(s.otpTTL)
	if err != nil {
		return fmt.Errorf("failed to generate otp: %w", err)
	}

	if err := s.userRepo.RefreshOTP(ctx, existingUser.ID, code.Value, code.ExpiresAt); err != nil {
		return fmt.Errorf("failed to refresh otp: %w", err)
	}

	link := verificationLink(verifyBaseURL, code.Value)
	if err := s.emailService.SendNewOTPEmail(ctx, existingUser.Email, code.Value, link); err != nil {
		s.logger.Warn("failed to send new otp email", "email", existingUser.Email, "error", err)
		return ErrEmailDelivery
	}

	if err := s.limiter.Increment(ctx, key); err != nil {
		s.logger.Warn("failed to record otp resend", "email", existingUser.Email, "error", err)
	}

	return nil
}

func verificationLink(baseURL, code string) string {
	return fmt.Sprintf("%s/verify?verification_code=%s", baseURL, code)
}
