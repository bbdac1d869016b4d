package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/tasfrl/api/internal/httputil"
	"github.com/tasfrl/api/internal/logging"
	"github.com/tasfrl/api/internal/user"
)

// Handler contains HTTP handlers for authentication and OTP verification
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// VerifyOTPRequest represents the OTP verification request body
type VerifyOTPRequest struct {
	OTP string `json:"otp"`
}

// ResendOTPRequest represents the OTP resend request body
type ResendOTPRequest struct {
	Email string `json:"email"`
}

// MessageResponse is a plain confirmation message
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Register handles user registration
// @Summary      Register a new user
// @Description  Create a new account and email a one-time verification code with a verification link.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RegisterRequest true "Registration credentials"
// @Success      200 {object} MessageResponse
// @Failure      400 {object} ErrorResponse "Invalid request or validation error"
// @Failure      409 {object} ErrorResponse "Email already exists"
// @Failure      500 {object} ErrorResponse "Email delivery failure or internal error"
// @Router       /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid registration request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	newUser, err := h.service.Register(r.Context(), req.Email, req.Password, requestBaseURL(r))
	if err != nil {
		switch {
		case errors.Is(err, user.ErrDuplicateEmail):
			logger.Warn("registration failed: email already exists")
			respondError(w, "email already exists", httputil.CodeEmailAlreadyExists, http.StatusConflict)
		case errors.Is(err, ErrEmailRequired):
			respondError(w, err.Error(), httputil.CodeEmailRequired, http.StatusBadRequest)
		case errors.Is(err, ErrInvalidEmailFormat):
			respondError(w, err.Error(), httputil.CodeInvalidEmailFormat, http.StatusBadRequest)
		case errors.Is(err, ErrPasswordRequired):
			respondError(w, err.Error(), httputil.CodePasswordRequired, http.StatusBadRequest)
		case errors.Is(err, ErrPasswordTooShort):
			respondError(w, err.Error(), httputil.CodePasswordTooShort, http.StatusBadRequest)
		case errors.Is(err, ErrEmailDelivery):
			// The account was created; only delivery failed.
			logger.Error("registration email failed to send")
			respondError(w, "Email failed to send", httputil.CodeEmailSendFailed, http.StatusInternalServerError)
		default:
			logger.Error("registration failed: internal error", "error", err.Error())
			respondError(w, "failed to register user", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("user registered", "user_id", newUser.ID)

	respondJSON(w, MessageResponse{Message: "Email sent successfully!"}, http.StatusOK)
}

// Login handles user login
// @Summary      User login
// @Description  Authenticate a user and receive a bearer access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} Token
// @Failure      400 {object} ErrorResponse "Invalid request body"
// @Failure      401 {object} ErrorResponse "Invalid credentials"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			logger.Warn("login failed: invalid credentials")
			respondError(w, "invalid email or password", httputil.CodeInvalidCredentials, http.StatusUnauthorized)
			return
		}
		logger.Error("login failed: internal error", "error", err.Error())
		respondError(w, "failed to login", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("user logged in")

	respondJSON(w, token, http.StatusOK)
}

// VerifyOTP handles OTP verification submitted as JSON
// @Summary      Verify account with OTP
// @Description  Verify a user's account using the one-time code sent by email
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body VerifyOTPRequest true "One-time code"
// @Success      200 {object} MessageResponse
// @Failure      400 {object} ErrorResponse "Invalid, expired, or already used code"
// @Failure      404 {object} ErrorResponse "No account with that code"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /verify-otp [post]
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid verify otp request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	h.verify(w, r, req.OTP)
}

// VerifyLink handles OTP verification through the emailed link
// @Summary      Verify account via link
// @Description  Verify a user's account using the verification_code query parameter from the emailed link
// @Tags         auth
// @Produce      json
// @Param        verification_code query string true "One-time code"
// @Success      200 {object} MessageResponse
// @Failure      400 {object} ErrorResponse "Invalid, expired, or already used code"
// @Failure      404 {object} ErrorResponse "No account with that code"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /verify-otp [get]
func (h *Handler) VerifyLink(w http.ResponseWriter, r *http.Request) {
	h.verify(w, r, r.URL.Query().Get("verification_code"))
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request, code string) {
	logger := logging.GetLoggerFromContext(r.Context())

	if code == "" {
		logger.Warn("otp verification failed: code missing")
		respondError(w, "otp code is required", httputil.CodeOTPRequired, http.StatusBadRequest)
		return
	}

	if err := h.service.VerifyOTP(r.Context(), code); err != nil {
		switch {
		case errors.Is(err, user.ErrNotFound):
			logger.Warn("otp verification failed: no matching account")
			respondError(w, "User not found", httputil.CodeUserNotFound, http.StatusNotFound)
		case errors.Is(err, ErrAlreadyVerified):
			logger.Warn("otp verification failed: already verified")
			respondError(w, "User is already verified", httputil.CodeAlreadyVerified, http.StatusBadRequest)
		case errors.Is(err, ErrOTPExpired):
			logger.Warn("otp verification failed: code expired")
			respondError(w, "OTP code has expired. Please request a new one", httputil.CodeOTPExpired, http.StatusBadRequest)
		case errors.Is(err, ErrInvalidOTP):
			logger.Warn("otp verification failed: invalid code")
			respondError(w, "Invalid OTP code", httputil.CodeInvalidOTP, http.StatusBadRequest)
		default:
			logger.Error("otp verification failed: internal error", "error", err.Error())
			respondError(w, "failed to verify otp", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("user verified")

	respondJSON(w, MessageResponse{Message: "User verified successfully"}, http.StatusOK)
}

// ResendOTP handles regeneration and redelivery of the verification code
// @Summary      Resend OTP
// @Description  Generate a new one-time code for an unverified account and email it. Limited to 5 resends per 30 minutes per email.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ResendOTPRequest true "Account email"
// @Success      200 {object} MessageResponse
// @Failure      400 {object} ErrorResponse "Invalid request or already verified"
// @Failure      404 {object} ErrorResponse "No account with that email"
// @Failure      429 {object} ErrorResponse "Resend limit reached"
// @Failure      500 {object} ErrorResponse "Email delivery failure or internal error"
// @Router       /resend-otp [post]
func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ResendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid resend otp request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if req.Email == "" {
		respondError(w, "email is required", httputil.CodeEmailRequired, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	if err := h.service.ResendOTP(r.Context(), req.Email, requestBaseURL(r)); err != nil {
		switch {
		case errors.Is(err, ErrRateLimited):
			logger.Warn("otp resend rate limited")
			respondError(w, "Too many OTP resend attempts. Please try again after 30 minutes", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		case errors.Is(err, user.ErrNotFound):
			logger.Warn("otp resend failed: no matching account")
			respondError(w, "User not found", httputil.CodeUserNotFound, http.StatusNotFound)
		case errors.Is(err, ErrAlreadyVerified):
			logger.Warn("otp resend failed: already verified")
			respondError(w, "User is already verified", httputil.CodeAlreadyVerified, http.StatusBadRequest)
		case errors.Is(err, ErrEmailDelivery):
			logger.Error("otp resend email failed to send")
			respondError(w, "Email failed to send", httputil.CodeEmailSendFailed, http.StatusInternalServerError)
		default:
			logger.Error("otp resend failed: internal error", "error", err.Error())
			respondError(w, "failed to resend otp", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("otp resent")

	respondJSON(w, MessageResponse{Message: "OTP has been resent to your email"}, http.StatusOK)
}

// requestBaseURL reconstructs the external base URL the verification link
// should point at, honoring the proxy's forwarded scheme.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data any, statusCode int) {
	httputil.RespondJSON(w, data, statusCode)
}

// respondError sends an error response with a machine-readable code
func respondError(w http.ResponseWriter, message string, code string, statusCode int) {
	httputil.RespondErrorWithCode(w, message, code, statusCode)
}
