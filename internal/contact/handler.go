package contact

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/tasfrl/api/internal/httputil"
	"github.com/tasfrl/api/internal/logging"
)

// Handler contains HTTP handlers for the contact form
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

// SubmitRequest represents the contact form request body
type SubmitRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// SubmitResponseData identifies the stored submission
type SubmitResponseData struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// SubmitResponse represents a successful contact submission
type SubmitResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Data    SubmitResponseData `json:"data"`
}

// ListResponse represents the admin submission listing
type ListResponse struct {
	Success bool         `json:"success"`
	Data    []Submission `json:"data"`
}

// Submit handles contact form submission
// @Summary      Submit a contact message
// @Description  Validate and record a contact-form message and notify the site admin by email.
// @Tags         contact
// @Accept       json
// @Produce      json
// @Param        request body SubmitRequest true "Contact message"
// @Success      201 {object} SubmitResponse
// @Failure      400 {object} httputil.ErrorResponse "Validation error"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /contact [post]
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid contact request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	submission, err := h.service.Submit(r.Context(), SubmitInput{
		Name:    req.Name,
		Email:   req.Email,
		Message: req.Message,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingFields):
			logger.Warn("contact submission rejected: missing fields")
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeMissingFields, http.StatusBadRequest)
		case errors.Is(err, ErrInvalidEmail):
			logger.Warn("contact submission rejected: invalid email")
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeInvalidEmailFormat, http.StatusBadRequest)
		case errors.Is(err, ErrMessageTooLong):
			logger.Warn("contact submission rejected: message too long")
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeMessageTooLong, http.StatusBadRequest)
		default:
			logger.Error("contact submission failed: internal error", "error", err.Error())
			httputil.RespondErrorWithCode(w, "Internal server error. Please try again later.", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("contact submission stored", "submission_id", submission.ID)

	httputil.RespondJSON(w, SubmitResponse{
		Success: true,
		Message: "Contact submission received successfully",
		Data: SubmitResponseData{
			ID:        submission.ID,
			CreatedAt: submission.CreatedAt,
		},
	}, http.StatusCreated)
}

// List handles the admin listing of recent submissions
// @Summary      List contact submissions
// @Description  Return the 100 most recent contact submissions, newest first.
// @Tags         contact
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} ListResponse
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /contact-submissions [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	submissions, err := h.service.ListRecent(r.Context())
	if err != nil {
		logger.Error("failed to list contact submissions", "error", err.Error())
		httputil.RespondErrorWithCode(w, "Internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, ListResponse{
		Success: true,
		Data:    submissions,
	}, http.StatusOK)
}
