package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"card_underwriting/internal/dispatcher"
	"card_underwriting/internal/domain"
	"card_underwriting/internal/repository"
	"card_underwriting/internal/service"
	"card_underwriting/pkg/metrics"
	"card_underwriting/pkg/stats"
	"card_underwriting/pkg/validator"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type ApplicationService interface {
	Submit(ctx context.Context, req service.ApplicationRequest) (*domain.Application, error)
	GetByApplicationNumber(ctx context.Context, number string) (*domain.Application, error)
	ListByCustomerEmail(ctx context.Context, email string) ([]*domain.Application, error)
	ListPending(ctx context.Context) ([]*domain.Application, error)
}

type SubmissionMetrics interface {
	RecordSubmission(outcome string)
}

type APIHandler struct {
	applications   ApplicationService
	validator      *validator.ApplicationValidator
	stats          stats.Recorder
	metrics        SubmissionMetrics
	logger         *slog.Logger
	requestTimeout time.Duration
}

func NewAPIHandler(
	applications ApplicationService,
	decisionStats stats.Recorder,
	submissions SubmissionMetrics,
	logger *slog.Logger,
) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandler{
		applications:   applications,
		validator:      validator.NewApplicationValidator(),
		stats:          decisionStats,
		metrics:        submissions,
		logger:         logger,
		requestTimeout: 30 * time.Second,
	}
}

type ApplicationResponse struct {
	ID                string           `json:"id"`
	ApplicationNumber string           `json:"application_number"`
	Status            string           `json:"status"`
	CustomerName      string           `json:"customer_name"`
	Email             string           `json:"email"`
	RequestedLimit    decimal.Decimal  `json:"requested_limit"`
	ApprovedLimit     *decimal.Decimal `json:"approved_limit,omitempty"`
	CardType          string           `json:"card_type"`
	CreditScore       *int             `json:"credit_score,omitempty"`
	RiskScore         *decimal.Decimal `json:"risk_score,omitempty"`
	DecisionReason    string           `json:"decision_reason,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	DecidedAt         *time.Time       `json:"decided_at,omitempty"`
}

type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details string                 `json:"details,omitempty"`
	Fields  []validator.FieldError `json:"fields,omitempty"`
}

func toResponse(app *domain.Application) ApplicationResponse {
	resp := ApplicationResponse{
		ID:                app.ID.String(),
		ApplicationNumber: app.ApplicationNumber,
		Status:            string(app.Status),
		RequestedLimit:    app.RequestedLimit,
		ApprovedLimit:     app.ApprovedLimit,
		CardType:          string(app.CardType),
		CreditScore:       app.CreditScore,
		RiskScore:         app.RiskScore,
		DecisionReason:    app.DecisionReason,
		CreatedAt:         app.CreatedAt,
		DecidedAt:         app.DecidedAt,
	}
	if app.Customer != nil {
		resp.CustomerName = app.Customer.FullName()
		resp.Email = app.Customer.Email
	}
	return resp
}

func toResponses(apps []*domain.Application) []ApplicationResponse {
	out := make([]ApplicationResponse, 0, len(apps))
	for _, app := range apps {
		out = append(out, toResponse(app))
	}
	return out
}

func (h *APIHandler) SubmitApplicationHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var in validator.ApplicationInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.metrics.RecordSubmission(metrics.SubmissionInvalid)
		h.sendError(w, ErrorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST"}, http.StatusBadRequest)
		return
	}

	if err := h.validator.ValidateApplication(&in); err != nil {
		h.metrics.RecordSubmission(metrics.SubmissionInvalid)
		resp := ErrorResponse{Error: "Validation failed", Code: "VALIDATION_ERROR"}
		var verr *validator.ValidationError
		if errors.As(err, &verr) {
			resp.Fields = verr.Errors
		}
		h.sendError(w, resp, http.StatusBadRequest)
		return
	}

	app, err := h.applications.Submit(ctx, toServiceRequest(&in))
	switch {
	case err == nil:
		h.sendJSON(w, toResponse(app), http.StatusCreated)
	case errors.Is(err, service.ErrDuplicateApplication), errors.Is(err, service.ErrCustomerConflict):
		h.sendError(w, ErrorResponse{Error: err.Error(), Code: "DUPLICATE_APPLICATION"}, http.StatusConflict)
	case errors.Is(err, dispatcher.ErrBackpressure), errors.Is(err, dispatcher.ErrDispatcherClosed):
		resp := ErrorResponse{Error: "Underwriting is at capacity, try again later", Code: "BACKPRESSURE"}
		if app != nil {
			resp.Details = "application " + app.ApplicationNumber + " is stored and will be processed later"
		}
		w.Header().Set("Retry-After", "30")
		h.sendError(w, resp, http.StatusServiceUnavailable)
	default:
		h.logger.ErrorContext(ctx, "Application submission failed", slog.String("error", err.Error()))
		h.sendError(w, ErrorResponse{Error: "Failed to submit application", Code: "SERVER_ERROR"}, http.StatusInternalServerError)
	}
}

// toServiceRequest assumes in has passed validation.
func toServiceRequest(in *validator.ApplicationInput) service.ApplicationRequest {
	dob, _ := time.Parse(validator.DateLayout, in.DateOfBirth)
	cardType, _ := domain.ParseCardType(strings.ToUpper(in.CardType))
	country := strings.TrimSpace(in.Address.Country)
	if country == "" {
		country = validator.DefaultCountry
	}

	return service.ApplicationRequest{
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		Email:       strings.TrimSpace(in.Email),
		PhoneNumber: in.PhoneNumber,
		TaxID:       in.SSN,
		DateOfBirth: dob,
		Address: domain.Address{
			StreetAddress: in.Address.StreetAddress,
			City:          in.Address.City,
			State:         in.Address.State,
			ZipCode:       in.Address.ZipCode,
			Country:       country,
		},
		AnnualIncome:     *in.AnnualIncome,
		RequestedLimit:   *in.RequestedLimit,
		EmploymentStatus: in.EmploymentStatus,
		CardType:         cardType,
	}
}

func (h *APIHandler) GetApplicationHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	app, err := h.applications.GetByApplicationNumber(ctx, chi.URLParam(r, "applicationNumber"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.sendError(w, ErrorResponse{Error: "Application not found", Code: "NOT_FOUND"}, http.StatusNotFound)
		} else {
			h.sendError(w, ErrorResponse{Error: "Failed to get application", Code: "SERVER_ERROR"}, http.StatusInternalServerError)
		}
		return
	}

	h.sendJSON(w, toResponse(app), http.StatusOK)
}

func (h *APIHandler) ListByEmailHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	apps, err := h.applications.ListByCustomerEmail(ctx, chi.URLParam(r, "email"))
	if err != nil {
		h.sendError(w, ErrorResponse{Error: "Failed to list applications", Code: "SERVER_ERROR"}, http.StatusInternalServerError)
		return
	}
	h.sendJSON(w, toResponses(apps), http.StatusOK)
}

func (h *APIHandler) ListPendingHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	apps, err := h.applications.ListPending(ctx)
	if err != nil {
		h.sendError(w, ErrorResponse{Error: "Failed to list applications", Code: "SERVER_ERROR"}, http.StatusInternalServerError)
		return
	}
	h.sendJSON(w, toResponses(apps), http.StatusOK)
}

func (h *APIHandler) DecisionStatsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	totals, err := h.stats.Totals(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to read decision stats", slog.String("error", err.Error()))
		h.sendError(w, ErrorResponse{Error: "Failed to read decision stats", Code: "SERVER_ERROR"}, http.StatusInternalServerError)
		return
	}
	h.sendJSON(w, totals, http.StatusOK)
}

func (h *APIHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}
	h.sendJSON(w, response, http.StatusOK)
}

func (h *APIHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (h *APIHandler) sendError(w http.ResponseWriter, resp ErrorResponse, statusCode int) {
	h.sendJSON(w, resp, statusCode)

	h.logger.Warn("API error response",
		slog.String("message", resp.Error),
		slog.String("code", resp.Code),
		slog.Int("status", statusCode))
}
