package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vanshika/cts-envipath/internal/domain"
	"github.com/vanshika/cts-envipath/internal/envipath"
	"github.com/vanshika/cts-envipath/internal/service"
	"github.com/vanshika/cts-envipath/internal/tree"
)

const (
	maxRunBodyBytes      = 64 << 10
	maxDocumentBodyBytes = 32 << 20

	testMessage = "cts-envipath up and running."
)

// TreeService is the behaviour the handlers need from the pathway service.
type TreeService interface {
	Predict(ctx context.Context, smiles string, genLimit int) (*tree.Node, error)
	BuildDocument(ctx context.Context, doc domain.PathwayDocument) (*tree.Node, error)
}

var _ TreeService = (*service.PathwayService)(nil)

// APIHandlers exposes HTTP handlers for the REST API.
type APIHandlers struct {
	logger   *slog.Logger
	service  TreeService
	validate *validator.Validate
}

// NewAPIHandlers constructs an APIHandlers instance.
func NewAPIHandlers(logger *slog.Logger, svc TreeService) *APIHandlers {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &APIHandlers{
		logger:   logger,
		service:  svc,
		validate: validate,
	}
}

func (h *APIHandlers) handleTest(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": testMessage})
}

func (h *APIHandlers) handleRun(w http.ResponseWriter, r *http.Request) {
	var payload runRequest
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, maxRunBodyBytes), &payload); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		writeFailure(w, http.StatusBadRequest, formatValidationError(err))
		return
	}
	if payload.GenLimit == 0 {
		payload.GenLimit = service.MinGenLimit
	}

	root, err := h.service.Predict(r.Context(), payload.Smiles, payload.GenLimit)
	if err != nil {
		h.fail(w, err, "smiles", payload.Smiles, "gen_limit", payload.GenLimit)
		return
	}
	respondJSON(w, http.StatusOK, envelope{Status: true, Data: root})
}

func (h *APIHandlers) handleTree(w http.ResponseWriter, r *http.Request) {
	var doc domain.PathwayDocument
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, maxDocumentBodyBytes), &doc); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	if doc.Completed == "" {
		doc.Completed = domain.CompletedTrue
	}

	root, err := h.service.BuildDocument(r.Context(), doc)
	if err != nil {
		h.fail(w, err, "pathway", doc.ID)
		return
	}
	respondJSON(w, http.StatusOK, envelope{Status: true, Data: root})
}

func (h *APIHandlers) fail(w http.ResponseWriter, err error, attrs ...any) {
	status := statusFor(err)
	args := append([]any{"error", err, "status", status}, attrs...)
	if status >= http.StatusInternalServerError {
		h.logger.Error("tree request failed", args...)
	} else {
		h.logger.Warn("tree request rejected", args...)
	}
	writeFailure(w, status, err.Error())
}

// statusFor maps service failures onto HTTP statuses.
func statusFor(err error) int {
	var statusErr *envipath.StatusError
	switch {
	case errors.Is(err, tree.ErrMalformedGraph), errors.Is(err, tree.ErrCycleDetected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidGenLimit):
		return http.StatusBadRequest
	case errors.Is(err, envipath.ErrPollTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, tree.ErrUpstreamFailed), errors.Is(err, tree.ErrIncomplete),
		errors.Is(err, envipath.ErrNoLocation), errors.As(err, &statusErr):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrNoPredictor):
		return http.StatusServiceUnavailable
	case errors.Is(err, envipath.ErrUnknownSetting):
		// The setting is derived from ENVIPATH_NODE_LIMIT, not from the request.
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// --- Request & Response DTOs ---

type runRequest struct {
	Smiles   string `json:"smiles" validate:"required"`
	GenLimit int    `json:"gen_limit" validate:"omitempty,min=1,max=3"`
}

type envelope struct {
	Status bool `json:"status"`
	Data   any  `json:"data"`
}

type failure struct {
	Error string `json:"error"`
}

// decodeJSON ignores keys it does not know; callers send extra fields.
func decodeJSON(body io.Reader, dst any) error {
	if body == nil {
		return errors.New("request body is required")
	}
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func formatValidationError(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, formatFieldError(e))
	}
	return strings.Join(messages, "; ")
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Field())
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, envelope{Status: false, Data: failure{Error: msg}})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
	})
}
