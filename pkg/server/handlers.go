package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"mercator-hq/lucid/pkg/audit"
	"mercator-hq/lucid/pkg/decision"
	"mercator-hq/lucid/pkg/request"
	"mercator-hq/lucid/pkg/responsibility"
	"mercator-hq/lucid/pkg/telemetry/logging"
)

// Response headers set by the evaluate handler.
const (
	TraceIDHeader         = "X-Lucid-Trace-ID"
	IgnoredGovernanceKeys = "X-Lucid-Ignored-Governance"
)

// Error types reported in error responses.
const (
	errTypeValidation    = "validation_error"
	errTypeConfiguration = "configuration_error"
	errTypeForbidden     = "forbidden"
	errTypeNotFound      = "not_found"
	errTypeMethod        = "method_not_allowed"
	errTypeTooLarge      = "request_too_large"
	errTypeInternal      = "internal_error"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (s *Server) evaluateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, http.StatusMethodNotAllowed, ErrorDetail{Type: errTypeMethod, Message: "use POST"})
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, ErrorDetail{Type: errTypeTooLarge, Message: err.Error()})
				return
			}
			writeError(w, http.StatusBadRequest, ErrorDetail{Type: errTypeValidation, Message: "failed to read request body"})
			return
		}

		doc, err := request.Parse(body, requestFormat(r))
		if err != nil {
			s.writeEvaluationError(w, err)
			return
		}
		if doc.Governance != nil && !s.config.AllowInlineGovernance {
			writeError(w, http.StatusForbidden, ErrorDetail{
				Type:    errTypeForbidden,
				Field:   "governance",
				Message: "inline governance is disabled on this server",
			})
			return
		}

		in, unused, err := doc.Input()
		if err != nil {
			s.writeEvaluationError(w, err)
			return
		}
		if len(unused) > 0 {
			w.Header().Set(IgnoredGovernanceKeys, strings.Join(unused, ","))
		}

		result, err := s.pipeline.Run(r.Context(), in)
		if err != nil {
			s.writeEvaluationError(w, err)
			return
		}

		out, err := result.Document()
		if err != nil {
			s.writeEvaluationError(w, err)
			return
		}

		w.Header().Set(TraceIDHeader, out.TraceID)
		logging.FromContext(r.Context(), s.logger).Debug("evaluation served",
			"trace_id", out.TraceID,
			"allowed", out.Responsibility.Allowed,
		)
		writeJSON(w, http.StatusOK, out.Stamp(s.now()))
	}
}

func (s *Server) auditHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := r.PathValue("trace_id")
		if !decision.IsTraceID(traceID) {
			writeError(w, http.StatusBadRequest, ErrorDetail{Type: errTypeValidation, Field: "trace_id", Message: "malformed trace ID"})
			return
		}

		record, err := s.storage.Get(r.Context(), traceID)
		if errors.Is(err, audit.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrorDetail{Type: errTypeNotFound, Message: "no audit record for " + traceID})
			return
		}
		if err != nil {
			s.logger.Error("failed to load audit record", "trace_id", traceID, "error", err)
			writeError(w, http.StatusInternalServerError, ErrorDetail{Type: errTypeInternal, Message: "failed to load audit record"})
			return
		}

		writeJSON(w, http.StatusOK, record)
	}
}

// writeEvaluationError maps validation errors to 400, configuration errors
// to 422 and everything else to 500.
func (s *Server) writeEvaluationError(w http.ResponseWriter, err error) {
	var (
		validationErr    *decision.ValidationError
		configurationErr *responsibility.ConfigurationError
	)
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, ErrorDetail{
			Type:    errTypeValidation,
			Field:   validationErr.Field,
			Message: validationErr.Reason,
		})
	case errors.As(err, &configurationErr):
		writeError(w, http.StatusUnprocessableEntity, ErrorDetail{
			Type:    errTypeConfiguration,
			Field:   configurationErr.Field,
			Message: configurationErr.Error(),
		})
	default:
		s.logger.Error("evaluation failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrorDetail{Type: errTypeInternal, Message: "evaluation failed"})
	}
}

func requestFormat(r *http.Request) request.Format {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.Contains(mediaType, "yaml") {
		return request.FormatYAML
	}
	return request.FormatJSON
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, detail ErrorDetail) {
	writeJSON(w, code, ErrorResponse{Error: detail})
}
