package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cabincore/pkg/domain"
)

const (
	degradedHeader = "X-Cabincore-Degraded"
	maxBodyBytes   = 1 << 20
)

type violationDTO struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Entity   string `json:"entity,omitempty"`
	EntityID string `json:"entityId,omitempty"`
}

type errorResponse struct {
	Error      string         `json:"error"`
	Code       string         `json:"code,omitempty"`
	Violations []violationDTO `json:"violations,omitempty"`
}

type dataResponse struct {
	Data     any            `json:"data"`
	Warnings []violationDTO `json:"warnings,omitempty"`
}

func violations(res domain.Result) []violationDTO {
	if len(res.Violations) == 0 {
		return nil
	}
	out := make([]violationDTO, 0, len(res.Violations))
	for _, v := range res.Violations {
		out = append(out, violationDTO{
			Rule:     v.Rule,
			Severity: string(v.Severity),
			Message:  v.Message,
			Entity:   string(v.Entity),
			EntityID: v.EntityID,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data any, res domain.Result) {
	writeJSON(w, status, dataResponse{Data: data, Warnings: violations(res)})
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeServiceError maps service errors onto status codes: unknown references
// 404, other validation failures 422, authorization 403, lost races 409 and
// anything else (storage) 502.
func writeServiceError(w http.ResponseWriter, err error) {
	var notFound domain.ErrNotFound
	var blocked domain.RuleViolationError
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error(), "not_found")
	case errors.As(err, &blocked):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:      err.Error(),
			Code:       "rule_violation",
			Violations: violations(blocked.Result),
		})
	case errors.Is(err, domain.ErrValidation):
		code, _ := domain.GuardCodeOf(err)
		writeError(w, http.StatusUnprocessableEntity, err.Error(), string(code))
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error(), "forbidden")
	case errors.Is(err, domain.ErrConcurrentUpdate):
		writeError(w, http.StatusConflict, err.Error(), "concurrent_update")
	default:
		writeError(w, http.StatusBadGateway, err.Error(), "storage")
	}
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
