package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"robustroute/internal/apperr"
)

// maxBody caps request bodies; matrices for a few hundred locations fit easily.
const maxBody = 32 << 20

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Status   int            `json:"status"`
	Detail   string         `json:"detail,omitempty"`
	Instance string         `json:"instance,omitempty"`
	Code     string         `json:"code,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps err to a problem using its apperr code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.GetHTTPStatus(err)
	p := Problem{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   err.Error(),
		Instance: r.URL.Path,
	}
	var ae *apperr.AppError
	if errors.As(err, &ae) {
		p.Code = string(ae.Code)
		p.Fields = ae.Fields
	}
	if status >= 500 {
		loggerFrom(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, p)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.InvalidInput("body", "empty request body")
		}
		return apperr.Wrap(err, apperr.CodeInvalidInput, "invalid JSON")
	}
	return nil
}
