package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	dErrors "atelier/pkg/domain-errors"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError translates domain errors to the JSON error envelope. Rate-limit
// rejections carry retryAfterSeconds in the body and a Retry-After header.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)

	body := map[string]any{"error": string(code)}
	var dErr *dErrors.Error
	if errors.As(err, &dErr) && dErr.Message != "" {
		body["message"] = dErr.Message
	}
	if retryAfter := dErrors.RetryAfterOf(err); retryAfter > 0 {
		body["retryAfterSeconds"] = retryAfter
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	writeJSON(w, status, body)
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}
