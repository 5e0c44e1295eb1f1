package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// validationBody flattens ozzo validation errors into a stable per-field
// details list. Non-ozzo errors degrade to a single detail line.
func validationBody(err error) errResponse {
	resp := errResponse{Error: "validation failed"}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		resp.Details = []string{err.Error()}
		return resp
	}
	resp.Details = flattenErrors("", verrs)
	return resp
}

func flattenErrors(prefix string, verrs validation.Errors) []string {
	keys := make([]string, 0, len(verrs))
	for k := range verrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var details []string
	for _, k := range keys {
		field := k
		if prefix != "" {
			field = prefix + "." + k
		}
		if nested, ok := verrs[k].(validation.Errors); ok {
			details = append(details, flattenErrors(field, nested)...)
			continue
		}
		details = append(details, field+": "+verrs[k].Error())
	}
	return details
}
