package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/DukeRupert/tradeflow/internal/domain"
)

// maxJSONBody caps JSON and form request bodies.
const maxJSONBody = 1 << 20

// isJSON reports whether the request body is JSON.
func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// decodeJSON reads a single JSON object into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, op string, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return domain.Errorf(domain.ETOOLARGE, op, "Request body too large")
		case errors.Is(err, io.EOF):
			return domain.Invalid(op, "Request body is empty")
		default:
			return domain.Invalid(op, "Request body is not valid JSON")
		}
	}
	if dec.More() {
		return domain.Invalid(op, "Request body must contain a single JSON object")
	}
	return nil
}

// formOrJSON fills fields from a JSON object or from form values, so
// clients that post forms keep working.
func formOrJSON(w http.ResponseWriter, r *http.Request, op string, fields map[string]*string) error {
	if isJSON(r) {
		raw := make(map[string]string, len(fields))
		if err := decodeJSONMap(w, r, op, raw); err != nil {
			return err
		}
		for name, dst := range fields {
			*dst = raw[name]
		}
		return nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := r.ParseForm(); err != nil {
		return domain.Invalid(op, "Invalid form submission")
	}
	for name, dst := range fields {
		*dst = r.PostFormValue(name)
	}
	return nil
}

func decodeJSONMap(w http.ResponseWriter, r *http.Request, op string, dst map[string]string) error {
	var raw map[string]any
	if err := decodeJSON(w, r, op, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		if s, ok := v.(string); ok {
			dst[strings.ToLower(k)] = s
		}
	}
	return nil
}
