package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"speza/internal/core"
	"speza/internal/services"
)

const maxBodyBytes = 64 << 10

var errBadRequest = errors.New("invalid request body")

// inputFields are the form/JSON keys of a transaction.
var inputFields = []string{"date", "type", "category", "amount", "note"}

// parseInput reads a transaction from a JSON object or a form-encoded
// body. JSON numbers are accepted for amount.
func parseInput(r *http.Request) (services.Input, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return services.Input{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if len(body) > maxBodyBytes {
		return services.Input{}, fmt.Errorf("%w: body too large", errBadRequest)
	}

	values := make(map[string]string, len(inputFields))
	if isJSON(r, body) {
		var raw map[string]any
		if err := json.Unmarshal(body, &raw); err != nil {
			return services.Input{}, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		for _, k := range inputFields {
			values[k] = stringValue(raw[k])
		}
	} else {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return services.Input{}, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		for _, k := range inputFields {
			values[k] = form.Get(k)
		}
	}

	return services.Input{
		Date:     values["date"],
		Kind:     sanitizeInput(values["type"]),
		Category: values["category"],
		Amount:   sanitizeInput(values["amount"]),
		Note:     values["note"],
	}, nil
}

func isJSON(r *http.Request, body []byte) bool {
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil {
		return mt == "application/json"
	}
	trimmed := strings.TrimSpace(string(body))
	return strings.HasPrefix(trimmed, "{")
}

// stringValue renders a decoded JSON value the way a form would carry it.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput trims whitespace and drops control characters other than
// tab and newlines. Only the type and amount fields go through it; the
// rest are stored as given.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

// indexParam parses the {index} route parameter.
func indexParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "index")
	i, err := strconv.Atoi(raw)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: %q", core.ErrInvalidIndex, raw)
	}
	return i, nil
}
