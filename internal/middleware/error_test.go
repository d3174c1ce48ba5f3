package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
)

// statuses the handlers emit, with the code clients rely on
var handlerErrorCodes = map[int]string{
	http.StatusBadRequest:          "invalid_input",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusForbidden:           "forbidden",
	http.StatusNotFound:            "not_found",
	http.StatusConflict:            "conflict",
	http.StatusUnprocessableEntity: "unprocessable",
	http.StatusTooManyRequests:     "rate_limited",
	http.StatusInternalServerError: "internal_error",
}

var listingFields = []string{"Category", "Condition", "Price", "Description", "ItemName"}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var response ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode error envelope %q: %v", w.Body.String(), err)
	}
	return response
}

// Feature: swap-matching, Property 20: Handler errors carry stable codes
// Validates: RespondWithError
func TestProperty_HandlerErrorsCarryStableCodes(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("envelope code is the stable code for the status", prop.ForAll(
		func(status int, message string) bool {
			before := time.Now().UTC().Add(-time.Second)

			w := httptest.NewRecorder()
			RespondWithError(w, status, message)

			if w.Code != status || w.Header().Get("Content-Type") != "application/json" {
				return false
			}
			response := decodeEnvelope(t, w)
			if response.Error.Code != ErrorCode(status) || response.Error.Code != handlerErrorCodes[status] {
				return false
			}
			if response.Error.Message != message || response.Error.Details != nil {
				return false
			}
			ts, err := time.Parse(time.RFC3339, response.Error.Timestamp)
			return err == nil && !ts.Before(before.Truncate(time.Second))
		},
		gen.OneConstOf(
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
		),
		gen.AlphaString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: swap-matching, Property 21: Unmapped statuses still get a snake_case code
// Validates: ErrorCode
func TestProperty_UnmappedStatusCodesAreSnakeCase(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("codes never contain spaces or upper case", prop.ForAll(
		func(status int) bool {
			code := ErrorCode(status)
			if code == "" || strings.Contains(code, " ") || code != strings.ToLower(code) {
				return false
			}
			if want, ok := handlerErrorCodes[status]; ok {
				return code == want
			}
			return true
		},
		gen.IntRange(100, 599),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: swap-matching, Property 22: Listing validation failures keep every field
// Validates: RespondWithValidationErrors
func TestProperty_ValidationFailuresKeepEveryField(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("each failing field is reported under validation_errors", prop.ForAll(
		func(picks []int) bool {
			fields := make([]string, len(picks))
			errs := make([]ValidationError, len(picks))
			for i, p := range picks {
				fields[i] = listingFields[p]
				errs[i] = ValidationError{Field: fields[i], Message: "Invalid value"}
			}

			w := httptest.NewRecorder()
			RespondWithValidationErrors(w, errs)
			if w.Code != http.StatusBadRequest {
				return false
			}

			var response struct {
				Error struct {
					Code    string `json:"code"`
					Details struct {
						ValidationErrors []ValidationError `json:"validation_errors"`
					} `json:"details"`
				} `json:"error"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				return false
			}
			if response.Error.Code != "invalid_input" || len(response.Error.Details.ValidationErrors) != len(fields) {
				return false
			}
			for i, ve := range response.Error.Details.ValidationErrors {
				if ve.Field != fields[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(listingFields)-1)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestErrorCode(t *testing.T) {
	cases := map[int]string{
		http.StatusBadRequest:          "invalid_input",
		http.StatusNotFound:            "not_found",
		http.StatusUnprocessableEntity: "unprocessable",
		http.StatusTooManyRequests:     "rate_limited",
		http.StatusTeapot:              "i'm_a_teapot",
		599:                            "error",
	}
	for status, want := range cases {
		if got := ErrorCode(status); got != want {
			t.Errorf("ErrorCode(%d) = %q, want %q", status, got, want)
		}
	}
}

func TestErrorHandlingMiddleware_RecoversPanics(t *testing.T) {
	handler := ErrorHandlingMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/explode", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if response := decodeEnvelope(t, w); response.Error.Code != "internal_error" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}
