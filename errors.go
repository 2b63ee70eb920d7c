package devsly

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/devsly/devsly-go/internal/poller"
)

// Errors returned while waiting for a load test. They are the same values
// the polling loop uses, so errors.Is works across both.
var (
	// ErrInvalidArgument reports an unusable argument, detected before any
	// request is sent.
	ErrInvalidArgument = poller.ErrInvalidArgument

	// ErrTimeout reports that a wait's deadline elapsed before the test
	// reached a terminal state.
	ErrTimeout = poller.ErrTimeout

	// ErrCancelled reports that the caller's context ended a wait.
	ErrCancelled = poller.ErrCancelled
)

var (
	// ErrTransport reports a request that got no HTTP response: DNS, dial,
	// TLS, timeout or a cancelled context.
	ErrTransport = errors.New("devsly: transport error")

	// ErrAPI is matched by every [*APIError].
	ErrAPI = errors.New("devsly: api error")

	// ErrDecode reports a 2xx response whose body was not the expected JSON.
	ErrDecode = errors.New("devsly: decode error")
)

// APIError is returned when the API answers with a non-2xx status.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the server's error message, or the status text when the
	// body carried none.
	Message string

	// Body is the raw response body.
	Body []byte

	// RequestID is the X-Request-ID sent with the failed request.
	RequestID string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("devsly api: status %d: %s", e.StatusCode, e.Message)
}

// Is makes errors.Is(err, ErrAPI) true for any *APIError.
func (e *APIError) Is(target error) bool {
	return target == ErrAPI
}

// IsNotFound reports whether err is an [*APIError] with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether err is an [*APIError] with status 401 or 403.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
}

// newAPIError builds an APIError, pulling a message out of the common
// {"error": "..."} and {"message": "..."} body shapes.
func newAPIError(statusCode int, body []byte, requestID string) *APIError {
	msg := ""

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		msg = payload.Error
		if msg == "" {
			msg = payload.Message
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}
	if msg == "" {
		msg = http.StatusText(statusCode)
	}

	return &APIError{
		StatusCode: statusCode,
		Message:    msg,
		Body:       body,
		RequestID:  requestID,
	}
}
