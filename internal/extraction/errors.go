package extraction

import (
	"errors"
	"fmt"
	"net"
)

// Error codes the extraction service tags its error envelopes with. Only
// CodeCapacityExceeded carries routing meaning; every other code is an
// ordinary failure.
const (
	CodeCapacityExceeded = "PAYLOAD_TOO_LARGE"
	CodeRateLimited      = "RATE_LIMITED"
)

// ErrCapacityExceeded signals that an input exceeds the service's synchronous
// limits. It is a control signal, not a failure: the caller reroutes the
// document to the batch path instead of retrying.
var ErrCapacityExceeded = errors.New("input exceeds synchronous extraction capacity")

// ErrNoUsableShards is returned when no batch output shard yields document
// data. It is permanent for the attempt.
var ErrNoUsableShards = errors.New("no usable document data in any result shard")

// APIError is a non-2xx response from the extraction service
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("extraction service error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// IsRetryable classifies an extraction error for the retry executor.
// Timeouts, connection failures, rate limits and 5xx responses are worth
// retrying; the capacity signal and other 4xx responses are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrCapacityExceeded) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Transport-level failures surface as wrapped url.Errors; treat anything
	// that is not a typed API response as transient.
	return true
}
