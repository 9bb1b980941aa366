package rpc

import (
	"errors"
	"strings"
)

// ErrReceiptTimeout marks a submission whose receipt did not arrive within
// the configured wait. The transaction may still land later; the safe
// response is to resubmit with escalated fees under the same nonce.
var ErrReceiptTimeout = errors.New("timed out waiting for transaction receipt")

// ErrAttemptsExhausted marks a submission that burned its whole attempt
// budget on retryable failures.
var ErrAttemptsExhausted = errors.New("transaction submission attempts exhausted")

// IsRetryableSubmission classifies a submission failure. Only three error
// classes warrant a resubmit: replacement fee too low, nonce already
// consumed, and receipt-wait timeout. Everything else (reverts, signature
// problems, unknown rejections) is fatal since a retry would burn gas with
// no chance of success.
func IsRetryableSubmission(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrReceiptTimeout) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "replacement transaction underpriced") ||
		strings.Contains(errStr, "transaction underpriced") {
		return true
	}

	if strings.Contains(errStr, "nonce too low") ||
		strings.Contains(errStr, "already known") ||
		strings.Contains(errStr, "nonce has already been used") {
		return true
	}

	return false
}
