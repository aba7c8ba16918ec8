// Package reliability labels upstream failures. Nothing in this service retries; the labels
// only feed metrics and logs.
package reliability

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ClassifyStatus buckets a non-success upstream status as client, retryable or fatal.
func ClassifyStatus(code int) string {
	switch {
	case IsRetryableHTTPStatus(code):
		return "retryable"
	case code >= 400 && code < 500:
		return "client"
	default:
		return "fatal"
	}
}
