package types

// Failure class codes carried in ErrorInfo.Code. The machine stores codes
// opaquely; these constants name the classes this repo itself produces.
const (
	ErrCodeTransient   = "transient"
	ErrCodeAuth        = "auth_required"
	ErrCodeRateLimited = "rate_limited"
	ErrCodeSetup       = "setup_failed"
	ErrCodeAborted     = "aborted"
)

// ErrorInfo describes a failed turn. Recoverable tells the caller whether an
// immediate resend is sensible; the coordinator never retries on its own.
type ErrorInfo struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// NewTransientError classifies a network interruption or generic service
// failure; the caller may send again immediately.
func NewTransientError(message string) *ErrorInfo {
	return &ErrorInfo{Code: ErrCodeTransient, Message: message, Recoverable: true}
}

// NewAuthError classifies a missing or rejected credential; the caller must
// re-authenticate out of band before retrying.
func NewAuthError(message string) *ErrorInfo {
	return &ErrorInfo{Code: ErrCodeAuth, Message: message, Recoverable: false}
}

// NewRateLimitedError classifies a throttled request; the caller should back
// off before retrying. Any retry-after hint rides in the message text.
func NewRateLimitedError(message string) *ErrorInfo {
	return &ErrorInfo{Code: ErrCodeRateLimited, Message: message, Recoverable: true}
}

// NewSetupError classifies a fatal environment problem, such as a required
// executable or configuration key being absent. Not expected to self-heal.
func NewSetupError(message string) *ErrorInfo {
	return &ErrorInfo{Code: ErrCodeSetup, Message: message, Recoverable: false}
}

// NewAbortedError classifies a turn cancelled by its own caller.
func NewAbortedError(message string) *ErrorInfo {
	return &ErrorInfo{Code: ErrCodeAborted, Message: message, Recoverable: true}
}
