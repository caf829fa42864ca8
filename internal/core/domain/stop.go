package domain

import "net/http"

// StopReason identifies why a server stopped. Reasons are compared by
// value, never by message.
type StopReason string

// Standard stop reasons.
const (
	ReasonInternalError StopReason = "internal-error"
	ReasonSIGHUP        StopReason = "process-SIGHUP"
	ReasonSIGTERM       StopReason = "process-SIGTERM"
	ReasonSIGINT        StopReason = "process-SIGINT"
	ReasonBeforeExit    StopReason = "process-before-exit"
	ReasonExit          StopReason = "process-exit"
	ReasonNotSpecified  StopReason = "not-specified"
)

// String returns the reason identifier.
func (r StopReason) String() string {
	if r == "" {
		return string(ReasonNotSpecified)
	}
	return string(r)
}

// Status returns the status synthesized for requests still pending when
// the server stops for this reason.
func (r StopReason) Status() int {
	if r == ReasonInternalError {
		return http.StatusInternalServerError
	}
	return http.StatusServiceUnavailable
}
