package datadog

import (
	"fmt"
)

// DeliveryError describes a failed delivery attempt. StatusCode is zero when
// no response was received; Err is nil when the intake answered with a non-2xx
// status.
type DeliveryError struct {
	URL        string
	StatusCode int
	Status     string
	Body       string
	Payload    string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delivery to %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("HTTP Response code: %d, %s, %s, Submitted payload: %s",
		e.StatusCode, e.Status, e.Body, e.Payload)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the failure is worth retrying by the caller:
// transport errors, 408, 429 and 5xx.
func (e *DeliveryError) Temporary() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == 408 || e.StatusCode == 429 || e.StatusCode >= 500
}
