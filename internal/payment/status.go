package payment

import (
	"errors"
	"fmt"
)

// User-visible status messages.
const (
	MsgMissingFields = "please fill all fields"
	MsgInvalidInput  = "please enter a valid amount and a correct number"
	MsgRemoteFailure = "payment processing error"
	MsgSucceeded     = "Payment completed successfully!"
)

// StatusKind enumerates the mutually exclusive session states.
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusSubmitting
	StatusSucceeded
	StatusFailed
)

var statusNames = map[StatusKind]string{
	StatusIdle:       "idle",
	StatusSubmitting: "submitting",
	StatusSucceeded:  "succeeded",
	StatusFailed:     "failed",
}

func (k StatusKind) String() string {
	if name, ok := statusNames[k]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(k))
}

// MarshalText renders the kind by name for JSON snapshots.
func (k StatusKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name.
func (k *StatusKind) UnmarshalText(b []byte) error {
	for kind, name := range statusNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("payment: unknown status %q", string(b))
}

// Status is the session status variant. Err is set only for StatusFailed and
// is either a *ValidationError or a *RemoteFailure.
type Status struct {
	Kind StatusKind
	Err  error
}

// Message returns the text shown for the status, empty for idle/submitting.
func (s Status) Message() string {
	switch s.Kind {
	case StatusFailed:
		if s.Err != nil {
			return s.Err.Error()
		}
		return MsgRemoteFailure
	case StatusSucceeded:
		return MsgSucceeded
	}
	return ""
}

func idle() Status       { return Status{Kind: StatusIdle} }
func submitting() Status { return Status{Kind: StatusSubmitting} }
func succeeded() Status  { return Status{Kind: StatusSucceeded} }
func failed(err error) Status {
	return Status{Kind: StatusFailed, Err: err}
}

// ValidationReason tells which validation message applies.
type ValidationReason int

const (
	ReasonInvalidInput ValidationReason = iota
	ReasonMissingFields
)

// ValidationError reports malformed or missing fields. It never passes
// through the submitting state.
type ValidationError struct {
	Reason ValidationReason
}

func (e *ValidationError) Error() string {
	if e.Reason == ReasonMissingFields {
		return MsgMissingFields
	}
	return MsgInvalidInput
}

// Code is picked up by handler logging as err_code.
func (e *ValidationError) Code() string {
	if e.Reason == ReasonMissingFields {
		return "validation_missing_fields"
	}
	return "validation_invalid_input"
}

// RemoteFailure is the unlucky outcome of the simulated payment call.
type RemoteFailure struct{}

func (*RemoteFailure) Error() string { return MsgRemoteFailure }

// Code is picked up by handler logging as err_code.
func (*RemoteFailure) Code() string { return "remote_failure" }

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsRemoteFailure reports whether err is a simulated remote failure.
func IsRemoteFailure(err error) bool {
	var r *RemoteFailure
	return errors.As(err, &r)
}

// ErrSessionNotFound is returned by Registry lookups for unknown or
// discarded sessions.
var ErrSessionNotFound = errors.New("payment: session not found")
