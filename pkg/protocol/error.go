package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Error exposes methods useful for categorizing errors.
type Error interface {
	error

	// MayHaveSucceeded returns true if the Error was triggered by an operation that might have
	// been applied by the peripheral. For example, a write that times out waiting for the
	// response may still have reached the device.
	MayHaveSucceeded() bool

	// Temporary returns true if the Error might be the result of a transient condition, such as
	// a weak radio link. Temporary errors are worth retrying; the core itself never retries.
	Temporary() bool
}

var (
	// ErrTransportUnavailable indicates the BLE radio is absent, disabled or not permitted.
	ErrTransportUnavailable = NewError("bluetooth transport unavailable", false, false)
	// ErrScanFailed indicates a discovery scan was aborted by the transport.
	ErrScanFailed = NewError("scan failed", false, true)
	// ErrConnectFailed indicates the transport connection or service discovery failed.
	ErrConnectFailed = NewError("failed to connect to device", false, true)
	// ErrNotConnected indicates an operation was attempted without an active connection.
	ErrNotConnected = NewError("device not connected", false, false)
	// ErrServiceUnavailable indicates a service is missing on the device or none of its
	// characteristics could be read.
	ErrServiceUnavailable = NewError("required service not available on the device", false, false)
	// ErrMalformedPayload indicates a characteristic value could not be decoded.
	ErrMalformedPayload = NewError("malformed characteristic payload", false, false)
	// ErrWriteRejected indicates one or more characteristic writes failed.
	ErrWriteRejected = NewError("device rejected write", false, true)
	// ErrInvalidValue indicates a caller-supplied value cannot be encoded for the wire.
	ErrInvalidValue = NewError("invalid value", false, false)
	// ErrBusy indicates a conflicting lifecycle operation is in progress.
	ErrBusy = NewError("another connection operation is in progress", false, true)
)

type CommandError struct {
	Err               error
	PossibleSuccess   bool
	PossibleTemporary bool
}

func NewError(message string, mayHaveSucceeded bool, temporary bool) error {
	return &CommandError{Err: errors.New(message), PossibleSuccess: mayHaveSucceeded, PossibleTemporary: temporary}
}

func (e *CommandError) Error() string {
	return e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func (e *CommandError) MayHaveSucceeded() bool {
	return e.PossibleSuccess
}

func (e *CommandError) Temporary() bool {
	return e.PossibleTemporary
}

// OperationError attaches a failure category (one of the Err* sentinels) and the location of the
// failure to an underlying cause. Both Kind and Err are visible to errors.Is and errors.As.
type OperationError struct {
	Op             string
	Service        ServiceID
	Characteristic CharacteristicID
	Kind           error
	Err            error
}

// Wrap returns an OperationError of the given kind. The cause may be nil.
func Wrap(op string, kind error, cause error) *OperationError {
	return &OperationError{Op: op, Kind: kind, Err: cause}
}

// At sets the service and characteristic the error refers to and returns e.
func (e *OperationError) At(service ServiceID, characteristic CharacteristicID) *OperationError {
	e.Service = service
	e.Characteristic = characteristic
	return e
}

func (e *OperationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Service != "" {
		fmt.Fprintf(&b, " %s", e.Service)
		if e.Characteristic != "" {
			fmt.Fprintf(&b, "/%s", e.Characteristic)
		}
	}
	b.WriteString(": ")
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		if e.Kind != nil {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *OperationError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *OperationError) MayHaveSucceeded() bool {
	return MayHaveSucceeded(e.Kind)
}

func (e *OperationError) Temporary() bool {
	return Temporary(e.Kind)
}

// MayHaveSucceeded returns true if err is an Error that indicates the operation may have been
// applied but the client did not receive a confirmation from the device.
func MayHaveSucceeded(err error) bool {
	var commErr Error
	if errors.As(err, &commErr) && commErr.MayHaveSucceeded() {
		return true
	}
	return false
}

// Temporary returns true if err is an Error that indicates the operation failed due to possibly
// transient conditions that do not require user action to resolve.
func Temporary(err error) bool {
	var commErr Error
	if errors.As(err, &commErr) && commErr.Temporary() {
		return true
	}
	return false
}

// ShouldRetry returns true if the caller should retry the operation that triggered an error.
// Retry policy is left to callers; nothing in this module retries on its own.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	var e Error
	if errors.As(err, &e) {
		if e.MayHaveSucceeded() {
			return false
		}
		if e.Temporary() {
			return true
		}
	}
	return false
}

// Kind returns the sentinel category of err, or nil if err does not belong to one.
func Kind(err error) error {
	var opErr *OperationError
	if errors.As(err, &opErr) && opErr.Kind != nil {
		return opErr.Kind
	}
	for _, kind := range []error{
		ErrTransportUnavailable,
		ErrScanFailed,
		ErrConnectFailed,
		ErrNotConnected,
		ErrServiceUnavailable,
		ErrMalformedPayload,
		ErrWriteRejected,
		ErrInvalidValue,
		ErrBusy,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
