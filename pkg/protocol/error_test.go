package protocol

import (
	"errors"
	"fmt"
	"testing"
)

func TestRetriableError(t *testing.T) {
	testCases := []struct {
		err         error
		shouldRetry bool
	}{
		{err: nil, shouldRetry: false},
		{err: errors.New("plain"), shouldRetry: false},
		{err: ErrTransportUnavailable, shouldRetry: false},
		{err: ErrScanFailed, shouldRetry: true},
		{err: ErrConnectFailed, shouldRetry: true},
		{err: ErrNotConnected, shouldRetry: false},
		{err: ErrServiceUnavailable, shouldRetry: false},
		{err: ErrMalformedPayload, shouldRetry: false},
		{err: ErrWriteRejected, shouldRetry: true},
		{err: ErrInvalidValue, shouldRetry: false},
		{err: ErrBusy, shouldRetry: true},
		{err: Wrap("connect", ErrConnectFailed, errors.New("timeout")), shouldRetry: true},
		{err: fmt.Errorf("outer: %w", Wrap("read", ErrNotConnected, nil)), shouldRetry: false},
		{err: NewError("maybe", true, true), shouldRetry: false},
	}
	for _, test := range testCases {
		if ShouldRetry(test.err) != test.shouldRetry {
			t.Errorf("unexpected retry behavior for error %v", test.err)
		}
	}
}

func TestOperationErrorMatchesKindAndCause(t *testing.T) {
	cause := errors.New("att error 0x03")
	err := Wrap("write", ErrWriteRejected, cause).At(ServiceLoRaWAN, CharAppKey)

	if !errors.Is(err, ErrWriteRejected) {
		t.Error("expected error to match its kind")
	}
	if !errors.Is(err, cause) {
		t.Error("expected error to match its cause")
	}
	if errors.Is(err, ErrNotConnected) {
		t.Error("error matched an unrelated kind")
	}
	expected := "write 1811/2A5B: device rejected write: att error 0x03"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}

func TestKind(t *testing.T) {
	inner := Wrap("read", ErrNotConnected, nil)
	outer := Wrap("write", ErrWriteRejected, errors.Join(inner))
	if Kind(outer) != ErrWriteRejected {
		t.Errorf("expected outer kind to win, got %v", Kind(outer))
	}
	if Kind(fmt.Errorf("context: %w", ErrScanFailed)) != ErrScanFailed {
		t.Error("expected wrapped sentinel to be recognised")
	}
	if Kind(errors.New("unmapped")) != nil {
		t.Error("expected nil kind for unmapped error")
	}
}
