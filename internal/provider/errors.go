package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
)

// FailureKind tells apart the reasons an SMTP delivery attempt can fail.
// Every kind is retried by the delivery engine; the kind only shapes logs,
// metrics and the recorded error message.
type FailureKind string

const (
	FailureRecipientRefused FailureKind = "recipient_refused"
	FailureDataRejected     FailureKind = "data_rejected"
	FailureTransport        FailureKind = "transport"
)

func (k FailureKind) String() string {
	return string(k)
}

func (k FailureKind) label() string {
	switch k {
	case FailureRecipientRefused:
		return "Recipient refused"
	case FailureDataRejected:
		return "Data error"
	default:
		return "SMTP error"
	}
}

// DeliveryError is a single failed delivery attempt.
type DeliveryError struct {
	Kind    FailureKind
	Code    int
	Message string
	Cause   error
}

func (e *DeliveryError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 2)
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	if len(parts) == 0 {
		parts = append(parts, "delivery failed")
	}

	return e.Kind.label() + ": " + strings.Join(parts, ": ")
}

func (e *DeliveryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Classify converts a raw transport error into a DeliveryError. SMTP reply
// codes decide the kind: 450/550/551/553 refuse the recipient, 552/554
// reject the message data, anything else is a transport fault.
func Classify(err error) *DeliveryError {
	if err == nil {
		return nil
	}

	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return &DeliveryError{
			Kind:  kindForCode(protoErr.Code),
			Code:  protoErr.Code,
			Cause: err,
		}
	}

	return &DeliveryError{Kind: FailureTransport, Cause: err}
}

// KindOf returns the failure kind of err, or FailureTransport for errors that
// were never classified.
func KindOf(err error) FailureKind {
	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr.Kind
	}
	return FailureTransport
}

func kindForCode(code int) FailureKind {
	switch code {
	case 450, 550, 551, 553:
		return FailureRecipientRefused
	case 552, 554:
		return FailureDataRejected
	default:
		return FailureTransport
	}
}

// IsAuthFailure reports whether err carries an SMTP authentication rejection.
func IsAuthFailure(err error) bool {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code == 530 || protoErr.Code == 534 || protoErr.Code == 535
	}
	return false
}

// ProviderError is a failed HTTP API call, classified as transient/permanent.
type ProviderError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "provider error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether retrying the call later could succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
