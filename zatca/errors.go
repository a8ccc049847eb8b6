package zatca

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Kind groups error codes by the layer that produced them.
type Kind string

const (
	KindValidation    Kind = "ValidationError"
	KindEncoding      Kind = "EncodingError"
	KindKeyMaterial   Kind = "KeyMaterialError"
	KindSigning       Kind = "SigningFailed"
	KindConfiguration Kind = "ConfigurationError"
	KindUpstream      Kind = "UpstreamError"
	KindTransport     Kind = "TransportError"
)

// Error is the single error type returned by the module. Two errors are
// equal for errors.Is when their codes match, so callers compare against
// the sentinels below.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Code
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Detail returns a copy of the sentinel with a formatted message.
func (e *Error) Detail(format string, args ...any) *Error {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

// WithCause returns a copy of the error wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	c := *e
	c.Err = cause
	return &c
}

var (
	ErrMissingFields = &Error{Kind: KindValidation, Code: "MISSING_FIELDS", Message: "required fields are missing"}
	ErrMissingOTP    = &Error{Kind: KindValidation, Code: "MISSING_OTP", Message: "OTP header is required"}
	ErrInvalidQR     = &Error{Kind: KindValidation, Code: "INVALID_INVOICE", Message: "invoice data is invalid"}

	ErrFieldTooLong = &Error{Kind: KindEncoding, Code: "FIELD_TOO_LONG", Message: "TLV value exceeds 255 bytes"}
	ErrMalformedTLV = &Error{Kind: KindEncoding, Code: "MALFORMED_TLV", Message: "malformed TLV data"}
	ErrUnknownTag   = &Error{Kind: KindEncoding, Code: "UNKNOWN_TAG", Message: "TLV tag outside 1-5"}
	ErrQRRender     = &Error{Kind: KindEncoding, Code: "QR_RENDER_ERROR", Message: "QR rendering failed"}

	ErrNoPrivateKeyFound  = &Error{Kind: KindKeyMaterial, Code: "NO_PRIVATE_KEY_FOUND", Message: "no private key found"}
	ErrNoCertificateFound = &Error{Kind: KindKeyMaterial, Code: "NO_CERTIFICATE_FOUND", Message: "no certificate found"}

	ErrSigningFailed = &Error{Kind: KindSigning, Code: "SIGNING_FAILED", Message: "signing failed"}
	ErrChainBroken   = &Error{Kind: KindValidation, Code: "CHAIN_BROKEN", Message: "invoice chain link is invalid"}

	ErrMissingCredentials = &Error{Kind: KindConfiguration, Code: "MISSING_CREDENTIALS", Message: "CSID token and secret are not configured"}
	ErrMissingURL         = &Error{Kind: KindConfiguration, Code: "MISSING_URL", Message: "gateway URL is not configured"}

	ErrUpstream  = &Error{Kind: KindUpstream, Code: "ZATCA_API_ERROR", Message: "gateway returned an error"}
	ErrTransport = &Error{Kind: KindTransport, Code: "INTERNAL", Message: "gateway unreachable"}
)

// KindOf reports the kind of err when it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
