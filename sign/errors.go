package sign

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why a signing attempt failed.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidPassword
	KindInvalidCertificate
	KindInvalidPDF
	KindInvalidSignature
	KindInvalidSignatureField
	KindSigningFailed
)

func (k Kind) String() string {
	switch k {
	case KindInvalidPassword:
		return "InvalidPassword"
	case KindInvalidCertificate:
		return "InvalidCertificate"
	case KindInvalidPDF:
		return "InvalidPDF"
	case KindInvalidSignature:
		return "InvalidSignature"
	case KindInvalidSignatureField:
		return "InvalidSignatureField"
	case KindSigningFailed:
		return "SigningFailed"
	default:
		return "Unknown"
	}
}

// Sentinel errors, one per Kind. An *Error matches the sentinel of its kind
// with errors.Is.
var (
	ErrInvalidPassword       = errors.New("invalid certificate password")
	ErrInvalidCertificate    = errors.New("invalid certificate")
	ErrInvalidPDF            = errors.New("invalid pdf")
	ErrInvalidSignature      = errors.New("invalid signature")
	ErrInvalidSignatureField = errors.New("invalid signature field")
	ErrSigningFailed         = errors.New("signing failed")
)

var kindSentinels = map[Kind]error{
	KindInvalidPassword:       ErrInvalidPassword,
	KindInvalidCertificate:    ErrInvalidCertificate,
	KindInvalidPDF:            ErrInvalidPDF,
	KindInvalidSignature:      ErrInvalidSignature,
	KindInvalidSignatureField: ErrInvalidSignatureField,
	KindSigningFailed:         ErrSigningFailed,
}

// Error is returned by every exported operation of this package.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Classify maps an error coming from outside this package onto a Kind by
// looking at its message. Errors that already carry a Kind are returned
// unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "password"), strings.Contains(msg, "mac verification"):
		return newError(KindInvalidPassword, err)
	case strings.Contains(msg, "certificate"), strings.Contains(msg, "pkcs12"), strings.Contains(msg, "private key"):
		return newError(KindInvalidCertificate, err)
	case strings.Contains(msg, "signature field"), strings.Contains(msg, "acroform"):
		return newError(KindInvalidSignatureField, err)
	case strings.Contains(msg, "signature"):
		return newError(KindInvalidSignature, err)
	case strings.Contains(msg, "pdf"), strings.Contains(msg, "xref"), strings.Contains(msg, "malformed"):
		return newError(KindInvalidPDF, err)
	default:
		return newError(KindSigningFailed, err)
	}
}
