package halfmarathon

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies pipeline failures. The set is closed.
type Kind int

const (
	KindInputEmpty Kind = iota
	KindCredentialMissing
	KindExtractionIncomplete
	KindExtractionMalformed
	KindInferenceUnavailable
	KindDomainViolation
	KindPredictionFailure
)

var kindStrings = [...]string{
	KindInputEmpty:           "INPUT_EMPTY",
	KindCredentialMissing:    "CREDENTIAL_MISSING",
	KindExtractionIncomplete: "EXTRACTION_INCOMPLETE",
	KindExtractionMalformed:  "EXTRACTION_MALFORMED",
	KindInferenceUnavailable: "INFERENCE_UNAVAILABLE",
	KindDomainViolation:      "DOMAIN_VIOLATION",
	KindPredictionFailure:    "PREDICTION_FAILURE",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindStrings) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindStrings[k]
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Status is the HTTP status reported for errors of this kind.
func (k Kind) Status() int {
	switch k {
	case KindInputEmpty, KindExtractionIncomplete, KindDomainViolation:
		return http.StatusUnprocessableEntity
	case KindCredentialMissing:
		return http.StatusUnauthorized
	case KindExtractionMalformed, KindInferenceUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a pipeline failure with a user-facing message.
type Error struct {
	Kind    Kind     `json:"kind"`
	Message string   `json:"message"`
	Missing []string `json:"missing,omitempty"`
	Err     error    `json:"-"`
}

func (err *Error) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("%s: %s: %v", err.Kind, err.Message, err.Err)
	}
	return fmt.Sprintf("%s: %s", err.Kind, err.Message)
}

func (err *Error) Unwrap() error { return err.Err }

// Is matches any *Error of the same kind, so sentinel values like
// ErrInputEmpty can be used with errors.Is.
func (err *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == err.Kind
	}
	return false
}

const (
	msgInputEmpty           = "Wpisz opis."
	msgCredentialMissing    = "Podaj klucz API OpenAI."
	msgAgeRange             = "Wiek musi być między 18 a 99 lat."
	msgGender               = "Płeć musi być 'M' albo 'K'."
	msgExtractionMalformed  = "Błąd przetwarzania danych: model językowy zwrócił niepoprawną odpowiedź."
	msgInferenceUnavailable = "Błąd przetwarzania danych: usługa modelu językowego jest niedostępna."
	msgPredictionFailure    = "Błąd predykcji."
)

var (
	ErrInputEmpty        = &Error{Kind: KindInputEmpty, Message: msgInputEmpty}
	ErrCredentialMissing = &Error{Kind: KindCredentialMissing, Message: msgCredentialMissing}
)

func errMissing(missing []string) *Error {
	return &Error{
		Kind:    KindExtractionIncomplete,
		Message: "Brakuje danych: " + strings.Join(missing, ", "),
		Missing: missing,
	}
}

func errMalformed(err error) *Error {
	return &Error{Kind: KindExtractionMalformed, Message: msgExtractionMalformed, Err: err}
}

func errUnavailable(err error) *Error {
	return &Error{Kind: KindInferenceUnavailable, Message: msgInferenceUnavailable, Err: err}
}

func errPrediction(err error) *Error {
	return &Error{Kind: KindPredictionFailure, Message: msgPredictionFailure, Err: err}
}

// AsError converts any error into an *Error. Errors that are not already
// classified become KindPredictionFailure.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return errPrediction(err)
}
