package types

// ClassifiedError is a user-actionable failure carrying a stable error code
// consumed by the operator tooling (error file, exit handling).
type ClassifiedError struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	wrapped error
}

func NewClassifiedError(code, message string) *ClassifiedError {
	return &ClassifiedError{Code: code, Message: message}
}

// NewClassifiedErrorWrap keeps the wrapped error reachable through
// errors.Is/errors.As while presenting the classified message.
func NewClassifiedErrorWrap(code, message string, wrapped error) *ClassifiedError {
	return &ClassifiedError{Code: code, Message: message, wrapped: wrapped}
}

func (e *ClassifiedError) Error() string {
	return e.Message
}

func (e *ClassifiedError) Unwrap() error {
	return e.wrapped
}
