package errors

import "encoding/json"

type AtmErrorType int

const (
	UnknownError AtmErrorType = iota
	InvalidRequestError
)

// ledger and withdrawal errors
const (
	UnrecognizedPulseCountError AtmErrorType = 1000 + iota
	InvalidAmountError
	InsufficientBalanceError
)

// external payment backend errors
const (
	SettlementBackendError AtmErrorType = 2000 + iota
)

// serial bridge errors
const (
	ParseFailureError AtmErrorType = 3000 + iota
	ConnectionFailureError
)

func New(code AtmErrorType, err error) AtmError {
	return AtmError{Err: err, Message: err.Error(), Code: code}
}

type AtmError struct {
	Message string                 `json:"message"`
	Err     error                  `json:"-"`
	Code    AtmErrorType           `json:"code"`
	Detail  map[string]interface{} `json:"detail,omitempty"`
}

func (e AtmError) Error() string {
	j, err := json.Marshal(&e)
	if err != nil {
		return e.Message
	}
	return string(j)
}

func (e AtmError) Unwrap() error {
	return e.Err
}

// WithDetail attaches a named value to the error, surfaced to API callers
// next to the machine-readable code.
func (e AtmError) WithDetail(key string, value interface{}) AtmError {
	if e.Detail == nil {
		e.Detail = make(map[string]interface{})
	}
	e.Detail[key] = value
	return e
}
