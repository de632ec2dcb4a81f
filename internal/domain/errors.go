package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a transport failure on a market stream.
type NetworkError struct {
	Op        string // Operation that failed (e.g., "dial", "subscribe", "read")
	URL       string // Endpoint, empty when not relevant
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	if e.URL != "" {
		return e.Op + " " + e.URL + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op, url string, err error) *NetworkError {
	return &NetworkError{Op: op, URL: url, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error.
// Returned once the reconnect policy of a stream is exhausted.
func NewFatalNetworkError(op, url string, err error) *NetworkError {
	return &NetworkError{Op: op, URL: url, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrConnectionFailed is returned when a websocket dial or handshake fails. Retriable.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrClientClosed is returned by Receive after the client has been closed.
	ErrClientClosed = errors.New("client closed")

	// ErrBoardEmpty is returned when one side of the book has no levels.
	ErrBoardEmpty = errors.New("board has no data")

	// ErrOrderNotFound is returned when an order id is not in the list.
	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidOrder is returned when an order fails basic validation.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrInsufficientBalance is returned when the dry-run wallet cannot fund an order.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrMalformedMessage is returned by parsers for frames they cannot decode.
	ErrMalformedMessage = errors.New("malformed message")
)
