package domain

import (
	"net"
	"net/url"

	"github.com/pkg/errors"
)

// ErrorClass tells how a failed command is reported back to the client.
type ErrorClass int

const (
	// ClassUnexpected covers everything not classified below.
	ClassUnexpected ErrorClass = iota
	// ClassValidation bad arguments or malformed input.
	ClassValidation
	// ClassDomain business rule violations.
	ClassDomain
	// ClassUpstream error responses of the price feed.
	ClassUpstream
	// ClassTransport the price feed could not be reached.
	ClassTransport
)

const (
	// MessageTransport is replied when the price feed cannot be reached.
	MessageTransport = "Please check your internet connection and try again"
	// MessageUnexpected is replied for any unclassified failure.
	MessageUnexpected = "Something went wrong... Please try again later"
)

var (
	ErrNoSuchUser         = errors.New("User with the given username does not exist in the database")
	ErrUserAlreadyExists  = errors.New("The given username is already used")
	ErrInvalidCredentials = errors.New("Invalid username or password")
	ErrNotLoggedIn        = errors.New("User not logged in!")
	ErrInsufficientFunds  = errors.New("There's not enough money in your wallet")
	ErrAssetNotHeld       = errors.New("There is no such currency in your wallet")
	ErrNoSuchAsset        = errors.New("Crypto with this code does not exist")
)

var domainErrors = []error{
	ErrNoSuchUser,
	ErrUserAlreadyExists,
	ErrInvalidCredentials,
	ErrNotLoggedIn,
	ErrInsufficientFunds,
	ErrAssetNotHeld,
	ErrNoSuchAsset,
}

// ValidationError reports a rejected argument.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError returns a *ValidationError for field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// FeedErrorKind classifies a non-OK response of the price feed.
type FeedErrorKind string

const (
	FeedBadRequest       FeedErrorKind = "bad_request"
	FeedUnauthorized     FeedErrorKind = "unauthorized"
	FeedForbidden        FeedErrorKind = "forbidden"
	FeedTooManyRequests  FeedErrorKind = "too_many_requests"
	FeedUnexpectedStatus FeedErrorKind = "unexpected_status"
)

// FeedError is an HTTP error response of the price feed.
type FeedError struct {
	Kind       FeedErrorKind
	StatusCode int
	Message    string
}

func (e *FeedError) Error() string {
	if e.Message == "" {
		return "price feed responded with status " + string(e.Kind)
	}
	return e.Message
}

// ClientMessage classifies err and returns the text sent to the client.
// Wrapping context is dropped from the reply; the classified error's own message is used.
func ClientMessage(err error) (string, ErrorClass) {
	var validation *ValidationError
	if errors.As(err, &validation) {
		return validation.Error(), ClassValidation
	}

	var feed *FeedError
	if errors.As(err, &feed) {
		return feed.Error(), ClassUpstream
	}

	for _, target := range domainErrors {
		if errors.Is(err, target) {
			var detailed *DetailedError
			if errors.As(err, &detailed) {
				return detailed.Error(), ClassDomain
			}
			return target.Error(), ClassDomain
		}
	}

	if isTransport(err) {
		return MessageTransport, ClassTransport
	}

	return MessageUnexpected, ClassUnexpected
}

// DetailedError attaches a client-facing detail to a domain sentinel.
type DetailedError struct {
	Err    error
	Detail string
}

func (e *DetailedError) Error() string {
	return e.Err.Error() + ". " + e.Detail
}

func (e *DetailedError) Unwrap() error {
	return e.Err
}

// WithDetail wraps a domain sentinel with extra text for the client.
func WithDetail(err error, detail string) error {
	return &DetailedError{Err: err, Detail: detail}
}

func isTransport(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
