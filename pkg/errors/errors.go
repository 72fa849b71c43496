package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork represents network-related errors, timeouts included
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeRateLimit represents 403/429 responses from the marketplace
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeNotFound represents a 404 on a catalog or detail page
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeParsing represents HTML or JSON parsing errors
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypePersistence represents database errors scoped to one item
	ErrorTypePersistence ErrorType = "persistence"
	// ErrorTypeBrowser represents headless browser failures
	ErrorTypeBrowser ErrorType = "browser"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypeStatus represents run status reporting errors
	ErrorTypeStatus ErrorType = "status"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// CrawlerError represents a crawler-specific error
type CrawlerError struct {
	Type     ErrorType
	Provider string
	Message  string
	Err      error
	Time     time.Time
}

// Error implements the error interface
func (e *CrawlerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Provider, e.Message)
}

// Unwrap returns the underlying error
func (e *CrawlerError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *CrawlerError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeBrowser:
		return true
	default:
		return false
	}
}

// New creates a new CrawlerError
func New(errType ErrorType, provider, message string, err error) *CrawlerError {
	return &CrawlerError{
		Type:     errType,
		Provider: provider,
		Message:  message,
		Err:      err,
		Time:     time.Now(),
	}
}

// NewNetwork creates a new network error
func NewNetwork(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeNetwork, provider, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(provider string, status int, retryAfter string) *CrawlerError {
	message := fmt.Sprintf("rate limited with status %d", status)
	if retryAfter != "" {
		message += "; retry after " + retryAfter
	}
	return New(ErrorTypeRateLimit, provider, message, nil)
}

// NewNotFound creates a new not-found error
func NewNotFound(provider, url string) *CrawlerError {
	return New(ErrorTypeNotFound, provider, "not found: "+url, nil)
}

// NewParsing creates a new parsing error
func NewParsing(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeParsing, provider, message, err)
}

// NewPersistence creates a new persistence error
func NewPersistence(provider, message string, err error) *CrawlerError {
	return New(ErrorTypePersistence, provider, message, err)
}

// NewBrowser creates a new browser error
func NewBrowser(message string, err error) *CrawlerError {
	return New(ErrorTypeBrowser, "browser", message, err)
}

// NewCache creates a new cache error
func NewCache(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeCache, provider, message, err)
}

// NewStatus creates a new status reporting error
func NewStatus(message string, err error) *CrawlerError {
	return New(ErrorTypeStatus, "status", message, err)
}

// NewValidation creates a new validation error
func NewValidation(provider, message string) *CrawlerError {
	return New(ErrorTypeValidation, provider, message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *CrawlerError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// Class is the outcome of one attempt as seen by a retry loop
type Class int

const (
	ClassSuccess Class = iota
	ClassTransient
	ClassPermanent
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassTransient:
		return "transient"
	default:
		return "permanent"
	}
}

// Classify maps an error onto a retry class. Errors that carry no type are
// treated as transient.
func Classify(err error) Class {
	if err == nil {
		return ClassSuccess
	}
	if stderrors.Is(err, context.Canceled) {
		return ClassPermanent
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}

	var ce *CrawlerError
	if stderrors.As(err, &ce) {
		if ce.IsRetryable() {
			return ClassTransient
		}
		return ClassPermanent
	}
	return ClassTransient
}

// IsType reports whether err wraps a CrawlerError of the given type
func IsType(err error, t ErrorType) bool {
	var ce *CrawlerError
	return stderrors.As(err, &ce) && ce.Type == t
}
