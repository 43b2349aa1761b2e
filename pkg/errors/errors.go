package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeFetch represents a page that could not be fetched
	ErrorTypeFetch ErrorType = "fetch"
	// ErrorTypeBlocked represents a page that came back as a block or challenge page
	ErrorTypeBlocked ErrorType = "blocked"
	// ErrorTypeRateLimit represents a host that is cooling down after a block
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeExtraction represents a page or item that could not be extracted
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeMergeInput represents a partial record that violates the extractor contract
	ErrorTypeMergeInput ErrorType = "merge_input"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeExport represents export writer errors
	ErrorTypeExport ErrorType = "export"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
)

// ScrapeError is the error type shared by every stage of a run.
// Origin names the page, file, engine or writer the error came from.
type ScrapeError struct {
	Type    ErrorType
	Origin  string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Origin, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Origin, e.Message)
}

// Unwrap returns the underlying error
func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if another fetch attempt may succeed
func (e *ScrapeError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeFetch, ErrorTypeBlocked, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

// Is reports whether the first ScrapeError in err's chain has the given type.
func Is(err error, errType ErrorType) bool {
	var se *ScrapeError
	return stderrors.As(err, &se) && se.Type == errType
}

// New creates a new ScrapeError
func New(errType ErrorType, origin, message string, err error) *ScrapeError {
	return &ScrapeError{
		Type:    errType,
		Origin:  origin,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewFetch creates a new fetch error
func NewFetch(origin, message string, err error) *ScrapeError {
	return New(ErrorTypeFetch, origin, message, err)
}

// NewBlocked creates a new block page error
func NewBlocked(origin, reason string) *ScrapeError {
	return New(ErrorTypeBlocked, origin, "block page detected: "+reason, nil)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(origin string, duration time.Duration) *ScrapeError {
	message := fmt.Sprintf("host cooling down for %v", duration)
	return New(ErrorTypeRateLimit, origin, message, nil)
}

// NewExtraction creates a new extraction error
func NewExtraction(origin, message string, err error) *ScrapeError {
	return New(ErrorTypeExtraction, origin, message, err)
}

// NewMergeInput creates a new merge input error
func NewMergeInput(origin, message string) *ScrapeError {
	return New(ErrorTypeMergeInput, origin, message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *ScrapeError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// NewExport creates a new export error
func NewExport(origin, message string, err error) *ScrapeError {
	return New(ErrorTypeExport, origin, message, err)
}

// NewCache creates a new cache error
func NewCache(origin, message string, err error) *ScrapeError {
	return New(ErrorTypeCache, origin, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(origin, message string, err error) *ScrapeError {
	return New(ErrorTypePublisher, origin, message, err)
}
