package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wallet-statement/internal/ledger"
	"github.com/wallet-statement/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategoryValidation represents validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryProvider represents data provider errors
	CategoryProvider ErrorCategory = "provider"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategoryQuantity represents raw amounts that could not be normalized
	CategoryQuantity ErrorCategory = "quantity"
	// CategoryAsset represents transfers that match no tracked asset
	CategoryAsset ErrorCategory = "asset"
	// CategoryTimestamp represents undecodable block timestamps
	CategoryTimestamp ErrorCategory = "timestamp"
	// CategoryChain represents a chain dropped from a statement
	CategoryChain ErrorCategory = "chain"
	// CategoryPrice represents a price that could not be resolved
	CategoryPrice ErrorCategory = "price"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// User input errors

// NewInvalidAddressError creates an invalid address error
func NewInvalidAddressError(address string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_ADDRESS",
		Message:    "invalid wallet address format",
		Details:    map[string]interface{}{"address": address},
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter: %s", param),
		Details:    map[string]interface{}{"parameter": param, "reason": reason},
	}
}

// NewInvalidPeriodError creates an error for an empty or inverted statement period
func NewInvalidPeriodError(cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PERIOD",
		Message:    "end date must be after start date",
		Cause:      cause,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       fmt.Sprintf("%s_NOT_FOUND", resource),
		Message:    fmt.Sprintf("%s not found", resource),
		Details:    map[string]interface{}{"id": id},
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "rate limit exceeded",
		Details:    map[string]interface{}{"retryAfter": retryAfter},
	}
}

// System errors

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database operation failed: %s", operation),
		Details:    map[string]interface{}{"operation": operation},
		Cause:      cause,
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache operation failed: %s", operation),
		Details:    map[string]interface{}{"operation": operation},
		Cause:      cause,
	}
}

// Provider errors

// NewProviderError creates a data provider error
func NewProviderError(provider string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "PROVIDER_ERROR",
		Message:    fmt.Sprintf("data provider error: %s", provider),
		Details:    map[string]interface{}{"provider": provider},
		Cause:      cause,
	}
}

// NewProviderTimeoutError creates a provider timeout error
func NewProviderTimeoutError(provider string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusGatewayTimeout,
		Code:       "PROVIDER_TIMEOUT",
		Message:    fmt.Sprintf("data provider timeout: %s", provider),
		Details:    map[string]interface{}{"provider": provider},
	}
}

// NewProviderRateLimitError creates a provider rate limit error
func NewProviderRateLimitError(provider string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "PROVIDER_RATE_LIMIT",
		Message:    fmt.Sprintf("data provider rate limit exceeded: %s", provider),
		Details:    map[string]interface{}{"provider": provider},
	}
}

// Statement errors

// NewChainProcessingError records why a chain was dropped from a statement
func NewChainProcessingError(chain types.ChainID, stage string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryChain,
		StatusCode: http.StatusBadGateway,
		Code:       "CHAIN_PROCESSING_FAILURE",
		Message:    fmt.Sprintf("chain %s failed during %s", chain, stage),
		Details:    map[string]interface{}{"chain": chain, "stage": stage},
		Cause:      cause,
	}
}

// NewPriceUnavailableError records a price lookup that resolved to the zero sentinel
func NewPriceUnavailableError(priceID string, at time.Time, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPrice,
		StatusCode: http.StatusBadGateway,
		Code:       "PRICE_UNAVAILABLE",
		Message:    fmt.Sprintf("no price for %s on %s", priceID, at.UTC().Format("2006-01-02")),
		Details:    map[string]interface{}{"priceId": priceID, "date": at.UTC().Format("2006-01-02")},
		Cause:      cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	switch {
	case stderrors.Is(err, ledger.ErrMalformedQuantity):
		return statementError(CategoryQuantity, "MALFORMED_QUANTITY", err)
	case stderrors.Is(err, ledger.ErrUnresolvedAsset):
		return statementError(CategoryAsset, "UNRESOLVED_ASSET", err)
	case stderrors.Is(err, ledger.ErrInvalidTimestamp):
		return statementError(CategoryTimestamp, "INVALID_TIMESTAMP", err)
	}

	return NewInternalError("unexpected error", err)
}

func statementError(category ErrorCategory, code string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   category,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       code,
		Message:    cause.Error(),
		Cause:      cause,
	}
}

func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	category := CategorySystem
	status := http.StatusInternalServerError

	switch err.Code {
	case "INVALID_ADDRESS", "INVALID_PARAMETER", "INVALID_PERIOD", "INVALID_REQUEST", "UNSUPPORTED_CHAIN":
		category, status = CategoryUserInput, http.StatusBadRequest
	case "STATEMENT_NOT_FOUND":
		category, status = CategoryNotFound, http.StatusNotFound
	case "RATE_LIMIT_EXCEEDED":
		category, status = CategoryRateLimit, http.StatusTooManyRequests
	case "STORAGE_DISABLED":
		category, status = CategorySystem, http.StatusServiceUnavailable
	}

	return &CategorizedError{
		Category:   category,
		StatusCode: status,
		Code:       err.Code,
		Message:    err.Message,
		Details:    err.Details,
	}
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryProvider, CategoryDatabase, CategoryCache:
		return true
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.StatusCode >= 400 && catErr.StatusCode < 500
}
