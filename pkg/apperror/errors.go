package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Sale Orchestration (SALE) ----

func ErrNoActiveRound() *AppError {
	return New("SALE_001", "No round is currently active", http.StatusConflict)
}

func ErrOutOfTimeWindow() *AppError {
	return New("SALE_002", "Round is outside its time window", http.StatusConflict)
}

func ErrBelowMinBuy() *AppError {
	return New("SALE_003", "Amount is below the round minimum purchase", http.StatusUnprocessableEntity)
}

func ErrAboveMaxBuy() *AppError {
	return New("SALE_004", "Amount exceeds the round maximum purchase", http.StatusUnprocessableEntity)
}

func ErrNotWhitelisted() *AppError {
	return New("SALE_005", "Account is not on the allow-list for this round", http.StatusForbidden)
}

func ErrRoundCapExceeded() *AppError {
	return New("SALE_006", "Purchase would exceed the round hard cap", http.StatusUnprocessableEntity)
}

func ErrGlobalCapExceeded() *AppError {
	return New("SALE_007", "Purchase would exceed the global hard cap", http.StatusUnprocessableEntity)
}

func ErrIndividualCapExceeded() *AppError {
	return New("SALE_008", "Purchase would exceed the individual contribution cap", http.StatusUnprocessableEntity)
}

func ErrInvalidRate() *AppError {
	return New("SALE_009", "Rate is outside the permitted range", http.StatusBadRequest)
}

func ErrInvalidTimeRange() *AppError {
	return New("SALE_010", "Invalid round time range", http.StatusBadRequest)
}

func ErrInvalidRoundID() *AppError {
	return New("SALE_011", "Round does not exist", http.StatusNotFound)
}

func ErrRoundNotStarted() *AppError {
	return New("SALE_012", "Round start time is still in the future", http.StatusConflict)
}

func ErrRoundAlreadyActive() *AppError {
	return New("SALE_013", "Round is already active", http.StatusConflict)
}

func ErrSaleFinalized() *AppError {
	return New("SALE_014", "Sale has already been finalized", http.StatusConflict)
}

func ErrRoundStillActive() *AppError {
	return New("SALE_015", "A round is still active; deactivate it before finalizing", http.StatusConflict)
}

func ErrRefundUnavailable() *AppError {
	return New("SALE_016", "Refunds are not available", http.StatusConflict)
}

func ErrNoContribution() *AppError {
	return New("SALE_017", "Account has no contribution to refund", http.StatusConflict)
}

func ErrSalePaused() *AppError {
	return New("SALE_018", "Sale is paused", http.StatusServiceUnavailable)
}

func ErrTokenOverflow() *AppError {
	return New("SALE_019", "Token amount exceeds the representable range", http.StatusUnprocessableEntity)
}

// ---- Custodial Ledger (LEDG) ----

func ErrZeroAmount() *AppError {
	return New("LEDG_001", "Amount must be greater than zero", http.StatusBadRequest)
}

func ErrOverCeiling() *AppError {
	return New("LEDG_002", "Amount exceeds the per-transaction deposit ceiling", http.StatusUnprocessableEntity)
}

func ErrInsufficientHoldings() *AppError {
	return New("LEDG_003", "Ledger holdings are insufficient", http.StatusUnprocessableEntity)
}

func ErrUnauthorizedWithdrawal() *AppError {
	return New("LEDG_004", "Caller is not authorized to withdraw", http.StatusForbidden)
}

func ErrNullRecipient() *AppError {
	return New("LEDG_005", "Recipient must not be empty", http.StatusBadRequest)
}

func ErrTransferFailed(err error) *AppError {
	return Wrap("LEDG_006", "Outbound transfer failed", http.StatusBadGateway, err)
}

func ErrLedgerPaused() *AppError {
	return New("LEDG_007", "Ledger is paused", http.StatusServiceUnavailable)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrUsernameExists() *AppError {
	return New("AUTH_002", "Username already exists", http.StatusConflict)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrOwnerOnly() *AppError {
	return New("AUTH_004", "Operation restricted to the owner", http.StatusForbidden)
}

func ErrInvalidSignature() *AppError {
	return New("AUTH_005", "Invalid request signature", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a generic bad-input validation error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}
