package core

import (
	"errors"
	"fmt"
)

var (
	ErrTokenExpired      = errors.New("token has expired")
	ErrTokenInvalidated  = errors.New("token has been invalidated")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrInvalidToken      = errors.New("invalid token")
	ErrInvalidChallenge  = errors.New("invalid challenge")
	ErrInvalidCredential = errors.New("invalid access credential")
	ErrInvalidLoginCode  = errors.New("invalid login code")
	ErrNotFound          = errors.New("not found")
)

// Chain transaction errors
var (
	ErrWalletCapabilityMissing = errors.New("wallet supports neither sign-and-send nor sign-transaction")
	ErrConfirmationTimeout     = errors.New("transaction was not confirmed in time")
	ErrTransactionFailed       = errors.New("transaction failed on chain")
)

// DID errors
var (
	ErrChallengeNonceMissing     = errors.New("challenge response carries no nonce")
	ErrIdentityNotFound          = errors.New("identity not found")
	ErrDIDRequired               = errors.New("did is required")
	ErrFlowInProgress            = errors.New("verification flow already running")
	ErrMessageSigningUnsupported = errors.New("wallet cannot sign messages")
)

// Contract errors. Every one of them leaves the contract where it was.
var (
	ErrWalletNotConnected           = errors.New("wallet not connected")
	ErrWalletSigningUnsupported     = errors.New("wallet cannot sign transactions")
	ErrMissingCounterpartyAddress   = errors.New("applicant wallet address is missing")
	ErrInvalidSalaryAmount          = errors.New("salary must be a positive amount")
	ErrTransactionPreparationFailed = errors.New("contract transaction preparation failed")
	ErrNotificationDeliveryFailed   = errors.New("contract notification delivery failed")
	ErrChecklistIncomplete          = errors.New("review checklist is incomplete")
	ErrOutOfOrderTransition         = errors.New("contract transition out of order")
	ErrRoleNotPermitted             = errors.New("role may not perform this transition")
	ErrContractNotFound             = errors.New("contract not found")
	ErrContractNotDue               = errors.New("contract has not reached its due date")
)

// ChainServiceError is returned when the chain service refuses or mangles a
// prepare request. Status is zero for transport failures.
type ChainServiceError struct {
	Status int
	Reason string
}

func (e *ChainServiceError) Error() string {
	if e.Status == 0 {
		return "chain service unavailable: " + e.Reason
	}
	return fmt.Sprintf("chain service failed with status %d: %s", e.Status, e.Reason)
}

// ServiceError is a failure reported by a remote service with its message code
type ServiceError struct {
	Status int
	Code   string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Code, e.Status)
}

// ContractError tags a contract failure with its kind. errors.Is matches both
// the kind sentinel and the underlying cause.
type ContractError struct {
	Kind error
	Err  error
}

// NewContractError builds a ContractError; cause may be nil
func NewContractError(kind, cause error) *ContractError {
	return &ContractError{Kind: kind, Err: cause}
}

func (e *ContractError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *ContractError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
