package domain

import "errors"

var (
	// ErrProviderUnavailable is returned when no wallet provider can be reached
	ErrProviderUnavailable = errors.New("wallet provider unavailable")
	// ErrUserRejected is returned when the account holder denies the request
	ErrUserRejected = errors.New("request rejected by user")
	// ErrNotConnected is returned by operations that need a connected wallet
	ErrNotConnected = errors.New("wallet not connected")

	ErrInvalidAddress    = errors.New("invalid address")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNetworkSwitchUnsupported means the provider does not know the chain; recoverable via add-chain
	ErrNetworkSwitchUnsupported = errors.New("chain not known to provider")
	ErrUnknownNetwork           = errors.New("unknown network")

	// ErrPartialData marks a refresh where auxiliary fields fell back to defaults
	ErrPartialData           = errors.New("partial wallet data")
	ErrTransactionSubmission = errors.New("transaction submission failed")
	ErrNoContract            = errors.New("no wallet contract configured")

	ErrDuplicateContact = errors.New("contact with this address already exists")
	ErrContactNotFound  = errors.New("contact not found")
	ErrImportFormat     = errors.New("import file must contain a JSON array of contacts")
)
