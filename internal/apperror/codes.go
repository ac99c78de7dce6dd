package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Gas keeper error codes
const (
	// Blockchain/Ethereum errors
	CodeEthereumConnectionFailed Code = "ETHEREUM_CONNECTION_FAILED"
	CodeEthereumSubscribeFailed  Code = "ETHEREUM_SUBSCRIBE_FAILED"
	CodeEthereumRPCError         Code = "ETHEREUM_RPC_ERROR"
	CodeBlockNotFound            Code = "BLOCK_NOT_FOUND"

	// Chain reads (transient; retried on the next block cycle)
	CodeChainReadFailed    Code = "CHAIN_READ_FAILED"
	CodeContractCallFailed Code = "CONTRACT_CALL_FAILED"
	CodeTxStatusFailed     Code = "TX_STATUS_FAILED"

	// Update submission
	CodeSubmitFailed     Code = "SUBMIT_FAILED"
	CodeUpdateInFlight   Code = "UPDATE_IN_FLIGHT"
	CodeRetriesExhausted Code = "RETRIES_EXHAUSTED"
	CodeSigningFailed    Code = "SIGNING_FAILED"

	// WebSocket errors
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketReconnecting    Code = "WEBSOCKET_RECONNECTING"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"

	// Circuit breaker / rate limiting
	CodeCircuitOpen       Code = "CIRCUIT_OPEN"
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"
)

// transientCodes are errors that resolve themselves on a later block cycle.
var transientCodes = map[Code]bool{
	CodeChainReadFailed:          true,
	CodeContractCallFailed:       true,
	CodeTxStatusFailed:           true,
	CodeEthereumRPCError:         true,
	CodeEthereumConnectionFailed: true,
	CodeBlockNotFound:            true,
	CodeWebSocketReconnecting:    true,
	CodeCircuitOpen:              true,
	CodeRateLimitExceeded:        true,
}

// IsTransient reports whether the error should be retried on the next
// block cycle rather than counted as a definitive failure.
func IsTransient(err error) bool {
	return transientCodes[GetCode(err)]
}
