package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidState:    "Invalid state for this operation",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// System errors
	CodeInternalError: "Internal error",
	CodeUnknownError:  "An unknown error occurred",

	// Blockchain/Ethereum errors
	CodeEthereumConnectionFailed: "Failed to connect to Ethereum node",
	CodeEthereumSubscribeFailed:  "Failed to subscribe to Ethereum events",
	CodeEthereumRPCError:         "Ethereum RPC call failed",
	CodeBlockNotFound:            "Block not found",

	// Chain reads
	CodeChainReadFailed:    "Chain read failed",
	CodeContractCallFailed: "Smart contract call failed",
	CodeTxStatusFailed:     "Transaction status query failed",

	// Update submission
	CodeSubmitFailed:     "Update transaction submission failed",
	CodeUpdateInFlight:   "An update transaction is already in flight",
	CodeRetriesExhausted: "Update retries exhausted",
	CodeSigningFailed:    "Transaction signing failed",

	// WebSocket errors
	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketReconnecting:    "WebSocket reconnecting",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",

	// Circuit breaker / rate limiting
	CodeCircuitOpen:       "Circuit breaker is open",
	CodeRateLimitExceeded: "Rate limit exceeded",
}
