// Package errors provides structured error types for the filter bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the registry key and symbol involved plus a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseResolve, errors.KindTypeMismatch).
//		Key("/opt/filters/libblur.so").
//		Symbol("blur").
//		GoType("func(int) int").
//		Detail("parameter 0 is not a buffer").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.SymbolNotFound(key, "brighter", cause)
//	err := errors.FailedStatus("brighter", -1)
//
// All errors implement the standard error interface and support errors.Is/As.
// Matching with errors.Is compares Phase and Kind only.
package errors
