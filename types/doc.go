// Package types contains the shared data types of the adwflow engine:
// the structured error taxonomy and token accounting.
//
// Every fatal failure class in the engine is represented as a *types.Error
// with a stable ErrorCode, so callers can branch on codes instead of
// matching error strings.
package types
