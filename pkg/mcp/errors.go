package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// Sentinel errors returned by the Manager.
var (
	// ErrNotConnected — no live connection exists for the (user, service) key.
	ErrNotConnected = errors.New("service not connected")

	// ErrToolNotFound — the requested tool is not declared by the service.
	ErrToolNotFound = errors.New("tool not found")

	// ErrTooManyConnections — the per-user subprocess ceiling was hit.
	ErrTooManyConnections = errors.New("too many connections for user")
)

// ToolError is a tool-reported failure: the call itself succeeded at the
// protocol level but the tool returned an error payload.
type ToolError struct {
	Service string
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q on %q returned error: %s", e.Tool, e.Service, e.Message)
}

// ErrorClass buckets MCP failures for the engine's strategy selection.
type ErrorClass string

const (
	ClassConnection   ErrorClass = "connection"    // subprocess died, broken pipe
	ClassProtocol     ErrorClass = "protocol"      // malformed JSON-RPC, unknown tool
	ClassToolReported ErrorClass = "tool_reported" // tool returned an error payload
	ClassTimeout      ErrorClass = "timeout"
	ClassCancelled    ErrorClass = "cancelled"
	ClassUnknown      ErrorClass = "unknown"
)

// Classify buckets an MCP operation error. Transport errors are detected by
// type where possible and by message substring otherwise — the SDK does not
// expose a structured taxonomy for subprocess failures.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}

	if errors.Is(err, context.Canceled) {
		return ClassCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}

	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return ClassToolReported
	}
	if errors.Is(err, ErrToolNotFound) {
		return ClassProtocol
	}
	if errors.Is(err, ErrNotConnected) || errors.Is(err, ErrTooManyConnections) {
		return ClassConnection
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTimeout
		}
		return ClassConnection
	}

	if isConnectionError(err) {
		return ClassConnection
	}
	if isProtocolError(err) {
		return ClassProtocol
	}
	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return ClassTimeout
	}

	return ClassUnknown
}

// isConnectionError detects connection-level transport failures.
func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	msg := strings.ToLower(err.Error())
	connectionErrors := []string{
		"connection refused",
		"connection reset",
		"connection closed",
		"broken pipe",
		"not connected",
		"no such host",
		"process exited",
	}
	for _, e := range connectionErrors {
		if strings.Contains(msg, e) {
			return true
		}
	}
	return false
}

// isProtocolError detects MCP JSON-RPC protocol errors from the SDK.
func isProtocolError(err error) bool {
	msg := strings.ToLower(err.Error())
	protocolIndicators := []string{
		"method not found",
		"invalid params",
		"invalid request",
		"parse error",
		"unknown tool",
	}
	for _, indicator := range protocolIndicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
