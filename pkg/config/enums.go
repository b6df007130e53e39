package config

// TransportType defines MCP service transport types
type TransportType string

const (
	// TransportTypeStdio uses subprocess communication via stdin/stdout
	TransportTypeStdio TransportType = "stdio"
	// TransportTypeHTTP uses streamable HTTP JSON-RPC
	TransportTypeHTTP TransportType = "http"
	// TransportTypeSSE uses Server-Sent Events
	TransportTypeSSE TransportType = "sse"
)

// IsValid checks if the transport type is valid
func (t TransportType) IsValid() bool {
	return t == TransportTypeStdio || t == TransportTypeHTTP || t == TransportTypeSSE
}

// Complexity classifies a user query to size the iteration budget and
// observation depth.
type Complexity string

const (
	// ComplexitySimple — single-value requests; stop at first meaningful success
	ComplexitySimple Complexity = "simple_query"
	// ComplexityMedium — comparison/aggregation or short multi-step requests
	ComplexityMedium Complexity = "medium_task"
	// ComplexityComplex — workflow/pipeline vocabulary or long multi-step requests
	ComplexityComplex Complexity = "complex_workflow"
)

// IsValid checks if the complexity class is valid
func (c Complexity) IsValid() bool {
	return c == ComplexitySimple || c == ComplexityMedium || c == ComplexityComplex
}

// ObservationDepth controls how aggressively the observer stops a run.
type ObservationDepth string

const (
	// ObservationFast stops at the first meaningful success
	ObservationFast ObservationDepth = "fast"
	// ObservationBalanced stops when the principal objective is visible
	ObservationBalanced ObservationDepth = "balanced"
	// ObservationThorough stops only when every breakdown component is complete
	ObservationThorough ObservationDepth = "thorough"
)

// IsValid checks if the observation depth is valid
func (d ObservationDepth) IsValid() bool {
	return d == ObservationFast || d == ObservationBalanced || d == ObservationThorough
}
