package models

import "time"

// MCPAuth is a per-user credential record for one MCP service.
// Written by the auth subsystem out of band; the engine only reads.
// AuthData keys are the credential field names declared by the service's
// predefined config.
type MCPAuth struct {
	UserID      string            `json:"user_id"`
	ServiceName string            `json:"service_name"`
	AuthData    map[string]string `json:"auth_data"`
	IsVerified  bool              `json:"is_verified"`
	VerifiedAt  *time.Time        `json:"verified_at,omitempty"`
}

// ToolDescriptor is the cached description of one callable tool on a
// connected MCP service.
type ToolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema string `json:"input_schema"` // JSON Schema
}
