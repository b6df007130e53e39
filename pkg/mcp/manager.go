// Package mcp provides the MCP (Model Context Protocol) connection manager:
// per-user, per-service subprocess lifecycle, tool listing, and tool calls.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/STPDevteam/awesome-server/pkg/config"
	"github.com/STPDevteam/awesome-server/pkg/models"
	"github.com/STPDevteam/awesome-server/pkg/version"
)

// Timeouts and limits.
const (
	// InitTimeout is the per-service initialization deadline (spawn + handshake).
	InitTimeout = 30 * time.Second

	// DefaultCallTimeout is the per-tool-call deadline when the caller
	// doesn't configure one.
	DefaultCallTimeout = 30 * time.Second

	// DefaultMaxPerUser bounds concurrent subprocesses per user.
	DefaultMaxPerUser = 8
)

// connKey is the composite table key. The isolation invariant hangs on this:
// operations for user A can never observe a connection created for user B.
type connKey struct {
	userID  string
	service string
}

// connection owns one MCP session. The per-connection mutex serialises
// ListTools and CallTool — the SDK session is not reentrant-safe — while
// other connections progress in parallel.
type connection struct {
	mu      sync.Mutex
	client  *mcpsdk.Client
	session *mcpsdk.ClientSession
	cfg     config.ServiceConfig

	// Tool cache, populated on first ListTools, held for the connection's
	// lifetime.
	tools []models.ToolDescriptor
}

// Manager owns at most one long-lived subprocess per (user, service) pair.
// The table lock covers lookups/inserts/removals only; per-connection calls
// proceed under the connection's own mutex once the handle is obtained.
type Manager struct {
	mu      sync.Mutex
	conns   map[connKey]*connection
	perUser map[string]int

	maxPerUser  int
	callTimeout time.Duration
	logger      *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithCallTimeout sets the per-tool-call deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.callTimeout = d
		}
	}
}

// WithMaxPerUser sets the per-user subprocess ceiling.
func WithMaxPerUser(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxPerUser = n
		}
	}
}

// NewManager creates a connection manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		conns:       make(map[connKey]*connection),
		perUser:     make(map[string]int),
		maxPerUser:  DefaultMaxPerUser,
		callTimeout: DefaultCallTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect spawns the service subprocess for the given user and performs the
// MCP handshake. An existing connection for the same key is closed first.
// The transport env is the inherited environment merged with cfg overrides
// (credentials already injected by the caller). On any startup failure the
// subprocess is killed and the error surfaced.
func (m *Manager) Connect(ctx context.Context, cfg config.ServiceConfig, userID string) error {
	key := connKey{userID: userID, service: cfg.Name}

	// Replace any existing connection for this key.
	m.mu.Lock()
	if old, exists := m.conns[key]; exists {
		delete(m.conns, key)
		m.perUser[userID]--
		m.mu.Unlock()
		m.closeConnection(key, old)
		m.mu.Lock()
	}
	if m.perUser[userID] >= m.maxPerUser {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s (limit %d)", ErrTooManyConnections, userID, m.maxPerUser)
	}
	// Reserve the slot before the (slow) spawn so concurrent Connects
	// can't overshoot the ceiling.
	m.perUser[userID]++
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		m.perUser[userID]--
		if m.perUser[userID] <= 0 {
			delete(m.perUser, userID)
		}
		m.mu.Unlock()
	}

	transport, err := createTransport(cfg.Transport)
	if err != nil {
		release()
		return fmt.Errorf("failed to create transport for %q: %w", cfg.Name, err)
	}

	initCtx, cancel := context.WithTimeout(ctx, InitTimeout)
	defer cancel()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)

	session, err := client.Connect(initCtx, transport, nil)
	if err != nil {
		// Close the transport if it implements io.Closer so a half-started
		// subprocess doesn't leak.
		if closer, ok := transport.(io.Closer); ok {
			_ = closer.Close()
		}
		release()
		return fmt.Errorf("failed to connect to %q: %w", cfg.Name, err)
	}

	displaced := m.storeConnection(key, &connection{client: client, session: session, cfg: cfg})
	if displaced != nil {
		m.logger.Warn("Replaced racing MCP connection", "service", cfg.Name, "user", userID)
		m.closeConnection(key, displaced)
	}

	m.logger.Info("MCP service connected", "service", cfg.Name, "user", userID)
	return nil
}

// Disconnect closes the client gracefully and removes the entry.
func (m *Manager) Disconnect(serviceName, userID string) error {
	key := connKey{userID: userID, service: serviceName}

	m.mu.Lock()
	conn, exists := m.conns[key]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotConnected, serviceName)
	}
	delete(m.conns, key)
	m.perUser[userID]--
	if m.perUser[userID] <= 0 {
		delete(m.perUser, userID)
	}
	m.mu.Unlock()

	m.closeConnection(key, conn)
	return nil
}

// DisconnectAll drains every connection. Called on process shutdown.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[connKey]*connection)
	m.perUser = make(map[string]int)
	m.mu.Unlock()

	for key, conn := range conns {
		m.closeConnection(key, conn)
	}
	m.logger.Info("All MCP connections closed", "count", len(conns))
}

// ListConnected returns the service names connected for a user.
func (m *Manager) ListConnected(userID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var names []string
	for key := range m.conns {
		if key.userID == userID {
			names = append(names, key.service)
		}
	}
	return names
}

// IsConnected checks whether a live connection exists for (user, service).
func (m *Manager) IsConnected(serviceName, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.conns[connKey{userID: userID, service: serviceName}]
	return exists
}

// ListTools returns the service's declared tools, cached for the lifetime
// of the connection.
func (m *Manager) ListTools(ctx context.Context, serviceName, userID string) ([]models.ToolDescriptor, error) {
	conn, err := m.get(serviceName, userID)
	if err != nil {
		return nil, err
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.tools != nil {
		return conn.tools, nil
	}

	opCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	result, err := conn.session.ListTools(opCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("list tools from %q: %w", serviceName, err)
	}

	tools := make([]models.ToolDescriptor, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, models.ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: marshalSchema(t.InputSchema),
		})
	}
	conn.tools = tools
	return tools, nil
}

// CallTool forwards {name, arguments} to the subprocess and returns the
// concatenated text content. Never retries internally — retry policy
// belongs to the engine.
//
// A tool-reported error payload surfaces as *ToolError.
func (m *Manager) CallTool(ctx context.Context, serviceName, userID, toolName string, args map[string]any) (string, error) {
	conn, err := m.get(serviceName, userID)
	if err != nil {
		return "", err
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()

	opCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	result, err := conn.session.CallTool(opCtx, &mcpsdk.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		if opCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return "", fmt.Errorf("call %q.%s: %w", serviceName, toolName, context.DeadlineExceeded)
		}
		return "", fmt.Errorf("call %q.%s: %w", serviceName, toolName, err)
	}

	content := extractTextContent(result)
	if result.IsError {
		return "", &ToolError{Service: serviceName, Tool: toolName, Message: content}
	}
	return content, nil
}

// storeConnection publishes conn under key and returns any connection it
// displaced. A displaced connection means a concurrent Connect for the
// same key finished its handshake while this one was spawning; the newest
// session wins, the extra slot reservation is released here, and the
// caller must close the displaced one so at most one subprocess survives
// per (user, service).
func (m *Manager) storeConnection(key connKey, conn *connection) *connection {
	m.mu.Lock()
	defer m.mu.Unlock()

	displaced := m.conns[key]
	m.conns[key] = conn
	if displaced != nil {
		m.perUser[key.userID]--
	}
	return displaced
}

// get returns the borrowed connection handle for (user, service).
// The caller must never close it — the Manager exclusively owns lifecycles.
func (m *Manager) get(serviceName, userID string) (*connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, exists := m.conns[connKey{userID: userID, service: serviceName}]
	if !exists {
		return nil, fmt.Errorf("%w: %s (user %s)", ErrNotConnected, serviceName, userID)
	}
	return conn, nil
}

func (m *Manager) closeConnection(key connKey, conn *connection) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if err := conn.session.Close(); err != nil {
		m.logger.Warn("Failed to close MCP session",
			"service", key.service, "user", key.userID, "error", err)
	}
}

// extractTextContent extracts text from an MCP CallToolResult.
// Concatenates all TextContent items; non-text content (images, embedded
// resources) is logged at debug level and skipped.
func extractTextContent(result *mcpsdk.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		} else {
			slog.Debug("MCP tool returned non-text content, skipping",
				"content_type", fmt.Sprintf("%T", c))
		}
	}
	return strings.Join(parts, "\n")
}

// marshalSchema serializes a tool's InputSchema to a JSON string.
func marshalSchema(schema any) string {
	if schema == nil {
		return ""
	}
	data, err := json.Marshal(schema)
	if err != nil {
		slog.Debug("Failed to marshal tool input schema", "error", err)
		return ""
	}
	return string(data)
}
