package mcp

import (
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/STPDevteam/awesome-server/pkg/config"
)

// InjectConnection wires a pre-connected MCP SDK session into the Manager
// under the given (user, service) key. This is test infrastructure for
// in-memory MCP servers that bypass the real Connect() transport path; it
// reserves a slot and publishes through the same storeConnection used by
// Connect, so a session displaced by a racing insert is closed, not leaked.
func (m *Manager) InjectConnection(serviceName, userID string, client *mcpsdk.Client, session *mcpsdk.ClientSession) {
	key := connKey{userID: userID, service: serviceName}

	m.mu.Lock()
	m.perUser[userID]++
	m.mu.Unlock()

	displaced := m.storeConnection(key, &connection{
		client:  client,
		session: session,
		cfg:     config.ServiceConfig{Name: serviceName},
	})
	if displaced != nil {
		m.closeConnection(key, displaced)
	}
}
