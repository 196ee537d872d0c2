package websocket

import (
	"sync"
)

// ClientManager manages the lifecycle of WebSocket clients.
type ClientManager struct {
	clients map[string]*Client
	users   map[string]map[string]bool // Maps usertag to a set of clientIDs
	mu      sync.RWMutex
}

// NewClientManager creates a new ClientManager.
func NewClientManager() *ClientManager {
	return &ClientManager{
		clients: make(map[string]*Client),
		users:   make(map[string]map[string]bool),
	}
}

// Add registers a new client.
func (m *ClientManager) Add(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clients[client.ID] = client
	m.indexLocked(client.Key(), client.ID)
}

func (m *ClientManager) indexLocked(key, clientID string) {
	if key == "" {
		return
	}
	if _, ok := m.users[key]; !ok {
		m.users[key] = make(map[string]bool)
	}
	m.users[key][clientID] = true
}

func (m *ClientManager) unindexLocked(key, clientID string) {
	if key == "" || m.users[key] == nil {
		return
	}
	delete(m.users[key], clientID)
	if len(m.users[key]) == 0 {
		delete(m.users, key)
	}
}

// Rekey moves a client to the identity it announced.
func (m *ClientManager) Rekey(clientID, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, ok := m.clients[clientID]
	if !ok {
		return
	}
	m.unindexLocked(client.Key(), clientID)
	client.SetKey(key)
	m.indexLocked(key, clientID)
}

// Remove unregisters a client and closes its send channel. It reports
// whether the client was registered.
func (m *ClientManager) Remove(clientID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, ok := m.clients[clientID]
	if !ok {
		return false
	}
	delete(m.clients, clientID)
	m.unindexLocked(client.Key(), clientID)
	// Closing the send channel terminates the writePump.
	client.Close()
	return true
}

// Get returns the client with clientID.
func (m *ClientManager) Get(clientID string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[clientID]
	return c, ok
}

// GetByUser returns all clients for a given usertag.
func (m *ClientManager) GetByUser(key string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var userClients []*Client
	for id := range m.users[key] {
		if client, ok := m.clients[id]; ok {
			userClients = append(userClients, client)
		}
	}
	return userClients
}

// GetAll returns all currently connected clients.
func (m *ClientManager) GetAll() []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	allClients := make([]*Client, 0, len(m.clients))
	for _, client := range m.clients {
		allClients = append(allClients, client)
	}
	return allClients
}

// Count returns the number of connected clients.
func (m *ClientManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}
