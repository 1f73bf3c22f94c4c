package poa

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang/groupcache/singleflight"
	"go.uber.org/zap"

	"orb-server/internal/ior"
	"orb-server/internal/oa"
	"orb-server/internal/protocol"
)

var ErrAdapterExists = errors.New("adapter already exists")

// RootName is the name of the root adapter.
const RootName = "RootPOA"

// Activator populates a freshly created adapter when Find misses.
type Activator func(p *POA) error

type Options struct {
	ServerID int32
	ORBID    string
	Host     string
	Port     uint16
	Logger   *zap.Logger
}

// Manager owns every adapter of one ORB and recreates missing ones.
type Manager struct {
	serverID int32
	orbID    string
	host     string
	port     uint16
	logger   *zap.Logger

	mu        sync.RWMutex
	adapters  map[string]*POA
	activator Activator

	group singleflight.Group
}

func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		serverID: opts.ServerID,
		orbID:    opts.ORBID,
		host:     opts.Host,
		port:     opts.Port,
		logger:   logger,
		adapters: make(map[string]*POA),
	}
}

// SetEndpoint updates the address minted into new references.
func (m *Manager) SetEndpoint(host string, port uint16) {
	m.mu.Lock()
	m.host, m.port = host, port
	m.mu.Unlock()
}

func (m *Manager) Endpoint() (string, uint16) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.host, m.port
}

func (m *Manager) SetActivator(a Activator) {
	m.mu.Lock()
	m.activator = a
	m.mu.Unlock()
}

func (m *Manager) Create(id ior.AdapterID) (*POA, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := id.String()
	if p, ok := m.adapters[key]; ok && p.State() != StateDestroyed {
		return nil, fmt.Errorf("create %s: %w", key, ErrAdapterExists)
	}
	p := newPOA(id, m)
	m.adapters[key] = p
	return p, nil
}

func (m *Manager) lookup(key string) (*POA, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.adapters[key]
	if !ok || p.State() == StateDestroyed {
		return nil, false
	}
	return p, true
}

// Find returns the adapter for id, recreating it through the activator when
// it is missing or destroyed. Concurrent misses share one recreation.
func (m *Manager) Find(id ior.AdapterID) (oa.ObjectAdapter, error) {
	key := id.String()
	if p, ok := m.lookup(key); ok {
		return p, nil
	}

	m.mu.RLock()
	activator := m.activator
	m.mu.RUnlock()
	if activator == nil {
		return nil, protocol.NoAdapter(key)
	}

	v, err := m.group.Do(key, func() (interface{}, error) {
		if p, ok := m.lookup(key); ok {
			return p, nil
		}
		p := newPOA(id, m)
		if err := activator(p); err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.adapters[key] = p
		m.mu.Unlock()
		m.logger.Info("adapter recreated", zap.String("adapter", key))
		return p, nil
	})
	if err != nil {
		m.logger.Warn("adapter activator failed",
			zap.String("adapter", key),
			zap.String("reason", err.Error()),
		)
		if se, ok := protocol.AsSystemException(err); ok {
			return nil, se
		}
		return nil, protocol.AdapterActivatorFailed(key, err)
	}
	return v.(*POA), nil
}

// Adapter returns a live adapter without recreating it.
func (m *Manager) Adapter(id ior.AdapterID) (*POA, bool) {
	return m.lookup(id.String())
}

func (m *Manager) remove(p *POA) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := p.id.String()
	if cur, ok := m.adapters[key]; ok && cur == p {
		delete(m.adapters, key)
	}
}

// DestroyAll destroys every adapter, waiting for in-flight calls.
func (m *Manager) DestroyAll() {
	m.mu.RLock()
	all := make([]*POA, 0, len(m.adapters))
	for _, p := range m.adapters {
		all = append(all, p)
	}
	m.mu.RUnlock()
	for _, p := range all {
		p.Destroy()
	}
}
