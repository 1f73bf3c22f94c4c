// internal/poa/poa.go
package poa

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"orb-server/internal/ior"
	"orb-server/internal/oa"
	"orb-server/internal/protocol"
)

var (
	ErrObjectAlreadyActive = errors.New("object already active")
	ErrObjectNotActive     = errors.New("object not active")
)

type State int32

const (
	StateActive State = iota
	StateDestroying
	StateDestroyed
)

// ServantLocator supplies servants per call. Preinvoke may return a
// *protocol.ForwardRequest to redirect the caller.
type ServantLocator interface {
	Preinvoke(id ior.ObjectID, adapter *POA, op string) (servant oa.Servant, cookie any, err error)
	Postinvoke(id ior.ObjectID, adapter *POA, op string, cookie any, servant oa.Servant)
}

// Typed servants advertise their own repository ids.
type Typed interface {
	RepositoryIDs() []string
}

type activation struct {
	servant oa.Servant
	typeID  string
}

// POA is the reference object adapter. Enter blocks while the adapter is
// being destroyed and fails once destruction completes.
type POA struct {
	id      ior.AdapterID
	manager *Manager
	logger  *zap.Logger

	state atomic.Int32

	mu     sync.Mutex
	cond   *sync.Cond
	active int

	objMu          sync.RWMutex
	objects        map[string]activation
	defaultServant oa.Servant
	locator        ServantLocator
}

func newPOA(id ior.AdapterID, m *Manager) *POA {
	p := &POA{
		id:      append(ior.AdapterID(nil), id...),
		manager: m,
		logger:  m.logger.With(zap.String("adapter", id.String())),
		objects: make(map[string]activation),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *POA) ID() ior.AdapterID {
	return p.id
}

func (p *POA) State() State {
	return State(p.state.Load())
}

func (p *POA) Enter() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.State() == StateDestroying {
		p.cond.Wait()
	}
	if p.State() == StateDestroyed {
		return oa.ErrAdapterDestroyed
	}
	p.active++
	return nil
}

func (p *POA) Exit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == 0 {
		p.logger.Error("unbalanced adapter exit")
		return
	}
	p.active--
	if p.active == 0 {
		p.cond.Broadcast()
	}
}

// Active reports the number of calls currently inside the adapter.
func (p *POA) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Destroy waits for in-flight calls to exit, then unregisters the adapter.
// New Enter calls block until it completes.
func (p *POA) Destroy() {
	p.mu.Lock()
	if p.State() != StateActive {
		for p.State() != StateDestroyed {
			p.cond.Wait()
		}
		p.mu.Unlock()
		return
	}
	p.state.Store(int32(StateDestroying))
	for p.active > 0 {
		p.cond.Wait()
	}
	p.state.Store(int32(StateDestroyed))
	p.cond.Broadcast()
	p.mu.Unlock()

	p.manager.remove(p)
	p.logger.Info("adapter destroyed")
}

func (p *POA) MakeInvocationInfo(id ior.ObjectID) *oa.InvocationInfo {
	return oa.NewInvocationInfo(p, id)
}

func (p *POA) GetInvocationServant(info *oa.InvocationInfo) error {
	p.objMu.RLock()
	locator := p.locator
	act, ok := p.objects[string(info.ObjectID)]
	def := p.defaultServant
	p.objMu.RUnlock()

	if ok {
		info.Servant = act.servant
		return nil
	}
	if locator != nil {
		servant, cookie, err := locator.Preinvoke(info.ObjectID, p, info.Operation)
		if err != nil {
			return err
		}
		if oa.IsNull(servant) {
			return protocol.NoServant(info.ObjectID.String())
		}
		info.Servant = servant
		info.Cookie = locatorCookie{value: cookie}
		return nil
	}
	if def != nil {
		info.Servant = def
		return nil
	}
	return protocol.NoServant(info.ObjectID.String())
}

// locatorCookie marks servants obtained from a ServantLocator.
type locatorCookie struct {
	value any
}

func (p *POA) ReturnServant(info *oa.InvocationInfo) error {
	c, ok := info.Cookie.(locatorCookie)
	if !ok {
		return nil
	}
	info.Cookie = nil
	p.objMu.RLock()
	locator := p.locator
	p.objMu.RUnlock()
	if locator != nil {
		locator.Postinvoke(info.ObjectID, p, info.Operation, c.value, info.Servant)
	}
	return nil
}

func (p *POA) Interfaces(servant oa.Servant, id ior.ObjectID) []string {
	if t, ok := servant.(Typed); ok {
		return t.RepositoryIDs()
	}
	p.objMu.RLock()
	defer p.objMu.RUnlock()
	if act, ok := p.objects[string(id)]; ok && act.typeID != "" {
		return []string{act.typeID}
	}
	return nil
}

func (p *POA) Activate(id ior.ObjectID, servant oa.Servant, typeID string) error {
	if oa.IsNull(servant) {
		return fmt.Errorf("activate %q: nil servant", id)
	}
	p.objMu.Lock()
	defer p.objMu.Unlock()
	if _, exists := p.objects[string(id)]; exists {
		return fmt.Errorf("activate %q: %w", id, ErrObjectAlreadyActive)
	}
	p.objects[string(id)] = activation{servant: servant, typeID: typeID}
	return nil
}

func (p *POA) Deactivate(id ior.ObjectID) error {
	p.objMu.Lock()
	defer p.objMu.Unlock()
	if _, exists := p.objects[string(id)]; !exists {
		return fmt.Errorf("deactivate %q: %w", id, ErrObjectNotActive)
	}
	delete(p.objects, string(id))
	return nil
}

func (p *POA) SetDefaultServant(s oa.Servant) {
	p.objMu.Lock()
	p.defaultServant = s
	p.objMu.Unlock()
}

func (p *POA) SetServantLocator(l ServantLocator) {
	p.objMu.Lock()
	p.locator = l
	p.objMu.Unlock()
}

// Reference mints an IOR for id on this adapter's endpoint.
func (p *POA) Reference(id ior.ObjectID, typeID string) *ior.IOR {
	key := ior.NewObjectKey(ior.NewPOATemplate(p.manager.serverID, p.manager.orbID, p.id), id)
	host, port := p.manager.Endpoint()
	r := ior.NewIOR(typeID)
	_ = r.AddProfile(ior.NewIIOPProfile(host, port, key))
	r.MakeImmutable()
	return r
}
