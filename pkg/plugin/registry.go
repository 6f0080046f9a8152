// Package plugin provides a static, in-process factory registry that
// satisfies session.Loader (spec §6.2). Protocol backends are registered
// by name in-process (cmd/guacgo-demo registers webrtcdemo at startup)
// rather than being dlopen'd from a plugin directory; the registry's
// only job is matching a protocol name
// to the InitFunc/Binding pair that wires it onto a session.
package plugin

import (
	"fmt"
	"sync"

	"github.com/netios/guacamole-server/pkg/session"
)

// Factory produces the InitFunc and Binding for one protocol.
type Factory func() (session.InitFunc, session.Binding, error)

// Registry maps protocol names to Factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register associates protocolName with factory, overwriting any prior
// registration for the same name.
func (r *Registry) Register(protocolName string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[protocolName] = factory
}

// Load implements session.Loader.
func (r *Registry) Load(protocolName string) (session.InitFunc, session.Binding, error) {
	r.mu.RLock()
	factory, ok := r.factories[protocolName]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("plugin: no protocol registered as %q", protocolName)
	}
	initFn, binding, err := factory()
	if err != nil {
		return nil, nil, fmt.Errorf("plugin: factory for %q failed: %w", protocolName, err)
	}
	if initFn == nil {
		return nil, nil, fmt.Errorf("plugin: factory for %q returned a nil InitFunc", protocolName)
	}
	return initFn, binding, nil
}

var _ session.Loader = (*Registry)(nil)

// NoopBinding is a Binding for protocols with nothing to release.
type NoopBinding struct{}

// Release is a no-op.
func (NoopBinding) Release() error { return nil }

var _ session.Binding = NoopBinding{}
