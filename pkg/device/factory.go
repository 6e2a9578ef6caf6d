package device

import (
	"fmt"
	"sync"
)

// Constructor builds a Device from a Config. Registered per Type.
type Constructor func(cfg Config) Device

// Factory maps a device Type to the constructor and default capability set
// for that vendor dialect, mirroring the registration pattern used by the
// southbound CLI driver factory this package generalizes.
type Factory struct {
	mu           sync.RWMutex
	constructors map[Type]Constructor
	capabilities map[Type]Capabilities
}

// NewFactory returns an empty factory; use RegisterDefaults to populate it
// with the built-in vendor drivers.
func NewFactory() *Factory {
	return &Factory{
		constructors: make(map[Type]Constructor),
		capabilities: make(map[Type]Capabilities),
	}
}

// RegisterDriver associates a device Type with its constructor and
// capability set.
func (f *Factory) RegisterDriver(t Type, ctor Constructor, caps Capabilities) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[t] = ctor
	f.capabilities[t] = caps
}

// CreateDevice constructs a Device for the given config's Type.
func (f *Factory) CreateDevice(cfg Config) (Device, error) {
	f.mu.RLock()
	ctor, ok := f.constructors[cfg.Type]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no driver registered for device type %q", cfg.Type)
	}
	return ctor(cfg), nil
}

// GetCapabilities returns the declared capability set for a device type
// without constructing a driver, for use by the validator and generator.
func (f *Factory) GetCapabilities(t Type) (Capabilities, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	caps, ok := f.capabilities[t]
	if !ok {
		return Capabilities{}, fmt.Errorf("no capabilities registered for device type %q", t)
	}
	return caps, nil
}

// KnownTypes returns every registered device type, for inventory
// validation error messages.
func (f *Factory) KnownTypes() []Type {
	f.mu.RLock()
	defer f.mu.RUnlock()
	types := make([]Type, 0, len(f.constructors))
	for t := range f.constructors {
		types = append(types, t)
	}
	return types
}

// DefaultFactory is a package-level convenience factory pre-populated with
// the built-in vendor drivers via RegisterDefaults in register.go, in the
// style of the southbound package's DefaultFactory singleton.
var DefaultFactory = NewFactory()

func init() {
	RegisterDefaults(DefaultFactory)
}
