package webclient

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cipherlens/cipherlens/internal/logging"
)

// Constructor builds a backend from its config.
type Constructor func(cfg Config, logger logging.Logger) (WebClient, error)

var backends = struct {
	sync.RWMutex
	ctors map[Client]Constructor
}{ctors: map[Client]Constructor{}}

func init() {
	Register(ClientNetHTTP, func(cfg Config, logger logging.Logger) (WebClient, error) {
		return NewNetHTTPClient(cfg, logger, nil)
	})
	Register(ClientChromedp, func(cfg Config, logger logging.Logger) (WebClient, error) {
		return NewChromedpClient(cfg, logger)
	})
}

// Register adds or replaces a named backend.
func Register(name Client, ctor Constructor) {
	name = Client(strings.ToLower(string(name)))
	if name == "" || ctor == nil {
		return
	}
	backends.Lock()
	backends.ctors[name] = ctor
	backends.Unlock()
}

// New builds the backend named by cfg.Client, nethttp when empty.
func New(cfg Config, logger logging.Logger) (WebClient, error) {
	if logger == nil {
		return nil, errors.New("webclient: nil logger")
	}
	name := Client(strings.ToLower(strings.TrimSpace(string(cfg.Client))))
	if name == "" {
		name = ClientNetHTTP
	}

	backends.RLock()
	ctor := backends.ctors[name]
	backends.RUnlock()
	if ctor == nil {
		return nil, fmt.Errorf("webclient backend %q not registered (have %v)", name, Backends())
	}

	wc, err := ctor(cfg.withDefaults(), logger)
	if err != nil {
		return nil, fmt.Errorf("webclient backend %q: %w", name, err)
	}
	return wc, nil
}

// Backends lists the registered backend names, sorted.
func Backends() []Client {
	backends.RLock()
	defer backends.RUnlock()
	out := make([]Client, 0, len(backends.ctors))
	for name := range backends.ctors {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
