package artifact

import (
	"fmt"

	"github.com/skillsenselab/recap/logger"
)

// Factory creates a Store implementation from configuration.
type Factory func(cfg Config, log *logger.Logger) (Store, error)

var factories = make(map[string]Factory)

// RegisterFactory registers a backend factory for the given provider name.
// Implementation packages call this from an init function.
func RegisterFactory(name string, f Factory) {
	factories[name] = f
}

// New creates a Store based on the given Config. Ensure the desired backend
// package has been imported (e.g. _ ".../artifact/local") so its factory is
// registered.
func New(cfg Config, log *logger.Logger) (Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := log.WithComponent("artifact")

	f, ok := factories[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("artifact: unsupported provider %q (not registered)", cfg.Provider)
	}

	l.Info("initializing artifact store", map[string]interface{}{"provider": cfg.Provider})
	return f(cfg, l)
}
