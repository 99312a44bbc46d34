package snapshot

import "fmt"

// Config selects a snapshot backend. Type is "file" (default) or "sqlite".
type Config struct {
	Type string `json:"type" mapstructure:"type"`
	Path string `json:"path" mapstructure:"path"`
}

// New builds a Store from config. An empty path disables persistence and
// returns nil with no error.
func New(cfg Config) (Store, error) {
	if cfg.Path == "" {
		return nil, nil
	}
	switch cfg.Type {
	case "", "file":
		return NewFileStore(cfg.Path)
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported snapshot store type: %s", cfg.Type)
	}
}
