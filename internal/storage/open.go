package storage

import (
	"fmt"
	"strings"

	logx "remindbot/pkg/logx"
)

// Open returns the store for cfg.Driver, or nil when storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	switch d := strings.ToLower(strings.TrimSpace(cfg.Driver)); d {
	case "", "none":
		return nil, nil
	case "file":
		return openFile(path, log)
	case "sqlite", "sqlite3":
		return openSQLite(path, cfg.BusyTimeout, log)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", d)
	}
}
