package config

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors path and calls onChange with the reloaded Config whenever a
// hot-reloadable field (currently only LogLevel) changes. It runs until ctx
// is cancelled.
//
// Edits to any other field are logged as needing a restart and are not
// delivered. A reload that fails to parse or validate is logged and the
// previous config stays in effect.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	current, err := Load(path)
	if err != nil {
		// Start from defaults; the first valid edit brings the watcher in sync.
		current = Defaults()
	}

	slog.Info("config: watching for log level changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, so Create counts as a write.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			// Re-add the file in case an atomic save replaced the inode.
			_ = watcher.Add(path)

			next, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}

			if fields := RestartRequired(current, next); len(fields) > 0 {
				slog.Warn("config: changes take effect after restart",
					"path", path, "fields", fields)
			}

			prevLevel := current.Server.Level()
			current = next
			if next.Server.Level() == prevLevel {
				continue
			}
			slog.Info("config: log level changed",
				"from", prevLevel.String(), "to", next.Server.Level().String())
			onChange(next)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// RestartRequired lists the yaml keys whose values differ between prev and
// next and that the running server cannot apply live.
func RestartRequired(prev, next *Config) []string {
	p, n := prev.Server, next.Server
	var fields []string
	add := func(name string, changed bool) {
		if changed {
			fields = append(fields, name)
		}
	}
	add("http_port", p.HTTPPort != n.HTTPPort)
	add("grpc_port", p.GRPCPort != n.GRPCPort)
	add("metrics.sample_interval", p.Metrics != n.Metrics)
	add("websocket.write_timeout", p.WebSocket.WriteTimeout != n.WebSocket.WriteTimeout)
	add("websocket.max_message_size", p.WebSocket.MaxMessageSize != n.WebSocket.MaxMessageSize)
	add("websocket.allowed_origins", !reflect.DeepEqual(p.WebSocket.AllowedOrigins, n.WebSocket.AllowedOrigins))
	add("broker", p.Broker != n.Broker)
	add("eliza.script", p.Eliza != n.Eliza)
	return fields
}
