package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/m3rciful/weatherbot/core/logger"
)

// HandlerFunc handles one routed update.
type HandlerFunc func(c *Context) error

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
	// Aliases are reply-keyboard labels that trigger the command as plain text.
	Aliases []string
}

// MenuEntry is one line of the platform's command menu.
type MenuEntry struct {
	Command     string
	Description string
}

// Registry holds bot commands and button handlers.
type Registry struct {
	commands       map[string]Command
	buttons        map[string]HandlerFunc
	buttonsMu      sync.RWMutex
	buttonNotFound HandlerFunc
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Command),
		buttons:  make(map[string]HandlerFunc),
	}
}

// RegisterCommand adds a new command. Names carry the leading slash.
func (r *Registry) RegisterCommand(name string, cmd Command) {
	if r == nil || name == "" || cmd.Handler == nil || cmd.Description == "" {
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.command.skip",
			slog.String("name", name),
			slog.String("reason", "invalid"),
		)
		return
	}
	if name[0] != '/' {
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.command.skip",
			slog.String("name", name),
			slog.String("reason", "no_slash_prefix"),
		)
		return
	}
	if _, exists := r.commands[name]; exists {
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.command.duplicate",
			slog.String("name", name),
		)
		return
	}
	r.commands[name] = cmd
}

// ListCommands returns menu entries, optionally filtering out hidden and admin-only commands.
func (r *Registry) ListCommands(visibleOnly bool) []MenuEntry {
	var list []MenuEntry
	for cmd, meta := range r.commands {
		if visibleOnly && (meta.Hidden || meta.AdminOnly) {
			continue
		}
		list = append(list, MenuEntry{Command: strings.TrimPrefix(cmd, "/"), Description: meta.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Command < list[j].Command })
	return list
}

// LookupCommand finds a command by name (with or without slash, case-insensitive).
func (r *Registry) LookupCommand(name string) (string, Command, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	cmd, ok := r.commands[name]
	return name, cmd, ok
}

// LookupAlias finds the command whose alias equals text exactly.
func (r *Registry) LookupAlias(text string) (string, Command, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", Command{}, false
	}
	for key, cmd := range r.commands {
		for _, alias := range cmd.Aliases {
			if alias == text {
				return key, cmd, true
			}
		}
	}
	return "", Command{}, false
}

// Commands returns all registered commands.
func (r *Registry) Commands() map[string]Command {
	return r.commands
}

// RegisterButton adds a button handler mapped to its token.
func (r *Registry) RegisterButton(token string, handler HandlerFunc) error {
	if r == nil || token == "" || handler == nil {
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.button.skip",
			slog.String("key", token),
			slog.Bool("handler_nil", handler == nil),
		)
		return errors.New("invalid button registration")
	}
	r.buttonsMu.Lock()
	defer r.buttonsMu.Unlock()
	if _, exists := r.buttons[token]; exists {
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.button.duplicate",
			slog.String("key", token),
		)
		return fmt.Errorf("button already registered: %s", token)
	}
	r.buttons[token] = handler
	return nil
}

// GetButton safely returns handler by token.
func (r *Registry) GetButton(token string) (HandlerFunc, bool) {
	r.buttonsMu.RLock()
	defer r.buttonsMu.RUnlock()
	h, ok := r.buttons[token]
	return h, ok
}

// ListButtons returns sorted tokens (for diagnostics).
func (r *Registry) ListButtons() []string {
	r.buttonsMu.RLock()
	defer r.buttonsMu.RUnlock()
	names := make([]string, 0, len(r.buttons))
	for k := range r.buttons {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// SetButtonNotFound replaces the fallback handler for unknown buttons.
func (r *Registry) SetButtonNotFound(h HandlerFunc) {
	if h != nil {
		r.buttonNotFound = h
	}
}

// ButtonNotFound returns the current fallback button handler.
func (r *Registry) ButtonNotFound() HandlerFunc {
	return r.buttonNotFound
}
