// Package commands provides the deterministic slash-command shortcuts
// that are intercepted before any reasoning happens. They keep working
// even when the reasoning backend is unreachable.
package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Provider gives command handlers access to the rest of the engine.
type Provider interface {
	// ResetConversation clears the identity's conversation context.
	ResetConversation(identity string)

	// JobsReport formats the identity's scheduled jobs.
	JobsReport(identity string) string

	// StatusReport formats the engine status summary.
	StatusReport(ctx context.Context) string
}

// Command is one slash command.
type Command struct {
	Name        string
	Description string
	Aliases     []string
	Handler     Handler
}

// Handler runs a command for an identity and returns the reply text.
type Handler func(ctx context.Context, identity, rawArgs string) string

// Manager is the command registry.
type Manager struct {
	mu       sync.RWMutex
	commands map[string]*Command
	provider Provider
}

// NewManager creates a registry with the builtin commands registered.
func NewManager(provider Provider) *Manager {
	m := &Manager{
		commands: make(map[string]*Command),
		provider: provider,
	}
	registerBuiltins(m)
	return m
}

// Register adds a command and its aliases.
func (m *Manager) Register(cmd *Command) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.commands[strings.ToLower(cmd.Name)] = cmd
	for _, alias := range cmd.Aliases {
		m.commands[strings.ToLower(alias)] = cmd
	}
}

// Get returns a command by name or alias, nil if unknown.
func (m *Manager) Get(name string) *Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.commands[strings.ToLower(name)]
}

// List returns all unique commands sorted by name.
func (m *Manager) List() []*Command {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[*Command]bool)
	var list []*Command
	for _, cmd := range m.commands {
		if !seen[cmd] {
			seen[cmd] = true
			list = append(list, cmd)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

// Execute parses and runs a command line, returning the reply text.
func (m *Manager) Execute(ctx context.Context, identity, cmdStr string) string {
	cmdStr = strings.TrimSpace(cmdStr)
	parts := strings.SplitN(cmdStr, " ", 2)
	name := strings.ToLower(parts[0])
	rawArgs := ""
	if len(parts) > 1 {
		rawArgs = strings.TrimSpace(parts[1])
	}

	cmd := m.Get(name)
	if cmd == nil {
		return fmt.Sprintf("Comando desconhecido: %s\nEscreve /ajuda para ver os comandos disponíveis.", name)
	}
	return cmd.Handler(ctx, identity, rawArgs)
}

// IsCommand checks if text is a slash command.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}
