package game

import (
	"fmt"
	"sync"
)

// Registry manages game registration and lookup by command. One registry is
// constructed at startup; there is no package-level default, each engine
// instance owns its own.
// Requirements: 10.2
type Registry struct {
	games map[string]Descriptor
	mu    sync.RWMutex
}

// NewRegistry creates a new game registry.
func NewRegistry() *Registry {
	return &Registry{
		games: make(map[string]Descriptor),
	}
}

// Register adds a game to the registry.
func (r *Registry) Register(g Descriptor) error {
	if g == nil {
		return fmt.Errorf("cannot register nil game")
	}
	if g.Command() == "" {
		return fmt.Errorf("game command cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.games[g.Command()]; exists {
		return fmt.Errorf("game command %q already registered", g.Command())
	}
	r.games[g.Command()] = g
	return nil
}

// Get retrieves a game by its command.
func (r *Registry) Get(command string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[command]
	return g, ok
}

// List returns all registered games. The returned slice is a copy.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	games := make([]Descriptor, 0, len(r.games))
	for _, g := range r.games {
		games = append(games, g)
	}
	return games
}

// Commands returns all registered game commands.
func (r *Registry) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commands := make([]string, 0, len(r.games))
	for cmd := range r.games {
		commands = append(commands, cmd)
	}
	return commands
}

// Count returns the number of registered games.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}

// ForceEndAll ends every live session in the chat across all games and
// returns the commands of the games that had one.
// Requirements: 6.4
func (r *Registry) ForceEndAll(chatID int64) []string {
	var ended []string
	for _, g := range r.List() {
		if g.ForceEnd(chatID) {
			ended = append(ended, g.Command())
		}
	}
	return ended
}
