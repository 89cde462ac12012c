package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"tombot/internal/core/domain"
	"tombot/internal/core/port"
)

type State int

const (
	Active State = iota
	Disabled
)

func (s State) String() string {
	if s == Disabled {
		return "disabled"
	}

	return "active"
}

// Entry is one registered handler with all of its aliases. A failing entry is
// kept with State Disabled so it can still be inspected.
type Entry struct {
	Aliases  []string
	Category string
	Hidden   bool
	Handler  port.Command
	State    State
	Reason   string
}

type Option func(*Entry)

// WithCategory groups the command in help output.
func WithCategory(category string) Option {
	return func(e *Entry) {
		e.Category = category
	}
}

// Hidden leaves the command out of help output.
func Hidden() Option {
	return func(e *Entry) {
		e.Hidden = true
	}
}

type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Entry
	sealed   bool
	onFault  func(alias string)
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]*Entry)}
}

// OnFault is called with the alias whenever a handler gets disabled.
func (r *Registry) OnFault(fn func(alias string)) {
	r.onFault = fn
}

// Register adds handler under every alias. Aliases are case-insensitive and a
// later registration for the same alias wins.
func (r *Registry) Register(aliases []string, handler port.Command, opts ...Option) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		log.Error().Err(domain.ErrRegistrySealed).Strs("aliases", aliases).Msg("refusing to add command handler")
		return
	}

	if r.commands == nil {
		r.commands = make(map[string]*Entry)
	}

	entry := &Entry{Handler: handler}
	for _, alias := range aliases {
		entry.Aliases = append(entry.Aliases, normalize(alias))
	}
	for _, opt := range opts {
		opt(entry)
	}

	log.Info().Strs("aliases", entry.Aliases).Msg("adding command handler to registry")
	for _, alias := range entry.Aliases {
		if prev, ok := r.commands[alias]; ok {
			log.Warn().Str("alias", alias).Strs("previous", prev.Aliases).Msg("overwriting command alias")
		}
		r.commands[alias] = entry
	}
}

// Seal ends the load phase. Later registrations are refused.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sealed = true
}

func (r *Registry) Get(alias string) (port.Command, error) {
	entry, err := r.lookup(alias)
	if err != nil {
		return nil, err
	}

	return entry.Handler, nil
}

func (r *Registry) lookup(alias string) (*Entry, error) {
	alias = normalize(alias)
	log.Debug().Str("command", alias).Msg("fetching command handler from registry")

	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.commands[alias]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCommandNotFound, alias)
	}

	if entry.State == Disabled {
		return nil, fmt.Errorf("%w: %s", domain.ErrCommandDisabled, alias)
	}

	return entry, nil
}

// Dispatch runs the handler for alias. An error or panic other than an exit
// request disables the handler for all of its aliases. A handler that gives up
// because ctx ended is reported with domain.ErrHandlerTimeout and stays active.
func (r *Registry) Dispatch(ctx context.Context, alias string, message domain.Message) (string, error) {
	entry, err := r.lookup(alias)
	if err != nil {
		return "", err
	}

	reply, err := invoke(ctx, entry.Handler, message)
	if err == nil {
		return reply, nil
	}

	if _, ok := domain.ExitCode(err); ok {
		return reply, err
	}

	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		log.Warn().Err(err).Str("command", normalize(alias)).Msg("command handler ran out of time")
		return "", fmt.Errorf("%w: %w", domain.ErrHandlerTimeout, err)
	}

	log.Error().Err(err).Bool("critical", true).
		Str("command", normalize(alias)).
		Str("messageId", message.ID).
		Msg("command handler failed, disabling")
	r.disable(entry, err)

	if r.onFault != nil {
		r.onFault(normalize(alias))
	}

	return "", fmt.Errorf("%w: %w", domain.ErrHandlerFault, err)
}

func invoke(ctx context.Context, handler port.Command, message domain.Message) (reply string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	return handler.Respond(ctx, message)
}

func (r *Registry) disable(entry *Entry, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.State = Disabled
	entry.Reason = cause.Error()
}

// Entry returns the entry behind alias whatever its state.
func (r *Registry) Entry(alias string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.commands[normalize(alias)]
	if !ok {
		return Entry{}, false
	}

	return *entry, true
}

// ListCommands returns every active alias in sorted order.
func (r *Registry) ListCommands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.commands))
	for k, entry := range r.commands {
		if entry.State == Active {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	return keys
}

// Categories groups the first alias of every visible, active command by
// category. Uncategorized commands are listed under "".
func (r *Registry) Categories() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[*Entry]bool)
	result := make(map[string][]string)
	for _, entry := range r.commands {
		if seen[entry] || entry.Hidden || entry.State != Active {
			continue
		}
		seen[entry] = true

		name := r.firstOwnedAlias(entry)
		if name == "" {
			continue
		}
		result[entry.Category] = append(result[entry.Category], name)
	}

	for _, names := range result {
		sort.Strings(names)
	}

	return result
}

// firstOwnedAlias skips aliases that a later registration took over.
func (r *Registry) firstOwnedAlias(entry *Entry) string {
	for _, alias := range entry.Aliases {
		if r.commands[alias] == entry {
			return alias
		}
	}

	return ""
}

func normalize(alias string) string {
	return strings.ToUpper(strings.TrimSpace(alias))
}

// ParseCommand returns the first word of text, uppercased.
func ParseCommand(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}

	return normalize(fields[0])
}
