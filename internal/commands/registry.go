// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jeranaias/gemchat/internal/session"
	"github.com/jeranaias/gemchat/internal/ui/styles"
)

// ErrUnknownCommand is matched by errors.Is for unrecognized commands.
var ErrUnknownCommand = errors.New("unknown command")

// Unlimited as MaxArgs accepts any number of arguments.
const Unlimited = -1

// Categories, in help display order.
const (
	CategoryGeneral      = "General"
	CategoryConversation = "Conversation"
	CategoryModel        = "Model"
	CategoryInput        = "Input"
	CategorySettings     = "Settings"
)

var categoryOrder = []string{CategoryGeneral, CategoryConversation, CategoryModel, CategoryInput, CategorySettings}

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Handler executes a command.
type Handler func(ctx *Context, args []string) error

// Command is one built-in slash command.
type Command struct {
	// Name is the primary command name (e.g., "/help")
	Name string

	// Aliases are alternative names (e.g., "/h", "/?")
	Aliases []string

	// Usage shows argument syntax (e.g., "/model [name]")
	Usage string

	// Description is shown in help
	Description string

	// Category for grouping in help display
	Category string

	MinArgs int
	MaxArgs int // Unlimited for no limit

	// Values lists accepted first-argument values, used for completion
	Values []string

	// CompleteFiles completes the argument as a file path
	CompleteFiles bool

	Handler Handler
}

// Context is what a handler may act on.
type Context struct {
	Session  *session.Session
	Out      io.Writer
	Registry *Registry

	// Line is the full command line as typed.
	Line string
}

// Theme returns the active theme.
func (c *Context) Theme() styles.Theme {
	if c.Session != nil && c.Session.Renderer != nil {
		return c.Session.Renderer.Theme
	}
	return styles.NewTheme(styles.ThemeMono)
}

// Printf writes formatted output.
func (c *Context) Printf(format string, args ...interface{}) {
	fmt.Fprintf(c.Out, format, args...)
}

// Println writes a line.
func (c *Context) Println(args ...interface{}) {
	fmt.Fprintln(c.Out, args...)
}

// Success writes a success status line.
func (c *Context) Success(format string, args ...interface{}) {
	fmt.Fprintln(c.Out, c.Theme().StatusSuccess(fmt.Sprintf(format, args...)))
}

// Warn writes a warning status line.
func (c *Context) Warn(format string, args ...interface{}) {
	fmt.Fprintln(c.Out, c.Theme().StatusWarning(fmt.Sprintf(format, args...)))
}

// Info writes an informational status line.
func (c *Context) Info(format string, args ...interface{}) {
	fmt.Fprintln(c.Out, c.Theme().StatusInfo(fmt.Sprintf(format, args...)))
}

// =============================================================================
// ERRORS
// =============================================================================

// UnknownCommandError names an unrecognized command and the closest match.
type UnknownCommandError struct {
	Name       string
	Suggestion string
}

func (e *UnknownCommandError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown command %s (did you mean %s?)", e.Name, e.Suggestion)
	}
	return fmt.Sprintf("unknown command %s (try /help)", e.Name)
}

// Is makes errors.Is(err, ErrUnknownCommand) true.
func (e *UnknownCommandError) Is(target error) bool {
	return target == ErrUnknownCommand
}

// UsageError reports a wrong argument count.
type UsageError struct {
	Command string
	Usage   string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("usage: %s", e.Usage)
}

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds the fixed command table.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]*Command
}

// NewRegistry creates a registry with every built-in command.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]*Command),
	}
	for _, cmd := range builtins() {
		r.register(cmd)
	}
	return r
}

func (r *Registry) register(cmd *Command) {
	if cmd.Usage == "" {
		cmd.Usage = cmd.Name
	}
	if cmd.Category == "" {
		cmd.Category = CategoryGeneral
	}
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[alias] = cmd
	}
}

// Get retrieves a command by name or alias, case-insensitively.
func (r *Registry) Get(name string) *Command {
	name = strings.ToLower(name)
	if !strings.HasPrefix(name, Prefix) {
		name = Prefix + name
	}
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	if cmd, ok := r.aliases[name]; ok {
		return cmd
	}
	return nil
}

// All returns every command sorted by name.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// ByCategory returns commands grouped by category, each group sorted.
func (r *Registry) ByCategory() map[string][]*Command {
	result := make(map[string][]*Command)
	for _, cmd := range r.All() {
		result[cmd.Category] = append(result[cmd.Category], cmd)
	}
	return result
}

// Categories returns the category names in display order.
func Categories() []string {
	out := make([]string, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}

// Names returns every name and alias, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands)+len(r.aliases))
	for n := range r.commands {
		names = append(names, n)
	}
	for n := range r.aliases {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Dispatch parses line and runs the matching command against sess.
func (r *Registry) Dispatch(sess *session.Session, out io.Writer, line string) error {
	name, args, ok := Parse(line)
	if !ok {
		return fmt.Errorf("not a command: %q", line)
	}

	cmd := r.Get(name)
	if cmd == nil {
		return &UnknownCommandError{Name: name, Suggestion: r.Suggest(name)}
	}

	if len(args) < cmd.MinArgs || (cmd.MaxArgs != Unlimited && len(args) > cmd.MaxArgs) {
		return &UsageError{Command: cmd.Name, Usage: cmd.Usage}
	}

	ctx := &Context{Session: sess, Out: out, Registry: r, Line: line}
	return cmd.Handler(ctx, args)
}

// =============================================================================
// SUGGESTIONS
// =============================================================================

// Suggest returns the closest command name or alias to name, or "" when
// nothing is close enough.
func (r *Registry) Suggest(name string) string {
	name = strings.ToLower(name)
	best, bestDist := "", 3
	for _, candidate := range r.Names() {
		if strings.HasPrefix(candidate, name) && len(name) > 1 {
			return r.Get(candidate).Name
		}
		if d := levenshtein(name, candidate); d < bestDist {
			best, bestDist = r.Get(candidate).Name, d
		}
	}
	return best
}

// levenshtein computes the edit distance between a and b.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
