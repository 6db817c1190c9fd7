// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/export"
	"github.com/jeranaias/gemchat/internal/history"
	"github.com/jeranaias/gemchat/internal/ui/styles"
	"github.com/jeranaias/gemchat/internal/util"
)

// previewWidth bounds a /history line.
const previewWidth = 72

// builtins returns the fixed command table.
func builtins() []*Command {
	return []*Command{
		// General
		{
			Name:        "/help",
			Aliases:     []string{"/h", "/?"},
			Usage:       "/help [command]",
			Description: "List commands or show usage for one",
			Category:    CategoryGeneral,
			MaxArgs:     1,
			Handler:     HandleHelp,
		},
		{
			Name:        "/exit",
			Aliases:     []string{"/quit", "/q"},
			Description: "Exit, saving history when auto_save is on",
			Category:    CategoryGeneral,
			Handler:     HandleExit,
		},

		// Conversation
		{
			Name:        "/history",
			Aliases:     []string{"/hist"},
			Usage:       "/history [n]",
			Description: "Show the last n entries (default all)",
			Category:    CategoryConversation,
			MaxArgs:     1,
			Handler:     HandleHistory,
		},
		{
			Name:        "/clear",
			Aliases:     []string{"/reset"},
			Description: "Clear the in-memory history",
			Category:    CategoryConversation,
			Handler:     HandleClear,
		},
		{
			Name:          "/save",
			Usage:         "/save [path]",
			Description:   "Save history to path or the history store",
			Category:      CategoryConversation,
			MaxArgs:       1,
			CompleteFiles: true,
			Handler:       HandleSave,
		},
		{
			Name:          "/export",
			Usage:         "/export [md|json] [dir]",
			Description:   "Write the conversation to a Markdown or JSON file",
			Category:      CategoryConversation,
			MaxArgs:       2,
			Values:        export.Formats(),
			CompleteFiles: true,
			Handler:       HandleExport,
		},
		{
			Name:          "/load",
			Usage:         "/load [path]",
			Description:   "Load history from path or the history store",
			Category:      CategoryConversation,
			MaxArgs:       1,
			CompleteFiles: true,
			Handler:       HandleLoad,
		},

		// Model
		{
			Name:        "/system",
			Aliases:     []string{"/sys"},
			Usage:       "/system [text|off]",
			Description: "Show, set or clear the system prompt",
			Category:    CategoryModel,
			MaxArgs:     Unlimited,
			Values:      []string{"off"},
			Handler:     HandleSystem,
		},
		{
			Name:        "/model",
			Aliases:     []string{"/m"},
			Usage:       "/model [name]",
			Description: "Show or switch the model",
			Category:    CategoryModel,
			MaxArgs:     1,
			Values:      []string{"gemini-1.5-flash", "gemini-1.5-pro", "gemini-2.0-flash", "gemini-2.5-flash", "gemini-2.5-pro"},
			Handler:     settingHandler("model_name"),
		},
		{
			Name:        "/temperature",
			Aliases:     []string{"/temp"},
			Usage:       "/temperature [0-1]",
			Description: "Show or set the sampling temperature",
			Category:    CategoryModel,
			MaxArgs:     1,
			Handler:     settingHandler("temperature"),
		},
		{
			Name:        "/top-p",
			Aliases:     []string{"/topp"},
			Usage:       "/top-p [0-1]",
			Description: "Show or set nucleus sampling top_p",
			Category:    CategoryModel,
			MaxArgs:     1,
			Handler:     settingHandler("top_p"),
		},
		{
			Name:        "/max-tokens",
			Aliases:     []string{"/tokens"},
			Usage:       "/max-tokens [n]",
			Description: "Show or set the output token limit",
			Category:    CategoryModel,
			MaxArgs:     1,
			Handler:     settingHandler("max_output_tokens"),
		},

		// Input
		{
			Name:          "/upload",
			Aliases:       []string{"/file", "/attach"},
			Usage:         "/upload <path>",
			Description:   "Attach a file to the next prompt",
			Category:      CategoryInput,
			MinArgs:       1,
			MaxArgs:       Unlimited,
			CompleteFiles: true,
			Handler:       HandleUpload,
		},
		{
			Name:        "/detach",
			Description: "Drop pending attachments",
			Category:    CategoryInput,
			Handler:     HandleDetach,
		},
		{
			Name:        "/paste",
			Description: "Enter paste mode (end with /end or Ctrl-D)",
			Category:    CategoryInput,
			Handler:     HandlePaste,
		},

		// Settings
		{
			Name:        "/theme",
			Usage:       "/theme [dark|light|mono]",
			Description: "Show or switch the color theme",
			Category:    CategorySettings,
			MaxArgs:     1,
			Values:      styles.ThemeNames(),
			Handler:     settingHandler("theme"),
		},
		{
			Name:        "/format",
			Usage:       "/format [on|off]",
			Description: "Toggle code formatting in responses",
			Category:    CategorySettings,
			MaxArgs:     1,
			Values:      []string{"on", "off"},
			Handler:     toggleHandler("format_code"),
		},
		{
			Name:        "/stream",
			Usage:       "/stream [on|off]",
			Description: "Toggle streaming responses",
			Category:    CategorySettings,
			MaxArgs:     1,
			Values:      []string{"on", "off"},
			Handler:     toggleHandler("stream"),
		},
		{
			Name:        "/config",
			Aliases:     []string{"/settings"},
			Usage:       "/config [save | <key> [value]]",
			Description: "Show settings or persist them",
			Category:    CategorySettings,
			MaxArgs:     Unlimited,
			Values:      append([]string{"save"}, config.Keys()...),
			Handler:     HandleConfig,
		},
	}
}

// =============================================================================
// GENERAL
// =============================================================================

// HandleHelp lists commands grouped by category, or shows one command.
func HandleHelp(ctx *Context, args []string) error {
	theme := ctx.Theme()

	if len(args) == 1 {
		cmd := ctx.Registry.Get(args[0])
		if cmd == nil {
			return &UnknownCommandError{Name: args[0], Suggestion: ctx.Registry.Suggest(args[0])}
		}
		ctx.Println(theme.UserLabel.Render(cmd.Usage))
		ctx.Printf("  %s\n", cmd.Description)
		if len(cmd.Aliases) > 0 {
			ctx.Printf("  %s %s\n", theme.Muted.Render("aliases:"), strings.Join(cmd.Aliases, ", "))
		}
		return nil
	}

	byCategory := ctx.Registry.ByCategory()
	for _, category := range Categories() {
		cmds := byCategory[category]
		if len(cmds) == 0 {
			continue
		}
		ctx.Println(theme.AssistantLabel.Render(category))
		for _, cmd := range cmds {
			ctx.Printf("  %-30s %s\n", cmd.Usage, theme.Muted.Render(cmd.Description))
		}
		ctx.Println()
	}
	ctx.Println(theme.Muted.Render("Anything not starting with / is sent as a prompt."))
	return nil
}

// HandleExit asks the loop to exit.
func HandleExit(ctx *Context, args []string) error {
	ctx.Session.ExitRequested = true
	return nil
}

// =============================================================================
// CONVERSATION
// =============================================================================

// HandleHistory prints a preview of the last n entries.
func HandleHistory(ctx *Context, args []string) error {
	n := ctx.Session.History.Len()
	if len(args) == 1 {
		v, err := config.ParsePositive(args[0])
		if err != nil {
			return fmt.Errorf("invalid count %q: %w", args[0], err)
		}
		n = v
	}

	entries := ctx.Session.History.Last(n)
	if len(entries) == 0 {
		ctx.Info("History is empty")
		return nil
	}

	theme := ctx.Theme()
	offset := ctx.Session.History.Len() - len(entries)
	for i, e := range entries {
		label := theme.UserLabel.Render("you")
		if e.Role == history.RoleAssistant {
			label = theme.AssistantLabel.Render("gemini")
		}
		line := fmt.Sprintf("%3d %s %s", offset+i+1, label, util.Preview(e.Content, previewWidth))
		if len(e.Attachments) > 0 {
			line += theme.Muted.Render(fmt.Sprintf(" [+%d file(s)]", len(e.Attachments)))
		}
		ctx.Println(line)
	}
	return nil
}

// HandleClear empties the in-memory history. The store is untouched until
// the next save.
func HandleClear(ctx *Context, args []string) error {
	n := ctx.Session.History.Len()
	ctx.Session.History.Clear()
	ctx.Session.Tracker.MarkDirty()
	ctx.Success("Cleared %d entries", n)
	return nil
}

// HandleSave writes history to a path or to the history store.
func HandleSave(ctx *Context, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	saved, err := ctx.Session.SaveHistory(path)
	if err != nil {
		return err
	}
	ctx.Success("Saved %d entries to %s", ctx.Session.History.Len(), saved)
	return nil
}

// HandleExport writes the in-memory history to a new file.
func HandleExport(ctx *Context, args []string) error {
	format, dir := "md", "."
	if len(args) > 0 {
		format = args[0]
	}
	if len(args) > 1 {
		dir = args[1]
	}

	exp, err := export.ForFormat(format, nil)
	if err != nil {
		return err
	}
	entries := ctx.Session.History.Entries()
	if len(entries) == 0 {
		ctx.Info("Nothing to export")
		return nil
	}

	s := ctx.Session.Settings
	conv := export.NewConversation(s.ModelName, s.SystemPrompt, entries)
	opts := export.DefaultOptions()
	opts.OutputDir = dir
	path, err := export.ToFile(conv, exp, opts)
	if err != nil {
		return err
	}
	ctx.Success("Exported %d entries to %s", len(entries), path)
	return nil
}

// HandleLoad replaces the in-memory history from a path or the store.
// A recovered corrupt file is reported as a warning.
func HandleLoad(ctx *Context, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	n, err := ctx.Session.LoadHistory(path)
	if err != nil {
		var perr *history.PersistenceError
		if errors.As(err, &perr) && perr.Recovered {
			ctx.Warn("%v", err)
		} else {
			return err
		}
	}
	ctx.Success("Loaded %d entries", n)
	return nil
}

// =============================================================================
// MODEL
// =============================================================================

// HandleSystem shows, sets or clears the system prompt. Multi-word text is
// taken raw from the line so spacing is kept.
func HandleSystem(ctx *Context, args []string) error {
	if len(args) == 0 {
		if ctx.Session.Settings.SystemPrompt == "" {
			ctx.Info("No system prompt set")
		} else {
			ctx.Info("System prompt: %s", ctx.Session.Settings.SystemPrompt)
		}
		return nil
	}

	text := args[0]
	if len(args) > 1 {
		text = RawArgs(ctx.Line)
	} else if strings.EqualFold(text, "off") {
		text = ""
	}
	if err := apply(ctx, "system_prompt", text); err != nil {
		return err
	}
	if text == "" {
		ctx.Success("System prompt cleared")
	} else {
		ctx.Success("System prompt set")
	}
	return nil
}

// settingHandler shows key with no argument and sets it with one.
func settingHandler(key string) Handler {
	return func(ctx *Context, args []string) error {
		if len(args) == 0 {
			v, err := ctx.Session.Settings.Get(key)
			if err != nil {
				return err
			}
			ctx.Info("%s = %s", key, v)
			return nil
		}
		if err := apply(ctx, key, args[0]); err != nil {
			return err
		}
		v, _ := ctx.Session.Settings.Get(key)
		ctx.Success("%s set to %s", key, v)
		return nil
	}
}

// toggleHandler flips a boolean setting, or sets it from on/off.
func toggleHandler(key string) Handler {
	return func(ctx *Context, args []string) error {
		current, err := ctx.Session.Settings.Get(key)
		if err != nil {
			return err
		}
		value := "on"
		if len(args) == 1 {
			value = args[0]
		} else if on, _ := strconv.ParseBool(current); on {
			value = "off"
		}
		if err := apply(ctx, key, value); err != nil {
			return err
		}
		now, _ := ctx.Session.Settings.Get(key)
		on, _ := strconv.ParseBool(now)
		ctx.Success("%s %s", key, onOff(on))
		return nil
	}
}

// apply sets key on a copy of the settings and swaps it in, so the
// session can rebuild whatever depends on the changed field. On error the
// live settings are unchanged.
func apply(ctx *Context, key, value string) error {
	next := ctx.Session.Settings.Clone()
	if err := next.Set(key, value); err != nil {
		return err
	}
	return ctx.Session.ApplySettings(next)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// =============================================================================
// INPUT
// =============================================================================

// HandleUpload validates a file and queues it for the next prompt. Paths
// with spaces may be given unquoted.
func HandleUpload(ctx *Context, args []string) error {
	path := strings.Join(args, " ")
	a, err := ctx.Session.Attach(path)
	if err != nil {
		return err
	}
	ctx.Success("Attached %s", a)
	if n := len(ctx.Session.Pending); n > 1 {
		ctx.Info("%d files will be sent with the next prompt", n)
	}
	return nil
}

// HandleDetach drops pending attachments.
func HandleDetach(ctx *Context, args []string) error {
	n := ctx.Session.Detach()
	if n == 0 {
		ctx.Info("No pending attachments")
		return nil
	}
	ctx.Success("Dropped %d attachment(s)", n)
	return nil
}

// HandlePaste enters paste mode.
func HandlePaste(ctx *Context, args []string) error {
	ctx.Session.BeginPaste()
	ctx.Info("Paste mode: end with /end on its own line or Ctrl-D, Ctrl-C cancels")
	return nil
}

// =============================================================================
// SETTINGS
// =============================================================================

// HandleConfig shows settings, shows or sets one key, or saves the file.
func HandleConfig(ctx *Context, args []string) error {
	switch {
	case len(args) == 0:
		ctx.Println(ctx.Session.Settings.String())
		return nil

	case len(args) == 1 && strings.EqualFold(args[0], "save"):
		path, err := ctx.Session.SaveSettings()
		if err != nil {
			return err
		}
		ctx.Success("Settings saved to %s", path)
		return nil

	case len(args) == 1:
		v, err := ctx.Session.Settings.Get(args[0])
		if err != nil {
			return err
		}
		ctx.Info("%s = %s", args[0], v)
		return nil

	default:
		key := args[0]
		if err := apply(ctx, key, strings.Join(args[1:], " ")); err != nil {
			return err
		}
		v, _ := ctx.Session.Settings.Get(key)
		ctx.Success("%s set to %s", key, v)
		return nil
	}
}
