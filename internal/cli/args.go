// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// args.go - Command-line argument parsing for gemchat.

package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// ARG PARSER
// =============================================================================

// ArgRules tells the parser which flags never take a value and which short
// names map to long ones.
type ArgRules struct {
	// Bools lists flags that never consume the following argument.
	Bools []string

	// Aliases maps short names to long names (e.g., "m" -> "model").
	Aliases map[string]string
}

// ArgParser parses command-line arguments. It handles:
//   - Long flags: --flag value or --flag=value
//   - Short flags: -f value
//   - Boolean flags: --flag (no value needed)
//   - Repeated flags: --file a --file b
//   - Positional arguments, and everything after "--"
type ArgParser struct {
	flags      map[string][]string // String flags, every occurrence
	boolFlags  map[string]bool     // Boolean flags
	positional []string
	raw        []string
}

// NewArgParser parses raw according to rules.
//
// Example:
//
//	p := NewArgParser([]string{"-m", "gemini-2.5-pro", "--json", "hi"}, cliRules)
//	p.Flag("model")      // "gemini-2.5-pro"
//	p.BoolFlag("json")   // true
//	p.Positional()       // ["hi"]
func NewArgParser(raw []string, rules ArgRules) *ArgParser {
	parser := &ArgParser{
		flags:     make(map[string][]string),
		boolFlags: make(map[string]bool),
		raw:       raw,
	}

	isBool := make(map[string]bool, len(rules.Bools))
	for _, b := range rules.Bools {
		isBool[b] = true
	}
	canonical := func(name string) string {
		if long, ok := rules.Aliases[name]; ok {
			return long
		}
		return name
	}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]

		if arg == "--" {
			parser.positional = append(parser.positional, raw[i+1:]...)
			break
		}

		// A lone "-" or a negative number is positional
		if !strings.HasPrefix(arg, "-") || arg == "-" || isNumber(arg) {
			parser.positional = append(parser.positional, arg)
			continue
		}

		name := strings.TrimLeft(arg, "-")

		// --flag=value
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			flagName := canonical(name[:eq])
			value := name[eq+1:]
			if isBool[flagName] {
				b, err := strconv.ParseBool(value)
				parser.boolFlags[flagName] = err == nil && b
			} else {
				parser.flags[flagName] = append(parser.flags[flagName], value)
			}
			continue
		}

		name = canonical(name)
		if isBool[name] {
			parser.boolFlags[name] = true
			continue
		}

		// Value flags take the next argument, even one starting with "-"
		// when it is a number ("--temperature -1" is caught by validation).
		if i+1 < len(raw) && (!strings.HasPrefix(raw[i+1], "-") || isNumber(raw[i+1])) {
			parser.flags[name] = append(parser.flags[name], raw[i+1])
			i++
		} else {
			// Missing value; recorded so validation can report it
			parser.flags[name] = append(parser.flags[name], "")
		}
	}

	return parser
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// Flag returns the last value of a string flag, or "" if absent.
func (p *ArgParser) Flag(name string) string {
	vals := p.flags[strings.TrimLeft(name, "-")]
	if len(vals) == 0 {
		return ""
	}
	return vals[len(vals)-1]
}

// Flags returns every value given for a repeatable flag.
func (p *ArgParser) Flags(name string) []string {
	return p.flags[strings.TrimLeft(name, "-")]
}

// BoolFlag returns the value of a boolean flag. Absent flags are false.
func (p *ArgParser) BoolFlag(name string) bool {
	return p.boolFlags[strings.TrimLeft(name, "-")]
}

// HasFlag returns true if the flag was given (either as string or bool flag).
func (p *ArgParser) HasFlag(name string) bool {
	name = strings.TrimLeft(name, "-")
	_, hasString := p.flags[name]
	_, hasBool := p.boolFlags[name]
	return hasString || hasBool
}

// FlagNames returns every flag name that was given.
func (p *ArgParser) FlagNames() []string {
	names := make([]string, 0, len(p.flags)+len(p.boolFlags))
	for n := range p.flags {
		names = append(names, n)
	}
	for n := range p.boolFlags {
		names = append(names, n)
	}
	return names
}

// Positional returns all positional arguments.
func (p *ArgParser) Positional() []string {
	return p.positional
}

// Raw returns the original raw arguments.
func (p *ArgParser) Raw() []string {
	return p.raw
}

// =============================================================================
// PARSED ARGUMENTS
// =============================================================================

// Args holds parsed command-line arguments.
type Args struct {
	// Settings overrides, applied after the config file and environment.
	// Pointers are nil when the flag was not given.
	Model       string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	System      *string
	Stream      *bool

	// Files are attached to the single ask-mode request.
	Files []string

	ConfigPath  string
	JSON        bool
	Verbose     bool
	Interactive bool
	Version     bool
	Help        bool

	// Prompt is the positional arguments joined with spaces.
	Prompt string
}

var cliRules = ArgRules{
	Bools: []string{"json", "verbose", "interactive", "version", "help", "stream", "no-stream"},
	Aliases: map[string]string{
		"m": "model",
		"t": "temperature",
		"s": "system",
		"f": "file",
		"v": "verbose",
		"i": "interactive",
		"h": "help",
	},
}

// knownFlags lists every accepted long flag.
var knownFlags = map[string]bool{
	"model": true, "temperature": true, "top-p": true, "max-tokens": true,
	"system": true, "file": true, "stream": true, "no-stream": true,
	"config": true, "json": true, "verbose": true, "interactive": true,
	"version": true, "help": true,
}

// Parse parses argv (without the program name).
func Parse(argv []string) (Args, error) {
	p := NewArgParser(argv, cliRules)
	var args Args

	for _, name := range p.FlagNames() {
		if !knownFlags[name] {
			return args, &UsageError{Reason: fmt.Sprintf("unknown flag --%s", name)}
		}
	}
	for name, vals := range p.flags {
		for _, v := range vals {
			if v == "" && name != "system" {
				return args, &UsageError{Reason: fmt.Sprintf("flag --%s requires a value", name)}
			}
		}
	}

	args.Model = p.Flag("model")
	args.ConfigPath = p.Flag("config")
	args.Files = p.Flags("file")
	args.JSON = p.BoolFlag("json")
	args.Verbose = p.BoolFlag("verbose")
	args.Interactive = p.BoolFlag("interactive")
	args.Version = p.BoolFlag("version")
	args.Help = p.BoolFlag("help")
	args.Prompt = strings.Join(p.Positional(), " ")

	if p.HasFlag("temperature") {
		v, err := parseUnitFlag("temperature", p.Flag("temperature"))
		if err != nil {
			return args, err
		}
		args.Temperature = &v
	}
	if p.HasFlag("top-p") {
		v, err := parseUnitFlag("top-p", p.Flag("top-p"))
		if err != nil {
			return args, err
		}
		args.TopP = &v
	}
	if p.HasFlag("max-tokens") {
		n, err := strconv.Atoi(p.Flag("max-tokens"))
		if err != nil || n <= 0 {
			return args, &UsageError{Reason: fmt.Sprintf("--max-tokens must be a positive integer, got %q", p.Flag("max-tokens"))}
		}
		args.MaxTokens = &n
	}
	if p.HasFlag("system") {
		s := p.Flag("system")
		args.System = &s
	}

	switch {
	case p.BoolFlag("stream") && p.BoolFlag("no-stream"):
		return args, &UsageError{Reason: "--stream and --no-stream are mutually exclusive"}
	case p.BoolFlag("stream"):
		on := true
		args.Stream = &on
	case p.BoolFlag("no-stream"):
		off := false
		args.Stream = &off
	}

	return args, nil
}

func parseUnitFlag(name, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil || v < 0 || v > 1 {
		return 0, &UsageError{Reason: fmt.Sprintf("--%s must be a number between 0 and 1, got %q", name, value)}
	}
	return v, nil
}
