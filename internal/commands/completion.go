// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jeranaias/gemchat/internal/util"
)

// maxFileCompletions bounds path completion in large directories.
const maxFileCompletions = 50

// Complete returns full-line completions for line. It matches the
// liner.Completer signature.
//
// Completion levels:
//   - "/he"            -> command names and aliases
//   - "/theme d"       -> known argument values
//   - "/upload ./sr"   -> file paths
func (r *Registry) Complete(line string) []string {
	if !IsCommand(line) {
		return nil
	}

	// Still typing the command name
	space := strings.IndexByte(line, ' ')
	if space == -1 {
		prefix := strings.ToLower(line)
		var out []string
		for _, name := range r.Names() {
			if strings.HasPrefix(name, prefix) {
				out = append(out, name)
			}
		}
		return out
	}

	cmd := r.Get(line[:space])
	if cmd == nil {
		return nil
	}
	head := line[:space+1]
	partial := strings.TrimLeft(line[space+1:], " ")

	// Only the first argument is completed
	if strings.Contains(partial, " ") && !cmd.CompleteFiles {
		return nil
	}

	var candidates []string
	if cmd.CompleteFiles {
		candidates = completePath(partial)
	} else {
		lower := strings.ToLower(partial)
		for _, v := range cmd.Values {
			if strings.HasPrefix(strings.ToLower(v), lower) {
				candidates = append(candidates, v)
			}
		}
	}

	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = head + c
	}
	return out
}

// completePath lists entries matching partial. Directories get a
// trailing separator so completion can continue into them.
func completePath(partial string) []string {
	dir, base := filepath.Split(partial)
	searchDir := dir
	if searchDir == "" {
		searchDir = "."
	}
	entries, err := os.ReadDir(util.ExpandHome(searchDir))
	if err != nil {
		return nil
	}

	var out []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, base) {
			continue
		}
		// Hidden files only when asked for
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(base, ".") {
			continue
		}
		if e.IsDir() {
			name += string(filepath.Separator)
		}
		out = append(out, dir+name)
		if len(out) >= maxFileCompletions {
			break
		}
	}
	sort.Strings(out)
	return out
}
