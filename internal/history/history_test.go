// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeEntries(n int) []Entry {
	base := time.Date(2025, 1, 2, 3, 4, 5, 600, time.UTC)
	out := make([]Entry, n)
	for i := range out {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		out[i] = Entry{
			ID:        fmt.Sprintf("id-%d", i),
			Role:      role,
			Content:   fmt.Sprintf("message %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
	}
	return out
}

// =============================================================================
// TRUNCATION
// =============================================================================

func TestTruncate(t *testing.T) {
	tests := []struct {
		n, max    int
		wantLen   int
		wantFirst string
	}{
		{5, 10, 5, "message 0"},
		{10, 10, 10, "message 0"},
		{12, 10, 10, "message 2"},
		{250, 100, 100, "message 150"},
		{3, 0, 3, "message 0"},
	}

	for _, tt := range tests {
		got := Truncate(makeEntries(tt.n), tt.max)
		if len(got) != tt.wantLen {
			t.Errorf("Truncate(%d, %d) len = %d, want %d", tt.n, tt.max, len(got), tt.wantLen)
			continue
		}
		if got[0].Content != tt.wantFirst {
			t.Errorf("Truncate(%d, %d)[0] = %q, want %q", tt.n, tt.max, got[0].Content, tt.wantFirst)
		}
		for i := 1; i < len(got); i++ {
			if !got[i].Timestamp.After(got[i-1].Timestamp) {
				t.Errorf("Truncate(%d, %d) order broken at %d", tt.n, tt.max, i)
			}
		}
	}
}

func TestTruncate_DoesNotAlias(t *testing.T) {
	in := makeEntries(3)
	out := Truncate(in, 5)
	out[0].Content = "changed"
	if in[0].Content == "changed" {
		t.Error("Truncate result aliases its input")
	}
}

func TestLog(t *testing.T) {
	log := NewLog(3)
	for i := 0; i < 5; i++ {
		log.Append(RoleUser, fmt.Sprintf("m%d", i), nil)
	}

	if log.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", log.Len())
	}
	entries := log.Entries()
	for i, want := range []string{"m2", "m3", "m4"} {
		if entries[i].Content != want {
			t.Errorf("Entries()[%d] = %q, want %q", i, entries[i].Content, want)
		}
		if entries[i].ID == "" {
			t.Errorf("Entries()[%d] has no ID", i)
		}
	}

	last := log.Last(2)
	assert.Equal(t, "m3", last[0].Content)
	assert.Len(t, log.Last(0), 3)

	log.SetMax(1)
	assert.Equal(t, 1, log.Len())
	assert.Equal(t, "m4", log.Entries()[0].Content)

	log.Replace(makeEntries(4))
	assert.Equal(t, 1, log.Len())
	assert.Equal(t, "message 3", log.Entries()[0].Content)

	log.Clear()
	assert.Equal(t, 0, log.Len())
}

// =============================================================================
// JSON STORE
// =============================================================================

func TestJSONStore_MissingFile(t *testing.T) {
	store := NewJSONStore(filepath.Join(t.TempDir(), "none.json"), 10)
	entries, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJSONStore_SaveTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	store := NewJSONStore(path, 4)

	require.NoError(t, store.Save(makeEntries(10)))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 4)
	for i, e := range loaded {
		want := fmt.Sprintf("message %d", 6+i)
		if e.Content != want {
			t.Errorf("loaded[%d] = %q, want %q", i, e.Content, want)
		}
	}

	info, err := os.Stat(path)
	require.NoError(t, err)
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file mode = %o, want 600", perm)
	}
}

func TestJSONStore_RoundTripByteIdentical(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	store := NewJSONStore(path, 100)

	entries := makeEntries(5)
	entries[2].Attachments = []AttachmentRef{{FileName: "a.png", MimeType: "image/png", Size: 42}}
	entries[3].Content = "unicode é and \"quotes\"\n```go\nx\n```"
	require.NoError(t, store.Save(entries))

	first, err := os.ReadFile(path)
	require.NoError(t, err)

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NoError(t, store.Save(loaded))

	second, err := os.ReadFile(path)
	require.NoError(t, err)

	if !bytes.Equal(first, second) {
		t.Errorf("save(load()) changed the file:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

func TestJSONStore_CorruptFileBackedUp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	store := NewJSONStore(path, 10)
	entries, err := store.Load()

	assert.Empty(t, entries)
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr), "want *PersistenceError, got %v", err)
	assert.True(t, perr.Recovered)
	assert.True(t, strings.HasPrefix(filepath.Base(perr.Backup), "history.json.corrupt-"))

	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("corrupt file should have been moved aside")
	}
	data, readErr := os.ReadFile(perr.Backup)
	require.NoError(t, readErr)
	assert.Equal(t, "{not json", string(data))
}

func TestJSONStore_DropsInvalidRoles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	content := `[
  {"role": "user", "content": "hi", "timestamp": "2025-01-01T00:00:00Z"},
  {"role": "system", "content": "nope", "timestamp": "2025-01-01T00:00:01Z"},
  {"role": "assistant", "content": "hello", "timestamp": "2025-01-01T00:00:02Z"}
]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	entries, err := NewJSONStore(path, 10).Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, RoleAssistant, entries[1].Role)
}

func TestJSONStore_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0600))

	entries, err := NewJSONStore(path, 10).Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEncode_Empty(t *testing.T) {
	data, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

// =============================================================================
// SQLITE STORE
// =============================================================================

func TestOpen_SelectsBackend(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(filepath.Join(dir, "h.json"), 10)
	require.NoError(t, err)
	if _, ok := store.(*JSONStore); !ok {
		t.Errorf("Open(.json) = %T, want *JSONStore", store)
	}

	store, err = Open(filepath.Join(dir, "h.db"), 10)
	require.NoError(t, err)
	defer store.Close()
	if _, ok := store.(*SQLiteStore); !ok {
		t.Errorf("Open(.db) = %T, want *SQLiteStore", store)
	}
}

func TestSQLiteStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.sqlite")
	store, err := OpenSQLite(path, 3)
	require.NoError(t, err)
	defer store.Close()

	entries := makeEntries(5)
	entries[4].Attachments = []AttachmentRef{{FileName: "doc.pdf", MimeType: "application/pdf", Size: 1024}}
	require.NoError(t, store.Save(entries))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 3)

	for i, e := range loaded {
		want := entries[2+i]
		assert.Equal(t, want.ID, e.ID)
		assert.Equal(t, want.Role, e.Role)
		assert.Equal(t, want.Content, e.Content)
		assert.True(t, want.Timestamp.Equal(e.Timestamp), "timestamp %d", i)
	}
	assert.Equal(t, entries[4].Attachments, loaded[2].Attachments)

	// A second save replaces rather than appends
	require.NoError(t, store.Save(makeEntries(1)))
	loaded, err = store.Load()
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := OpenSQLite(path, 10)
	require.NoError(t, err)
	require.NoError(t, store.Save(makeEntries(2)))
	require.NoError(t, store.Close())

	store, err = OpenSQLite(path, 10)
	require.NoError(t, err)
	defer store.Close()

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestStore_SetMax(t *testing.T) {
	dir := t.TempDir()
	jsonStore := NewJSONStore(filepath.Join(dir, "history.json"), 2)
	sqliteStore, err := OpenSQLite(filepath.Join(dir, "history.db"), 2)
	require.NoError(t, err)
	defer sqliteStore.Close()

	for _, store := range []Store{jsonStore, sqliteStore} {
		store.SetMax(6)
		require.NoError(t, store.Save(makeEntries(8)))
		loaded, err := store.Load()
		require.NoError(t, err)
		if len(loaded) != 6 {
			t.Errorf("%T: loaded %d entries after SetMax(6), want 6", store, len(loaded))
		}

		store.SetMax(0)
		require.NoError(t, store.Save(makeEntries(8)))
		loaded, err = store.Load()
		require.NoError(t, err)
		assert.Len(t, loaded, 8, "%T: SetMax(0) should select the default limit", store)
	}
}
