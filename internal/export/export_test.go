package export

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/banter/internal/chat"
	"github.com/hpungsan/banter/internal/config"
	"github.com/hpungsan/banter/internal/errors"
)

func sampleMessages() []chat.Message {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return []chat.Message{
		chat.NewMessage(chat.RoleAssistant, chat.Greeting, at),
		chat.NewMessage(chat.RoleUser, "hi", at),
		chat.NewMessage(chat.RoleAssistant, "hello!", at),
	}
}

const sampleTranscript = "Assistant: Hi! I'm your AI assistant. Ask me anything.\nUser: hi\nAssistant: hello!\n"

func TestFileName(t *testing.T) {
	require.Equal(t, "general-chat.txt", FileName("general"))
	require.Equal(t, "jokes-chat.txt", FileName("jokes"))
}

func TestWriteFile_DefaultPath(t *testing.T) {
	exportsDir := t.TempDir()

	out, err := WriteFile(exportsDir, config.DefaultConfig(), Input{Category: "general", Messages: sampleMessages()})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(exportsDir, "general-chat.txt"), out.Path)
	require.Equal(t, 3, out.Count)

	data, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	require.Equal(t, sampleTranscript, string(data))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(out.Path)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	entries, err := os.ReadDir(exportsDir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must not be left behind")
}

func TestWriteFile_Empty(t *testing.T) {
	out, err := WriteFile(t.TempDir(), nil, Input{Category: "code"})
	require.NoError(t, err)
	require.Equal(t, 0, out.Count)

	data, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	require.Empty(t, data)
}

func TestWriteFile_Overwrites(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("rename over an existing file is refused on Windows")
	}
	exportsDir := t.TempDir()
	path := filepath.Join(exportsDir, "general-chat.txt")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0600))

	_, err := WriteFile(exportsDir, nil, Input{Category: "general", Messages: sampleMessages()})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, sampleTranscript, string(data))
}

func TestWriteFile_Rejections(t *testing.T) {
	exportsDir := t.TempDir()
	tests := []struct {
		name string
		in   Input
		code errors.ErrorCode
	}{
		{"unknown category", Input{Category: "pets"}, errors.ErrNotFound},
		{"wrong extension", Input{Category: "general", Path: filepath.Join(exportsDir, "general.md")}, errors.ErrInvalidRequest},
		{"outside exports", Input{Category: "general", Path: filepath.Join(t.TempDir(), "general-chat.txt")}, errors.ErrInvalidRequest},
		{"traversal", Input{Category: "general", Path: "../general-chat.txt"}, errors.ErrInvalidRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := WriteFile(exportsDir, config.DefaultConfig(), tc.in)
			require.True(t, errors.Is(err, tc.code), "err = %v", err)
		})
	}
}

type fakeClipboard struct {
	text string
	err  error
}

func (f *fakeClipboard) WriteAll(text string) error {
	if f.err != nil {
		return f.err
	}
	f.text = text
	return nil
}

func TestCopy(t *testing.T) {
	cb := &fakeClipboard{}
	notice, err := Copy(cb, sampleMessages())
	require.NoError(t, err)
	require.Equal(t, CopiedNotice, notice)
	require.Equal(t, sampleTranscript, cb.text)

	notice, err = Copy(&fakeClipboard{err: fmt.Errorf("no display")}, sampleMessages())
	require.Error(t, err)
	require.Equal(t, CopyFailedNotice, notice)
}
