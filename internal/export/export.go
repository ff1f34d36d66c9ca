// Package export writes a category's transcript to a file or the system clipboard.
// Both use the "Role: content" line format of chat.Transcript.
package export

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/atotto/clipboard"

	"github.com/hpungsan/banter/internal/chat"
	"github.com/hpungsan/banter/internal/config"
	"github.com/hpungsan/banter/internal/errors"
)

// User-visible notices for Copy.
const (
	CopiedNotice     = "Chat copied to clipboard!"
	CopyFailedNotice = "Failed to copy chat."
)

// FileName returns the transcript file name for category.
func FileName(category string) string {
	return category + "-chat" + Extension
}

// Input describes one transcript export.
type Input struct {
	Category string
	Messages []chat.Message
	// Path overrides the default exportsDir/<category>-chat.txt.
	Path string
}

// Output reports a completed export.
type Output struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// WriteFile validates the destination and writes the transcript through a temp file and an
// atomic rename, so an existing file survives a failed export.
func WriteFile(exportsDir string, cfg *config.Config, in Input) (*Output, error) {
	cat, err := chat.LookupCategory(in.Category)
	if err != nil {
		return nil, err
	}

	exportPath := in.Path
	if exportPath == "" {
		exportPath = filepath.Join(exportsDir, FileName(cat.ID))
	}
	if err := ValidatePath(exportPath, exportsDir, cfg); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.WriteString(chat.Transcript(in.Messages)); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink planted after validation.
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInvalidRequest("path must not be a symlink")
	}

	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; overwriting is not supported on Windows")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return &Output{Path: exportPath, Count: len(in.Messages)}, nil
}

// Clipboard receives copied transcripts.
type Clipboard interface {
	WriteAll(text string) error
}

// SystemClipboard is the OS clipboard.
type SystemClipboard struct{}

func (SystemClipboard) WriteAll(text string) error {
	if clipboard.Unsupported {
		return fmt.Errorf("clipboard is not supported on this system")
	}
	return clipboard.WriteAll(text)
}

// Copy places the transcript on cb and returns the notice to show the user.
// The error is returned for logging; the notice already reflects it.
func Copy(cb Clipboard, msgs []chat.Message) (string, error) {
	if err := cb.WriteAll(chat.Transcript(msgs)); err != nil {
		return CopyFailedNotice, err
	}
	return CopiedNotice, nil
}
