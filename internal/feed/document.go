package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vkorchagin/oddsmesh/internal/pkg/models"
)

// ReadDocument reads and parses one feed document, returning its revision
// marker (content hash). Adapters write atomically, so a successful read is
// always a complete document.
func ReadDocument(path string) (*models.FeedDocument, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read feed document: %w", err)
	}

	sum := sha256.Sum256(data)
	revision := hex.EncodeToString(sum[:])

	var doc models.FeedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, revision, fmt.Errorf("failed to parse feed document: %w", err)
	}
	if doc.SourceID == "" {
		return nil, revision, fmt.Errorf("feed document missing source_id")
	}
	if doc.GeneratedAt.IsZero() {
		return nil, revision, fmt.Errorf("feed document missing generated_at")
	}
	return &doc, revision, nil
}

// Revision hashes a document file without parsing it. Returns an empty
// revision when the file does not exist yet.
func Revision(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read feed document: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// WriteDocument writes a feed document atomically: temp file in the same
// directory, then rename. This is the write half of the adapter contract; the
// engine itself only reads, but the feedgen tool and tests use it.
func WriteDocument(path string, doc *models.FeedDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal feed document: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".feed-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace feed document: %w", err)
	}
	return nil
}
