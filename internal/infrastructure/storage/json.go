package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/tesso57/feedtree/internal/domain/subscription"
)

// snapshotVersion is bumped when the JSON layout changes incompatibly.
const snapshotVersion = 1

type snapshot struct {
	Version int               `json:"version"`
	Root    subscription.Node `json:"root"`
}

// EncodeJSON writes root as an indented, versioned JSON document.
func EncodeJSON(w io.Writer, root subscription.Node) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snapshot{Version: snapshotVersion, Root: root})
}

// DecodeJSON reads a document written by EncodeJSON.
func DecodeJSON(r io.Reader) (subscription.Node, error) {
	var snap snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return subscription.Node{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return subscription.Node{}, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	if snap.Root.Kind == "" {
		snap.Root.Kind = subscription.FolderKind
	}
	return snap.Root, nil
}

// JSONFile stores the hierarchy as a single JSON document.
type JSONFile struct {
	mu   sync.Mutex
	path string
}

// NewJSONFile creates a JSONFile for path.
func NewJSONFile(path string) *JSONFile {
	return new(JSONFile{path: path})
}

// Load reads the document. A missing file yields an empty root folder.
func (f *JSONFile) Load() (subscription.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return subscription.Node{Kind: subscription.FolderKind}, nil
		}
		return subscription.Node{}, err
	}
	defer func() { _ = file.Close() }()
	return DecodeJSON(file)
}

// Save writes the document through a temporary file so a crash never leaves
// a truncated file behind.
func (f *JSONFile) Save(root subscription.Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := EncodeJSON(tmp, root); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

// Repository is the persistence contract shared by Manager and JSONFile.
type Repository interface {
	Load() (subscription.Node, error)
	Save(root subscription.Node) error
}

// Open picks the store for path: a JSON document for *.json, SQLite otherwise.
func Open(path string) Repository {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return NewJSONFile(path)
	}
	return NewManager(path)
}
