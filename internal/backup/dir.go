package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const manifestSuffix = ".manifest.json"

// DirCatalog reads backup artifacts from a local directory. Each artifact
// <name> has a sibling <name>.manifest.json.
type DirCatalog struct {
	dir string
}

// NewDirCatalog creates a directory-backed catalog.
func NewDirCatalog(dir string) *DirCatalog {
	return &DirCatalog{dir: dir}
}

func (c *DirCatalog) List(ctx context.Context) ([]Artifact, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("read backup dir %s: %w", c.dir, err)
	}

	var artifacts []Artifact
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), manifestSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		artifacts = append(artifacts, Artifact{
			ID:        entry.Name(),
			Timestamp: info.ModTime(),
			SizeBytes: info.Size(),
		})
	}
	return artifacts, nil
}

func (c *DirCatalog) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	path, err := c.artifactPath(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path) // #nosec G304 - path validated against the catalog dir
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", id, err)
	}
	return f, nil
}

func (c *DirCatalog) Manifest(ctx context.Context, id string) (Manifest, error) {
	path, err := c.artifactPath(id)
	if err != nil {
		return Manifest{}, err
	}
	data, err := os.ReadFile(path + manifestSuffix) // #nosec G304
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest for %s: %w", id, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest for %s: %w", id, err)
	}
	return m, nil
}

// artifactPath rejects IDs that escape the catalog directory.
func (c *DirCatalog) artifactPath(id string) (string, error) {
	if strings.Contains(id, "..") || strings.ContainsRune(id, os.PathSeparator) {
		return "", fmt.Errorf("invalid artifact id %q", id)
	}
	return filepath.Join(c.dir, id), nil
}
