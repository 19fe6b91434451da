package backup

import (
	"context"
	"io"
	"time"
)

// Artifact is one backup in a catalog.
type Artifact struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
}

// Manifest holds the recorded integrity data for an artifact.
type Manifest struct {
	BackupID  string    `json:"backup_id"`
	SHA256    string    `json:"sha256"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Catalog is the capability for listing and reading backup artifacts.
// Backup production and retention live elsewhere; the controller only reads.
type Catalog interface {
	// List returns all artifacts, order unspecified.
	List(ctx context.Context) ([]Artifact, error)
	// Open streams an artifact's content for checksum recomputation.
	Open(ctx context.Context, id string) (io.ReadCloser, error)
	// Manifest returns the recorded manifest for an artifact.
	Manifest(ctx context.Context, id string) (Manifest, error)
}
