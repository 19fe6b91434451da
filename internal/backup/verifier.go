package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Verification is the outcome of checking the most recent artifact.
type Verification struct {
	Found    bool   `json:"found"`
	Valid    bool   `json:"valid"`
	BackupID string `json:"backup_id,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Verifier validates backup integrity against catalog manifests.
type Verifier struct {
	logger *zap.Logger
}

// NewVerifier creates a verifier.
func NewVerifier(logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{logger: logger}
}

// VerifyLatest locates the newest artifact by timestamp, recomputes its
// sha256 and compares it with the manifest. Any mismatch, missing manifest
// or read failure yields Valid=false; the caller is never halted.
func (v *Verifier) VerifyLatest(ctx context.Context, catalog Catalog) Verification {
	artifacts, err := catalog.List(ctx)
	if err != nil {
		return Verification{Detail: fmt.Sprintf("list catalog: %v", err)}
	}
	if len(artifacts) == 0 {
		return Verification{Detail: "no backup artifacts in catalog"}
	}

	latest := artifacts[0]
	for _, a := range artifacts[1:] {
		if a.Timestamp.After(latest.Timestamp) {
			latest = a
		}
	}

	result := Verification{Found: true, BackupID: latest.ID}

	manifest, err := catalog.Manifest(ctx, latest.ID)
	if err != nil {
		result.Detail = fmt.Sprintf("manifest missing: %v", err)
		return result
	}

	sum, err := v.checksum(ctx, catalog, latest.ID)
	if err != nil {
		result.Detail = fmt.Sprintf("read artifact: %v", err)
		return result
	}

	if sum != manifest.SHA256 {
		result.Detail = "checksum mismatch against manifest"
		v.logger.Warn("backup checksum mismatch",
			zap.String("backup_id", latest.ID),
			zap.String("expected", manifest.SHA256),
			zap.String("actual", sum))
		return result
	}

	result.Valid = true
	return result
}

func (v *Verifier) checksum(ctx context.Context, catalog Catalog, id string) (string, error) {
	rc, err := catalog.Open(ctx, id)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
