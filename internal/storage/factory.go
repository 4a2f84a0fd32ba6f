// Package storage selects the snapshot store backend from configuration.
// Snapshots are the diagnostic artifacts (screenshots, page-state notes)
// captured when a portal interaction fails.
package storage

import (
	"context"
	"fmt"

	gstorage "cloud.google.com/go/storage"

	"github.com/prm-gestao/projudi-verifier/internal/storage/gcs"
	"github.com/prm-gestao/projudi-verifier/internal/storage/local"
	"github.com/prm-gestao/projudi-verifier/internal/storage/memory"
	"github.com/prm-gestao/projudi-verifier/internal/verify"
)

// Backend names accepted in configuration.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Config selects and parameterizes the snapshot backend.
type Config struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
	Bucket  string `mapstructure:"bucket" yaml:"bucket"`
}

// NewSnapshotStore builds the snapshot store named by cfg.Backend.
func NewSnapshotStore(ctx context.Context, cfg Config) (verify.SnapshotStore, error) {
	switch cfg.Backend {
	case BackendLocal, "":
		return local.New(local.Config{BaseDir: cfg.BaseDir})
	case BackendGCS:
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{Bucket: cfg.Bucket})
	case BackendMemory:
		return memory.NewSnapshotStore(), nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Backend)
	}
}
