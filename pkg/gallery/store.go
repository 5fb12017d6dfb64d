package gallery

import (
	"context"
	"fmt"

	"github.com/MrCodeEU/faceroll/pkg/logging"
)

// Store persists a gallery. Save replaces whatever was stored before.
type Store interface {
	Save(ctx context.Context, g *Gallery) error
	Load(ctx context.Context) (*Gallery, error)
	Close() error
}

// Options selects and configures a Store.
type Options struct {
	Backend           string // "file" or "postgres"
	Path              string
	EncryptionEnabled bool
	Passphrase        string
	DatabaseURL       string
}

// Open returns the store selected by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", "file":
		return NewFileStore(opts.Path, opts.EncryptionEnabled, opts.Passphrase), nil
	case "postgres":
		return NewPostgresStore(ctx, opts.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown gallery backend: %s", opts.Backend)
	}
}

// LoadNonEmpty loads the gallery and fails with ErrEmptyGallery when it holds
// no identities. Recognition cannot run without at least one.
func LoadNonEmpty(ctx context.Context, s Store) (*Gallery, error) {
	g, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if g.Len() == 0 {
		return nil, ErrEmptyGallery
	}
	logging.Component("gallery").Infof("Loaded %d trained identity embeddings (dimension %d)", g.Len(), g.Dimension())
	return g, nil
}
