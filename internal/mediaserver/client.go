// Package mediaserver abstracts the media server backend behind the
// interfaces the asset subsystem consumes.
package mediaserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rpeters1430/Jellyfin-New-sub000/internal/assets"
	"github.com/rpeters1430/Jellyfin-New-sub000/internal/config"
	"github.com/rpeters1430/Jellyfin-New-sub000/internal/mediaserver/jellyfin"
)

// ImageSource is what the asset loader needs from a media server backend:
// the connection coordinates and a single-shot byte fetch.
type ImageSource interface {
	Context() assets.ConnectionContext
	FetchImage(ctx context.Context, url string) ([]byte, error)
	SetToken(token string)
	Disconnect()
}

// NewClient creates an ImageSource from configuration.
func NewClient(cfg *config.Config, logger *slog.Logger) (ImageSource, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Server.URL == "" {
		return nil, fmt.Errorf("server URL is required")
	}

	return jellyfin.NewClient(cfg.Server.URL, cfg.Server.Token, logger), nil
}
