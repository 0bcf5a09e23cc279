package assets

import (
	"bytes"
	"image"

	// Registered formats for validation. The server emits JPEG for scaled
	// images but originals can pass through untouched.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// validateImage checks that a fetched payload is a decodable image and
// returns its pixel dimensions. Only the header is parsed; the payload is
// cached as-is.
func validateImage(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, &DecodeError{Err: err}
	}
	return cfg.Width, cfg.Height, nil
}
