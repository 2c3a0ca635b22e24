// Package images inspects capture bytes for the metadata recorded on media
// entries.
package images

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"
)

// Info describes one capture.
type Info struct {
	Width  int
	Height int
	Format string
	SHA256 string
}

// Inspect digests data and decodes its dimensions. The digest is always set;
// err reports an undecodable image, in which case dimensions are zero.
func Inspect(data []byte) (Info, error) {
	sum := sha256.Sum256(data)
	info := Info{SHA256: hex.EncodeToString(sum[:])}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return info, err
	}
	info.Width = cfg.Width
	info.Height = cfg.Height
	info.Format = format
	return info, nil
}

// ContentType sniffs data and falls back when nothing image-like is found.
func ContentType(data []byte, fallback string) string {
	ct := http.DetectContentType(data)
	if strings.HasPrefix(ct, "image/") {
		return ct
	}
	return fallback
}
