// Package imagestore writes extracted images once per content hash.
package imagestore

import (
	"encoding/hex"
	"net/http"

	"golang.org/x/crypto/blake2b"
)

// Hash returns the hex BLAKE2b-256 digest of raw.
func Hash(raw []byte) string {
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// FileName is the blob name for raw: its hash plus an extension sniffed from
// the bytes. Identical bytes always map to the identical name.
func FileName(raw []byte) string {
	return Hash(raw) + extension(raw)
}

func extension(raw []byte) string {
	switch http.DetectContentType(raw) {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	default:
		return ".bin"
	}
}

// contentType is the MIME type recorded on uploaded blobs.
func contentType(raw []byte) string {
	ct := http.DetectContentType(raw)
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}
