// Package storage holds what the object store backends have in common.
package storage

import (
	"errors"
	"path"
	"strings"
)

// ErrObjectNotFound is returned by every backend when the requested object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ContentType returns the MIME type for a stored object based on its extension.
func ContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}
