// Package storage keeps uploaded image files outside the database.  A
// FileStore hands back the public URL of every object it saves, and that URL
// is all the rest of the system remembers about the file.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotExist is returned by Remove when the object is already gone.
var ErrNotExist = errors.New("storage: object does not exist")

// ErrUnsupportedType is returned for uploads that are not an accepted image.
var ErrUnsupportedType = errors.New("storage: unsupported content type")

// FileStore saves and removes objects addressed by name.
type FileStore interface {
	// Save writes r under name and returns the URL clients fetch it from.
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	// Remove deletes the object previously returned as url.
	Remove(ctx context.Context, url string) error
}
