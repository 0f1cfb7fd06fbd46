package storage

import (
	"bytes"
	"context"
	"errors"

	"go.uber.org/zap"
)

// Stored describes an image that has been written to a FileStore.
type Stored struct {
	URL          string
	ThumbnailURL string
	ContentType  string
	Size         int64
	Width        int
	Height       int
}

// Processor validates an upload, stores it under a fresh name and, when
// enabled, stores a thumbnail next to it.
type Processor struct {
	Store      FileStore
	Thumbnails bool
	Log        *zap.Logger
}

func NewProcessor(store FileStore, thumbnails bool, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{Store: store, Thumbnails: thumbnails, Log: log}
}

// Put stores one file.  A thumbnail that cannot be produced or saved is
// logged and skipped; only failures of the original fail the call.
func (p *Processor) Put(ctx context.Context, filename string, data []byte) (Stored, error) {
	ct, err := SniffContentType(data)
	if err != nil {
		return Stored{}, err
	}
	name := NewObjectName(filename, ct)
	url, err := p.Store.Save(ctx, name, ct, bytes.NewReader(data))
	if err != nil {
		return Stored{}, err
	}
	out := Stored{URL: url, ContentType: ct, Size: int64(len(data))}
	out.Width, out.Height = Dimensions(data)

	if p.Thumbnails {
		thumb, err := MakeThumbnail(data)
		if err != nil {
			p.Log.Debug("thumbnail skipped", zap.String("name", name), zap.Error(err))
			return out, nil
		}
		turl, err := p.Store.Save(ctx, ThumbnailName(name), "image/jpeg", bytes.NewReader(thumb))
		if err != nil {
			p.Log.Warn("thumbnail save failed", zap.String("name", name), zap.Error(err))
			return out, nil
		}
		out.ThumbnailURL = turl
	}
	return out, nil
}

// Discard removes objects best-effort.  Missing objects are not an error.
func (p *Processor) Discard(ctx context.Context, urls ...string) {
	for _, u := range urls {
		if u == "" {
			continue
		}
		if err := p.Store.Remove(ctx, u); err != nil && !errors.Is(err, ErrNotExist) {
			p.Log.Warn("stored file not removed", zap.String("url", u), zap.Error(err))
		}
	}
}
