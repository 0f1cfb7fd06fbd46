package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/iliyamo/stock-image-platform/internal/model"
	"github.com/iliyamo/stock-image-platform/internal/ordering"
	"github.com/iliyamo/stock-image-platform/internal/queue"
	"github.com/iliyamo/stock-image-platform/internal/repository"
	"github.com/iliyamo/stock-image-platform/internal/storage"
	"github.com/iliyamo/stock-image-platform/internal/validate"
)

const maxTitleLen = 255

// Upload is one file received from a client.
type Upload struct {
	Filename string
	Data     []byte
}

// ListCache is told whenever a user's collection changes so cached listings
// can be dropped.
type ListCache interface {
	Invalidate(ctx context.Context, userID string) error
}

// Recorder counts collection changes for monitoring.
type Recorder interface {
	ImagesChanged(event string, n int)
}

type nopRecorder struct{}

func (nopRecorder) ImagesChanged(string, int) {}

// ImageService manages each user's ordered image collection.
type ImageService struct {
	images   repository.ImageStore
	files    *storage.Processor
	lease    ordering.Lease
	events   queue.Publisher
	cache    ListCache
	rec      Recorder
	maxFiles int
	log      *zap.Logger
}

type ImageDeps struct {
	Images   repository.ImageStore
	Files    *storage.Processor
	Lease    ordering.Lease
	Events   queue.Publisher
	Cache    ListCache
	Recorder Recorder
	MaxFiles int
	Log      *zap.Logger
}

func NewImageService(d ImageDeps) *ImageService {
	s := &ImageService{
		images:   d.Images,
		files:    d.Files,
		lease:    d.Lease,
		events:   d.Events,
		cache:    d.Cache,
		rec:      d.Recorder,
		maxFiles: d.MaxFiles,
		log:      d.Log,
	}
	if s.lease == nil {
		s.lease = ordering.NewLocalLease()
	}
	if s.events == nil {
		s.events = queue.NopPublisher{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.rec == nil {
		s.rec = nopRecorder{}
	}
	if s.maxFiles < 1 {
		s.maxFiles = 20
	}
	return s
}

// UploadBatch stores the files and appends them to the end of the user's
// collection with contiguous orders max+1..max+n (1..n for a first upload).
//
// titles may hold no value (every title empty), one value (used for every
// file) or one value per file.  Files are written to storage before the
// records; if the insert fails they are removed again.
func (s *ImageService) UploadBatch(ctx context.Context, userID string, files []Upload, titles []string) ([]model.Image, error) {
	if len(files) == 0 {
		return nil, fail(ErrValidation, "No files uploaded")
	}
	if len(files) > s.maxFiles {
		return nil, fail(ErrValidation, fmt.Sprintf("At most %d files can be uploaded at once", s.maxFiles))
	}
	if len(titles) > 1 && len(titles) != len(files) {
		return nil, fail(ErrValidation, fmt.Sprintf("Expected 1 or %d titles, got %d", len(files), len(titles)))
	}
	trimmed := make([]string, len(titles))
	for i, t := range titles {
		trimmed[i] = strings.TrimSpace(t)
		if err := checkTitle(trimmed[i]); err != nil {
			return nil, err
		}
	}
	titles = trimmed

	stored := make([]storage.Stored, 0, len(files))
	for _, f := range files {
		st, err := s.files.Put(ctx, f.Filename, f.Data)
		if err != nil {
			s.discard(ctx, stored)
			if errors.Is(err, storage.ErrUnsupportedType) {
				return nil, fail(ErrValidation, fmt.Sprintf("%s is not a supported image (jpeg, png, gif, webp)", f.Filename))
			}
			return nil, wrap(ErrStorage, "Failed to store image file", err)
		}
		stored = append(stored, st)
	}

	created, err := s.insertAtEnd(ctx, userID, stored, titles)
	if err != nil {
		s.discard(ctx, stored)
		return nil, err
	}

	s.changed(ctx, userID, queue.ImageUploaded, created)
	return created, nil
}

// insertAtEnd holds the user's lease across reading the current maximum and
// inserting, so concurrent uploads by one user cannot pick the same orders.
func (s *ImageService) insertAtEnd(ctx context.Context, userID string, stored []storage.Stored, titles []string) ([]model.Image, error) {
	release, err := s.lease.Acquire(ctx, userID)
	if err != nil {
		if errors.Is(err, ordering.ErrLeaseTimeout) {
			return nil, wrap(ErrConflict, "Another upload is still in progress, please retry", err)
		}
		return nil, wrap(ErrInternal, "Failed to upload images", err)
	}
	defer release()

	top, ok, err := s.images.MaxOrder(ctx, userID)
	if err != nil {
		return nil, wrap(ErrInternal, "Failed to upload images", err)
	}
	start := 1
	if ok {
		start = top + 1
	}

	batch := make([]model.Image, len(stored))
	for i, st := range stored {
		batch[i] = model.Image{
			UserID:       userID,
			Title:        titleAt(titles, i),
			ImageURL:     st.URL,
			ThumbnailURL: st.ThumbnailURL,
			ContentType:  st.ContentType,
			SizeBytes:    st.Size,
			Width:        st.Width,
			Height:       st.Height,
			Order:        start + i,
		}
	}
	created, err := s.images.InsertBatch(ctx, batch)
	if err != nil {
		return nil, wrap(ErrInternal, "Failed to upload images", err)
	}
	return created, nil
}

// List returns the user's images in display order.
func (s *ImageService) List(ctx context.Context, userID string) ([]model.Image, error) {
	imgs, err := s.images.ListByUser(ctx, userID)
	if err != nil {
		return nil, wrap(ErrInternal, "Failed to fetch images", err)
	}
	sort.SliceStable(imgs, func(i, j int) bool { return model.Less(imgs[i], imgs[j]) })
	return imgs, nil
}

func (s *ImageService) Get(ctx context.Context, userID, id string) (model.Image, error) {
	return s.owned(ctx, userID, id)
}

// Delete removes the file, then the record.  If the file cannot be removed
// the record stays, so the delete can be retried later.
func (s *ImageService) Delete(ctx context.Context, userID, id string) error {
	img, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.files.Store.Remove(ctx, img.ImageURL); err != nil && !errors.Is(err, storage.ErrNotExist) {
		return wrap(ErrStorage, "Failed to delete image file", err)
	}
	s.files.Discard(ctx, img.ThumbnailURL)

	if err := s.images.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(ErrNotFound, "Image not found")
		}
		return wrap(ErrInternal, "Failed to delete image", err)
	}
	s.changed(ctx, userID, queue.ImageDeleted, []model.Image{img})
	return nil
}

// Reorder applies all new positions in one write.  Either every update is
// applied or none is.
func (s *ImageService) Reorder(ctx context.Context, userID string, items []model.OrderUpdate) error {
	if len(items) == 0 {
		return nil
	}
	if err := validate.Struct(items); err != nil {
		return invalid(err)
	}
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, dup := seen[it.ID]; dup {
			return fail(ErrValidation, fmt.Sprintf("Image %s appears more than once", it.ID))
		}
		seen[it.ID] = struct{}{}
	}

	if err := s.images.Reorder(ctx, userID, items); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(ErrNotFound, "One or more images not found")
		}
		return wrap(ErrInternal, "Failed to update image order", err)
	}

	ev := queue.NewEvent(queue.ImageReordered, userID)
	for _, it := range items {
		ev.ImageIDs = append(ev.ImageIDs, it.ID)
	}
	s.invalidate(ctx, userID)
	s.rec.ImagesChanged(queue.ImageReordered, len(items))
	emit(ctx, s.events, s.log, ev)
	return nil
}

func (s *ImageService) RenameTitle(ctx context.Context, userID, id, title string) error {
	title = strings.TrimSpace(title)
	if err := checkTitle(title); err != nil {
		return err
	}
	img, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.images.UpdateTitle(ctx, id, title); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(ErrNotFound, "Image not found")
		}
		return wrap(ErrInternal, "Failed to update title", err)
	}
	img.Title = title
	s.changed(ctx, userID, queue.ImageEdited, []model.Image{img})
	return nil
}

// Edit sets the title and, when replacement is given, swaps the file.  The
// previous file and thumbnail are removed only after the record points at
// the new ones.
func (s *ImageService) Edit(ctx context.Context, userID, id, title string, replacement *Upload) (model.Image, error) {
	title = strings.TrimSpace(title)
	if err := checkTitle(title); err != nil {
		return model.Image{}, err
	}
	img, err := s.owned(ctx, userID, id)
	if err != nil {
		return model.Image{}, err
	}
	img.Title = title

	var old []string
	var fresh storage.Stored
	if replacement != nil {
		fresh, err = s.files.Put(ctx, replacement.Filename, replacement.Data)
		if err != nil {
			if errors.Is(err, storage.ErrUnsupportedType) {
				return model.Image{}, fail(ErrValidation, fmt.Sprintf("%s is not a supported image (jpeg, png, gif, webp)", replacement.Filename))
			}
			return model.Image{}, wrap(ErrStorage, "Failed to store image file", err)
		}
		old = []string{img.ImageURL, img.ThumbnailURL}
		img.ImageURL = fresh.URL
		img.ThumbnailURL = fresh.ThumbnailURL
		img.ContentType = fresh.ContentType
		img.SizeBytes = fresh.Size
		img.Width, img.Height = fresh.Width, fresh.Height
	}

	updated, err := s.images.Update(ctx, img)
	if err != nil {
		if replacement != nil {
			s.discard(ctx, []storage.Stored{fresh})
		}
		if errors.Is(err, repository.ErrNotFound) {
			return model.Image{}, fail(ErrNotFound, "Image not found")
		}
		return model.Image{}, wrap(ErrInternal, "Failed to update image", err)
	}
	s.files.Discard(ctx, old...)
	s.changed(ctx, userID, queue.ImageEdited, []model.Image{updated})
	return updated, nil
}

// owned loads an image and checks that userID owns it.
func (s *ImageService) owned(ctx context.Context, userID, id string) (model.Image, error) {
	img, err := s.images.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Image{}, fail(ErrNotFound, "Image not found")
		}
		return model.Image{}, wrap(ErrInternal, "Failed to fetch image", err)
	}
	if img.UserID != userID {
		return model.Image{}, fail(ErrForbidden, "You do not have access to this image")
	}
	return img, nil
}

func (s *ImageService) changed(ctx context.Context, userID, typ string, imgs []model.Image) {
	s.invalidate(ctx, userID)
	s.rec.ImagesChanged(typ, len(imgs))
	ev := queue.NewEvent(typ, userID)
	for _, img := range imgs {
		ev.ImageIDs = append(ev.ImageIDs, img.ID)
		ev.Titles = append(ev.Titles, img.Title)
	}
	emit(ctx, s.events, s.log, ev)
}

func (s *ImageService) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.Warn("image list cache not invalidated", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *ImageService) discard(ctx context.Context, stored []storage.Stored) {
	for _, st := range stored {
		s.files.Discard(ctx, st.URL, st.ThumbnailURL)
	}
}

func titleAt(titles []string, i int) string {
	switch len(titles) {
	case 0:
		return ""
	case 1:
		return titles[0]
	default:
		return titles[i]
	}
}

func checkTitle(t string) error {
	if utf8.RuneCountInString(t) > maxTitleLen {
		return fail(ErrValidation, fmt.Sprintf("Title must be at most %d characters long", maxTitleLen))
	}
	return nil
}
