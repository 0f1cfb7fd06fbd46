package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/stock-image-platform/internal/model"
	"github.com/iliyamo/stock-image-platform/internal/ordering"
	"github.com/iliyamo/stock-image-platform/internal/queue"
	"github.com/iliyamo/stock-image-platform/internal/storage"
)

type imageFixture struct {
	svc    *ImageService
	images *memImages
	files  *memFiles
	events *recordingPublisher
	cache  *recordingCache
	counts *countingRecorder
}

func newImageFixture(t *testing.T) *imageFixture {
	t.Helper()
	f := &imageFixture{
		images: newMemImages(),
		files:  newMemFiles(),
		events: &recordingPublisher{},
		cache:  &recordingCache{},
		counts: &countingRecorder{n: map[string]int{}},
	}
	f.svc = NewImageService(ImageDeps{
		Images:   f.images,
		Files:    storage.NewProcessor(f.files, true, nil),
		Lease:    ordering.NewLocalLease(),
		Events:   f.events,
		Cache:    f.cache,
		Recorder: f.counts,
		MaxFiles: 5,
	})
	return f
}

func (f *imageFixture) upload(t *testing.T, userID string, n int, titles ...string) []model.Image {
	t.Helper()
	files := make([]Upload, n)
	for i := range files {
		files[i] = Upload{Filename: "photo.png", Data: pngData(t)}
	}
	out, err := f.svc.UploadBatch(context.Background(), userID, files, titles)
	require.NoError(t, err)
	return out
}

func ids(imgs []model.Image) []string {
	out := make([]string, len(imgs))
	for i, img := range imgs {
		out[i] = img.ID
	}
	return out
}

func orders(imgs []model.Image) []int {
	out := make([]int, len(imgs))
	for i, img := range imgs {
		out[i] = img.Order
	}
	return out
}

func TestUploadThenReorderScenario(t *testing.T) {
	f := newImageFixture(t)
	ctx := context.Background()

	imgs := f.upload(t, "A", 3)
	assert.Equal(t, []int{1, 2, 3}, orders(imgs))

	img1, img2, img3 := imgs[0], imgs[1], imgs[2]
	reorder := []model.OrderUpdate{{ID: img3.ID, Order: 0}, {ID: img1.ID, Order: 1}, {ID: img2.ID, Order: 2}}
	for i := 0; i < 2; i++ {
		require.NoError(t, f.svc.Reorder(ctx, "A", reorder))
		list, err := f.svc.List(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, []string{img3.ID, img1.ID, img2.ID}, ids(list))
		assert.Equal(t, []int{0, 1, 2}, orders(list))
	}
}

func TestUploadContinuesAfterMaxOrder(t *testing.T) {
	f := newImageFixture(t)
	first := f.upload(t, "A", 2)
	require.NoError(t, f.svc.Reorder(context.Background(), "A", []model.OrderUpdate{{ID: first[1].ID, Order: 9}}))

	more := f.upload(t, "A", 3)
	assert.Equal(t, []int{10, 11, 12}, orders(more))

	other := f.upload(t, "B", 1)
	assert.Equal(t, []int{1}, orders(other))
}

func TestUploadStoresThumbnails(t *testing.T) {
	f := newImageFixture(t)
	imgs := f.upload(t, "A", 1, "sunset")
	assert.Equal(t, "sunset", imgs[0].Title)
	assert.NotEmpty(t, imgs[0].ThumbnailURL)
	assert.Equal(t, 8, imgs[0].Width)
	assert.Equal(t, "image/png", imgs[0].ContentType)
	assert.Equal(t, 2, f.files.count())
}

func TestUploadTitles(t *testing.T) {
	f := newImageFixture(t)

	shared := f.upload(t, "A", 3, "same")
	for _, img := range shared {
		assert.Equal(t, "same", img.Title)
	}

	perFile := f.upload(t, "A", 2, "one", "two")
	assert.Equal(t, "one", perFile[0].Title)
	assert.Equal(t, "two", perFile[1].Title)

	_, err := f.svc.UploadBatch(context.Background(), "A",
		[]Upload{{Filename: "a.png", Data: pngData(t)}, {Filename: "b.png", Data: pngData(t)}, {Filename: "c.png", Data: pngData(t)}},
		[]string{"x", "y"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUploadLeavesCallerTitlesUntouched(t *testing.T) {
	f := newImageFixture(t)
	titles := []string{"  padded  ", " two"}
	out, err := f.svc.UploadBatch(context.Background(), "A",
		[]Upload{{Filename: "a.png", Data: pngData(t)}, {Filename: "b.png", Data: pngData(t)}}, titles)
	require.NoError(t, err)
	assert.Equal(t, "padded", out[0].Title)
	assert.Equal(t, "two", out[1].Title)
	assert.Equal(t, []string{"  padded  ", " two"}, titles)
}

func TestUploadRejectsBadInput(t *testing.T) {
	f := newImageFixture(t)
	ctx := context.Background()

	_, err := f.svc.UploadBatch(ctx, "A", nil, nil)
	assert.ErrorIs(t, err, ErrValidation)

	tooMany := make([]Upload, 6)
	_, err = f.svc.UploadBatch(ctx, "A", tooMany, nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.UploadBatch(ctx, "A", []Upload{
		{Filename: "ok.png", Data: pngData(t)},
		{Filename: "notes.txt", Data: []byte("just text")},
	}, nil)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, f.files.count(), "stored files are cleaned up")
}

func TestUploadInsertFailureRemovesFiles(t *testing.T) {
	f := newImageFixture(t)
	f.images.failInsert = errors.New("db down")

	_, err := f.svc.UploadBatch(context.Background(), "A", []Upload{{Filename: "a.png", Data: pngData(t)}}, nil)
	assert.ErrorIs(t, err, ErrInternal)
	assert.Zero(t, f.files.count())
}

func TestConcurrentUploadsGetDistinctOrders(t *testing.T) {
	f := newImageFixture(t)
	data := pngData(t)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.UploadBatch(context.Background(), "A",
				[]Upload{{Filename: "a.png", Data: data}, {Filename: "b.png", Data: data}}, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	list, err := f.svc.List(context.Background(), "A")
	require.NoError(t, err)
	require.Len(t, list, 20)
	for i, img := range list {
		assert.Equal(t, i+1, img.Order)
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	f := newImageFixture(t)
	img := f.upload(t, "A", 1)[0]

	got, err := f.svc.Get(context.Background(), "A", img.ID)
	require.NoError(t, err)
	assert.Equal(t, img.ID, got.ID)

	_, err = f.svc.Get(context.Background(), "B", img.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Get(context.Background(), "A", "404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRemovesFileThenRecord(t *testing.T) {
	f := newImageFixture(t)
	img := f.upload(t, "A", 1)[0]

	require.NoError(t, f.svc.Delete(context.Background(), "A", img.ID))
	assert.Zero(t, f.files.count(), "file and thumbnail removed")
	_, err := f.images.GetByID(context.Background(), img.ID)
	assert.Error(t, err)
	assert.Contains(t, f.events.types(), queue.ImageDeleted)
}

func TestDeleteKeepsRecordWhenFileRemovalFails(t *testing.T) {
	f := newImageFixture(t)
	img := f.upload(t, "A", 1)[0]
	f.files.failRemove = errors.New("disk on fire")

	err := f.svc.Delete(context.Background(), "A", img.ID)
	assert.ErrorIs(t, err, ErrStorage)

	_, err = f.images.GetByID(context.Background(), img.ID)
	assert.NoError(t, err, "record must survive a failed file removal")
}

func TestDeleteToleratesMissingFile(t *testing.T) {
	f := newImageFixture(t)
	img := f.upload(t, "A", 1)[0]
	require.NoError(t, f.files.Remove(context.Background(), img.ImageURL))

	require.NoError(t, f.svc.Delete(context.Background(), "A", img.ID))
}

func TestDeleteForeignImage(t *testing.T) {
	f := newImageFixture(t)
	img := f.upload(t, "A", 1)[0]

	assert.ErrorIs(t, f.svc.Delete(context.Background(), "B", img.ID), ErrForbidden)
	assert.True(t, f.files.has(img.ImageURL))
}

func TestReorderValidation(t *testing.T) {
	f := newImageFixture(t)
	ctx := context.Background()
	mine := f.upload(t, "A", 2)
	theirs := f.upload(t, "B", 1)

	assert.NoError(t, f.svc.Reorder(ctx, "A", nil))

	err := f.svc.Reorder(ctx, "A", []model.OrderUpdate{{ID: mine[0].ID, Order: 1}, {ID: mine[0].ID, Order: 2}})
	assert.ErrorIs(t, err, ErrValidation)

	err = f.svc.Reorder(ctx, "A", []model.OrderUpdate{{ID: "", Order: 1}})
	assert.ErrorIs(t, err, ErrValidation)

	err = f.svc.Reorder(ctx, "A", []model.OrderUpdate{{ID: mine[0].ID, Order: 7}, {ID: theirs[0].ID, Order: 8}})
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := f.svc.List(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, orders(list), "nothing written on failure")
}

func TestRenameTitle(t *testing.T) {
	f := newImageFixture(t)
	img := f.upload(t, "A", 1, "old")[0]

	require.NoError(t, f.svc.RenameTitle(context.Background(), "A", img.ID, "  new  "))
	got, _ := f.svc.Get(context.Background(), "A", img.ID)
	assert.Equal(t, "new", got.Title)

	assert.ErrorIs(t, f.svc.RenameTitle(context.Background(), "B", img.ID, "x"), ErrForbidden)
}

func TestEditReplacesFileAndRemovesOld(t *testing.T) {
	f := newImageFixture(t)
	img := f.upload(t, "A", 1, "old")[0]

	updated, err := f.svc.Edit(context.Background(), "A", img.ID, "fresh", &Upload{Filename: "new.png", Data: pngData(t)})
	require.NoError(t, err)
	assert.Equal(t, "fresh", updated.Title)
	assert.NotEqual(t, img.ImageURL, updated.ImageURL)
	assert.Equal(t, img.Order, updated.Order)
	assert.False(t, f.files.has(img.ImageURL))
	assert.False(t, f.files.has(img.ThumbnailURL))
	assert.True(t, f.files.has(updated.ImageURL))
}

func TestEditTitleOnlyKeepsFile(t *testing.T) {
	f := newImageFixture(t)
	img := f.upload(t, "A", 1, "old")[0]

	updated, err := f.svc.Edit(context.Background(), "A", img.ID, "renamed", nil)
	require.NoError(t, err)
	assert.Equal(t, img.ImageURL, updated.ImageURL)
	assert.True(t, f.files.has(img.ImageURL))
}

func TestMutationsInvalidateCacheAndEmitEvents(t *testing.T) {
	f := newImageFixture(t)
	img := f.upload(t, "A", 1)[0]
	require.NoError(t, f.svc.RenameTitle(context.Background(), "A", img.ID, "t"))
	require.NoError(t, f.svc.Reorder(context.Background(), "A", []model.OrderUpdate{{ID: img.ID, Order: 3}}))

	assert.Equal(t, []string{"A", "A", "A"}, f.cache.users)
	assert.Equal(t, []string{queue.ImageUploaded, queue.ImageEdited, queue.ImageReordered}, f.events.types())
}

func TestMutationsAreCounted(t *testing.T) {
	f := newImageFixture(t)
	imgs := f.upload(t, "A", 3)
	require.NoError(t, f.svc.Delete(context.Background(), "A", imgs[0].ID))
	require.NoError(t, f.svc.Reorder(context.Background(), "A", []model.OrderUpdate{{ID: imgs[1].ID, Order: 9}, {ID: imgs[2].ID, Order: 8}}))

	assert.Equal(t, 3, f.counts.get(queue.ImageUploaded))
	assert.Equal(t, 1, f.counts.get(queue.ImageDeleted))
	assert.Equal(t, 2, f.counts.get(queue.ImageReordered))
}

func TestPublishFailureDoesNotFailUpload(t *testing.T) {
	f := newImageFixture(t)
	f.svc.events = failingPublisher{}
	f.upload(t, "A", 1)
}
