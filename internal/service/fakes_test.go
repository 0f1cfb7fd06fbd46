package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/stock-image-platform/internal/model"
	"github.com/iliyamo/stock-image-platform/internal/queue"
	"github.com/iliyamo/stock-image-platform/internal/repository"
	"github.com/iliyamo/stock-image-platform/internal/storage"
)

type memUsers struct {
	mu     sync.Mutex
	byID   map[string]model.User
	nextID int
}

func newMemUsers() *memUsers { return &memUsers{byID: map[string]model.User{}} }

func (m *memUsers) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.byID {
		if x.Email == u.Email {
			return repository.ErrEmailExists
		}
	}
	m.nextID++
	u.ID = strconv.Itoa(m.nextID)
	u.CreatedAt = time.Now().UTC()
	m.byID[u.ID] = *u
	return nil
}

func (m *memUsers) find(match func(model.User) bool) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if match(u) {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	return m.find(func(u model.User) bool { return u.Email == email })
}

func (m *memUsers) GetByID(_ context.Context, id string) (model.User, error) {
	return m.find(func(u model.User) bool { return u.ID == id })
}

func (m *memUsers) GetByResetToken(_ context.Context, h string) (model.User, error) {
	return m.find(func(u model.User) bool { return h != "" && u.ResetTokenHash == h })
}

func (m *memUsers) update(id string, fn func(*model.User) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok || !fn(&u) {
		return repository.ErrNotFound
	}
	m.byID[id] = u
	return nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id, hash string) error {
	return m.update(id, func(u *model.User) bool { u.PasswordHash = hash; return true })
}

func (m *memUsers) SetResetToken(_ context.Context, id, hash string, exp time.Time) error {
	return m.update(id, func(u *model.User) bool {
		u.ResetTokenHash, u.ResetExpiresAt = hash, &exp
		return true
	})
}

func (m *memUsers) ConsumeResetToken(_ context.Context, id, hash, pw string, now time.Time) error {
	return m.update(id, func(u *model.User) bool {
		if u.ResetTokenHash != hash || u.ResetExpiresAt == nil || !now.Before(*u.ResetExpiresAt) {
			return false
		}
		u.PasswordHash, u.ResetTokenHash, u.ResetExpiresAt = pw, "", nil
		return true
	})
}

func (m *memUsers) Ping(context.Context) error { return nil }

type memImages struct {
	mu         sync.Mutex
	byID       map[string]model.Image
	nextID     int
	failInsert error
}

func newMemImages() *memImages { return &memImages{byID: map[string]model.Image{}} }

func (m *memImages) InsertBatch(_ context.Context, imgs []model.Image) ([]model.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsert != nil {
		return nil, m.failInsert
	}
	now := time.Now().UTC()
	out := make([]model.Image, len(imgs))
	for i, img := range imgs {
		m.nextID++
		img.ID = strconv.Itoa(m.nextID)
		img.CreatedAt, img.UpdatedAt = now, now
		m.byID[img.ID] = img
		out[i] = img
	}
	return out, nil
}

func (m *memImages) MaxOrder(_ context.Context, userID string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	top, ok := 0, false
	for _, img := range m.byID {
		if img.UserID == userID && (!ok || img.Order > top) {
			top, ok = img.Order, true
		}
	}
	return top, ok, nil
}

func (m *memImages) ListByUser(_ context.Context, userID string) ([]model.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Image{}
	for _, img := range m.byID {
		if img.UserID == userID {
			out = append(out, img)
		}
	}
	return out, nil
}

func (m *memImages) GetByID(_ context.Context, id string) (model.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.byID[id]
	if !ok {
		return model.Image{}, repository.ErrNotFound
	}
	return img, nil
}

func (m *memImages) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memImages) Reorder(_ context.Context, userID string, ups []model.OrderUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range ups {
		if img, ok := m.byID[u.ID]; !ok || img.UserID != userID {
			return repository.ErrNotFound
		}
	}
	for _, u := range ups {
		img := m.byID[u.ID]
		img.Order = u.Order
		m.byID[u.ID] = img
	}
	return nil
}

func (m *memImages) UpdateTitle(_ context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	img.Title = title
	m.byID[id] = img
	return nil
}

func (m *memImages) Update(_ context.Context, img model.Image) (model.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[img.ID]; !ok {
		return model.Image{}, repository.ErrNotFound
	}
	m.byID[img.ID] = img
	return img, nil
}

// memFiles is a FileStore keeping objects in a map.
type memFiles struct {
	mu         sync.Mutex
	objects    map[string][]byte
	failRemove error
}

func newMemFiles() *memFiles { return &memFiles{objects: map[string][]byte{}} }

func (m *memFiles) Save(_ context.Context, name, _ string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	url := "/mem/" + name
	m.objects[url] = b
	return url, nil
}

func (m *memFiles) Remove(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRemove != nil {
		return m.failRemove
	}
	if _, ok := m.objects[url]; !ok {
		return storage.ErrNotExist
	}
	delete(m.objects, url)
	return nil
}

func (m *memFiles) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

func (m *memFiles) has(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[url]
	return ok
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, queue.Event) error { return errors.New("broker down") }

type recordingCache struct {
	mu    sync.Mutex
	users []string
}

func (c *recordingCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = append(c.users, userID)
	return nil
}

type countingRecorder struct {
	mu sync.Mutex
	n  map[string]int
}

func (r *countingRecorder) ImagesChanged(event string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n[event] += n
}

func (r *countingRecorder) get(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n[event]
}

func pngData(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 6))))
	return buf.Bytes()
}
