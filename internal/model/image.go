package model

import "time"

// Image is one stored picture in a user's collection.  Order defines the
// display position; listing sorts by Order, then CreatedAt, then ID so that
// equal orders still come back in a stable sequence.
type Image struct {
    ID           string    `json:"_id"`
    UserID       string    `json:"userId"`
    Title        string    `json:"title"`
    ImageURL     string    `json:"imageUrl"`
    ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
    ContentType  string    `json:"contentType,omitempty"`
    SizeBytes    int64     `json:"size"`
    Width        int       `json:"width,omitempty"`
    Height       int       `json:"height,omitempty"`
    Order        int       `json:"order"`
    CreatedAt    time.Time `json:"createdAt"`
    UpdatedAt    time.Time `json:"updatedAt"`
}

// OrderUpdate assigns a new display position to one image.  The JSON shape
// matches what the drag-and-drop client sends.
type OrderUpdate struct {
    ID    string `json:"_id" validate:"required"`
    Order int    `json:"order"`
}

// Less reports whether a sorts before b in a user's listing.
func Less(a, b Image) bool {
    if a.Order != b.Order {
        return a.Order < b.Order
    }
    if !a.CreatedAt.Equal(b.CreatedAt) {
        return a.CreatedAt.Before(b.CreatedAt)
    }
    // ids are either decimal or fixed-width hex, so shorter means smaller
    if len(a.ID) != len(b.ID) {
        return len(a.ID) < len(b.ID)
    }
    return a.ID < b.ID
}
