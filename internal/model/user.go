package model

import "time"

// User represents a registered account.  IDs are opaque strings so the same
// type serves the MySQL store (decimal auto-increment ids) and the MongoDB
// store (hex ObjectIDs).
//
// Fields:
//  ID             – primary key identifier of the user.
//  Email          – unique, normalised (trimmed, lower-case) email address.
//  Username       – display name.
//  PhoneNumber    – contact number as entered, digits with optional leading '+'.
//  PasswordHash   – bcrypt hash; the plain password is never stored.
//  ResetTokenHash – SHA-256 hex digest of the outstanding reset token, empty if none.
//  ResetExpiresAt – when the outstanding reset token stops being accepted.
//  CreatedAt      – timestamp of creation.
//  UpdatedAt      – timestamp of last update.
type User struct {
    ID             string
    Email          string
    Username       string
    PhoneNumber    string
    PasswordHash   string
    ResetTokenHash string
    ResetExpiresAt *time.Time
    CreatedAt      time.Time
    UpdatedAt      time.Time
}

// Profile is the public view of a user returned by the API.
type Profile struct {
    ID          string    `json:"_id"`
    Email       string    `json:"email"`
    Username    string    `json:"username"`
    PhoneNumber string    `json:"phoneNumber"`
    CreatedAt   time.Time `json:"createdAt"`
}

// Profile strips credentials from the user.
func (u User) Profile() Profile {
    return Profile{ID: u.ID, Email: u.Email, Username: u.Username, PhoneNumber: u.PhoneNumber, CreatedAt: u.CreatedAt}
}
