// Package repository holds the persistence layer: the store interfaces the
// services depend on and their MySQL and MongoDB implementations.  Sentinel
// errors let the service layer distinguish failure scenarios without
// knowing which driver produced them.
package repository

import "errors"

// ErrNotFound is returned when a lookup, update or delete matches no
// record.  For owner-scoped writes it also covers "exists but belongs to
// someone else", since those queries filter on the owner.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned by UserStore.Create when the email is
// already registered.
var ErrEmailExists = errors.New("email already exists")
