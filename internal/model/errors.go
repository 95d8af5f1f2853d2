package model

import "errors"

var (
	// ErrNotFound is returned by stores when the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthenticated is returned by operations that require a live session.
	ErrUnauthenticated = errors.New("not authenticated")
)
