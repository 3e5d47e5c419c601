package store

import "errors"

// ErrCourseNotFound is returned by catalogs for unknown course IDs.
var ErrCourseNotFound = errors.New("course not found")
