package redisstore

import (
	"fmt"
	"strings"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "campus"

// Key addresses one Redis key of a course.
type Key struct {
	// Prefix is the namespace (default: "campus").
	Prefix string

	// CourseID is the course the key belongs to.
	CourseID string

	// Field selects the key kind: "" for the course hash, "students" for the
	// roster set.
	Field string
}

// String generates a deterministic key string.
// Format: prefix:course:{id}[:field]
//
// Example:
//
//	campus:course:{cs101}:students
//
// The braces form a Redis Cluster hash tag so both keys of a course live in
// the same slot and the enroll script can touch them together.
func (k Key) String() string {
	prefix := k.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	parts := []string{strings.Trim(prefix, ":"), "course", fmt.Sprintf("{%s}", k.CourseID)}
	if k.Field != "" {
		parts = append(parts, k.Field)
	}
	return strings.Join(parts, ":")
}

func courseKey(prefix, courseID string) string {
	return Key{Prefix: prefix, CourseID: courseID}.String()
}

func rosterKey(prefix, courseID string) string {
	return Key{Prefix: prefix, CourseID: courseID, Field: "students"}.String()
}
