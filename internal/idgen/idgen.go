// Package idgen generates comment identifiers.
package idgen

import (
	"fmt"
	"sync/atomic"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// CommentPrefix is prepended to every comment ID.
const CommentPrefix = "cm-"

// Alphabet is the character set of the random part of an ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 12

// Func produces a new ID. Services take one so tests can make IDs predictable.
type Func func() (string, error)

// Comment returns a new random comment ID.
func Comment() (string, error) {
	return WithPrefix(CommentPrefix)
}

// WithPrefix returns a new random ID with the given prefix.
func WithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// Sequence returns a Func yielding prefix1, prefix2, ... It is safe for
// concurrent use.
func Sequence(prefix string) Func {
	var n atomic.Int64
	return func() (string, error) {
		return fmt.Sprintf("%s%d", prefix, n.Add(1)), nil
	}
}
