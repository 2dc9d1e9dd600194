package events

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/alfredjeanlab/threads/internal/model"
)

// Event topic constants
const (
	TopicCommentAdded   = "threads.comment.added"
	TopicCommentDeleted = "threads.comment.deleted"
	TopicForestDeleted  = "threads.forest.deleted"

	// Published after every committed mutation so peers drop cached pages
	// they hold locally.
	TopicCacheInvalidated = "threads.cache.invalidated"

	// TopicAll matches every topic above, for every forest.
	TopicAll = "threads.>"
)

// Events travel on forest subjects: the topic followed by the escaped
// commentable type and id, e.g. "threads.comment.added.Post.42".

// ForestSubject returns the subject topic is published on for scope.
func ForestSubject(topic string, scope model.Scope) string {
	return topic + "." + subjectToken(scope.Type) + "." + subjectToken(scope.ID)
}

// TopicFilter matches topic for every forest.
func TopicFilter(topic string) string {
	return topic + ".*.*"
}

// ForestFilter matches every topic for one forest.
func ForestFilter(scope model.Scope) string {
	return ForestSubject("threads.*.*", scope)
}

// ScopeFromSubject recovers the forest a subject was built for.
func ScopeFromSubject(subject string) (model.Scope, bool) {
	parts := strings.Split(subject, ".")
	if len(parts) != 5 || parts[0] != "threads" {
		return model.Scope{}, false
	}
	typ, err1 := url.PathUnescape(parts[3])
	id, err2 := url.PathUnescape(parts[4])
	if err1 != nil || err2 != nil || typ == "" || id == "" {
		return model.Scope{}, false
	}
	return model.Scope{Type: typ, ID: id}, true
}

// subjectToken percent-escapes every byte NATS could read as a separator,
// wildcard or whitespace.
func subjectToken(v string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9', c == '-', c == '_':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0xf])
		}
	}
	return b.String()
}

// forestEvent is implemented by events that belong to one forest.
type forestEvent interface {
	EventScope() model.Scope
}

// Event types

type CommentAdded struct {
	EventID string         `json:"event_id"`
	Comment *model.Comment `json:"comment"`
}

type CommentDeleted struct {
	EventID   string      `json:"event_id"`
	Scope     model.Scope `json:"scope"`
	CommentID string      `json:"comment_id"`
	Removed   int         `json:"removed"` // subtree size, root included
	Authors   []string    `json:"authors,omitempty"`
}

type ForestDeleted struct {
	EventID string      `json:"event_id"`
	Scope   model.Scope `json:"scope"`
	Removed int         `json:"removed"`
	Authors []string    `json:"authors,omitempty"`
}

type CacheInvalidated struct {
	EventID  string      `json:"event_id"`
	Origin   string      `json:"origin"` // instance that ran the mutation
	Scope    model.Scope `json:"scope"`
	Prefixes []string    `json:"prefixes"`
}

func (e CommentAdded) EventScope() model.Scope {
	if e.Comment == nil {
		return model.Scope{}
	}
	return e.Comment.Scope()
}

func (e CommentDeleted) EventScope() model.Scope   { return e.Scope }
func (e ForestDeleted) EventScope() model.Scope    { return e.Scope }
func (e CacheInvalidated) EventScope() model.Scope { return e.Scope }

// NewEventID returns a random event identifier.
func NewEventID() string {
	return uuid.NewString()
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
