package model

import "strings"

// Commentable is any entity that can own a comment forest. Only its identity
// is ever read.
type Commentable interface {
	CommentableType() string
	CommentableID() string
}

// Scope identifies one commentable's forest. All tree arithmetic is relative
// to a scope.
type Scope struct {
	Type string `json:"commentable_type"`
	ID   string `json:"commentable_id"`
}

// ScopeOf derives the scope of a commentable entity.
func ScopeOf(c Commentable) Scope {
	if s, ok := c.(Scope); ok {
		return s
	}
	return Scope{Type: c.CommentableType(), ID: c.CommentableID()}
}

// CommentableType implements Commentable so a bare Scope can be passed where
// an entity is expected.
func (s Scope) CommentableType() string { return s.Type }

// CommentableID implements Commentable.
func (s Scope) CommentableID() string { return s.ID }

func (s Scope) String() string {
	return s.Type + "/" + s.ID
}

// Validate checks that both halves of the identity are present.
func (s Scope) Validate() error {
	var ve ValidationError
	if strings.TrimSpace(s.Type) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "commentable_type", Message: "is required"})
	}
	if strings.TrimSpace(s.ID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "commentable_id", Message: "is required"})
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}
