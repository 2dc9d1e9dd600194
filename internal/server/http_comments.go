package server

import (
	"encoding/json"
	"net/http"

	"github.com/alfredjeanlab/threads/internal/model"
	"github.com/alfredjeanlab/threads/internal/nestedset"
)

func scopeOf(r *http.Request) model.Scope {
	return model.Scope{Type: r.PathValue("type"), ID: r.PathValue("id")}
}

// queryParams reads page, items, depth and order from the query string.
func queryParams(r *http.Request) (listParams, error) {
	q := r.URL.Query()
	page, err := parseInt("page", q.Get("page"))
	if err != nil {
		return listParams{}, err
	}
	items, err := parseInt("items", q.Get("items"))
	if err != nil {
		return listParams{}, err
	}
	return listParams{Page: page, Items: items, Depth: q.Get("depth"), Order: q.Get("order")}, nil
}

// threadedPage is a page whose comments are nested under their parents.
type threadedPage struct {
	Info    model.PageInfo    `json:"page"`
	Threads []*nestedset.Node `json:"threads"`
}

// writePage writes page flat, or threaded when ?format=tree.
func writePage(w http.ResponseWriter, r *http.Request, page *model.Page) {
	if r.URL.Query().Get("format") == "tree" {
		threads := nestedset.BuildTree(page.Comments)
		if threads == nil {
			threads = []*nestedset.Node{}
		}
		writeJSON(w, http.StatusOK, threadedPage{Info: page.Info, Threads: threads})
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleRootComments handles GET /v1/forests/{type}/{id}/comments/roots.
func (s *ThreadsServer) handleRootComments(w http.ResponseWriter, r *http.Request) {
	p, err := queryParams(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	page, err := s.svc.RootComments(r.Context(), scopeOf(r), p.pageRequest(), p.order())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writePage(w, r, page)
}

// handleNestedComments handles GET /v1/forests/{type}/{id}/comments/nested.
func (s *ThreadsServer) handleNestedComments(w http.ResponseWriter, r *http.Request) {
	p, err := queryParams(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	depth, err := p.depth()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	page, err := s.svc.NestedComments(r.Context(), scopeOf(r), depth, p.pageRequest())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writePage(w, r, page)
}

// handleListComments handles GET /v1/forests/{type}/{id}/comments, every
// comment ordered by submission time.
func (s *ThreadsServer) handleListComments(w http.ResponseWriter, r *http.Request) {
	p, err := queryParams(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	page, err := s.svc.CommentsOrderedBySubmission(r.Context(), scopeOf(r), p.pageRequest(), p.order())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleAddComment handles POST /v1/forests/{type}/{id}/comments.
func (s *ThreadsServer) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var in model.NewComment
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	c, err := s.svc.AddComment(r.Context(), scopeOf(r), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// handleGetComment handles GET /v1/forests/{type}/{id}/comments/{cid}.
func (s *ThreadsServer) handleGetComment(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.GetComment(r.Context(), scopeOf(r), r.PathValue("cid"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleSubtree handles GET /v1/forests/{type}/{id}/comments/{cid}/subtree.
func (s *ThreadsServer) handleSubtree(w http.ResponseWriter, r *http.Request) {
	p, err := queryParams(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	depth, err := p.depth()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	page, err := s.svc.Subtree(r.Context(), scopeOf(r), r.PathValue("cid"), depth, p.pageRequest())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writePage(w, r, page)
}

// handleAncestors handles GET /v1/forests/{type}/{id}/comments/{cid}/ancestors.
func (s *ThreadsServer) handleAncestors(w http.ResponseWriter, r *http.Request) {
	anc, err := s.svc.Ancestors(r.Context(), scopeOf(r), r.PathValue("cid"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": anc})
}

// handleDeleteComment handles DELETE /v1/forests/{type}/{id}/comments/{cid}.
func (s *ThreadsServer) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.DeleteSubtree(r.Context(), scopeOf(r), r.PathValue("cid"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// handleDeleteForest handles DELETE /v1/forests/{type}/{id}.
func (s *ThreadsServer) handleDeleteForest(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.DeleteForest(r.Context(), scopeOf(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// handleExists handles GET /v1/forests/{type}/{id}/exists.
func (s *ThreadsServer) handleExists(w http.ResponseWriter, r *http.Request) {
	has, err := s.svc.HasComments(r.Context(), scopeOf(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"has_comments": has})
}

// verifyResult reports a forest check. An inconsistent forest is a
// successful check with Consistent false.
type verifyResult struct {
	Consistent bool   `json:"consistent"`
	Comments   int    `json:"comments"`
	Detail     string `json:"detail,omitempty"`
}

// handleVerify handles GET /v1/forests/{type}/{id}/verify.
func (s *ThreadsServer) handleVerify(w http.ResponseWriter, r *http.Request) {
	scope := scopeOf(r)
	n, err := s.svc.Verify(r.Context(), scope)
	if model.IsConsistency(err) {
		s.log.Error("forest failed verification", "scope", scope.String(), "err", err)
		writeJSON(w, http.StatusOK, verifyResult{Consistent: false, Detail: err.Error()})
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResult{Consistent: true, Comments: n})
}

// handleForestUserComments handles GET /v1/forests/{type}/{id}/users/{uid}/comments.
func (s *ThreadsServer) handleForestUserComments(w http.ResponseWriter, r *http.Request) {
	scope := scopeOf(r)
	s.userComments(w, r, &scope)
}

// handleUserComments handles GET /v1/users/{uid}/comments across every forest.
func (s *ThreadsServer) handleUserComments(w http.ResponseWriter, r *http.Request) {
	s.userComments(w, r, nil)
}

func (s *ThreadsServer) userComments(w http.ResponseWriter, r *http.Request, scope *model.Scope) {
	p, err := queryParams(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	page, err := s.svc.CommentsByUser(r.Context(), r.PathValue("uid"), scope, p.pageRequest(), p.order())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
