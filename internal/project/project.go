// Package project resolves tenant projects and the filesystem locations their
// interpreter processes write run-time artifacts to.
package project

import (
	"context"
	"errors"
	"net/http"
	"strconv"
)

// CookieName is the request cookie carrying the numeric project id.
const CookieName = "projectID"

// ErrNotFound is returned when no project matches the lookup.
var ErrNotFound = errors.New("project not found")

// Project is a tenant boundary.
type Project struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Lookup finds projects by id. Implemented by the store.
type Lookup interface {
	GetProject(ctx context.Context, id int64) (Project, error)
}

// Resolver maps ids and request cookies to projects.
type Resolver struct {
	lookup Lookup
}

func NewResolver(l Lookup) *Resolver { return &Resolver{lookup: l} }

// ByID returns the project with the given id or ErrNotFound.
func (r *Resolver) ByID(ctx context.Context, id int64) (Project, error) {
	p, err := r.lookup.GetProject(ctx, id)
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

// FromRequest resolves the project named by the projectID cookie.
// A missing or non-numeric cookie yields ErrNotFound.
func (r *Resolver) FromRequest(req *http.Request) (Project, error) {
	id, ok := IDFromCookies(req.Cookies())
	if !ok {
		return Project{}, ErrNotFound
	}
	return r.ByID(req.Context(), id)
}

// IDFromCookies returns the value of the first projectID cookie parsed as an integer.
func IDFromCookies(cookies []*http.Cookie) (int64, bool) {
	for _, c := range cookies {
		if c.Name != CookieName {
			continue
		}
		id, err := strconv.ParseInt(c.Value, 10, 64)
		if err != nil {
			return 0, false
		}
		return id, true
	}
	return 0, false
}
