package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/loykin/interpctl/internal/interpreter"
	"github.com/loykin/interpctl/internal/project"
)

// SettingRequest is the body of create and update calls.
type SettingRequest struct {
	Name       string             `json:"name"`
	Group      string             `json:"group"`
	Option     interpreter.Option `json:"option"`
	Properties map[string]string  `json:"properties"`
}

func (r *Router) cookieProject(c *gin.Context) (project.Project, bool) {
	p, err := r.projects.FromRequest(c.Request)
	if err != nil {
		r.fail(c, err)
		return project.Project{}, false
	}
	return p, true
}

func (r *Router) listSettings(c *gin.Context) {
	p, found := r.cookieProject(c)
	if !found {
		return
	}
	list, err := r.settings.List(c.Request.Context(), p.ID)
	if err != nil {
		r.fail(c, err)
		return
	}
	if list == nil {
		list = []interpreter.Setting{}
	}
	ok(c, list)
}

func (r *Router) createSetting(c *gin.Context) {
	var req SettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	if req.Group == "" {
		badRequest(c, "group required")
		return
	}
	p, found := r.cookieProject(c)
	if !found {
		return
	}
	s, err := r.settings.Add(c.Request.Context(), p.ID, req.Name, req.Group, req.Option, req.Properties)
	if err != nil {
		r.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "", s)
}

func (r *Router) updateSetting(c *gin.Context) {
	var req SettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	p, found := r.cookieProject(c)
	if !found {
		return
	}
	s, err := r.settings.SetPropertiesAndRestart(c.Request.Context(), p.ID, c.Param("settingId"), req.Option, req.Properties)
	if err != nil {
		r.fail(c, err)
		return
	}
	ok(c, s)
}

func (r *Router) removeSetting(c *gin.Context) {
	p, found := r.cookieProject(c)
	if !found {
		return
	}
	if err := r.settings.Remove(c.Request.Context(), p.ID, c.Param("settingId")); err != nil {
		r.fail(c, err)
		return
	}
	ok(c, nil)
}

func (r *Router) restartSetting(c *gin.Context) {
	p, found := r.cookieProject(c)
	if !found {
		return
	}
	s, err := r.lifecycle.Restart(c.Request.Context(), p.ID, c.Param("settingId"))
	if err != nil {
		r.fail(c, err)
		return
	}
	ok(c, s)
}

// listRegistered returns the registered types keyed by "group.name".
func (r *Router) listRegistered(c *gin.Context) {
	ok(c, r.settings.Registry().All())
}

func (r *Router) start(c *gin.Context) {
	projectID, err := strconv.ParseInt(c.Param("projectId"), 10, 64)
	if err != nil {
		badRequest(c, "projectId must be a number")
		return
	}
	st, err := r.lifecycle.Start(c.Request.Context(), projectID, c.Param("settingId"))
	if err != nil {
		r.fail(c, err)
		return
	}
	ok(c, st)
}

func (r *Router) stop(c *gin.Context) {
	p, found := r.cookieProject(c)
	if !found {
		return
	}
	st, err := r.lifecycle.Stop(c.Request.Context(), p.ID, c.Param("settingId"))
	if err != nil {
		r.fail(c, err)
		return
	}
	ok(c, st)
}

func (r *Router) statuses(c *gin.Context) {
	p, found := r.cookieProject(c)
	if !found {
		return
	}
	m, err := r.lifecycle.ListStatuses(c.Request.Context(), p.ID)
	if err != nil {
		r.fail(c, err)
		return
	}
	ok(c, m)
}
