package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blip0/blip0/pkg/apperr"
	"github.com/blip0/blip0/pkg/types"
)

func (s *Server) createMonitor(c *gin.Context) {
	var in types.MonitorCreate
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, apperr.Wrap(apperr.KindBadRequest, "malformed request body", err))
		return
	}
	tid := tenantID(c)
	// A body tenant_id may be present for symmetry with exports, but it
	// must agree with the authenticated tenant.
	if in.TenantID != nil && *in.TenantID != tid {
		fail(c, apperr.E(apperr.KindForbidden, "tenant_id does not match the authenticated tenant"))
		return
	}

	m, err := s.svc.Monitors.Create(c.Request.Context(), tid, &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, m)
}

func (s *Server) listMonitors(c *gin.Context) {
	page, err := s.svc.Monitors.List(c.Request.Context(), tenantID(c), listOptions(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) getMonitor(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if boolQuery(c, "include_triggers") {
		mwt, err := s.svc.Monitors.GetWithTriggers(ctx, tenantID(c), id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, mwt)
		return
	}
	m, err := s.svc.Monitors.Get(ctx, tenantID(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) updateMonitor(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var patch types.MonitorUpdate
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, apperr.Wrap(apperr.KindBadRequest, "malformed request body", err))
		return
	}
	m, err := s.svc.Monitors.Update(c.Request.Context(), tenantID(c), id, &patch)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) deleteMonitor(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.svc.Monitors.Delete(c.Request.Context(), tenantID(c), id, boolQuery(c, "hard_delete")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) pauseMonitor(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	m, err := s.svc.Monitors.Pause(c.Request.Context(), tenantID(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) resumeMonitor(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	m, err := s.svc.Monitors.Resume(c.Request.Context(), tenantID(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) validateMonitor(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := s.svc.Monitors.Validate(c.Request.Context(), tenantID(c), id, boolQuery(c, "validate_triggers"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) cloneMonitor(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in struct {
		Name string `json:"name"`
		Slug string `json:"slug"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, apperr.Wrap(apperr.KindBadRequest, "malformed request body", err))
		return
	}
	m, err := s.svc.Monitors.Clone(c.Request.Context(), tenantID(c), id, in.Name, in.Slug)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, m)
}

func (s *Server) refreshMonitorCache(c *gin.Context) {
	n, err := s.svc.Monitors.RefreshAll(c.Request.Context(), tenantID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshed": n})
}

func (s *Server) activeMonitors(c *gin.Context) {
	ids, err := s.svc.Monitors.GetActiveIDs(c.Request.Context(), tenantID(c))
	if err != nil {
		fail(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"monitor_ids": ids})
}
