package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blip0/blip0/pkg/apperr"
	"github.com/blip0/blip0/pkg/types"
)

func (s *Server) createTrigger(c *gin.Context) {
	var in types.TriggerCreate
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, apperr.Wrap(apperr.KindBadRequest, "malformed request body", err))
		return
	}
	tid := tenantID(c)
	if in.TenantID != nil && *in.TenantID != tid {
		fail(c, apperr.E(apperr.KindForbidden, "tenant_id does not match the authenticated tenant"))
		return
	}

	t, err := s.svc.Triggers.Create(c.Request.Context(), tid, &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, t)
}

func (s *Server) listTriggers(c *gin.Context) {
	page, err := s.svc.Triggers.List(c.Request.Context(), tenantID(c), listOptions(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) getTrigger(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, err := s.svc.Triggers.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) updateTrigger(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var patch types.TriggerUpdate
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, apperr.Wrap(apperr.KindBadRequest, "malformed request body", err))
		return
	}
	t, err := s.svc.Triggers.Update(c.Request.Context(), tenantID(c), id, &patch)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) deleteTrigger(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.svc.Triggers.Delete(c.Request.Context(), tenantID(c), id, boolQuery(c, "hard_delete")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) activateTrigger(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, err := s.svc.Triggers.Activate(c.Request.Context(), tenantID(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) deactivateTrigger(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, err := s.svc.Triggers.Deactivate(c.Request.Context(), tenantID(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
