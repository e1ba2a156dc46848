package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blip0/blip0/pkg/apperr"
	"github.com/blip0/blip0/pkg/types"
)

func (s *Server) createTenant(c *gin.Context) {
	var in struct {
		Name string     `json:"name"`
		Slug string     `json:"slug"`
		Plan types.Plan `json:"plan"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, apperr.Wrap(apperr.KindBadRequest, "malformed request body", err))
		return
	}
	t, err := s.svc.Tenants.Create(c.Request.Context(), in.Name, in.Slug, in.Plan)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, t)
}

func (s *Server) getTenant(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, err := s.svc.Tenants.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) getTenantLimits(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	limits, err := s.svc.Tenants.GetLimits(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, limits)
}

func (s *Server) setTenantPlan(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in struct {
		Plan types.Plan `json:"plan"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, apperr.Wrap(apperr.KindBadRequest, "malformed request body", err))
		return
	}
	if err := s.svc.Tenants.SetPlan(c.Request.Context(), id, in.Plan); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) suspendTenant(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.svc.Tenants.Suspend(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) reactivateTenant(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.svc.Tenants.Reactivate(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
