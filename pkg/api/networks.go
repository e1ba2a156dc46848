package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blip0/blip0/pkg/apperr"
	"github.com/blip0/blip0/pkg/types"
)

func (s *Server) createNetwork(c *gin.Context) {
	var in types.NetworkCreate
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, apperr.Wrap(apperr.KindBadRequest, "malformed request body", err))
		return
	}
	n, err := s.svc.Networks.Create(c.Request.Context(), &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, n)
}

func (s *Server) listNetworks(c *gin.Context) {
	page, err := s.svc.Networks.List(c.Request.Context(), listOptions(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) getNetwork(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	n, err := s.svc.Networks.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (s *Server) getNetworkBySlug(c *gin.Context) {
	n, err := s.svc.Networks.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (s *Server) updateNetwork(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var patch types.NetworkUpdate
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, apperr.Wrap(apperr.KindBadRequest, "malformed request body", err))
		return
	}
	n, err := s.svc.Networks.Update(c.Request.Context(), id, &patch)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (s *Server) deleteNetwork(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.svc.Networks.Delete(c.Request.Context(), id, boolQuery(c, "hard_delete")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) validateNetwork(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := s.svc.Networks.Validate(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
