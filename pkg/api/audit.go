package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/blip0/blip0/pkg/apperr"
	"github.com/blip0/blip0/pkg/types"
)

// Block states

func (s *Server) listBlockStates(c *gin.Context) {
	page, err := s.svc.BlockStates.List(c.Request.Context(), tenantID(c), listOptions(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) updateBlockStatus(c *gin.Context) {
	networkID, ok := pathID(c, "network_id")
	if !ok {
		return
	}
	var in struct {
		Status types.ProcessingStatus `json:"status"`
		Error  *string                `json:"error,omitempty"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, apperr.Wrap(apperr.KindBadRequest, "malformed request body", err))
		return
	}
	switch in.Status {
	case types.ProcessingStatusIdle, types.ProcessingStatusProcessing,
		types.ProcessingStatusError, types.ProcessingStatusPaused:
	default:
		fail(c, apperr.Ef(apperr.KindBadRequest, "unknown processing status %q", in.Status))
		return
	}

	state, err := s.svc.BlockStates.UpdateStatus(c.Request.Context(), tenantID(c), networkID, in.Status, in.Error)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) recordBlockProcessed(c *gin.Context) {
	networkID, ok := pathID(c, "network_id")
	if !ok {
		return
	}
	var in struct {
		BlockNumber int64 `json:"block_number"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, apperr.Wrap(apperr.KindBadRequest, "malformed request body", err))
		return
	}
	state, err := s.svc.BlockStates.RecordProcessed(c.Request.Context(), tenantID(c), networkID, in.BlockNumber)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) updateBlockMetrics(c *gin.Context) {
	networkID, ok := pathID(c, "network_id")
	if !ok {
		return
	}
	var in struct {
		BlockNumber      int64           `json:"block_number"`
		BlocksPerMinute  decimal.Decimal `json:"blocks_per_minute"`
		ProcessingTimeMS int64           `json:"processing_time_ms"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, apperr.Wrap(apperr.KindBadRequest, "malformed request body", err))
		return
	}
	state, err := s.svc.BlockStates.UpdateMetrics(c.Request.Context(), tenantID(c), networkID, in.BlockNumber, in.BlocksPerMinute, in.ProcessingTimeMS)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) blockProcessingStats(c *gin.Context) {
	networkID, ok := pathID(c, "network_id")
	if !ok {
		return
	}
	window := time.Duration(intQuery(c, "window_hours")) * time.Hour
	stats, err := s.svc.BlockStates.GetProcessingStats(c.Request.Context(), tenantID(c), networkID, window)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Missed blocks

func (s *Server) recordMissedBlock(c *gin.Context) {
	var in struct {
		NetworkID   uuid.UUID `json:"network_id"`
		BlockNumber int64     `json:"block_number"`
		Reason      string    `json:"reason"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, apperr.Wrap(apperr.KindBadRequest, "malformed request body", err))
		return
	}
	mb, err := s.svc.Missed.Record(c.Request.Context(), tenantID(c), in.NetworkID, in.BlockNumber, in.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, mb)
}

func (s *Server) listMissedBlocks(c *gin.Context) {
	networkID, err := uuid.Parse(c.Query("network_id"))
	if err != nil {
		fail(c, apperr.E(apperr.KindBadRequest, "network_id query parameter is required"))
		return
	}
	blocks, err := s.svc.Missed.GetUnprocessed(c.Request.Context(), tenantID(c), networkID, intQuery(c, "limit"))
	if err != nil {
		fail(c, err)
		return
	}
	if blocks == nil {
		blocks = []*types.MissedBlock{}
	}
	c.JSON(http.StatusOK, gin.H{"missed_blocks": blocks})
}

func (s *Server) retryMissedBlocks(c *gin.Context) {
	var in struct {
		IDs []uuid.UUID `json:"ids"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, apperr.Wrap(apperr.KindBadRequest, "malformed request body", err))
		return
	}
	n, err := s.svc.Missed.BulkRetry(c.Request.Context(), tenantID(c), in.IDs)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": n})
}

func (s *Server) markMissedBlockProcessed(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	mb, err := s.svc.Missed.MarkProcessed(c.Request.Context(), tenantID(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mb)
}

// Monitor matches

func (s *Server) recordMatch(c *gin.Context) {
	var match types.MonitorMatch
	if err := c.ShouldBindJSON(&match); err != nil {
		fail(c, apperr.Wrap(apperr.KindBadRequest, "malformed request body", err))
		return
	}
	match.TenantID = tenantID(c)
	recorded, err := s.svc.Matches.RecordMatch(c.Request.Context(), &match)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, recorded)
}

func (s *Server) recentMatches(c *gin.Context) {
	var monitorID *uuid.UUID
	if raw := c.Query("monitor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			fail(c, apperr.E(apperr.KindBadRequest, "malformed monitor_id"))
			return
		}
		monitorID = &id
	}
	matches, err := s.svc.Matches.GetRecentMatches(c.Request.Context(), tenantID(c), monitorID,
		intQuery(c, "hours"), intQuery(c, "limit"))
	if err != nil {
		fail(c, err)
		return
	}
	if matches == nil {
		matches = []*types.MonitorMatch{}
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

func (s *Server) updateMatchTriggerCounts(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in struct {
		Executed int `json:"executed"`
		Failed   int `json:"failed"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, apperr.Wrap(apperr.KindBadRequest, "malformed request body", err))
		return
	}
	if err := s.svc.Matches.UpdateTriggerCounts(c.Request.Context(), tenantID(c), id, in.Executed, in.Failed); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Trigger executions

func (s *Server) recordExecution(c *gin.Context) {
	var exec types.TriggerExecution
	if err := c.ShouldBindJSON(&exec); err != nil {
		fail(c, apperr.Wrap(apperr.KindBadRequest, "malformed request body", err))
		return
	}
	exec.TenantID = tenantID(c)
	recorded, err := s.svc.Executions.RecordExecution(c.Request.Context(), &exec)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, recorded)
}

func (s *Server) updateExecutionStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in struct {
		Status types.ExecutionStatus `json:"status"`
		Error  *string               `json:"error,omitempty"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, apperr.Wrap(apperr.KindBadRequest, "malformed request body", err))
		return
	}
	exec, err := s.svc.Executions.UpdateStatus(c.Request.Context(), tenantID(c), id, in.Status, in.Error)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, exec)
}

func (s *Server) retryExecution(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	exec, err := s.svc.Executions.Retry(c.Request.Context(), tenantID(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, exec)
}

func (s *Server) bulkRetryExecutions(c *gin.Context) {
	var in struct {
		IDs []uuid.UUID `json:"ids"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, apperr.Wrap(apperr.KindBadRequest, "malformed request body", err))
		return
	}
	n, err := s.svc.Executions.BulkRetry(c.Request.Context(), tenantID(c), in.IDs)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"retried": n})
}

func (s *Server) executionStats(c *gin.Context) {
	var triggerID *uuid.UUID
	if raw := c.Query("trigger_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			fail(c, apperr.E(apperr.KindBadRequest, "malformed trigger_id"))
			return
		}
		triggerID = &id
	}
	window := time.Duration(intQuery(c, "window_hours")) * time.Hour
	stats, err := s.svc.Executions.GetStats(c.Request.Context(), tenantID(c), triggerID, window)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
