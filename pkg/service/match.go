package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/blip0/blip0/pkg/apperr"
	"github.com/blip0/blip0/pkg/log"
	"github.com/blip0/blip0/pkg/storage"
	"github.com/blip0/blip0/pkg/types"
)

const (
	defaultMatchWindowHours = 24
	defaultMatchLimit       = 100
	maxMatchLimit           = 1000
)

// MatchService records monitor firings and their trigger fan-out counts.
type MatchService struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewMatchService wires a match service over the store.
func NewMatchService(store storage.Store) *MatchService {
	return &MatchService{
		store:  store,
		logger: log.WithComponent("match-service"),
	}
}

// RecordMatch stores one monitor firing.
func (s *MatchService) RecordMatch(ctx context.Context, match *types.MonitorMatch) (*types.MonitorMatch, error) {
	if match.MonitorID == uuid.Nil || match.NetworkID == uuid.Nil {
		return nil, apperr.E(apperr.KindBadRequest, "monitor_id and network_id are required")
	}
	if match.BlockNumber < 0 {
		return nil, apperr.E(apperr.KindBadRequest, "block number must be non-negative")
	}
	if err := s.store.CreateMonitorMatch(ctx, match); err != nil {
		return nil, err
	}
	return match, nil
}

// Get returns one of the tenant's matches by id.
func (s *MatchService) Get(ctx context.Context, tenantID, id uuid.UUID) (*types.MonitorMatch, error) {
	return s.store.GetMonitorMatch(ctx, id, tenantID)
}

// UpdateTriggerCounts adds delivery outcomes to the match. Counts only
// grow; workers report deltas as executions complete.
func (s *MatchService) UpdateTriggerCounts(ctx context.Context, tenantID, id uuid.UUID, executed, failed int) error {
	if executed < 0 || failed < 0 {
		return apperr.E(apperr.KindBadRequest, "trigger counts must be non-negative")
	}
	if executed == 0 && failed == 0 {
		return nil
	}
	return s.store.IncrementMatchTriggerCounts(ctx, id, tenantID, executed, failed)
}

// GetRecentMatches returns the tenant's matches over a trailing window,
// newest first, optionally scoped to one monitor. Defaults: 24 hours,
// 100 rows; the limit caps at 1000.
func (s *MatchService) GetRecentMatches(ctx context.Context, tenantID uuid.UUID, monitorID *uuid.UUID, hours, limit int) ([]*types.MonitorMatch, error) {
	if hours <= 0 {
		hours = defaultMatchWindowHours
	}
	if limit <= 0 {
		limit = defaultMatchLimit
	}
	if limit > maxMatchLimit {
		limit = maxMatchLimit
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	return s.store.ListRecentMatches(ctx, tenantID, monitorID, since, limit)
}
