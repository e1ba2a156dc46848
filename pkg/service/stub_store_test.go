package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/blip0/blip0/pkg/apperr"
	"github.com/blip0/blip0/pkg/storage"
	"github.com/blip0/blip0/pkg/types"
)

// stubStore is an in-memory Store for the audit service tests. Methods the
// tests never reach come from the embedded nil interface and panic loudly.
type stubStore struct {
	storage.Store

	blockStates  map[string]*types.BlockState
	missedBlocks map[uuid.UUID]*types.MissedBlock
	matches      map[uuid.UUID]*types.MonitorMatch
	executions   map[uuid.UUID]*types.TriggerExecution

	// captured arguments for assertion
	lastSince time.Time
	lastLimit int
}

func newStubStore() *stubStore {
	return &stubStore{
		blockStates:  map[string]*types.BlockState{},
		missedBlocks: map[uuid.UUID]*types.MissedBlock{},
		matches:      map[uuid.UUID]*types.MonitorMatch{},
		executions:   map[uuid.UUID]*types.TriggerExecution{},
	}
}

func pairKey(tenantID, networkID uuid.UUID) string {
	return tenantID.String() + "/" + networkID.String()
}

func (s *stubStore) GetBlockState(_ context.Context, tenantID, networkID uuid.UUID) (*types.BlockState, error) {
	if st, ok := s.blockStates[pairKey(tenantID, networkID)]; ok {
		cp := *st
		return &cp, nil
	}
	return nil, apperr.NotFound("block state")
}

func (s *stubStore) CreateBlockState(_ context.Context, state *types.BlockState) error {
	key := pairKey(state.TenantID, state.NetworkID)
	if _, ok := s.blockStates[key]; ok {
		return apperr.Duplicate("tenant_id,network_id")
	}
	if state.ID == uuid.Nil {
		state.ID = uuid.New()
	}
	cp := *state
	s.blockStates[key] = &cp
	return nil
}

func (s *stubStore) UpdateBlockState(_ context.Context, state *types.BlockState) error {
	cp := *state
	s.blockStates[pairKey(state.TenantID, state.NetworkID)] = &cp
	return nil
}

func (s *stubStore) GetMissedBlock(_ context.Context, id, tenantID uuid.UUID) (*types.MissedBlock, error) {
	if mb, ok := s.missedBlocks[id]; ok && mb.TenantID == tenantID {
		cp := *mb
		return &cp, nil
	}
	return nil, apperr.NotFound("missed block")
}

func (s *stubStore) GetMissedBlockByNumber(_ context.Context, tenantID, networkID uuid.UUID, blockNumber int64) (*types.MissedBlock, error) {
	for _, mb := range s.missedBlocks {
		if mb.TenantID == tenantID && mb.NetworkID == networkID && mb.BlockNumber == blockNumber {
			cp := *mb
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("missed block")
}

func (s *stubStore) CreateMissedBlock(_ context.Context, mb *types.MissedBlock) error {
	for _, existing := range s.missedBlocks {
		if existing.TenantID == mb.TenantID && existing.NetworkID == mb.NetworkID && existing.BlockNumber == mb.BlockNumber {
			return apperr.Duplicate("tenant_id,network_id,block_number")
		}
	}
	if mb.ID == uuid.Nil {
		mb.ID = uuid.New()
	}
	mb.CreatedAt = time.Now().UTC()
	cp := *mb
	s.missedBlocks[mb.ID] = &cp
	return nil
}

func (s *stubStore) UpdateMissedBlock(_ context.Context, mb *types.MissedBlock) error {
	if _, ok := s.missedBlocks[mb.ID]; !ok {
		return apperr.NotFound("missed block")
	}
	cp := *mb
	s.missedBlocks[mb.ID] = &cp
	return nil
}

func (s *stubStore) ListUnprocessedMissedBlocks(_ context.Context, tenantID, networkID uuid.UUID, limit int) ([]*types.MissedBlock, error) {
	s.lastLimit = limit
	var out []*types.MissedBlock
	for _, mb := range s.missedBlocks {
		if mb.TenantID == tenantID && mb.NetworkID == networkID && !mb.Processed {
			cp := *mb
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockNumber < out[j].BlockNumber })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubStore) CountMissedBlocksSince(_ context.Context, tenantID, networkID uuid.UUID, since time.Time) (int64, error) {
	s.lastSince = since
	var n int64
	for _, mb := range s.missedBlocks {
		if mb.TenantID == tenantID && mb.NetworkID == networkID && !mb.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *stubStore) BulkResetMissedBlocks(_ context.Context, tenantID uuid.UUID, ids []uuid.UUID, maxRetries int, reason string) (int64, error) {
	var n int64
	for _, id := range ids {
		mb, ok := s.missedBlocks[id]
		if !ok || mb.TenantID != tenantID || mb.Processed || mb.RetryCount >= maxRetries {
			continue
		}
		mb.RetryCount = 0
		mb.Reason = reason
		n++
	}
	return n, nil
}

func (s *stubStore) CreateMonitorMatch(_ context.Context, match *types.MonitorMatch) error {
	if match.ID == uuid.Nil {
		match.ID = uuid.New()
	}
	match.CreatedAt = time.Now().UTC()
	cp := *match
	s.matches[match.ID] = &cp
	return nil
}

func (s *stubStore) GetMonitorMatch(_ context.Context, id, tenantID uuid.UUID) (*types.MonitorMatch, error) {
	if m, ok := s.matches[id]; ok && m.TenantID == tenantID {
		cp := *m
		return &cp, nil
	}
	return nil, apperr.NotFound("monitor match")
}

func (s *stubStore) IncrementMatchTriggerCounts(_ context.Context, id, tenantID uuid.UUID, executed, failed int) error {
	m, ok := s.matches[id]
	if !ok || m.TenantID != tenantID {
		return apperr.NotFound("monitor match")
	}
	m.TriggersExecuted += executed
	m.TriggersFailed += failed
	return nil
}

func (s *stubStore) ListRecentMatches(_ context.Context, tenantID uuid.UUID, monitorID *uuid.UUID, since time.Time, limit int) ([]*types.MonitorMatch, error) {
	s.lastSince = since
	s.lastLimit = limit
	var out []*types.MonitorMatch
	for _, m := range s.matches {
		if m.TenantID != tenantID || m.CreatedAt.Before(since) {
			continue
		}
		if monitorID != nil && m.MonitorID != *monitorID {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubStore) CreateTriggerExecution(_ context.Context, exec *types.TriggerExecution) error {
	if exec.ID == uuid.Nil {
		exec.ID = uuid.New()
	}
	exec.CreatedAt = time.Now().UTC()
	cp := *exec
	s.executions[exec.ID] = &cp
	return nil
}

func (s *stubStore) GetTriggerExecution(_ context.Context, id, tenantID uuid.UUID) (*types.TriggerExecution, error) {
	if e, ok := s.executions[id]; ok && e.TenantID == tenantID {
		cp := *e
		return &cp, nil
	}
	return nil, apperr.NotFound("trigger execution")
}

func (s *stubStore) UpdateTriggerExecution(_ context.Context, exec *types.TriggerExecution) error {
	if _, ok := s.executions[exec.ID]; !ok {
		return apperr.NotFound("trigger execution")
	}
	cp := *exec
	s.executions[exec.ID] = &cp
	return nil
}

func (s *stubStore) ListTriggerExecutions(_ context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*types.TriggerExecution, error) {
	var out []*types.TriggerExecution
	for _, id := range ids {
		if e, ok := s.executions[id]; ok && e.TenantID == tenantID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *stubStore) ExecutionStatsSince(_ context.Context, tenantID uuid.UUID, triggerID *uuid.UUID, since time.Time) (*types.TriggerExecutionStats, error) {
	s.lastSince = since
	stats := &types.TriggerExecutionStats{TenantID: tenantID, TriggerID: triggerID}
	var successes, retried, withDuration int64
	var totalMS int64
	for _, e := range s.executions {
		if e.TenantID != tenantID || e.CreatedAt.Before(since) {
			continue
		}
		if triggerID != nil && e.TriggerID != *triggerID {
			continue
		}
		stats.Total++
		if e.Status == types.ExecutionStatusSuccess {
			successes++
		}
		if e.RetryCount > 0 {
			retried++
		}
		if e.DurationMS != nil {
			withDuration++
			totalMS += *e.DurationMS
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = 100 * float64(successes) / float64(stats.Total)
		stats.RetryRate = 100 * float64(retried) / float64(stats.Total)
	}
	if withDuration > 0 {
		stats.AverageDurationMS = float64(totalMS) / float64(withDuration)
	}
	return stats, nil
}
