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

// executionMaxRetries bounds bulk retry of failed deliveries.
const executionMaxRetries = 3

// ExecutionService records trigger delivery attempts and their lifecycle:
// pending, running, then one of the terminal states.
type ExecutionService struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewExecutionService wires an execution service over the store.
func NewExecutionService(store storage.Store) *ExecutionService {
	return &ExecutionService{
		store:  store,
		logger: log.WithComponent("execution-service"),
	}
}

// RecordExecution stores a new delivery attempt in the pending state.
func (s *ExecutionService) RecordExecution(ctx context.Context, exec *types.TriggerExecution) (*types.TriggerExecution, error) {
	if exec.TriggerID == uuid.Nil {
		return nil, apperr.E(apperr.KindBadRequest, "trigger_id is required")
	}
	switch exec.ExecutionType {
	case types.TriggerTypeEmail, types.TriggerTypeWebhook:
	default:
		return nil, apperr.Ef(apperr.KindBadRequest, "unknown execution type %q", exec.ExecutionType)
	}

	exec.Status = types.ExecutionStatusPending
	exec.StartedAt = nil
	exec.CompletedAt = nil
	exec.DurationMS = nil
	if err := s.store.CreateTriggerExecution(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// Get returns one of the tenant's executions by id.
func (s *ExecutionService) Get(ctx context.Context, tenantID, id uuid.UUID) (*types.TriggerExecution, error) {
	return s.store.GetTriggerExecution(ctx, id, tenantID)
}

// UpdateStatus moves an execution through its lifecycle. Entering the
// running state stamps started_at; terminal states stamp completed_at and
// derive duration_ms when the start is known.
func (s *ExecutionService) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status types.ExecutionStatus, errMsg *string) (*types.TriggerExecution, error) {
	exec, err := s.store.GetTriggerExecution(ctx, id, tenantID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	switch status {
	case types.ExecutionStatusRunning:
		if exec.StartedAt == nil {
			exec.StartedAt = &now
		}
	case types.ExecutionStatusSuccess, types.ExecutionStatusFailed, types.ExecutionStatusTimeout:
		exec.CompletedAt = &now
		if exec.StartedAt != nil {
			d := now.Sub(*exec.StartedAt).Milliseconds()
			exec.DurationMS = &d
		}
	case types.ExecutionStatusPending:
		return nil, apperr.E(apperr.KindBadRequest, "executions cannot move back to pending; use retry")
	default:
		return nil, apperr.Ef(apperr.KindBadRequest, "unknown execution status %q", status)
	}

	exec.Status = status
	if status == types.ExecutionStatusFailed || status == types.ExecutionStatusTimeout {
		exec.ErrorMessage = errMsg
	}

	if err := s.store.UpdateTriggerExecution(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// Retry resets a failed or timed-out execution to pending for another
// delivery attempt.
func (s *ExecutionService) Retry(ctx context.Context, tenantID, id uuid.UUID) (*types.TriggerExecution, error) {
	exec, err := s.store.GetTriggerExecution(ctx, id, tenantID)
	if err != nil {
		return nil, err
	}
	if exec.Status != types.ExecutionStatusFailed && exec.Status != types.ExecutionStatusTimeout {
		return nil, apperr.Ef(apperr.KindBadRequest, "cannot retry execution in status %q", exec.Status)
	}

	exec.Status = types.ExecutionStatusPending
	exec.StartedAt = nil
	exec.CompletedAt = nil
	exec.DurationMS = nil
	exec.ErrorMessage = nil
	exec.RetryCount++

	if err := s.store.UpdateTriggerExecution(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// BulkRetry retries every listed execution that is failed or timed out
// and still under the retry cap. Returns how many were reset.
func (s *ExecutionService) BulkRetry(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	execs, err := s.store.ListTriggerExecutions(ctx, tenantID, ids)
	if err != nil {
		return 0, err
	}

	var retried int
	for _, exec := range execs {
		if exec.Status != types.ExecutionStatusFailed && exec.Status != types.ExecutionStatusTimeout {
			continue
		}
		if exec.RetryCount >= executionMaxRetries {
			continue
		}
		if _, err := s.Retry(ctx, tenantID, exec.ID); err != nil {
			s.logger.Warn().Err(err).Str("execution_id", exec.ID.String()).Msg("bulk retry skipped execution")
			continue
		}
		retried++
	}
	s.logger.Info().Int("requested", len(ids)).Int("retried", retried).Msg("executions queued for retry")
	return retried, nil
}

// GetStats aggregates delivery outcomes over a trailing window, optionally
// scoped to one trigger.
func (s *ExecutionService) GetStats(ctx context.Context, tenantID uuid.UUID, triggerID *uuid.UUID, window time.Duration) (*types.TriggerExecutionStats, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	since := time.Now().UTC().Add(-window)
	return s.store.ExecutionStatsSince(ctx, tenantID, triggerID, since)
}
