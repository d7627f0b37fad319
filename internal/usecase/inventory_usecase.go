package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/stockledger/internal/domain"
	"github.com/iho/stockledger/internal/infrastructure/logger"
	"github.com/iho/stockledger/internal/infrastructure/metrics"
)

// Audit resource types
const (
	resourceEntry   = "entry"
	resourceBalance = "balance"
)

// InventoryUseCase applies, updates and retracts ledger entries and keeps
// each subject's balance in step with them.
type InventoryUseCase struct {
	txManager   TransactionManager
	entryRepo   EntryRepository
	balanceRepo BalanceRepository
	auditRepo   AuditRepository
	cache       Cache
	idGen       IDGenerator
	logger      zerolog.Logger
	metrics     *metrics.Metrics

	cacheTTL time.Duration
	now      func() time.Time
}

// NewInventoryUseCase creates a new InventoryUseCase. auditRepo, cache and
// metrics may be nil.
func NewInventoryUseCase(
	txManager TransactionManager,
	entryRepo EntryRepository,
	balanceRepo BalanceRepository,
	auditRepo AuditRepository,
	cache Cache,
	idGen IDGenerator,
	log zerolog.Logger,
	metrics *metrics.Metrics,
) *InventoryUseCase {
	return &InventoryUseCase{
		txManager:   txManager,
		entryRepo:   entryRepo,
		balanceRepo: balanceRepo,
		auditRepo:   auditRepo,
		cache:       cache,
		idGen:       idGen,
		logger:      log,
		metrics:     metrics,
		cacheTTL:    DefaultBalanceCacheTTL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetBalanceCacheTTL overrides how long GetBalance results are cached.
func (uc *InventoryUseCase) SetBalanceCacheTTL(ttl time.Duration) {
	if ttl > 0 {
		uc.cacheTTL = ttl
	}
}

// ApplyInput represents input for applying a ledger entry.
type ApplyInput struct {
	ContainerID string
	SubjectID   string
	Kind        domain.EntryKind
	Delta       *int64
	Reason      string
	Actor       string
}

// UpdateInput represents input for revising an existing entry.
type UpdateInput struct {
	EntryID string
	Kind    domain.EntryKind
	Delta   *int64
	Reason  string
	Actor   string
}

// RetractInput represents input for retracting an entry.
type RetractInput struct {
	EntryID string
	Actor   string
}

// RetractResult holds the documents written by a retraction.
type RetractResult struct {
	Original     *domain.LedgerEntry
	Compensation *domain.LedgerEntry
	Balance      *domain.Balance
}

// Apply records a new entry and moves the subject's balance by its
// normalized delta. The balance is created at zero if the subject has none.
func (uc *InventoryUseCase) Apply(ctx context.Context, input ApplyInput) (*domain.LedgerEntry, error) {
	start := time.Now()

	if strings.TrimSpace(input.SubjectID) == "" {
		return nil, uc.fail("apply", domain.ErrMissingSubject)
	}
	kind, delta, err := normalizeChange(input.Kind, input.Delta, input.Reason)
	if err != nil {
		return nil, uc.fail("apply", err)
	}

	var entry *domain.LedgerEntry
	err = uc.txManager.RunInTransaction(ctx, func(ctx context.Context, r TxReader) (WritePhase, error) {
		balance, err := uc.loadBalance(ctx, r, input.ContainerID, input.SubjectID)
		if err != nil {
			return nil, err
		}
		if err := balance.ValidateContainer(input.ContainerID); err != nil {
			return nil, err
		}
		if balance.ContainerID == "" {
			balance.ContainerID = input.ContainerID
		}
		if err := balance.ApplyDelta(delta); err != nil {
			return nil, err
		}

		e := &domain.LedgerEntry{
			ID:          uc.idGen.Generate(),
			ContainerID: balance.ContainerID,
			SubjectID:   input.SubjectID,
			Delta:       delta,
			Kind:        kind,
			Reason:      input.Reason,
			Actor:       input.Actor,
		}

		return func(w TxWriter) error {
			if err := uc.entryRepo.SaveTx(w, e); err != nil {
				return err
			}
			if err := uc.balanceRepo.SaveTx(w, balance); err != nil {
				return err
			}
			entry = e
			return nil
		}, nil
	})
	if err != nil {
		return nil, uc.fail("apply", err)
	}

	uc.invalidateBalance(ctx, entry.SubjectID)
	if uc.metrics != nil {
		uc.metrics.EntriesApplied.WithLabelValues(string(entry.Kind)).Inc()
		uc.metrics.LedgerDuration.WithLabelValues("apply").Observe(time.Since(start).Seconds())
	}
	uc.audit(ctx, domain.AuditActionEntryApply, resourceEntry, entry.ID, entry.SubjectID, entry.Delta, input.Actor, entry)

	uc.logger.Info().
		Str("entry_id", entry.ID).
		Str("subject_id", entry.SubjectID).
		Str("kind", string(entry.Kind)).
		Int64("delta", entry.Delta).
		Msg("ledger entry applied")

	return entry, nil
}

// Update revises the kind, delta and reason of an entry and moves the
// balance by the difference between the new and old normalized deltas.
func (uc *InventoryUseCase) Update(ctx context.Context, input UpdateInput) (*domain.LedgerEntry, error) {
	start := time.Now()

	kind, delta, err := normalizeChange(input.Kind, input.Delta, input.Reason)
	if err != nil {
		return nil, uc.fail("update", err)
	}

	var (
		entry  *domain.LedgerEntry
		change int64
	)
	err = uc.txManager.RunInTransaction(ctx, func(ctx context.Context, r TxReader) (WritePhase, error) {
		e, err := uc.entryRepo.GetByIDTx(ctx, r, input.EntryID)
		if err != nil {
			return nil, err
		}
		if err := e.ValidateMutable(); err != nil {
			return nil, err
		}
		balance, err := uc.loadBalance(ctx, r, e.ContainerID, e.SubjectID)
		if err != nil {
			return nil, err
		}

		c, err := e.Revise(kind, delta, input.Reason)
		if err != nil {
			return nil, err
		}
		if err := balance.ApplyDelta(c); err != nil {
			return nil, err
		}

		return func(w TxWriter) error {
			if err := uc.entryRepo.SaveTx(w, e); err != nil {
				return err
			}
			if err := uc.balanceRepo.SaveTx(w, balance); err != nil {
				return err
			}
			entry, change = e, c
			return nil
		}, nil
	})
	if err != nil {
		return nil, uc.fail("update", err)
	}

	uc.invalidateBalance(ctx, entry.SubjectID)
	if uc.metrics != nil {
		uc.metrics.EntriesUpdated.Inc()
		uc.metrics.LedgerDuration.WithLabelValues("update").Observe(time.Since(start).Seconds())
	}
	uc.audit(ctx, domain.AuditActionEntryUpdate, resourceEntry, entry.ID, entry.SubjectID, change, input.Actor, entry)

	uc.logger.Info().
		Str("entry_id", entry.ID).
		Str("subject_id", entry.SubjectID).
		Int64("change", change).
		Msg("ledger entry updated")

	return entry, nil
}

// Retract soft-deletes an entry and writes the compensation that cancels
// its effect on the balance. History is never rewritten.
func (uc *InventoryUseCase) Retract(ctx context.Context, input RetractInput) (*RetractResult, error) {
	start := time.Now()

	var result *RetractResult
	err := uc.txManager.RunInTransaction(ctx, func(ctx context.Context, r TxReader) (WritePhase, error) {
		original, err := uc.entryRepo.GetByIDTx(ctx, r, input.EntryID)
		if err != nil {
			return nil, err
		}
		if err := original.ValidateMutable(); err != nil {
			return nil, err
		}
		balance, err := uc.loadBalance(ctx, r, original.ContainerID, original.SubjectID)
		if err != nil {
			return nil, err
		}

		compensation := original.Retract(uc.idGen.Generate(), input.Actor, uc.now())
		if err := balance.ApplyDelta(compensation.Delta); err != nil {
			return nil, err
		}

		return func(w TxWriter) error {
			for _, e := range []*domain.LedgerEntry{original, compensation} {
				if err := uc.entryRepo.SaveTx(w, e); err != nil {
					return err
				}
			}
			if err := uc.balanceRepo.SaveTx(w, balance); err != nil {
				return err
			}
			result = &RetractResult{Original: original, Compensation: compensation, Balance: balance}
			return nil
		}, nil
	})
	if err != nil {
		return nil, uc.fail("retract", err)
	}

	uc.invalidateBalance(ctx, result.Original.SubjectID)
	if uc.metrics != nil {
		uc.metrics.EntriesRetracted.Inc()
		uc.metrics.LedgerDuration.WithLabelValues("retract").Observe(time.Since(start).Seconds())
	}
	uc.audit(ctx, domain.AuditActionEntryRetract, resourceEntry, result.Original.ID,
		result.Original.SubjectID, result.Compensation.Delta, input.Actor, result.Compensation)

	uc.logger.Info().
		Str("entry_id", result.Original.ID).
		Str("compensation_id", result.Compensation.ID).
		Str("subject_id", result.Original.SubjectID).
		Msg("ledger entry retracted")

	return result, nil
}

// GetBalance returns the balance of a subject, served from the cache
// when possible. Cache failures fall back to the store.
func (uc *InventoryUseCase) GetBalance(ctx context.Context, subjectID string) (*domain.Balance, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, domain.ErrMissingSubject
	}

	key := balanceCacheKeyPrefix + subjectID
	if cached, ok := uc.cachedBalance(ctx, key); ok {
		return cached, nil
	}

	balance, err := uc.balanceRepo.GetBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	if uc.cache != nil {
		data, err := json.Marshal(balance)
		if err == nil {
			err = uc.cache.Set(ctx, key, data, uc.cacheTTL)
		}
		if err != nil {
			uc.logger.Warn().Err(err).Str("subject_id", subjectID).Msg("failed to cache balance")
		}
	}
	return balance, nil
}

// ProvisionBalance returns the balance of a subject, creating it at zero
// if it does not exist yet.
func (uc *InventoryUseCase) ProvisionBalance(ctx context.Context, containerID, subjectID string) (*domain.Balance, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, uc.fail("provision", domain.ErrMissingSubject)
	}

	var (
		balance *domain.Balance
		created bool
	)
	err := uc.txManager.RunInTransaction(ctx, func(ctx context.Context, r TxReader) (WritePhase, error) {
		existing, err := uc.balanceRepo.GetBySubjectTx(ctx, r, subjectID)
		switch {
		case err == nil:
			if err := existing.ValidateContainer(containerID); err != nil {
				return nil, err
			}
			balance, created = existing, false
			return nil, nil
		case !domain.IsNotFound(err):
			return nil, err
		}

		fresh := domain.NewBalance(containerID, subjectID)
		return func(w TxWriter) error {
			if err := uc.balanceRepo.SaveTx(w, fresh); err != nil {
				return err
			}
			balance, created = fresh, true
			return nil
		}, nil
	})
	if err != nil {
		return nil, uc.fail("provision", err)
	}

	if created {
		uc.invalidateBalance(ctx, subjectID)
		uc.audit(ctx, domain.AuditActionBalanceProvision, resourceBalance, balance.ID, subjectID, 0, "", balance)
	}
	return balance, nil
}

// GetEntry retrieves an entry by ID.
func (uc *InventoryUseCase) GetEntry(ctx context.Context, id string) (*domain.LedgerEntry, error) {
	return uc.entryRepo.GetByID(ctx, id)
}

// ListBySubject lists a subject's entries, newest first. Retracted
// entries are included only when includeDeleted is set.
func (uc *InventoryUseCase) ListBySubject(ctx context.Context, subjectID string, includeDeleted bool, page domain.PageRequest) (*domain.PageResult[*domain.LedgerEntry], error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, domain.ErrMissingSubject
	}
	return uc.entryRepo.List(ctx, domain.EntryFilter{SubjectID: subjectID, IncludeDeleted: includeDeleted}, page)
}

// ListByContainer lists the live entries of a container, newest first.
func (uc *InventoryUseCase) ListByContainer(ctx context.Context, containerID string, page domain.PageRequest) (*domain.PageResult[*domain.LedgerEntry], error) {
	if strings.TrimSpace(containerID) == "" {
		return nil, fmt.Errorf("%w: container id is required", domain.ErrInvalidDocumentID)
	}
	return uc.entryRepo.List(ctx, domain.EntryFilter{ContainerID: containerID}, page)
}

// ListByWindow lists live entries created in [from, to), newest first.
func (uc *InventoryUseCase) ListByWindow(ctx context.Context, from, to time.Time, page domain.PageRequest) (*domain.PageResult[*domain.LedgerEntry], error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: window start %s is not before end %s",
			domain.ErrInvalidPage, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return uc.entryRepo.List(ctx, domain.EntryFilter{From: &from, To: &to}, page)
}

// ListBalancesByContainer lists a container's balances, most recently
// updated first.
func (uc *InventoryUseCase) ListBalancesByContainer(ctx context.Context, containerID string, page domain.PageRequest) (*domain.PageResult[*domain.Balance], error) {
	if strings.TrimSpace(containerID) == "" {
		return nil, fmt.Errorf("%w: container id is required", domain.ErrInvalidDocumentID)
	}
	return uc.balanceRepo.ListByContainer(ctx, containerID, page)
}

// loadBalance reads the subject's balance inside a transaction, or
// returns a new zero balance if there is none.
func (uc *InventoryUseCase) loadBalance(ctx context.Context, r TxReader, containerID, subjectID string) (*domain.Balance, error) {
	balance, err := uc.balanceRepo.GetBySubjectTx(ctx, r, subjectID)
	if domain.IsNotFound(err) {
		return domain.NewBalance(containerID, subjectID), nil
	}
	return balance, err
}

func normalizeChange(kind domain.EntryKind, raw *int64, reason string) (domain.EntryKind, int64, error) {
	k, err := domain.ParseEntryKind(string(kind))
	if err != nil {
		return "", 0, err
	}
	delta, err := domain.NormalizeDelta(k, raw)
	if err != nil {
		return "", 0, err
	}
	if err := domain.ValidateReason(reason); err != nil {
		return "", 0, err
	}
	return k, delta, nil
}

func (uc *InventoryUseCase) cachedBalance(ctx context.Context, key string) (*domain.Balance, bool) {
	if uc.cache == nil {
		return nil, false
	}

	data, err := uc.cache.Get(ctx, key)
	switch {
	case err == nil:
		var balance domain.Balance
		if err := json.Unmarshal(data, &balance); err != nil {
			uc.logger.Warn().Err(err).Str("key", key).Msg("discarding corrupt cached balance")
			uc.countLookup("error")
			return nil, false
		}
		uc.countLookup("hit")
		return &balance, true
	case errors.Is(err, ErrCacheMiss):
		uc.countLookup("miss")
	default:
		uc.logger.Warn().Err(err).Str("key", key).Msg("balance cache unavailable")
		uc.countLookup("error")
	}
	return nil, false
}

func (uc *InventoryUseCase) countLookup(result string) {
	if uc.metrics != nil {
		uc.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

func (uc *InventoryUseCase) invalidateBalance(ctx context.Context, subjectID string) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Delete(ctx, balanceCacheKeyPrefix+subjectID); err != nil {
		uc.logger.Warn().Err(err).Str("subject_id", subjectID).Msg("failed to invalidate cached balance")
	}
}

// audit queues an audit record. The write is asynchronous; failures are
// logged by the pool that runs it.
func (uc *InventoryUseCase) audit(ctx context.Context, action domain.AuditAction, resourceType, resourceID, subjectID string, delta int64, actor string, after any) {
	if uc.auditRepo == nil {
		return
	}
	if actor == "" {
		actor = "system"
	}

	log := &domain.AuditLog{
		Actor:        actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		SubjectID:    subjectID,
		Delta:        delta,
		RequestID:    logger.RequestID(ctx),
		AfterState:   domain.MarshalState(after),
		Status:       domain.AuditStatusSuccess,
	}
	_ = uc.auditRepo.CreateAsync(context.WithoutCancel(ctx), log)

	if uc.metrics != nil {
		uc.metrics.AuditLogsCreated.WithLabelValues(string(action), string(log.Status)).Inc()
	}
}

// fail records a failed mutation and returns err unchanged.
func (uc *InventoryUseCase) fail(op string, err error) error {
	errType := errorType(err)
	if uc.metrics != nil {
		uc.metrics.LedgerErrors.WithLabelValues(errType).Inc()
		if errors.Is(err, domain.ErrInsufficientBalance) {
			uc.metrics.InsufficientBalance.Inc()
		}
	}

	event := uc.logger.Warn()
	if errType == "internal" || errType == "unavailable" || errType == "timeout" {
		event = uc.logger.Error()
	}
	event.Err(err).Str("operation", op).Str("error_type", errType).Msg("ledger operation failed")

	return err
}

func errorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	case domain.IsValidation(err):
		return "validation"
	case domain.IsNotFound(err):
		return "not_found"
	case errors.Is(err, domain.ErrTransactionTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrInterrupted):
		return "interrupted"
	case errors.Is(err, domain.ErrTemporarilyUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}
