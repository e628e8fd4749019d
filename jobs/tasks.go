package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/barangaykms/barangaykms/internal/announcements"
	"github.com/barangaykms/barangaykms/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAnnouncementExpiry sweeps announcements past their expiry date.
	TaskAnnouncementExpiry = "announcements:expire"
	// TaskAuditTrim drops audit rows older than the retention window.
	TaskAuditTrim = "audit:trim"
	// TaskIdempotencyCleanup removes stale idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

type expiryPayload struct{}

type retentionPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewAnnouncementExpiryTask constructs the expiry sweep task.
func NewAnnouncementExpiryTask() (*asynq.Task, error) {
	data, err := json.Marshal(expiryPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAnnouncementExpiry, data), nil
}

// NewAuditTrimTask constructs the audit retention task.
func NewAuditTrimTask(olderThan time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(retentionPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditTrim, data), nil
}

// NewIdempotencyCleanupTask constructs the idempotency cleanup task.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(retentionPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

// AnnouncementExpiryJob archives announcements whose expiry has passed.
type AnnouncementExpiryJob struct {
	repo   announcements.Repository
	logger *slog.Logger
}

// NewAnnouncementExpiryJob constructs the job.
func NewAnnouncementExpiryJob(repo announcements.Repository, logger *slog.Logger) *AnnouncementExpiryJob {
	return &AnnouncementExpiryJob{repo: repo, logger: logger}
}

// Handle processes TaskAnnouncementExpiry tasks.
func (j *AnnouncementExpiryJob) Handle(ctx context.Context, t *asynq.Task) error {
	n, err := j.repo.ArchiveExpired(ctx, time.Now())
	if err != nil {
		return err
	}
	if n > 0 && j.logger != nil {
		j.logger.Info("archived expired announcements", slog.Int64("count", n))
	}
	return nil
}

// AuditTrimJob enforces the audit retention window.
type AuditTrimJob struct {
	audit   *shared.AuditLogger
	logger  *slog.Logger
	maxKeep time.Duration
}

// NewAuditTrimJob constructs the job. maxKeep is the fallback retention when
// the task payload does not carry one.
func NewAuditTrimJob(audit *shared.AuditLogger, logger *slog.Logger, maxKeep time.Duration) *AuditTrimJob {
	return &AuditTrimJob{audit: audit, logger: logger, maxKeep: maxKeep}
}

// Handle processes TaskAuditTrim tasks.
func (j *AuditTrimJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload retentionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	olderThan := payload.OlderThan
	if olderThan <= 0 {
		olderThan = j.maxKeep
	}
	if olderThan <= 0 {
		return nil
	}
	n, err := j.audit.Trim(ctx, olderThan)
	if err != nil {
		return err
	}
	if n > 0 && j.logger != nil {
		j.logger.Info("trimmed audit log", slog.Int64("count", n))
	}
	return nil
}

// IdempotencyCleanupJob removes stale idempotency keys.
type IdempotencyCleanupJob struct {
	store  *shared.IdempotencyStore
	logger *slog.Logger
}

// NewIdempotencyCleanupJob constructs the job.
func NewIdempotencyCleanupJob(store *shared.IdempotencyStore, logger *slog.Logger) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{store: store, logger: logger}
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload retentionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	olderThan := payload.OlderThan
	if olderThan <= 0 {
		olderThan = 24 * time.Hour
	}
	return j.store.Cleanup(ctx, olderThan)
}
