package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/stockledger/pkg/logger"
	"gorm.io/gorm"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultTerminalAttempt = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type deadLetterPruner interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configure pruning of the outbox and its DLQ.
type OutboxRetentionJobParams struct {
	Logger *logger.Logger
	DB     txRunner
	Outbox outboxPruner
	// DeadLetters is optional; nil or a zero DLQRetention keeps dead letters.
	DeadLetters  deadLetterPruner
	Retention    time.Duration
	DLQRetention time.Duration
	// TerminalAttempts is the publisher's max attempts. Rows at that count are
	// already dead-lettered and safe to drop.
	TerminalAttempts int
	Every            time.Duration
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox repository required")
	case params.Retention < 0 || params.DLQRetention < 0:
		return nil, fmt.Errorf("retention must not be negative")
	}

	job := &outboxRetentionJob{
		logg:         params.Logger,
		db:           params.DB,
		outbox:       params.Outbox,
		deadLetters:  params.DeadLetters,
		retention:    params.Retention,
		dlqRetention: params.DLQRetention,
		terminal:     params.TerminalAttempts,
		every:        params.Every,
		now:          time.Now,
	}
	if job.retention == 0 {
		job.retention = defaultOutboxRetention
	}
	if job.terminal <= 0 {
		job.terminal = defaultTerminalAttempt
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	db           txRunner
	outbox       outboxPruner
	deadLetters  deadLetterPruner
	retention    time.Duration
	dlqRetention time.Duration
	terminal     int
	every        time.Duration
	now          func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Every() time.Duration { return j.every }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.retention)
	fields := map[string]any{
		"outbox_cutoff":     cutoff,
		"terminal_attempts": j.terminal,
	}

	var outboxDeleted, dlqDeleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.outbox.DeletePublishedBefore(ctx, tx, cutoff, j.terminal)
		if err != nil {
			return fmt.Errorf("prune outbox: %w", err)
		}
		outboxDeleted = n

		if j.deadLetters == nil || j.dlqRetention == 0 {
			return nil
		}
		dlqCutoff := now.Add(-j.dlqRetention)
		fields["dlq_cutoff"] = dlqCutoff
		n, err = j.deadLetters.DeleteFailedBefore(ctx, tx, dlqCutoff)
		if err != nil {
			return fmt.Errorf("prune dlq: %w", err)
		}
		dlqDeleted = n
		return nil
	})
	if err != nil {
		return err
	}

	fields["outbox_deleted"] = outboxDeleted
	fields["dlq_deleted"] = dlqDeleted
	j.logg.Info(j.logg.WithFields(ctx, fields), "outbox retention complete")
	return nil
}
