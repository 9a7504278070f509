package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/stockledger/pkg/config"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/metrics"
	"github.com/angelmondragon/stockledger/pkg/outbox"
	"github.com/angelmondragon/stockledger/pkg/outbox/payloads"
	"github.com/angelmondragon/stockledger/pkg/outbox/registry"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestResolveSettingsDefaults(t *testing.T) {
	got := resolveSettings(config.OutboxConfig{})
	assert.Equal(t, 50, got.batchSize)
	assert.Equal(t, 10, got.maxAttempts)
	assert.Equal(t, 500*time.Millisecond, got.pollInterval)

	got = resolveSettings(config.OutboxConfig{BatchSize: 3, MaxAttempts: 4, PollIntervalMS: 20})
	assert.Equal(t, settings{batchSize: 3, maxAttempts: 4, pollInterval: 20 * time.Millisecond}, got)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{Config: &config.Config{}, Logger: discardLogger()})
	require.EqualError(t, err, "database client is required")
}

func TestProcessBatchSettlesEachRow(t *testing.T) {
	transient := errors.New("transient")

	cases := []struct {
		name        string
		attempts    int
		resolveErr  error
		publishErr  error
		wantPub     int
		wantFailed  int
		wantDLQ     enums.OutboxDLQErrorReason
		wantOutcome string
	}{
		{name: "published", wantPub: 1, wantOutcome: metrics.OutboxPublished},
		{name: "transient failure is retried", publishErr: transient, wantFailed: 1, wantOutcome: metrics.OutboxRetried},
		{
			name:        "undecodable row is dead-lettered",
			resolveErr:  registry.NewNonRetryableError(errors.New("invalid payload")),
			wantDLQ:     enums.OutboxDLQReasonNonRetryable,
			wantOutcome: metrics.OutboxDeadLettered,
		},
		{
			name:        "last attempt is dead-lettered",
			attempts:    4,
			publishErr:  transient,
			wantDLQ:     enums.OutboxDLQReasonMaxAttempts,
			wantOutcome: metrics.OutboxDeadLettered,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := stockEvent(t, enums.EventStockAdjusted)
			event.AttemptCount = tc.attempts

			h := newHarness(t, []models.OutboxEvent{event})
			h.registry.err = tc.resolveErr
			h.pub.results = []publishResult{fakeResult{err: tc.publishErr}}

			claimed, err := h.svc.processBatch(context.Background())
			require.NoError(t, err)
			assert.True(t, claimed)
			assert.Len(t, h.repo.published, tc.wantPub)
			assert.Len(t, h.repo.failed, tc.wantFailed)

			if tc.wantDLQ == "" {
				assert.Empty(t, h.dlq.entries)
				assert.Empty(t, h.repo.terminal)
			} else {
				require.Len(t, h.dlq.entries, 1)
				entry := h.dlq.entries[0]
				assert.Equal(t, event.ID, entry.EventID)
				assert.Equal(t, tc.wantDLQ, entry.ErrorReason)
				assert.JSONEq(t, string(event.Payload), string(entry.Payload))
				require.NotNil(t, entry.ErrorMessage)
				assert.Equal(t, []uuid.UUID{event.ID}, h.repo.terminal)
			}

			mfs, err := h.reg.Gather()
			require.NoError(t, err)
			assert.True(t, hasSeries(mfs, "stockledger_outbox_deliveries_total", tc.wantOutcome))
		})
	}
}

func TestProcessBatchContinuesAfterFailure(t *testing.T) {
	first := stockEvent(t, enums.EventStockAdjusted)
	second := stockEvent(t, enums.EventStockAdjusted)
	h := newHarness(t, []models.OutboxEvent{first, second})
	h.pub.results = []publishResult{fakeResult{err: errors.New("transient")}, fakeResult{}}

	claimed, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, []uuid.UUID{first.ID}, h.repo.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, h.repo.published)
}

func TestProcessBatchEmptyQueue(t *testing.T) {
	h := newHarness(t, nil)
	claimed, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Empty(t, h.pub.sent)
}

func TestPublishResolvedSetsStockAttributes(t *testing.T) {
	actor := uuid.New()
	event := stockEvent(t, enums.EventStockLow)
	event.AggregateType = enums.AggregateVariant

	h := newHarness(t, nil)
	h.pub.results = []publishResult{fakeResult{}}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: "stock-events"},
		Envelope: outbox.PayloadEnvelope{
			Version:    1,
			EventID:    event.ID.String(),
			OccurredAt: time.Now(),
			Actor:      &outbox.ActorRef{UserID: actor},
		},
		Payload: &payloads.StockLowEvent{},
	}

	require.NoError(t, h.svc.publishResolved(context.Background(), event, resolved))
	require.Len(t, h.pub.sent, 1)
	assert.Equal(t, []byte(event.Payload), h.pub.sent[0].Data)

	attrs := h.pub.sent[0].Attributes
	assert.Equal(t, "stock_low", attrs["event_type"])
	assert.Equal(t, "variant", attrs["aggregate_type"])
	assert.Equal(t, event.AggregateID.String(), attrs["aggregate_id"])
	assert.Equal(t, "1", attrs["event_version"])
	assert.Equal(t, actor.String(), attrs["actor_id"])
}

func TestPublishResolvedWithoutPublisherIsTerminal(t *testing.T) {
	h := newHarness(t, nil)
	h.svc.publishTo = func(string) publisher { return nil }

	err := h.svc.publishResolved(context.Background(), models.OutboxEvent{ID: uuid.New()}, &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: "missing"},
	})
	var nonRetry registry.NonRetryableError
	assert.ErrorAs(t, err, &nonRetry)
}

func TestRunStopsWhenPingFails(t *testing.T) {
	h := newHarness(t, nil)
	h.svc.db = &fakeDB{pingErr: errors.New("down")}
	err := h.svc.Run(context.Background())
	require.ErrorContains(t, err, "database ping failed")
}

func TestRunReturnsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, h.svc.Run(ctx), context.Canceled)
}

type harness struct {
	svc      *Service
	repo     *fakeRepo
	pub      *fakePublisher
	registry *fakeRegistry
	dlq      *fakeDLQRepo
	reg      *prometheus.Registry
}

func newHarness(t *testing.T, events []models.OutboxEvent) *harness {
	t.Helper()
	h := &harness{
		repo: &fakeRepo{events: events},
		pub:  &fakePublisher{},
		registry: &fakeRegistry{resolved: &registry.ResolvedEvent{
			Descriptor: registry.EventDescriptor{
				Topic:          "stock-events",
				AggregateTypes: []enums.OutboxAggregateType{enums.AggregateProduct},
			},
			Payload: &payloads.StockAdjustedEvent{},
		}},
		dlq: &fakeDLQRepo{},
		reg: prometheus.NewRegistry(),
	}
	svc, err := NewService(ServiceParams{
		Config:           &config.Config{Outbox: config.OutboxConfig{BatchSize: 2, PollIntervalMS: 10, MaxAttempts: 5}},
		Logger:           discardLogger(),
		Metrics:          metrics.NewOutboxMetrics(h.reg),
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       h.repo,
		Registry:         h.registry,
		PublisherFactory: func(string) publisher { return h.pub },
		DLQRepository:    h.dlq,
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func discardLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard})
}

func stockEvent(t *testing.T, eventType enums.OutboxEventType) models.OutboxEvent {
	t.Helper()
	id := uuid.New()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    id.String(),
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            id,
		EventType:     eventType,
		AggregateType: enums.AggregateProduct,
		AggregateID:   uuid.New(),
		Payload:       payload,
		CreatedAt:     time.Now().Add(-time.Second),
	}
}

func hasSeries(mfs []*dto.MetricFamily, name, result string) bool {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "result" && l.GetValue() == result && m.GetCounter().GetValue() > 0 {
					return true
				}
			}
		}
	}
	return false
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{ pingErr error }

func (f *fakeDB) Ping(context.Context) error { return f.pingErr }

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePubSubClient struct{}

func (fakePubSubClient) Ping(context.Context) error { return nil }

func (fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results []publishResult
	sent    []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return nil
	}
	next := f.results[0]
	f.results = f.results[1:]
	return next
}

type fakeResult struct{ err error }

func (f fakeResult) Get(context.Context) (string, error) { return "", f.err }

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = time.Now()
	return &resolved, nil
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
