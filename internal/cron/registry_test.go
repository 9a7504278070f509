package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name  string
	every time.Duration
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

type periodicStub struct{ stubJob }

func (p *periodicStub) Every() time.Duration { return p.every }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	registry, err := NewRegistry(&stubJob{name: "a"}, nil)
	require.NoError(t, err)
	jobB := &stubJob{name: "b"}
	require.NoError(t, registry.Register(jobB))

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, jobB, jobs[1])

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0], "internal slice leaked")
}

func TestRegistryRejectsBadNames(t *testing.T) {
	_, err := NewRegistry(&stubJob{name: "sweep"}, &stubJob{name: "sweep"})
	assert.ErrorContains(t, err, "already registered")

	registry, _ := NewRegistry()
	assert.Error(t, registry.Register(&stubJob{}))
}

func TestRegistrySchedule(t *testing.T) {
	registry, err := NewRegistry(
		&stubJob{name: "sweep"},
		&periodicStub{stubJob{name: "reconcile", every: time.Hour}},
	)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"sweep":     "every cycle",
		"reconcile": "1h0m0s",
	}, registry.Schedule())
}
