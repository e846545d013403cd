package scheduler

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs int
	err  error
}

func (j *countingJob) Run() error   { j.runs++; return j.err }
func (j *countingJob) Name() string { return "counting" }

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("not a schedule", &countingJob{})
	assert.Error(t, err)
}

func TestAddJobAcceptsSecondsSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("0 30 17 * * 1-5", &countingJob{})
	assert.NoError(t, err)
}

type panickyJob struct{}

func (panickyJob) Run() error   { panic("boom") }
func (panickyJob) Name() string { return "panicky" }

func TestScheduledRunContainsPanic(t *testing.T) {
	s := New(zerolog.Nop())
	assert.NotPanics(t, func() { s.runJob(panickyJob{}) })
}

func TestRunNowExecutesJob(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}

	require.NoError(t, s.RunNow(job))
	assert.Equal(t, 1, job.runs)

	job.err = errors.New("boom")
	assert.Error(t, s.RunNow(job))
	assert.Equal(t, 2, job.runs)
}
