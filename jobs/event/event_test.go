package event_test

import (
	"errors"
	"testing"

	"github.com/nrwiersma/worker/jobs/event"
	"github.com/nrwiersma/worker/jobs/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    event.Code
		status  event.Status
		wantErr bool
	}{
		{
			name:   "ok",
			code:   event.CodeOK,
			status: event.StatusOK,
		},
		{
			name:   "failed",
			code:   event.CodeFailed,
			status: event.StatusFailed,
		},
		{
			name:   "cancelled",
			code:   event.CodeCancelled,
			status: event.StatusCancelled,
		},
		{
			name:   "update in progress",
			code:   event.CodeUpdate,
			status: event.StatusInProgress,
		},
		{
			name:    "ok with failed status",
			code:    event.CodeOK,
			status:  event.StatusFailed,
			wantErr: true,
		},
		{
			name:    "failed with in progress status",
			code:    event.CodeFailed,
			status:  event.StatusInProgress,
			wantErr: true,
		},
		{
			name:    "update with terminal status",
			code:    event.CodeUpdate,
			status:  event.StatusOK,
			wantErr: true,
		},
		{
			name:    "unknown code",
			code:    event.Code(42),
			status:  event.StatusOK,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := event.New(tt.code, tt.status)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.code, ev.Code())
			assert.Equal(t, tt.status, ev.Status())
		})
	}
}

func TestEvent_ZeroValueIsInvalid(t *testing.T) {
	var ev event.Event

	err := ev.Validate()

	assert.True(t, errors.Is(err, event.ErrMismatchedStatus))
}

func TestConstructors(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name     string
		ev       *event.Event
		code     event.Code
		status   event.Status
		terminal bool
	}{
		{name: "ok", ev: event.OK("done"), code: event.CodeOK, status: event.StatusOK, terminal: true},
		{name: "failed", ev: event.Failed("bad", cause), code: event.CodeFailed, status: event.StatusFailed, terminal: true},
		{name: "failed with", ev: event.FailedWith(42), code: event.CodeFailed, status: event.StatusFailed, terminal: true},
		{name: "cancelled", ev: event.Cancelled(), code: event.CodeCancelled, status: event.StatusCancelled, terminal: true},
		{
			name:   "update",
			ev:     event.Update(event.ExtraProgressUpdate, event.StatusInProgress, 10),
			code:   event.CodeUpdate,
			status: event.StatusInProgress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, tt.ev.Validate())
			assert.Equal(t, tt.code, tt.ev.Code())
			assert.Equal(t, tt.status, tt.ev.Status())
			assert.Equal(t, tt.terminal, tt.ev.IsTerminal())
		})
	}
}

func TestEvent_WithSource(t *testing.T) {
	p := params.New(params.WithGroup(3))
	require.NoError(t, p.AssignID(7))
	ev := event.OK("x")

	got := ev.WithSource("test", p)

	assert.Equal(t, 7, got.JobID())
	assert.Equal(t, "test", got.Name())
	assert.Same(t, p, got.Params())
	assert.Equal(t, params.IDUnspecified, ev.JobID())
}

func TestEvent_RecordRoundTrip(t *testing.T) {
	p := params.New(params.WithGroup(3), params.WithTags("a"))
	require.NoError(t, p.AssignID(7))
	ev := event.Failed("bad", errors.New("boom")).WithSource("test", p)

	got := event.FromRecord(ev.Record())

	assert.Equal(t, 7, got.JobID())
	assert.Equal(t, "test", got.Name())
	assert.Equal(t, event.CodeFailed, got.Code())
	assert.Equal(t, event.StatusFailed, got.Status())
	assert.Equal(t, "bad", got.Message())
	assert.EqualError(t, got.Err(), "boom")
	assert.Equal(t, 3, got.Params().Group())
	assert.True(t, got.Params().HasTag("a"))
}

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from event.Status
		to   event.Status
		want bool
	}{
		{from: event.StatusPending, to: event.StatusEnqueued, want: true},
		{from: event.StatusPending, to: event.StatusInProgress, want: true},
		{from: event.StatusEnqueued, to: event.StatusSubmitted, want: true},
		{from: event.StatusSubmitted, to: event.StatusEnqueued, want: false},
		{from: event.StatusInProgress, to: event.StatusOK, want: true},
		{from: event.StatusOK, to: event.StatusFailed, want: false},
		{from: event.StatusCancelled, to: event.StatusPending, want: false},
		{from: event.StatusInProgress, to: event.StatusInProgress, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestStatus_IsFinished(t *testing.T) {
	assert.False(t, event.StatusPending.IsFinished())
	assert.False(t, event.StatusInProgress.IsFinished())
	assert.True(t, event.StatusOK.IsFinished())
	assert.True(t, event.StatusFailed.IsFinished())
	assert.True(t, event.StatusCancelled.IsFinished())
}
