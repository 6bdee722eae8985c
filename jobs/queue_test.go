package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobQueue(t *testing.T) {
	a, b, c, d := New("a", nil), New("b", nil), New("c", nil), New("d", nil)
	q := &jobQueue{}

	q.push(&queued{job: a, priority: 1, seq: 1})
	q.push(&queued{job: b, priority: 5, seq: 2})
	q.push(&queued{job: c, priority: 5, seq: 3})
	q.push(&queued{job: d, priority: 3, seq: 4})

	require.Equal(t, b, q.peek().job)
	assert.True(t, q.remove(c))
	assert.False(t, q.remove(c))

	var got []string
	for item := q.pop(); item != nil; item = q.pop() {
		got = append(got, item.job.Name())
	}

	assert.Equal(t, []string{"b", "d", "a"}, got)
	assert.Nil(t, q.peek())
}

func TestCheckAncestry(t *testing.T) {
	path := []JobID{
		{ID: 1, Group: 1, Type: "a"},
		{ID: 2, Group: 2, Type: "b"},
	}

	tests := []struct {
		name    string
		group   int
		wantErr bool
	}{
		{name: "parent group", group: 2},
		{name: "free group", group: 3},
		{name: "ancestor group", group: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkAncestry(path, tt.group)

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrForkDeadlock)
				return
			}
			assert.NoError(t, err)
		})
	}
	assert.NoError(t, checkAncestry(nil, 1))
}
