package starlark

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestThreadPool_ReusesThreads(t *testing.T) {
	pool := NewThreadPool(5, 0)

	thread := pool.Get("floc.g_coil")
	require.NotNil(t, thread)
	assert.Equal(t, "floc.g_coil", thread.Name)

	pool.Put(thread)
	assert.Equal(t, 1, pool.Size())
	assert.Empty(t, thread.Name, "returned threads are cleared")

	again := pool.Get("floc.dean_number")
	assert.Same(t, thread, again)
	assert.Equal(t, "floc.dean_number", again.Name)
	assert.Zero(t, pool.Size())
}

func TestThreadPool_Bounded(t *testing.T) {
	tests := []struct {
		name    string
		maxSize int
		put     int
		want    int
	}{
		{name: "under limit", maxSize: 4, put: 3, want: 3},
		{name: "over limit", maxSize: 2, put: 3, want: 2},
		{name: "default size", maxSize: 0, put: 12, want: defaultPoolSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewThreadPool(tt.maxSize, 0)
			threads := make([]*starlark.Thread, tt.put)
			for i := range threads {
				threads[i] = pool.Get("t")
			}
			for _, th := range threads {
				pool.Put(th)
			}
			assert.Equal(t, tt.want, pool.Size())
		})
	}
}

const spinSource = `
def spin(n):
    t = 0
    for i in range(n):
        t += i
    return t
`

func TestThreadPool_StepBudget(t *testing.T) {
	pool := NewThreadPool(1, 5000)

	thread := pool.Get("spin")
	globals, err := starlark.ExecFile(thread, "spin.star", spinSource, nil) //nolint:staticcheck // SA1019: will migrate to ExecFileOptions later
	require.NoError(t, err)
	spin := globals["spin"]
	pool.Put(thread)

	call := func(n int) error {
		th := pool.Get("spin")
		defer pool.Put(th)
		_, err := starlark.Call(th, spin, starlark.Tuple{starlark.MakeInt(n)}, nil)
		return err
	}

	require.Error(t, call(1_000_000), "a long loop exceeds the budget")
	// the budget is per call, so the reused thread runs again
	assert.NoError(t, call(10))
	assert.NoError(t, call(10))
}
