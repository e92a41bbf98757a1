package manager

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPledge_SingleResolution(t *testing.T) {
	p := NewPledge[int]()
	require.False(t, p.Settled())

	var got []int
	p.Then(func(v int, err error) { got = append(got, v) })

	require.True(t, p.Resolve(1))
	require.False(t, p.Resolve(2))
	require.False(t, p.Reject(stderrors.New("late")))
	require.True(t, p.Settled())

	v, err := p.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, v)

	// Then after settlement runs immediately.
	p.Then(func(v int, err error) { got = append(got, v*10) })
	require.Equal(t, []int{1, 10}, got)
}

func TestPledge_Reject(t *testing.T) {
	p := NewPledge[string]()
	boom := stderrors.New("boom")
	p.Reject(boom)

	_, err := p.Await(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestPledge_AwaitContext(t *testing.T) {
	p := NewPledge[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPledgeTable(t *testing.T) {
	tbl := newPledgeTable[int]()
	a := tbl.add(NewPledge[int]())
	b := tbl.add(NewPledge[int]())
	require.Less(t, a, b, "ids are monotonic")
	require.Equal(t, 2, tbl.len())

	_, ok := tbl.take(a)
	require.True(t, ok)
	_, ok = tbl.take(a)
	require.False(t, ok)
	require.Equal(t, 1, tbl.len())
}

func TestQueue_FIFOAndDrain(t *testing.T) {
	var mu sync.Mutex
	var got []int
	q := newQueue(func(v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})
	for i := range 100 {
		require.True(t, q.post(i))
	}
	q.close()
	require.False(t, q.post(100))
	q.wait()

	require.Len(t, got, 100)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestLoop_Call(t *testing.T) {
	l := newLoop()
	n := 0
	require.True(t, l.call(func() { n++ }))
	require.Equal(t, 1, n)

	l.close()
	l.wait()
	require.False(t, l.call(func() { n++ }))
	require.Equal(t, 1, n)
}
