package pending

import (
	"fmt"
	"testing"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteDeliversToExactWaiter(t *testing.T) {
	tbl := New()
	ch1 := tbl.Register(1)
	ch2 := tbl.Register(2)

	delivered := tbl.Complete(1, &dap.Response{RequestSeq: 1, Success: true})
	require.True(t, delivered)

	out := <-ch1
	require.NoError(t, out.Err)
	assert.Equal(t, 1, out.Response.RequestSeq)

	select {
	case <-ch2:
		t.Fatal("waiter for seq 2 should not have been completed")
	default:
	}
}

func TestCompleteUnknownSeqIsDropped(t *testing.T) {
	tbl := New()
	delivered := tbl.Complete(99, &dap.Response{RequestSeq: 99, Success: true})
	assert.False(t, delivered)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	tbl := New()
	tbl.Register(5)
	assert.Panics(t, func() { tbl.Register(5) })
}

func TestRemoveIsIdempotent(t *testing.T) {
	tbl := New()
	tbl.Register(1)
	tbl.Remove(1)
	tbl.Remove(1) // must not panic
	assert.Equal(t, 0, tbl.Len())
}

func TestFailAllEmptiesTableAndDeliversErrors(t *testing.T) {
	tbl := New()
	var chans []<-chan Outcome
	for i := 1; i <= 3; i++ {
		chans = append(chans, tbl.Register(i))
	}

	failErr := fmt.Errorf("connection closed")
	tbl.FailAll(failErr)
	assert.Equal(t, 0, tbl.Len())

	for _, ch := range chans {
		out := <-ch
		assert.ErrorIs(t, out.Err, failErr)
		assert.Nil(t, out.Response)
	}
}

func TestDuplicateResponseSecondIsDropped(t *testing.T) {
	tbl := New()
	ch := tbl.Register(7)

	first := tbl.Complete(7, &dap.Response{RequestSeq: 7, Success: true})
	second := tbl.Complete(7, &dap.Response{RequestSeq: 7, Success: true})

	assert.True(t, first)
	assert.False(t, second)
	<-ch // drain the one delivered outcome
}
