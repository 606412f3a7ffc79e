package transport

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipePair(t *testing.T) (Conn, Conn) {
	t.Helper()
	a, b := net.Pipe()
	return New(a, 0), New(b, 0)
}

func TestSendReceiveRoundTrip(t *testing.T) {
	client, server := pipePair(t)
	defer client.Close()
	defer server.Close()

	req := &dap.ThreadsRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "request"},
			Command:         "threads",
		},
	}

	done := make(chan error, 1)
	go func() { done <- client.Send(req) }()

	msg, err := server.Receive()
	require.NoError(t, err)
	require.NoError(t, <-done)

	got, ok := msg.(*dap.ThreadsRequest)
	require.True(t, ok)
	assert.Equal(t, 1, got.Seq)
}

func TestReceiveReturnsEOFOnClose(t *testing.T) {
	client, server := pipePair(t)
	defer server.Close()

	require.NoError(t, client.Close())

	done := make(chan struct{})
	go func() {
		_, err := server.Receive()
		assert.ErrorIs(t, err, io.EOF)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not return after peer close")
	}
}

func TestConcurrentSendsAreSerialized(t *testing.T) {
	client, server := pipePair(t)
	defer client.Close()
	defer server.Close()

	const n = 10
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(seq int) {
			errCh <- client.Send(&dap.PauseRequest{
				Request: dap.Request{
					ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "request"},
					Command:         "pause",
				},
				Arguments: dap.PauseArguments{ThreadId: seq},
			})
		}(i + 1)
	}

	seen := make(map[int]bool)
	for i := 0; i < n; i++ {
		msg, err := server.Receive()
		require.NoError(t, err)
		pr, ok := msg.(*dap.PauseRequest)
		require.True(t, ok)
		seen[pr.Seq] = true
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errCh)
	}
	assert.Len(t, seen, n)
}
