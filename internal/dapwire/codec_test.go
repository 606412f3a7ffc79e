package dapwire

import (
	"bytes"
	"io"
	"testing"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenReadRoundTrip(t *testing.T) {
	req := &dap.InitializeRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "request"},
			Command:         "initialize",
		},
		Arguments: dap.InitializeRequestArguments{
			ClientID:         "dapcli",
			LinesStartAt1:    true,
			ColumnsStartAt1:  true,
			PathFormat:       "path",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, req))

	dec := NewDecoder(&buf, 0)
	msg, err := dec.ReadMessage()
	require.NoError(t, err)

	got, ok := msg.(*dap.InitializeRequest)
	require.True(t, ok, "expected *dap.InitializeRequest, got %T", msg)
	assert.Equal(t, req.Arguments.ClientID, got.Arguments.ClientID)
	assert.Equal(t, req.Seq, got.Seq)
}

// partialReader trickles bytes out n at a time to exercise chunked reads.
type partialReader struct {
	data      []byte
	chunkSize int
	pos       int
}

func (p *partialReader) Read(b []byte) (int, error) {
	if p.pos >= len(p.data) {
		return 0, io.EOF
	}
	end := p.pos + p.chunkSize
	if end > len(p.data) {
		end = len(p.data)
	}
	n := copy(b, p.data[p.pos:end])
	p.pos += n
	return n, nil
}

func TestPartialHeaderDoesNotYieldMessage(t *testing.T) {
	req := &dap.ContinueRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: 2, Type: "request"},
			Command:         "continue",
		},
		Arguments: dap.ContinueArguments{ThreadId: 1},
	}
	var full bytes.Buffer
	require.NoError(t, WriteMessage(&full, req))

	// Feed one byte at a time; only on the final byte should a message appear.
	r := &partialReader{data: full.Bytes(), chunkSize: 1}
	dec := NewDecoder(r, 0)
	msg, err := dec.ReadMessage()
	require.NoError(t, err)
	got, ok := msg.(*dap.ContinueRequest)
	require.True(t, ok)
	assert.Equal(t, 1, got.Arguments.ThreadId)
}

func TestChunkedBodyAssembledCorrectly(t *testing.T) {
	req := &dap.EvaluateRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: 3, Type: "request"},
			Command:         "evaluate",
		},
		Arguments: dap.EvaluateArguments{
			Expression: "some_fairly_long_expression_to_force_multiple_chunks_of_body_bytes",
			FrameId:    7,
			Context:    "watch",
		},
	}
	var full bytes.Buffer
	require.NoError(t, WriteMessage(&full, req))

	r := &partialReader{data: full.Bytes(), chunkSize: 5}
	dec := NewDecoder(r, 0)
	msg, err := dec.ReadMessage()
	require.NoError(t, err)
	got, ok := msg.(*dap.EvaluateRequest)
	require.True(t, ok)
	assert.Equal(t, req.Arguments.Expression, got.Arguments.Expression)
}

func TestOversizedMessageFails(t *testing.T) {
	req := &dap.EvaluateRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: 4, Type: "request"},
			Command:         "evaluate",
		},
		Arguments: dap.EvaluateArguments{Expression: "x", FrameId: 1},
	}
	var full bytes.Buffer
	require.NoError(t, WriteMessage(&full, req))

	dec := NewDecoder(bytes.NewReader(full.Bytes()), 8) // absurdly small cap
	_, err := dec.ReadMessage()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestTwoMessagesBackToBack(t *testing.T) {
	var full bytes.Buffer
	require.NoError(t, WriteMessage(&full, &dap.PauseRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: 5, Type: "request"}, Command: "pause"},
		Arguments: dap.PauseArguments{ThreadId: 9},
	}))
	require.NoError(t, WriteMessage(&full, &dap.NextRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: 6, Type: "request"}, Command: "next"},
		Arguments: dap.NextArguments{ThreadId: 9},
	}))

	dec := NewDecoder(&full, 0)
	first, err := dec.ReadMessage()
	require.NoError(t, err)
	_, ok := first.(*dap.PauseRequest)
	require.True(t, ok)

	second, err := dec.ReadMessage()
	require.NoError(t, err)
	_, ok = second.(*dap.NextRequest)
	require.True(t, ok)
}
