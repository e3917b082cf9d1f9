package camera

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func relayFrame(data []byte, seq uint64) Frame {
	return Frame{Data: data, Format: FormatMJPEG, Seq: seq}
}

func TestRelayFramesForwardsAndSkipsEmpty(t *testing.T) {
	raw := make(chan []byte, 3)
	out := make(chan Frame, 3)
	raw <- []byte{1}
	raw <- nil
	raw <- []byte{2}
	close(raw)

	relayFrames(context.Background(), raw, out, relayFrame)

	var got []Frame
	for f := range out {
		got = append(got, f)
	}
	require.Len(t, got, 2)
	assert.Equal(t, []byte{1}, got[0].Data)
	assert.Equal(t, uint64(1), got[0].Seq)
	assert.Equal(t, []byte{2}, got[1].Data)
	assert.Equal(t, uint64(2), got[1].Seq)
}

func TestRelayFramesDrainsProducerAfterCancel(t *testing.T) {
	raw := make(chan []byte, 2)
	out := make(chan Frame)
	ctx, cancel := context.WithCancel(context.Background())

	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relayFrames(ctx, raw, out, relayFrame)
	}()

	// The producer keeps pushing after cancellation, well past the buffer
	// size, and only then closes its channel.
	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)
		defer close(raw)
		for i := 0; i < 10; i++ {
			raw <- []byte{byte(i)}
			if i == 0 {
				cancel()
			}
		}
	}()

	select {
	case <-producerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("producer blocked on a full channel")
	}
	select {
	case <-relayDone:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not return after the producer closed")
	}

	_, ok := <-out
	assert.False(t, ok, "out is closed")
}
