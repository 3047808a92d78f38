// The MIT License (MIT)
//
// # Copyright (c) 2025 Winlin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
package sctp

import (
	"sync/atomic"
	"time"
)

// PollStream exposes a Stream through a conventional byte-stream interface:
// io.Reader, io.Writer, io.Closer plus Flush and per-half shutdown. Message
// boundaries disappear behind it; reads drain whatever the reassembly queue
// delivers and writes go out with the stream's default payload type.
//
// A PollStream is a handle, not a copy. Clone returns another handle onto the
// identical Stream: both observe the same buffered amount, reassembly queue
// and shutdown flags, while the traffic counters stay per handle.
type PollStream struct {
	stream *Stream

	// stats
	messagesSent  uint32
	bytesSent     uint64
	bytesReceived uint64
}

// NewPollStream wraps an existing stream.
func NewPollStream(stream *Stream) *PollStream {
	return &PollStream{stream: stream}
}

// Read reads up to len(p) bytes into p. It blocks until data is available and
// returns io.EOF after the read half has been shut down.
func (c *PollStream) Read(p []byte) (int, error) {
	n, _, err := c.stream.ReadSCTP(p)
	if err != nil {
		return 0, err
	}

	atomic.AddUint64(&c.bytesReceived, uint64(n))
	return n, nil
}

// Write writes len(p) bytes from p as one message with the stream's default
// payload type.
func (c *PollStream) Write(p []byte) (int, error) {
	n, err := c.stream.Write(p)
	if err != nil {
		return n, err
	}

	atomic.AddUint32(&c.messagesSent, 1)
	atomic.AddUint64(&c.bytesSent, uint64(n))
	return n, nil
}

// Flush is an acknowledgment point, not a barrier: writes are queued on the
// shared pending queue synchronously, so there is nothing left to push out.
// It fails once the write half has been shut down.
func (c *PollStream) Flush() error {
	switch c.stream.State() {
	case StreamStateWriteClosed, StreamStateClosed:
		return ErrStreamClosed
	default:
	}
	return nil
}

// Close shuts down both halves of the underlying stream.
func (c *PollStream) Close() error {
	return c.stream.Close()
}

// CloseRead shuts down the read half of the underlying stream.
func (c *PollStream) CloseRead() error {
	return c.stream.CloseRead()
}

// CloseWrite shuts down the write half of the underlying stream.
func (c *PollStream) CloseWrite() error {
	return c.stream.CloseWrite()
}

// SetReadDeadline sets a deadline for reads to return
func (c *PollStream) SetReadDeadline(t time.Time) error {
	return c.stream.SetReadDeadline(t)
}

// Clone returns a new handle onto the same underlying stream. The clone's
// traffic counters start at zero.
func (c *PollStream) Clone() *PollStream {
	return &PollStream{stream: c.stream}
}

// Stream returns the wrapped stream.
func (c *PollStream) Stream() *Stream {
	return c.stream
}

// MessagesSent returns the number of messages sent through this handle
func (c *PollStream) MessagesSent() uint32 {
	return atomic.LoadUint32(&c.messagesSent)
}

// BytesSent returns the number of bytes sent through this handle
func (c *PollStream) BytesSent() uint64 {
	return atomic.LoadUint64(&c.bytesSent)
}

// BytesReceived returns the number of bytes received through this handle
func (c *PollStream) BytesReceived() uint64 {
	return atomic.LoadUint64(&c.bytesReceived)
}

// StreamIdentifier returns the Stream identifier associated to the stream.
func (c *PollStream) StreamIdentifier() uint16 {
	return c.stream.StreamIdentifier()
}

// State returns the state of the underlying stream.
func (c *PollStream) State() StreamState {
	return c.stream.State()
}

// BufferedAmount returns the number of bytes of data currently queued to be
// sent over the underlying stream.
func (c *PollStream) BufferedAmount() uint64 {
	return c.stream.BufferedAmount()
}

// BufferedAmountLowThreshold returns the number of bytes of buffered outgoing
// data that is considered "low." Defaults to 0.
func (c *PollStream) BufferedAmountLowThreshold() uint64 {
	return c.stream.BufferedAmountLowThreshold()
}

// SetBufferedAmountLowThreshold is used to update the threshold.
// See BufferedAmountLowThreshold().
func (c *PollStream) SetBufferedAmountLowThreshold(th uint64) {
	c.stream.SetBufferedAmountLowThreshold(th)
}

// OnBufferedAmountLow sets the callback handler which would be called when the
// number of bytes of outgoing data buffered is lower than the threshold.
func (c *PollStream) OnBufferedAmountLow(f func()) {
	c.stream.OnBufferedAmountLow(f)
}

// GetNumBytesInReassemblyQueue returns the number of payload bytes queued for
// reading on the underlying stream.
func (c *PollStream) GetNumBytesInReassemblyQueue() int {
	return c.stream.GetNumBytesInReassemblyQueue()
}
