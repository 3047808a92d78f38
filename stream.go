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
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
)

const (
	// ReliabilityTypeReliable is used for reliable transmission
	ReliabilityTypeReliable byte = 0
	// ReliabilityTypeRexmit is used for partial reliability by retransmission count
	ReliabilityTypeRexmit byte = 1
	// ReliabilityTypeTimed is used for partial reliability by retransmission duration
	ReliabilityTypeTimed byte = 2
)

// defaultMaxPayloadSize is the fragmentation size used when the association
// has not negotiated one: an initial MTU of 1228 minus the common and DATA
// chunk headers.
const defaultMaxPayloadSize = 1200

// StreamState is the composition of the two half-close flags of a stream.
type StreamState int

// StreamState enums
const (
	StreamStateOpen        StreamState = iota // both halves open
	StreamStateReadClosed                     // read half has been shut down
	StreamStateWriteClosed                    // write half has been shut down
	StreamStateClosed                         // both halves have been shut down
)

func (ss StreamState) String() string {
	switch ss {
	case StreamStateOpen:
		return "open"
	case StreamStateReadClosed:
		return "read-closed"
	case StreamStateWriteClosed:
		return "write-closed"
	case StreamStateClosed:
		return "closed"
	}
	return "unknown"
}

// SCTP stream errors
var (
	ErrOutboundPacketTooLarge = errors.New("outbound packet larger than maximum message size")
	ErrStreamClosed           = errors.New("stream closed")
	ErrReadDeadlineExceeded   = fmt.Errorf("read deadline exceeded: %w", os.ErrDeadlineExceeded)
)

// StreamConfig collects the dependencies a stream receives from its
// association.
type StreamConfig struct {
	// Name labels the stream in logs. Defaults to the stream identifier.
	Name string
	// StreamIdentifier is the immutable identifier of the stream within the
	// association.
	StreamIdentifier uint16
	// MaxPayloadSize is the negotiated fragmentation size: no chunk emitted
	// by the write path carries more payload than this. Defaults to 1200.
	MaxPayloadSize uint32
	// Association supplies the message size limit and the connection state
	// gate. Must not be nil.
	Association Association
	// PendingQueue is the association-wide send backlog the write path
	// appends to. When nil the stream creates a queue of its own.
	PendingQueue *PendingQueue
	// AwakeWriteLoopCh, when non-nil, receives a non-blocking signal each
	// time the write path queued new chunks, so the association's send loop
	// can wake up.
	AwakeWriteLoopCh chan struct{}
	// LoggerFactory defaults to logging.NewDefaultLoggerFactory().
	LoggerFactory logging.LoggerFactory
}

// Stream represents an SCTP stream
type Stream struct {
	association         Association
	lock                sync.RWMutex
	streamIdentifier    uint16
	maxPayloadSize      uint32
	defaultPayloadType  PayloadProtocolIdentifier
	reassemblyQueue     *reassemblyQueue
	sequenceNumber      uint16
	readNotifier        *sync.Cond
	readErr             error
	readTimeoutCancel   chan struct{}
	readShutdown        bool
	writeShutdown       bool
	unordered           bool
	reliabilityType     byte
	reliabilityValue    uint32
	bufferedAmount      uint64
	bufferedAmountLow   uint64
	onBufferedAmountLow func()
	pendingQueue        *PendingQueue
	awakeWriteLoopCh    chan struct{}
	stats               *streamStats
	log                 logging.LeveledLogger
	name                string
}

// NewStream creates a stream bound to the association's shared send queue.
func NewStream(config StreamConfig) *Stream {
	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}

	name := config.Name
	if name == "" {
		name = fmt.Sprintf("%d", config.StreamIdentifier)
	}

	maxPayloadSize := config.MaxPayloadSize
	if maxPayloadSize == 0 {
		maxPayloadSize = defaultMaxPayloadSize
	}

	pendingQueue := config.PendingQueue
	if pendingQueue == nil {
		pendingQueue = NewPendingQueue()
	}

	s := &Stream{
		association:      config.Association,
		streamIdentifier: config.StreamIdentifier,
		maxPayloadSize:   maxPayloadSize,
		reassemblyQueue:  newReassemblyQueue(config.StreamIdentifier),
		pendingQueue:     pendingQueue,
		awakeWriteLoopCh: config.AwakeWriteLoopCh,
		stats:            &streamStats{},
		log:              loggerFactory.NewLogger("stream"),
		name:             name,
	}
	s.readNotifier = sync.NewCond(&s.lock)
	return s
}

// StreamIdentifier returns the Stream identifier associated to the stream.
func (s *Stream) StreamIdentifier() uint16 {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.streamIdentifier
}

// SetDefaultPayloadType sets the default payload type used by Write.
func (s *Stream) SetDefaultPayloadType(defaultPayloadType PayloadProtocolIdentifier) {
	atomic.StoreUint32((*uint32)(&s.defaultPayloadType), uint32(defaultPayloadType))
}

// SetReliabilityParams sets reliability parameters for this stream.
func (s *Stream) SetReliabilityParams(unordered bool, relType byte, relVal uint32) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.log.Debugf("[%s] reliability params: ordered=%v type=%d value=%d",
		s.name, !unordered, relType, relVal)
	s.unordered = unordered
	s.reliabilityType = relType
	s.reliabilityValue = relVal
}

// ReliabilityParams returns the reliability settings the association applies
// to this stream's outbound chunks.
func (s *Stream) ReliabilityParams() (unordered bool, relType byte, relVal uint32) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.unordered, s.reliabilityType, s.reliabilityValue
}

// Read reads a packet of len(p) bytes, dropping the Payload Protocol
// Identifier. It blocks until data is available and returns io.EOF after the
// read half has been shut down.
func (s *Stream) Read(p []byte) (int, error) {
	n, _, err := s.ReadSCTP(p)
	return n, err
}

// ReadSCTP reads a packet of len(p) bytes and returns the associated Payload
// Protocol Identifier. It blocks until data is available and returns io.EOF
// after the read half has been shut down.
//
// Messages are never coalesced across calls. When p is shorter than the next
// message, only the head of the message is copied out and the remainder is
// returned by subsequent reads.
func (s *Stream) ReadSCTP(p []byte) (int, PayloadProtocolIdentifier, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	defer func() {
		// close readTimeoutCancel if the current read timeout routine is no longer effective
		if s.readTimeoutCancel != nil && s.readErr != nil {
			close(s.readTimeoutCancel)
			s.readTimeoutCancel = nil
		}
	}()

	for {
		if s.readShutdown {
			return 0, PayloadProtocolIdentifier(0), io.EOF
		}

		n, ppi, err := s.reassemblyQueue.read(p)
		if err == nil {
			s.stats.addBytesRead(n)
			return n, ppi, nil
		}

		err = s.readErr
		if err != nil {
			return 0, PayloadProtocolIdentifier(0), err
		}

		s.readNotifier.Wait()
	}
}

// SetReadDeadline sets the read deadline in an identical way to net.Conn
func (s *Stream) SetReadDeadline(deadline time.Time) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.readTimeoutCancel != nil {
		close(s.readTimeoutCancel)
		s.readTimeoutCancel = nil
	}

	if s.readErr != nil {
		if !errors.Is(s.readErr, ErrReadDeadlineExceeded) {
			return s.readErr
		}
		s.readErr = nil
	}

	if !deadline.IsZero() {
		s.readTimeoutCancel = make(chan struct{})

		go func(readTimeoutCancel chan struct{}) {
			t := time.NewTimer(time.Until(deadline))
			select {
			case <-readTimeoutCancel:
				t.Stop()
				return
			case <-t.C:
				s.lock.Lock()
				if s.readErr == nil {
					s.readErr = ErrReadDeadlineExceeded
				}
				s.readTimeoutCancel = nil
				s.lock.Unlock()

				s.readNotifier.Signal()
			}
		}(s.readTimeoutCancel)
	}
	return nil
}

// HandleData is called by the association's receive pipeline once an inbound
// DATA chunk has been validated to belong to this stream.
func (s *Stream) HandleData(pd *ChunkPayloadData) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.stats.incChunksReceived()

	var readable bool
	if s.reassemblyQueue.push(pd) {
		s.stats.incMessagesAssembled()
		readable = s.reassemblyQueue.isReadable()
		s.log.Debugf("[%s] reassemblyQueue readable=%v", s.name, readable)
		if readable {
			s.log.Debugf("[%s] readNotifier.signal()", s.name)
			s.readNotifier.Signal()
			s.log.Debugf("[%s] readNotifier.signal() done", s.name)
		}
	}
}

// HandleForwardTSNForOrdered is called by the association when the peer
// abandoned ordered messages up to and including ssn, so the incomplete sets
// they left behind can be evicted.
func (s *Stream) HandleForwardTSNForOrdered(ssn uint16) {
	var readable bool

	func() {
		s.lock.Lock()
		defer s.lock.Unlock()

		if s.unordered {
			return // unordered chunks are handled by HandleForwardTSNForUnordered method
		}

		// Remove all chunks older than or equal to the new TSN from
		// the reassemblyQueue.
		s.reassemblyQueue.forwardTSNForOrdered(ssn)
		readable = s.reassemblyQueue.isReadable()
	}()

	// Notify the reader asynchronously if there's a data chunk to read.
	if readable {
		s.readNotifier.Signal()
	}
}

// HandleForwardTSNForUnordered is called by the association when the peer
// abandoned unordered messages with TSNs up to and including
// newCumulativeTSN, so the fragments they left behind can be evicted.
func (s *Stream) HandleForwardTSNForUnordered(newCumulativeTSN uint32) {
	var readable bool

	func() {
		s.lock.Lock()
		defer s.lock.Unlock()

		if !s.unordered {
			return // ordered chunks are handled by HandleForwardTSNForOrdered method
		}

		// Remove all chunks older than or equal to the new TSN from
		// the reassemblyQueue.
		s.reassemblyQueue.forwardTSNForUnordered(newCumulativeTSN)
		readable = s.reassemblyQueue.isReadable()
	}()

	// Notify the reader asynchronously if there's a data chunk to read.
	if readable {
		s.readNotifier.Signal()
	}
}

// Write writes len(p) bytes from p with the default Payload Protocol Identifier
func (s *Stream) Write(p []byte) (n int, err error) {
	ppi := PayloadProtocolIdentifier(atomic.LoadUint32((*uint32)(&s.defaultPayloadType)))
	return s.WriteSCTP(p, ppi)
}

// WriteSCTP writes len(p) bytes from p with the given Payload Protocol
// Identifier. The message is fragmented into chunks on the association's
// pending queue; confirmation of their delivery arrives later through
// OnBufferReleased.
func (s *Stream) WriteSCTP(p []byte, ppi PayloadProtocolIdentifier) (int, error) {
	s.lock.RLock()
	writeShutdown := s.writeShutdown
	s.lock.RUnlock()
	if writeShutdown {
		return 0, ErrStreamClosed
	}

	maxMessageSize := s.association.MaxMessageSize()
	if len(p) > int(maxMessageSize) {
		return 0, fmt.Errorf("%w: %v", ErrOutboundPacketTooLarge, maxMessageSize)
	}

	switch s.association.State() {
	case AssociationStateShutdownSent, AssociationStateShutdownAckSent,
		AssociationStateShutdownPending, AssociationStateShutdownReceived:
		return 0, ErrStreamClosed
	default:
	}

	// The whole fragment set goes into the queue in one call, so fragment
	// runs from concurrent writers never interleave within a lane.
	s.pendingQueue.Push(s.packetize(p, ppi)...)
	s.awakeWriteLoop()

	s.stats.incMessagesSent()
	s.stats.addBytesSent(len(p))
	return len(p), nil
}

func (s *Stream) packetize(raw []byte, ppi PayloadProtocolIdentifier) []*ChunkPayloadData {
	s.lock.Lock()
	defer s.lock.Unlock()

	i := uint32(0)
	remaining := uint32(len(raw))

	// From draft-ietf-rtcweb-data-protocol-09, section 6:
	//   All Data Channel Establishment Protocol messages MUST be sent using
	//   ordered delivery and reliable transmission.
	unordered := ppi != PayloadTypeWebRTCDCEP && s.unordered

	var chunks []*ChunkPayloadData
	for remaining != 0 {
		fragmentSize := min32(s.maxPayloadSize, remaining)

		// Copy the userdata since we'll have to store it until acked
		// and the caller may re-use the buffer in the mean time
		userData := make([]byte, fragmentSize)
		copy(userData, raw[i:i+fragmentSize])

		chunk := &ChunkPayloadData{
			StreamIdentifier:     s.streamIdentifier,
			UserData:             userData,
			Unordered:            unordered,
			BeginningFragment:    i == 0,
			EndingFragment:       remaining-fragmentSize == 0,
			ImmediateSack:        false,
			PayloadType:          ppi,
			StreamSequenceNumber: s.sequenceNumber,
		}

		chunks = append(chunks, chunk)

		remaining -= fragmentSize
		i += fragmentSize
	}

	// RFC 4960 Sec 6.6
	// Note: When transmitting ordered and unordered data, an endpoint does
	// not increment its Stream Sequence Number when transmitting a DATA
	// chunk with U flag set to 1.
	if !unordered {
		s.sequenceNumber++
	}

	s.bufferedAmount += uint64(len(raw))
	s.log.Tracef("[%s] bufferedAmount = %d", s.name, s.bufferedAmount)

	return chunks
}

func (s *Stream) awakeWriteLoop() {
	if s.awakeWriteLoopCh == nil {
		return
	}
	select {
	case s.awakeWriteLoopCh <- struct{}{}:
	default:
	}
}

// CloseRead shuts down the read half of the stream. Readers parked on an
// empty reassembly queue are woken up to observe the closure, subsequent
// reads return io.EOF, and anything still buffered for reading is never
// delivered. Re-closing a closed half is a no-op.
func (s *Stream) CloseRead() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.readShutdown {
		return nil
	}
	from := s.streamState()
	s.readShutdown = true
	s.log.Debugf("[%s] state change: %s => %s", s.name, from, s.streamState())

	// Unblock any parked reader with io.EOF. The readErr also lets the next
	// read call tear down a pending deadline timer.
	s.readErr = io.EOF
	s.readNotifier.Broadcast()
	return nil
}

// CloseWrite shuts down the write half of the stream. Subsequent writes fail
// with ErrStreamClosed; chunks already handed to the pending queue still flow
// to the association. Re-closing a closed half is a no-op.
func (s *Stream) CloseWrite() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.writeShutdown {
		return nil
	}
	from := s.streamState()
	s.writeShutdown = true
	s.log.Debugf("[%s] state change: %s => %s", s.name, from, s.streamState())

	return nil
}

// Close shuts down both halves of the stream.
// Future calls to Write are not permitted after calling Close.
func (s *Stream) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.readShutdown && s.writeShutdown {
		return nil
	}
	from := s.streamState()
	s.readShutdown = true
	s.writeShutdown = true
	s.log.Debugf("[%s] state change: %s => %s", s.name, from, s.streamState())

	s.readErr = io.EOF
	s.readNotifier.Broadcast()
	return nil
}

// BufferedAmount returns the number of bytes of data currently queued to be sent over this stream.
func (s *Stream) BufferedAmount() uint64 {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.bufferedAmount
}

// BufferedAmountLowThreshold returns the number of bytes of buffered outgoing data that is
// considered "low." Defaults to 0.
func (s *Stream) BufferedAmountLowThreshold() uint64 {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.bufferedAmountLow
}

// SetBufferedAmountLowThreshold is used to update the threshold.
// See BufferedAmountLowThreshold().
func (s *Stream) SetBufferedAmountLowThreshold(th uint64) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.bufferedAmountLow = th
}

// OnBufferedAmountLow sets the callback handler which would be called when the number of
// bytes of outgoing data buffered is lower than the threshold. The last
// registration wins.
func (s *Stream) OnBufferedAmountLow(f func()) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.onBufferedAmountLow = f
}

// OnBufferReleased is called by the association's send-confirmation pipeline
// to notify this stream that the specified amount of outgoing data has been
// delivered to the peer. Zero or negative amounts are ignored, and the
// buffered amount never drops below zero.
func (s *Stream) OnBufferReleased(nBytesReleased int) {
	if nBytesReleased <= 0 {
		if nBytesReleased < 0 {
			s.log.Warnf("[%s] ignoring negative released buffer size %d", s.name, nBytesReleased)
		}
		return
	}

	s.lock.Lock()

	fromAmount := s.bufferedAmount

	if s.bufferedAmount < uint64(nBytesReleased) {
		s.bufferedAmount = 0
		s.log.Errorf("[%s] released buffer size %d should be <= %d",
			s.name, nBytesReleased, fromAmount)
	} else {
		s.bufferedAmount -= uint64(nBytesReleased)
	}

	s.log.Tracef("[%s] bufferedAmount = %d", s.name, s.bufferedAmount)

	if s.onBufferedAmountLow != nil && fromAmount > s.bufferedAmountLow && s.bufferedAmount <= s.bufferedAmountLow {
		f := s.onBufferedAmountLow
		s.lock.Unlock()
		f()
		return
	}

	s.lock.Unlock()
}

// GetNumBytesInReassemblyQueue returns the number of payload bytes queued for
// reading on this stream, complete messages and partial fragments included.
func (s *Stream) GetNumBytesInReassemblyQueue() int {
	// No lock is required as it reads the size with atomic load function.
	return s.reassemblyQueue.getNumBytes()
}

// Stats returns a snapshot of the stream's traffic counters.
func (s *Stream) Stats() StreamStats {
	return s.stats.snapshot()
}

// State returns the stream state composed from the two half-close flags.
func (s *Stream) State() StreamState {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.streamState()
}

// streamState derives the state from the half-close flags.
// The caller should hold the lock.
func (s *Stream) streamState() StreamState {
	switch {
	case s.readShutdown && s.writeShutdown:
		return StreamStateClosed
	case s.readShutdown:
		return StreamStateReadClosed
	case s.writeShutdown:
		return StreamStateWriteClosed
	}
	return StreamStateOpen
}
