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
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ossrs/go-oryx-lib/errors"
	"github.com/ossrs/go-oryx-lib/logger"
	"github.com/pion/randutil"

	sctp "github.com/ossrs/go-sctp"
)

// benchAssociation carries the limits every stream of the run shares.
type benchAssociation struct {
	maxMessageSize uint32
	state          uint32
}

func newBenchAssociation(maxMessageSize uint32) *benchAssociation {
	return &benchAssociation{
		maxMessageSize: maxMessageSize,
		state:          uint32(sctp.AssociationStateEstablished),
	}
}

func (a *benchAssociation) MaxMessageSize() uint32 {
	return atomic.LoadUint32(&a.maxMessageSize)
}

func (a *benchAssociation) State() sctp.AssociationState {
	return sctp.AssociationState(atomic.LoadUint32(&a.state))
}

func (a *benchAssociation) shutdown() {
	atomic.StoreUint32(&a.state, uint32(sctp.AssociationStateShutdownPending))
}

// benchStream pairs a sending stream with the receiving stream its chunks are
// delivered to, plus the byte-stream handles the workers use.
type benchStream struct {
	id       uint16
	sender   *sctp.Stream
	receiver *sctp.Stream
	writer   *sctp.PollStream
	reader   *sctp.PollStream
	writable chan struct{}
}

func main() {
	var streams, msgs, size, mtu int
	flag.IntVar(&streams, "sn", 1, "")
	flag.IntVar(&msgs, "nn", 1000, "")
	flag.IntVar(&size, "size", 1200, "")
	flag.IntVar(&mtu, "mtu", 1200, "")

	var unordered bool
	var mms, maxBuf, batch int
	flag.BoolVar(&unordered, "unordered", false, "")
	flag.IntVar(&mms, "mms", 65536, "")
	flag.IntVar(&maxBuf, "buf", 1024*1024, "")
	flag.IntVar(&batch, "batch", 32, "")

	var delay, interval int
	flag.IntVar(&delay, "delay", 50, "")
	flag.IntVar(&interval, "interval", 5, "")

	var statListen string
	flag.StringVar(&statListen, "stat", "", "")

	flag.Usage = func() {
		fmt.Println(fmt.Sprintf("Usage: %v [Options]", os.Args[0]))
		fmt.Println(fmt.Sprintf("Options:"))
		fmt.Println(fmt.Sprintf("   -sn        The number of streams to simulate. Default: 1"))
		fmt.Println(fmt.Sprintf("   -nn        The number of messages to send per stream. Default: 1000"))
		fmt.Println(fmt.Sprintf("   -size      The size of each message in bytes. Default: 1200"))
		fmt.Println(fmt.Sprintf("   -mtu       The max payload size per chunk in bytes. Default: 1200"))
		fmt.Println(fmt.Sprintf("   -unordered [Optional] Whether send unordered. Default: false"))
		fmt.Println(fmt.Sprintf("   -mms       [Optional] The max message size in bytes. Default: 65536"))
		fmt.Println(fmt.Sprintf("   -buf       [Optional] The max buffered amount per stream in bytes. Default: 1048576"))
		fmt.Println(fmt.Sprintf("   -batch     [Optional] The number of chunks to confirm in a batch. Default: 32"))
		fmt.Println(fmt.Sprintf("   -delay     [Optional] The start delay in ms for each stream. Default: 50"))
		fmt.Println(fmt.Sprintf("   -interval  [Optional] The stat report interval in seconds. Default: 5"))
		fmt.Println(fmt.Sprintf("   -stat      [Optional] The stat server API listen port."))
		fmt.Println(fmt.Sprintf("\nFor example, 1 stream with 10k messages of 1200 bytes:"))
		fmt.Println(fmt.Sprintf("   %v -sn 1 -nn 10000 -size 1200", os.Args[0]))
		fmt.Println(fmt.Sprintf("\nFor example, 8 unordered streams with fragmented messages:"))
		fmt.Println(fmt.Sprintf("   %v -sn 8 -nn 10000 -size 16000 -mtu 1200 -unordered", os.Args[0]))
		fmt.Println(fmt.Sprintf("\nFor example, with the stat API on port 1950:"))
		fmt.Println(fmt.Sprintf("   %v -sn 8 -nn 10000 -stat 1950", os.Args[0]))
		fmt.Println()
	}
	flag.Parse()

	showHelp := streams <= 0 || msgs <= 0 || size <= 0 || mtu <= 0 || batch <= 0
	if showHelp {
		flag.Usage()
		os.Exit(-1)
	}

	if statListen != "" && !strings.Contains(statListen, ":") {
		statListen = ":" + statListen
	}

	ctx := context.Background()
	summaryDesc := fmt.Sprintf("streams=%v, msgs=%v, size=%v, mtu=%v, unordered=%v, mms=%v, buf=%v, batch=%v, delay=%v, stat=%v",
		streams, msgs, size, mtu, unordered, mms, maxBuf, batch, delay, statListen)
	logger.Tf(ctx, "Start benchmark with %v", summaryDesc)

	checkFlag := func() error {
		if streams > 65535 {
			return errors.Errorf("Too many streams %v, should be <=65535", streams)
		}

		if size > mms {
			return errors.Errorf("Message size %v exceeds max message size %v", size, mms)
		}

		if maxBuf < size {
			return errors.Errorf("Buffer limit %v should be >= message size %v", maxBuf, size)
		}
		return nil
	}
	if err := checkFlag(); err != nil {
		logger.Ef(ctx, "Check faile err %+v", err)
		os.Exit(-1)
	}

	ctx, cancel := context.WithCancel(ctx)

	// Process all signals.
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
		for sig := range sigs {
			logger.Wf(ctx, "Quit for signal %v", sig)
			cancel()
		}
	}()

	// The shared send side of the association: one pending queue for all
	// streams, plus the channel the write path signals new chunks on.
	assoc := newBenchAssociation(uint32(mms))
	sendQueue := sctp.NewPendingQueue()
	awakeWriteLoopCh := make(chan struct{}, 1)

	// Run tasks.
	var wg sync.WaitGroup

	// Start STAT API server.
	wg.Add(1)
	go func() {
		defer wg.Done()

		if statListen == "" {
			return
		}

		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", statListen)
		if err != nil {
			logger.Ef(ctx, "stat listen err+%v", err)
			cancel()
			return
		}

		mux := http.NewServeMux()
		handleStat(ctx, mux, statListen)

		srv := &http.Server{
			Handler: mux,
			BaseContext: func(listener net.Listener) context.Context {
				return ctx
			},
		}

		go func() {
			<-ctx.Done()
			srv.Shutdown(ctx)
		}()

		logger.Tf(ctx, "Stat listen at %v", statListen)
		if err := srv.Serve(ln); err != nil {
			if ctx.Err() == nil {
				logger.Ef(ctx, "stat serve err+%v", err)
				cancel()
			}
			return
		}
	}()

	// Start all stream pairs, each with a reader and a writer.
	var benchStreams []*benchStream
	var writerWg sync.WaitGroup
	for i := 0; i < streams && ctx.Err() == nil; i++ {
		sid := uint16(i)

		sender := sctp.NewStream(sctp.StreamConfig{
			Name:             fmt.Sprintf("send-%v", sid),
			StreamIdentifier: sid,
			MaxPayloadSize:   uint32(mtu),
			Association:      assoc,
			PendingQueue:     sendQueue,
			AwakeWriteLoopCh: awakeWriteLoopCh,
		})
		sender.SetDefaultPayloadType(sctp.PayloadTypeWebRTCBinary)
		if unordered {
			sender.SetReliabilityParams(true, sctp.ReliabilityTypeReliable, 0)
		}

		receiver := sctp.NewStream(sctp.StreamConfig{
			Name:             fmt.Sprintf("recv-%v", sid),
			StreamIdentifier: sid,
			Association:      assoc,
		})

		bs := &benchStream{
			id: sid, sender: sender, receiver: receiver,
			writer: sctp.NewPollStream(sender), reader: sctp.NewPollStream(receiver),
			writable: make(chan struct{}, 1),
		}
		benchStreams = append(benchStreams, bs)

		// Resume a parked writer once the buffered amount drops back under
		// the low threshold.
		bs.writer.SetBufferedAmountLowThreshold(uint64(maxBuf / 2))
		bs.writer.OnBufferedAmountLow(func() {
			select {
			case bs.writable <- struct{}{}:
			default:
			}
		})

		statSCTP.Receivers.Expect++
		statSCTP.Receivers.Alive++

		wg.Add(1)
		go func(bs *benchStream) {
			defer wg.Done()
			defer func() {
				statSCTP.Receivers.Alive--
			}()

			buf := make([]byte, size)
			for {
				if _, err := bs.reader.Read(buf); err != nil {
					return
				}
			}
		}(bs)

		statSCTP.Senders.Expect++
		statSCTP.Senders.Alive++

		writerWg.Add(1)
		go func(bs *benchStream) {
			defer writerWg.Done()
			defer func() {
				statSCTP.Senders.Alive--
			}()

			msg := make([]byte, size)
			for j := 0; j < msgs && ctx.Err() == nil; j++ {
				for bs.writer.BufferedAmount() > uint64(maxBuf) && ctx.Err() == nil {
					select {
					case <-bs.writable:
					case <-ctx.Done():
					}
				}

				if _, err := bs.writer.Write(msg); err != nil {
					if ctx.Err() == nil {
						logger.Wf(ctx, "Write err %+v", err)
					}
					break
				}
			}

			_ = bs.writer.Flush()
			_ = bs.writer.CloseWrite()
		}(bs)

		time.Sleep(time.Duration(delay) * time.Millisecond)
	}

	writersDone := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		writerWg.Wait()
		close(writersDone)
	}()

	// Report the stream stats periodically.
	wg.Add(1)
	go func() {
		defer wg.Done()

		if interval <= 0 {
			return
		}

		t := time.NewTicker(time.Duration(interval) * time.Second)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				var sent, delivered, buffered uint64
				for _, bs := range benchStreams {
					sent += bs.sender.Stats().BytesSent
					delivered += bs.receiver.Stats().BytesRead
					buffered += bs.sender.BufferedAmount()
				}
				statSCTP.Streams = statStreams(benchStreams)
				logger.Tf(ctx, "Benchmark sent=%vB, delivered=%vB, buffered=%vB, pending=%vB",
					sent, delivered, buffered, sendQueue.GetNumBytes())
			}
		}
	}()

	// The network in the middle: move chunks from the shared pending queue to
	// the receiving streams, then confirm the bytes back to the senders. The
	// confirmation is batched, except for chunks that close a message.
	runNetwork := func() {
		tsn := randutil.NewMathRandomGenerator().Uint32()
		pending := make(map[uint16]int)
		batched := 0

		flush := func() {
			for sid, nBytes := range pending {
				benchStreams[sid].sender.OnBufferReleased(nBytes)
				delete(pending, sid)
			}
			batched = 0
		}

		for ctx.Err() == nil {
			c := sendQueue.Peek()
			if c == nil {
				flush()
				select {
				case <-awakeWriteLoopCh:
				case <-writersDone:
					if sendQueue.Size() == 0 {
						return
					}
				case <-ctx.Done():
				}
				continue
			}

			if err := sendQueue.Pop(c); err != nil {
				logger.Ef(ctx, "Pop err %+v", err)
				cancel()
				return
			}

			c.TSN = tsn
			tsn++

			// Ask for an immediate confirmation at message boundaries, so the
			// batching below never holds back a complete message.
			if c.EndingFragment {
				c.ImmediateSack = true
			}

			benchStreams[c.StreamIdentifier].receiver.HandleData(c)

			pending[c.StreamIdentifier] += len(c.UserData)
			batched++
			if c.ImmediateSack || batched >= batch {
				flush()
			}
		}
	}
	runNetwork()

	// Unblock every worker: parked writers observe the canceled context or the
	// shutdown state, parked readers observe the end of stream.
	cancel()
	assoc.shutdown()
	for _, bs := range benchStreams {
		_ = bs.reader.CloseRead()
	}

	wg.Wait()

	for _, bs := range benchStreams {
		sstat, rstat := bs.sender.Stats(), bs.receiver.Stats()
		logger.Tf(ctx, "Stream #%v sent=%v msgs %vB, chunks=%v, assembled=%v msgs, read=%vB, buffered=%vB",
			bs.id, sstat.MessagesSent, bs.writer.BytesSent(), rstat.ChunksReceived,
			rstat.MessagesAssembled, bs.reader.BytesReceived(), bs.sender.BufferedAmount())
	}

	logger.Tf(ctx, "Done")
}
