package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/ossrs/go-oryx-lib/errors"
	"github.com/ossrs/go-oryx-lib/logger"

	sctp "github.com/ossrs/go-sctp"
)

func main() {
	ctx := logger.WithContext(context.Background())
	if err := doMain(ctx); err != nil {
		panic(err)
	}
}

func trace(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// replayAssociation is receive only, the limits are never exercised.
type replayAssociation struct {
}

func (a *replayAssociation) MaxMessageSize() uint32 {
	return 65536
}

func (a *replayAssociation) State() sctp.AssociationState {
	return sctp.AssociationStateEstablished
}

// sctpDataChunks returns every DATA chunk bundled in the packet. The stock
// layer walk stops at the first DATA chunk, whose user data becomes the
// payload layer, so chunks bundled behind it never show up as packet layers.
// Walk the SCTP chunk stream instead and decode each DATA chunk on its own.
func sctpDataChunks(packet gopacket.Packet) []*layers.SCTPData {
	sctpLayer := packet.Layer(layers.LayerTypeSCTP)
	if sctpLayer == nil {
		return nil
	}

	var chunks []*layers.SCTPData
	for buf := sctpLayer.LayerPayload(); len(buf) >= 4; {
		length := int(binary.BigEndian.Uint16(buf[2:4]))
		if length < 4 || length > len(buf) {
			break
		}

		// Chunks sit on 4-byte boundaries, the last one may omit the padding.
		padded := length
		if length%4 != 0 {
			padded += 4 - length%4
		}

		if layers.SCTPChunkType(buf[0]) == layers.SCTPChunkTypeData && length >= 16 {
			one := make([]byte, padded)
			copy(one, buf[:length])
			p := gopacket.NewPacket(one, layers.LayerTypeSCTPData, gopacket.NoCopy)
			if dc, ok := p.Layer(layers.LayerTypeSCTPData).(*layers.SCTPData); ok {
				chunks = append(chunks, dc)
			}
		}

		if padded >= len(buf) {
			break
		}
		buf = buf[padded:]
	}
	return chunks
}

func doMain(ctx context.Context) error {
	var doRE, doTrace, help bool
	var pauseNumber, abortNumber uint64
	var filename string
	var sid int
	flag.BoolVar(&help, "h", false, "whether show this help")
	flag.BoolVar(&help, "help", false, "whether show this help")
	flag.BoolVar(&doRE, "re", true, "whether do real-time emulation")
	flag.BoolVar(&doTrace, "trace", true, "whether trace the chunk and message")
	flag.Uint64Var(&pauseNumber, "pause", 0, "the packet number to pause")
	flag.Uint64Var(&abortNumber, "abort", 0, "the packet number to abort")
	flag.StringVar(&filename, "f", "", "the pcap filename, like ./t.pcapng")
	flag.IntVar(&sid, "sid", -1, "the stream id to replay, -1 for all streams")

	flag.Parse()

	if help {
		flag.Usage()
		os.Exit(0)
	}

	if filename == "" {
		flag.Usage()
		os.Exit(1)
	}

	logger.Tf(ctx, "Replay pcap %v, re=%v, trace=%v, pause=%v, abort=%v, sid=%v",
		filename, doRE, doTrace, pauseNumber, abortNumber, sid)

	f, err := os.Open(filename)
	if err != nil {
		return errors.Wrapf(err, "open pcap %v", filename)
	}
	defer f.Close()

	r, err := pcapgo.NewNgReader(f, pcapgo.DefaultNgReaderOptions)
	if err != nil {
		return errors.Wrapf(err, "new reader")
	}

	assoc := &replayAssociation{}
	streams := make(map[uint16]*sctp.Stream)
	var wg sync.WaitGroup

	// Each stream id of the capture gets its own stream plus a goroutine that
	// drains the reassembled messages.
	streamFor := func(si uint16) *sctp.Stream {
		if s, ok := streams[si]; ok {
			return s
		}

		s := sctp.NewStream(sctp.StreamConfig{
			Name:             fmt.Sprintf("replay-%v", si),
			StreamIdentifier: si,
			Association:      assoc,
		})
		streams[si] = s

		wg.Add(1)
		go func() {
			defer wg.Done()

			buf := make([]byte, 65536)
			for {
				n, ppi, err := s.ReadSCTP(buf)
				if err != nil {
					return
				}
				if doTrace {
					trace("sid=%v %v Len:%v", si, ppi, n)
				}
			}
		}()
		return s
	}

	var packetNumber uint64
	var previousTime *time.Time
	source := gopacket.NewPacketSource(r, r.LinkType())
	for packet := range source.Packets() {
		packetNumber++

		// Keep the DATA chunks this run replays, a packet can bundle several.
		var dataChunks []*layers.SCTPData
		for _, dc := range sctpDataChunks(packet) {
			if len(dc.Payload) == 0 {
				continue
			}
			if sid >= 0 && dc.StreamId != uint16(sid) {
				continue
			}
			dataChunks = append(dataChunks, dc)
		}
		if len(dataChunks) == 0 {
			continue
		}

		ci := packet.Metadata().CaptureInfo

		if pauseNumber > 0 && packetNumber == pauseNumber {
			reader := bufio.NewReader(os.Stdin)
			trace("#%v Press Enter to continue...", packetNumber)
			_, _ = reader.ReadString('\n')
		}
		if abortNumber > 0 && packetNumber > abortNumber {
			break
		}

		for _, dc := range dataChunks {
			chunk := &sctp.ChunkPayloadData{
				Unordered:            dc.Unordered,
				BeginningFragment:    dc.BeginFragment,
				EndingFragment:       dc.EndFragment,
				ImmediateSack:        dc.Flags&0x08 != 0,
				TSN:                  dc.TSN,
				StreamIdentifier:     dc.StreamId,
				StreamSequenceNumber: dc.StreamSequence,
				PayloadType:          sctp.PayloadProtocolIdentifier(dc.PayloadProtocol),
				UserData:             append([]byte{}, dc.Payload...),
			}
			streamFor(dc.StreamId).HandleData(chunk)

			if doTrace {
				trace("#%v %v %v", packetNumber, ci.Timestamp.Format("15:04:05.000"), chunk)
			}
		}

		if doRE {
			if previousTime == nil {
				previousTime = &ci.Timestamp
			} else {
				if diff := ci.Timestamp.Sub(*previousTime); diff > 100*time.Millisecond {
					time.Sleep(diff)
					previousTime = &ci.Timestamp
				}
			}
		}
	}

	// End of the capture, flush the parked readers with the end of stream.
	for _, s := range streams {
		_ = s.CloseRead()
	}
	wg.Wait()

	for si, s := range streams {
		stats := s.Stats()
		logger.Tf(ctx, "Stream #%v chunks=%v, messages=%v, bytes=%v, fragments left=%v",
			si, stats.ChunksReceived, stats.MessagesAssembled, stats.BytesRead,
			s.GetNumBytesInReassemblyQueue())
	}

	return nil
}
