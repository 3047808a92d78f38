package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ossrs/go-oryx-lib/logger"
)

type benchStat struct {
	Senders struct {
		Expect int `json:"expect"`
		Alive  int `json:"alive"`
	} `json:"senders"`
	Receivers struct {
		Expect int `json:"expect"`
		Alive  int `json:"alive"`
	} `json:"receivers"`
	Streams interface{} `json:"streams"`
}

var statSCTP benchStat

type streamStat struct {
	ID                uint16 `json:"id"`
	State             string `json:"state"`
	BufferedAmount    uint64 `json:"buffered_amount"`
	MessagesSent      uint64 `json:"messages_sent"`
	BytesSent         uint64 `json:"bytes_sent"`
	ChunksReceived    uint64 `json:"chunks_received"`
	MessagesAssembled uint64 `json:"messages_assembled"`
	BytesRead         uint64 `json:"bytes_read"`
	PendingRead       int    `json:"pending_read"`
}

func statStreams(benchStreams []*benchStream) []*streamStat {
	var res []*streamStat
	for _, bs := range benchStreams {
		sstat, rstat := bs.sender.Stats(), bs.receiver.Stats()
		res = append(res, &streamStat{
			ID:                bs.id,
			State:             bs.sender.State().String(),
			BufferedAmount:    bs.sender.BufferedAmount(),
			MessagesSent:      sstat.MessagesSent,
			BytesSent:         sstat.BytesSent,
			ChunksReceived:    rstat.ChunksReceived,
			MessagesAssembled: rstat.MessagesAssembled,
			BytesRead:         rstat.BytesRead,
			PendingRead:       bs.receiver.GetNumBytesInReassemblyQueue(),
		})
	}
	return res
}

func handleStat(ctx context.Context, mux *http.ServeMux, l string) {
	if strings.HasPrefix(l, ":") {
		l = "127.0.0.1" + l
	}

	logger.Tf(ctx, "Handle http://%v/api/v1/sb/sctp", l)
	mux.HandleFunc("/api/v1/sb/sctp", func(w http.ResponseWriter, r *http.Request) {
		res := &struct {
			Code int         `json:"code"`
			Data interface{} `json:"data"`
		}{
			0, &statSCTP,
		}

		b, err := json.Marshal(res)
		if err != nil {
			logger.Wf(ctx, "marshal %v err %+v", res, err)
			return
		}

		w.Write(b)
	})
}
