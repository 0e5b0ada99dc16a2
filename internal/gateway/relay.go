package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lhdbsbz/chatrelay/internal/llm"
	"github.com/lhdbsbz/chatrelay/internal/message"
)

// Peer is the connection a message arrived on; replies go only to it.
type Peer interface {
	fmt.Stringer
	Send(v any) error
}

// Relay rebroadcasts each inbound message to every open connection and
// returns the answering service's reply privately to the sender.
type Relay struct {
	Peers   Broadcaster
	Answers llm.Client
	Metrics *Metrics
}

// OnMessage handles one inbound frame end to end: Accept followed by Respond.
func (r *Relay) OnMessage(ctx context.Context, from Peer, raw []byte) {
	r.Respond(ctx, from, r.Accept(from, raw))
}

// Accept parses raw and broadcasts it to every open connection. It does not
// block on the answering service, so calling it from a connection's read loop
// keeps that connection's broadcasts in arrival order.
func (r *Relay) Accept(from Peer, raw []byte) message.Inbound {
	in := message.Parse(raw)
	r.Metrics.messageReceived(in.Kind)
	slog.Info("message received", "conn", from.String(), "kind", in.Kind, "len", len(in.Message), "selectedFiles", in.SelectedFiles)

	delivered := r.Peers.Broadcast(message.NewUserEnvelope(in.Message))
	slog.Debug("message broadcast", "conn", from.String(), "delivered", delivered)
	return in
}

// Respond asks the answering service about in and replies to from only. It
// blocks for the duration of the call and is meant to run in its own
// goroutine; answers to different messages may arrive in any order.
func (r *Relay) Respond(ctx context.Context, from Peer, in message.Inbound) {
	start := time.Now()
	ans, err := r.Answers.Chat(ctx, llm.ChatRequest{Message: in.Message, SelectedFiles: in.SelectedFiles})
	elapsed := time.Since(start)
	r.Metrics.observeAnswer(ans, err, elapsed)

	if err != nil {
		slog.Error("answer service failed", "conn", from.String(), "error", err, "duration", elapsed)
		r.reply(from, message.NewErrorEnvelope())
		return
	}

	slog.Info("answer received", "conn", from.String(), "usedRag", ans.UsedRAG, "retrievedChunks", ans.RetrievedChunks, "sources", len(ans.Sources), "duration", elapsed)
	r.reply(from, message.NewAnswerEnvelope(ans.Reply, ans.UsedRAG, ans.Sources))
}

func (r *Relay) reply(to Peer, v any) {
	if err := to.Send(v); err != nil {
		// the requester may have disconnected while the answer was pending
		slog.Debug("reply not delivered", "conn", to.String(), "error", err)
	}
}
