package llm

import "context"

// Client is the interface to the AI answering service.
type Client interface {
	// Chat sends one message and returns the service's answer. Any transport,
	// status or decoding problem is returned as a single error; nothing is retried.
	Chat(ctx context.Context, req ChatRequest) (*Answer, error)
}

// NoResponseReply stands in for an absent or empty reply.
const NoResponseReply = "🤖 (no response)"

func (r chatResponse) answer() *Answer {
	a := &Answer{
		Reply:           r.Reply,
		UsedRAG:         r.UsedRAG,
		RetrievedChunks: r.RetrievedChunks,
		Sources:         r.Sources,
	}
	if a.Reply == "" {
		a.Reply = NoResponseReply
	}
	if a.Sources == nil {
		a.Sources = []string{}
	}
	return a
}
