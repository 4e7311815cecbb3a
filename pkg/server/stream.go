package server

import (
	"encoding/json"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/localrt/localrt/pkg/reasoning"
	"github.com/localrt/localrt/pkg/session"
)

// Streaming synthesis piece sizes: tool-call argument fragments and final
// text deltas.
const (
	argChunkSize  = 48
	textChunkSize = 64
)

type streamDelta struct {
	Role      string            `json:"role,omitempty"`
	Content   *string           `json:"content,omitempty"`
	ToolCalls []streamToolDelta `json:"tool_calls,omitempty"`
}

type streamToolDelta struct {
	Index    int            `json:"index"`
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function streamFunction `json:"function"`
}

type streamFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

type streamChoice struct {
	Index        int         `json:"index"`
	Delta        streamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

type streamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []streamChoice `json:"choices"`
}

// chunkEnd returns the end offset for the next piece, never splitting a
// UTF-8 sequence.
func chunkEnd(s string, off, size int) int {
	end := off + size
	if end >= len(s) {
		return len(s)
	}
	for end > off && !utf8.RuneStart(s[end]) {
		end--
	}
	if end == off {
		end = off + size
	}
	return end
}

func writeSSEData(w io.Writer, flusher http.Flusher, v any) {
	enc, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(enc)
	_, _ = w.Write([]byte("\n\n"))
	if flusher != nil {
		flusher.Flush()
	}
}

func writeSSEDone(w io.Writer, flusher http.Flusher) {
	_, _ = w.Write([]byte("data: [DONE]\n\n"))
	if flusher != nil {
		flusher.Flush()
	}
}

// streamCompletion replays a finished orchestrator run as an SSE stream:
// tool-call argument fragments first, then the final text in small content
// deltas, a finishing chunk, and the [DONE] sentinel. The turn is persisted
// with the accumulated text once everything is on the wire.
func (s *Server) streamCompletion(w http.ResponseWriter, call chatCall, loop *reasoning.LoopResult) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("x-turn-id", call.turnID)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	id := session.NewID("chatcmpl")
	created := nowSeconds()
	wroteRole := false

	writeChunk := func(delta streamDelta, finishReason *string) {
		writeSSEData(w, flusher, streamChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   call.model,
			Choices: []streamChoice{{Index: 0, Delta: delta, FinishReason: finishReason}},
		})
	}

	for i, c := range loop.ExecutedCalls {
		args := c.ArgumentsJSON
		if args == "" {
			args = "{}"
		}
		for off := 0; off < len(args); {
			end := chunkEnd(args, off, argChunkSize)
			delta := streamDelta{}
			if !wroteRole {
				delta.Role = "assistant"
				wroteRole = true
			}
			fn := streamFunction{Arguments: args[off:end]}
			if off == 0 {
				fn.Name = c.Name
			}
			delta.ToolCalls = []streamToolDelta{{Index: i, ID: c.ID, Type: "function", Function: fn}}
			writeChunk(delta, nil)
			off = end
		}
	}

	acc := ""
	final := loop.FinalText
	for off := 0; off < len(final); {
		end := chunkEnd(final, off, textChunkSize)
		piece := final[off:end]
		delta := streamDelta{Content: &piece}
		if !wroteRole {
			delta.Role = "assistant"
			wroteRole = true
		}
		writeChunk(delta, nil)
		acc += piece
		off = end
	}

	finish := loop.FinishReason(nil)
	writeChunk(streamDelta{}, &finish)

	s.persistCompletion(call, loop, acc)

	writeSSEDone(w, flusher)
}
