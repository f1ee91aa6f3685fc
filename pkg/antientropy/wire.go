package antientropy

import (
	"encoding/json"

	"github.com/cuemby/merklekv-mobile/pkg/storage"
	"github.com/cuemby/merklekv-mobile/pkg/types"
)

// RequestKind selects which half of a session round a Request asks for.
type RequestKind string

const (
	KindDigest  RequestKind = "digest"
	KindEntries RequestKind = "entries"
)

// Request is the JSON envelope an Exchanger publishes on a peer's
// anti-entropy request topic. ReplyToNodeID tells the peer which response
// topic to answer on; RequestID correlates the reply back to the waiting
// caller.
type Request struct {
	RequestID     string      `json:"request_id"`
	ReplyToNodeID string      `json:"reply_to_node_id"`
	Kind          RequestKind `json:"kind"`
	Buckets       []uint16    `json:"buckets,omitempty"`
}

// Response is the JSON envelope published back on the requester's
// response topic.
type Response struct {
	RequestID string        `json:"request_id"`
	Digest    Digest        `json:"digest,omitempty"`
	Entries   []types.Entry `json:"entries,omitempty"`
	Error     string        `json:"error,omitempty"`
}

func EncodeRequest(r Request) ([]byte, error)   { return json.Marshal(r) }
func DecodeRequest(b []byte) (Request, error)   { var r Request; err := json.Unmarshal(b, &r); return r, err }
func EncodeResponse(r Response) ([]byte, error) { return json.Marshal(r) }
func DecodeResponse(b []byte) (Response, error) {
	var r Response
	err := json.Unmarshal(b, &r)
	return r, err
}

// Respond computes the local answer to req against engine. It is the peer
// side of a session round: the node receiving a Request calls this and
// publishes the Response back to req.ReplyToNodeID.
func Respond(engine storage.Engine, req Request) Response {
	entries, err := engine.AllEntries()
	if err != nil {
		return Response{RequestID: req.RequestID, Error: err.Error()}
	}

	switch req.Kind {
	case KindDigest:
		return Response{RequestID: req.RequestID, Digest: Compute(entries)}
	case KindEntries:
		want := make(map[uint16]bool, len(req.Buckets))
		for _, b := range req.Buckets {
			want[b] = true
		}
		var matched []types.Entry
		for _, e := range entries {
			if want[BucketFor(e.Key)] {
				matched = append(matched, e)
			}
		}
		return Response{RequestID: req.RequestID, Entries: matched}
	default:
		return Response{RequestID: req.RequestID, Error: "unknown request kind"}
	}
}
