// Package topic derives and validates the MQTT topics a node uses: its
// command topic, its response topic, the shared replication topic, and
// the per-peer anti-entropy request/response topics.
package topic

import (
	"strings"
	"unicode/utf8"

	"github.com/cuemby/merklekv-mobile/pkg/merr"
)

const maxTopicLen = 256

// Scheme derives the fixed topic layout from a prefix and a client id.
type Scheme struct {
	Prefix   string
	ClientID string
}

// Commands returns "{prefix}/commands/{clientId}".
func (s Scheme) Commands() string { return s.Prefix + "/commands/" + s.ClientID }

// Responses returns "{prefix}/responses/{clientId}".
func (s Scheme) Responses() string { return s.Prefix + "/responses/" + s.ClientID }

// Replication returns "{prefix}/replication/events", shared by every node
// under the prefix.
func (s Scheme) Replication() string { return s.Prefix + "/replication/events" }

// AntiEntropyRequest returns the topic this node publishes digest/entries
// requests to on peerID, "{prefix}/antientropy/{peerId}/request".
func (s Scheme) AntiEntropyRequest(peerID string) string {
	return s.Prefix + "/antientropy/" + peerID + "/request"
}

// AntiEntropyResponse returns the topic this node listens on for replies
// to its own anti-entropy requests, "{prefix}/antientropy/{clientId}/response".
func (s Scheme) AntiEntropyResponse() string {
	return s.Prefix + "/antientropy/" + s.ClientID + "/response"
}

// Validate rejects topics this node is about to publish to: wildcards
// (publishing to a wildcard topic is always a mistake, never intentional),
// invalid UTF-8, leading/trailing slashes, and topics past the length
// ceiling.
func Validate(t string) error {
	if t == "" {
		return merr.New(merr.Validation, "topic must not be empty")
	}
	if !utf8.ValidString(t) {
		return merr.New(merr.Validation, "topic must be valid UTF-8")
	}
	if len(t) > maxTopicLen {
		return merr.New(merr.Validation, "topic exceeds maximum length")
	}
	if strings.HasPrefix(t, "/") || strings.HasSuffix(t, "/") {
		return merr.New(merr.Validation, "topic must not have leading/trailing slash")
	}
	if strings.ContainsAny(t, "+#") {
		return merr.New(merr.Validation, "topic must not contain wildcards")
	}
	return nil
}
