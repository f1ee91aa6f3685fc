package command

import (
	"encoding/json"

	"github.com/cuemby/merklekv-mobile/pkg/merr"
	"github.com/cuemby/merklekv-mobile/pkg/types"
)

// DecodeCommand parses the JSON body published on a node's own command
// topic into a Command ready for Dispatch. Payloads over
// types.MaxCommandPayloadBytes are rejected before unmarshaling, per
// spec.md's command-size ceiling.
func DecodeCommand(payload []byte) (types.Command, error) {
	if len(payload) > types.MaxCommandPayloadBytes {
		return types.Command{}, merr.New(merr.Validation, "command payload exceeds maximum byte length")
	}
	var cmd types.Command
	err := json.Unmarshal(payload, &cmd)
	return cmd, err
}

// EncodeResponse serializes resp for publication on the matching
// responses topic.
func EncodeResponse(resp types.Response) ([]byte, error) {
	return json.Marshal(resp)
}
