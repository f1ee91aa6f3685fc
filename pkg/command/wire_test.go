package command_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/merklekv-mobile/pkg/command"
	"github.com/cuemby/merklekv-mobile/pkg/merr"
	"github.com/cuemby/merklekv-mobile/pkg/types"
)

func TestDecodeCommandUsesWireFieldNames(t *testing.T) {
	payload := []byte(`{"id":"abc","op":"SET","key":"k","value":"v"}`)

	cmd, err := command.DecodeCommand(payload)
	require.NoError(t, err)
	require.Equal(t, "abc", cmd.ID)
	require.Equal(t, types.CmdSet, cmd.Op)
	require.Equal(t, "k", cmd.Key)
	require.Equal(t, "v", cmd.Value)
}

func TestEncodeResponseUsesWireFieldNames(t *testing.T) {
	resp := types.Response{ID: "abc", Status: types.StatusOK, Value: "v"}

	b, err := command.EncodeResponse(resp)
	require.NoError(t, err)
	require.Contains(t, string(b), `"id":"abc"`)
	require.Contains(t, string(b), `"status":"OK"`)
	require.Contains(t, string(b), `"value":"v"`)
}

func TestDecodeCommandRejectsOversizedPayload(t *testing.T) {
	oversized := bytes.Repeat([]byte("a"), types.MaxCommandPayloadBytes+1)

	_, err := command.DecodeCommand(oversized)
	require.Error(t, err)
	require.Equal(t, merr.Validation, merr.KindOf(err))
}

func TestEncodeResponseErrorShape(t *testing.T) {
	resp := types.Response{
		ID:     "abc",
		Status: types.StatusError,
		Error:  &types.ResponseError{Code: "NOT_FOUND", Message: "missing key"},
	}

	b, err := command.EncodeResponse(resp)
	require.NoError(t, err)
	require.Contains(t, string(b), `"code":"NOT_FOUND"`)
	require.Contains(t, string(b), `"message":"missing key"`)
}
