package livehub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeUsesTypeDiscriminator(t *testing.T) {
	cases := []struct {
		msg  Message
		want string
	}{
		{Ping{}, `{"type":"ping"}`},
		{PipelineUpdate{ApplicationID: "a1"}, `{"type":"pipeline-update","applicationId":"a1"}`},
		{DocumentUpdate{ApplicationID: "a1"}, `{"type":"document","applicationId":"a1"}`},
		{ChatMessage{ApplicationID: "a1", Msg: "hi"}, `{"type":"message","applicationId":"a1","msg":"hi"}`},
	}
	for _, tc := range cases {
		data, err := Encode(tc.msg)
		require.NoError(t, err)
		assert.JSONEq(t, tc.want, string(data))
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"telemetry"}`))
	assert.Error(t, err)
}
