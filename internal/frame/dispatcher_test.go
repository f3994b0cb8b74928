package frame

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchToken(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	var got string
	d.HandleToken(TokenGetSpectrum, func(token string) { got = token })

	d.Dispatch([]byte("GET_SPECTRUM"))
	assert.Equal(t, TokenGetSpectrum, got)
}

func TestDispatchJSONByType(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	var gotBody []byte
	d.HandleJSON(TypeSetAcq, func(frameType string, body []byte) { gotBody = body })

	d.Dispatch([]byte(`{"type":"SET_ACQ","integration_ms":5,"average":2}`))
	require.NotNil(t, gotBody)

	var cmd SetAcq
	require.NoError(t, json.Unmarshal(gotBody, &cmd))
	assert.Equal(t, 5, cmd.IntegrationMs)
	assert.Equal(t, 2, cmd.Average)
}

func TestDispatchUnknownToken(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	var unknown string
	d.OnUnknown = func(command string) { unknown = command }

	d.Dispatch([]byte("FROBNICATE"))
	assert.Equal(t, "FROBNICATE", unknown)
}

func TestDispatchUnknownJSONType(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	var unknown string
	d.OnUnknown = func(command string) { unknown = command }

	d.Dispatch([]byte(`{"type":"NO_SUCH_OP"}`))
	assert.Equal(t, "NO_SUCH_OP", unknown)
}

func TestMalformedJSONIsTextNotCommand(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	var text string
	var unknownCalled bool
	d.OnText = func(line string) { text = line }
	d.OnUnknown = func(string) { unknownCalled = true }

	d.Dispatch([]byte(`{"type": "REQ_DARK"`)) // missing closing brace
	assert.NotEmpty(t, text)
	assert.False(t, unknownCalled, "malformed JSON must never route as a command")
}

func TestJSONWithoutTypeIsText(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	var text string
	d.OnText = func(line string) { text = line }

	d.Dispatch([]byte(`{"integration_ms": 7}`))
	assert.Equal(t, `{"integration_ms": 7}`, text)
}
