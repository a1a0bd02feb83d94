package upstream

import (
	"fmt"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupFrameShape(t *testing.T) {
	frame := setupFrame{Setup: setupPayload{
		Model:             "models/gemini-2.0-flash-exp",
		SystemInstruction: &content{Parts: []part{{Text: "be brief"}}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: "Aoede"}},
			},
		},
	}}
	data, err := sonic.Marshal(frame)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"setup": {
			"model": "models/gemini-2.0-flash-exp",
			"systemInstruction": {"parts": [{"text": "be brief"}]},
			"generationConfig": {
				"responseModalities": ["AUDIO"],
				"speechConfig": {"voiceConfig": {"prebuiltVoiceConfig": {"voiceName": "Aoede"}}}
			}
		}
	}`, string(data))
}

func TestRealtimeFrameShape(t *testing.T) {
	frame := realtimeFrame{RealtimeInput: realtimeInput{
		MediaChunks: []mediaChunk{{MimeType: "audio/pcm;rate=16000", Data: "cGNt"}},
	}}
	data, err := sonic.Marshal(frame)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"realtimeInput": {"mediaChunks": [{"mimeType": "audio/pcm;rate=16000", "data": "cGNt"}]}
	}`, string(data))
}

type recordedEvents struct {
	ready        int
	audio        []string
	text         []string
	turnComplete int
	interrupted  int
	errs         []error
}

func bindRecorder(c *Client) *recordedEvents {
	rec := &recordedEvents{}
	c.Bind(Handlers{
		OnReady:        func() { rec.ready++ },
		OnAudio:        func(data string) { rec.audio = append(rec.audio, data) },
		OnText:         func(text string) { rec.text = append(rec.text, text) },
		OnTurnComplete: func() { rec.turnComplete++ },
		OnInterrupted:  func() { rec.interrupted++ },
		OnError:        func(err error) { rec.errs = append(rec.errs, err) },
	})
	return rec
}

func TestDispatchSetupComplete(t *testing.T) {
	c := &Client{}
	rec := bindRecorder(c)
	c.dispatch([]byte(`{"setupComplete": {}}`))
	assert.Equal(t, 1, rec.ready)
	assert.Empty(t, rec.audio)
}

func TestDispatchModelTurnParts(t *testing.T) {
	c := &Client{}
	rec := bindRecorder(c)
	c.dispatch([]byte(`{
		"serverContent": {
			"modelTurn": {"parts": [
				{"inlineData": {"mimeType": "audio/pcm;rate=24000", "data": "cGNt"}},
				{"text": "hello there"}
			]}
		}
	}`))
	assert.Equal(t, []string{"cGNt"}, rec.audio)
	assert.Equal(t, []string{"hello there"}, rec.text)
	assert.Zero(t, rec.turnComplete)
}

func TestDispatchTurnCompleteAndInterrupted(t *testing.T) {
	c := &Client{}
	rec := bindRecorder(c)
	c.dispatch([]byte(`{"serverContent": {"turnComplete": true}}`))
	c.dispatch([]byte(`{"serverContent": {"interrupted": true}}`))
	assert.Equal(t, 1, rec.turnComplete)
	assert.Equal(t, 1, rec.interrupted)
}

func TestDispatchError(t *testing.T) {
	c := &Client{}
	rec := bindRecorder(c)
	c.dispatch([]byte(`{"error": {"code": 400, "message": "bad setup", "status": "INVALID_ARGUMENT"}}`))
	require.Len(t, rec.errs, 1)
	assert.Contains(t, rec.errs[0].Error(), "bad setup")
}

func TestDispatchDropsMalformedFrame(t *testing.T) {
	c := &Client{}
	rec := bindRecorder(c)
	c.dispatch([]byte(`{{{`))
	assert.Equal(t, &recordedEvents{}, rec)
}

func TestDispatchNilHandlersDoNotPanic(t *testing.T) {
	c := &Client{}
	for i, frame := range []string{
		`{"setupComplete": {}}`,
		`{"serverContent": {"modelTurn": {"parts": [{"text": "x"}]}, "turnComplete": true}}`,
		`{"error": {"message": "x"}}`,
	} {
		assert.NotPanics(t, func() { c.dispatch([]byte(frame)) }, fmt.Sprintf("frame %d", i))
	}
}
