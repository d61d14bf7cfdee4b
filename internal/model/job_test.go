package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRequest_LengthAcceptsStringOrNumber(t *testing.T) {
	tests := []struct {
		name string
		body string
		want LengthHint
	}{
		{"string", `{"vision":"neon city","length":"60"}`, "60"},
		{"number", `{"vision":"neon city","length":120}`, "120"},
		{"null", `{"vision":"neon city","length":null}`, ""},
		{"missing", `{"vision":"neon city"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req CreateRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			assert.Equal(t, tt.want, req.Length)
		})
	}
}

func TestCreateRequest_LengthRejectsObjects(t *testing.T) {
	var req CreateRequest
	err := json.Unmarshal([]byte(`{"length":{"secs":60}}`), &req)
	assert.Error(t, err)
}

func TestCreateRequest_TargetAndKind(t *testing.T) {
	withArtist := CreateRequest{Artist: "Daft Punk", Vision: "ignored"}
	assert.Equal(t, "Daft Punk", withArtist.Target())
	assert.Equal(t, KindArtist, withArtist.Kind())

	withVision := CreateRequest{Artist: "  ", Vision: "neon city"}
	assert.Equal(t, "neon city", withVision.Target())
	assert.Equal(t, KindVision, withVision.Kind())

	assert.Equal(t, "60 sec", LengthHint("60").Seconds())
	assert.Equal(t, "", LengthHint("").Seconds())
}

func TestArtifactKeys(t *testing.T) {
	assert.Equal(t, "pending/abc.json", PendingRequestKey("abc"))
	assert.Equal(t, "pending/abc.mp3", PendingAudioKey("abc"))
	assert.Equal(t, "audio/abc_60s.mp3", AudioKey("abc", 60))
	assert.Equal(t, "complete/abc.mp4", VideoKey("abc"))
}

func TestErrorTaxonomy(t *testing.T) {
	cfgErr := &ConfigError{Service: "gemini", Setting: "GEMINI_API_KEY"}
	assert.ErrorIs(t, cfgErr, ErrNotConfigured)
	assert.Equal(t, "gemini: missing GEMINI_API_KEY", cfgErr.Error())

	transient := NewTransientError("suno", assert.AnError)
	assert.True(t, IsTransient(transient))
	assert.ErrorIs(t, transient, assert.AnError)
	assert.False(t, IsProtocol(transient))

	protocol := NewProtocolError("runware", "no image url in %d results", 0)
	assert.True(t, IsProtocol(protocol))
	assert.False(t, IsTransient(protocol))
}
