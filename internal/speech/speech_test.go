package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "VoiceDot/internal/errors"
)

func TestNormalizeFormat(t *testing.T) {
	cases := []struct {
		in   string
		want string
		code xerrors.Code
	}{
		{"", "webm", ""},
		{"MP3", "mp3", ""},
		{" wav ", "wav", ""},
		{"webm", "webm", ""},
		{"ogg", "", xerrors.CodeUnsupportedMedia},
	}
	for _, tc := range cases {
		got, err := NormalizeFormat(tc.in)
		if tc.code != "" {
			require.Error(t, err, tc.in)
			assert.Equal(t, tc.code, xerrors.CodeOf(err))
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestDecodeAudio(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("0123456789"))

	audio, err := DecodeAudio(payload, 10)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(audio))

	audio, err = DecodeAudio("data:audio/webm;base64,"+payload, 0)
	require.NoError(t, err)
	assert.Len(t, audio, 10)

	_, err = DecodeAudio(payload, 9)
	assert.Equal(t, xerrors.CodePayloadTooLarge, xerrors.CodeOf(err))

	_, err = DecodeAudio("not base64!", 0)
	assert.Equal(t, xerrors.CodeValidation, xerrors.CodeOf(err))

	_, err = DecodeAudio("  ", 0)
	assert.Equal(t, xerrors.CodeValidation, xerrors.CodeOf(err))
}

func TestSealerRoundTrip(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
	sealer, err := NewSealer(key)
	require.NoError(t, err)
	require.True(t, sealer.Encrypted())

	sealed, err := sealer.Seal([]byte("mp3-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "mp3", sealed.Format)
	assert.NotEmpty(t, sealed.IV)
	assert.NotEqual(t, base64.StdEncoding.EncodeToString([]byte("mp3-bytes")), sealed.AudioBase64)

	plain, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "mp3-bytes", string(plain))

	sealed.IV = base64.StdEncoding.EncodeToString(make([]byte, 12))
	_, err = sealer.Open(sealed)
	require.Error(t, err)
}

func TestSealerWithoutKey(t *testing.T) {
	sealer, err := NewSealer("")
	require.NoError(t, err)
	sealed, err := sealer.Seal([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, Audio{AudioBase64: "YWJj", IV: "", Format: "mp3"}, sealed)

	_, err = NewSealer(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Equal(t, xerrors.CodeInitialization, xerrors.CodeOf(err))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *ElevenLabs {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewElevenLabs(Config{APIKey: "xi-test", BaseURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)
	return client
}

func TestTranscribeUploadsMultipart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/speech-to-text", r.URL.Path)
		assert.Equal(t, "xi-test", r.Header.Get("xi-api-key"))
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "scribe_v1", r.FormValue("model_id"))
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		assert.Equal(t, "audio.wav", header.Filename)
		data, _ := io.ReadAll(file)
		assert.Equal(t, "RIFF", string(data))
		_ = json.NewEncoder(w).Encode(map[string]string{"text": " send 1 DOT to bob "})
	})

	text, err := client.Transcribe(context.Background(), []byte("RIFF"), "wav")
	require.NoError(t, err)
	assert.Equal(t, "send 1 DOT to bob", text)
}

func TestSynthesizeReturnsAudio(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/"+defaultVoiceID, r.URL.Path)
		assert.Equal(t, "audio/mpeg", r.Header.Get("Accept"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["text"])
		assert.Equal(t, "eleven_multilingual_v2", body["model_id"])
		_, _ = w.Write([]byte("ID3"))
	})

	audio, err := client.Synthesize(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "ID3", string(audio))
}

func TestElevenLabsErrorsAreUpstream(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	})

	_, err := client.Synthesize(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeUpstream, xerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "402")

	_, err = NewElevenLabs(Config{})
	assert.Equal(t, xerrors.CodeInitialization, xerrors.CodeOf(err))
}
