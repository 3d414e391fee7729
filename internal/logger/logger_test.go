package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.Disabled, ParseLevel("off"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
}

func TestCtxFallsBackToGlobal(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info"}, &buf)
	ctx := WithLogger(context.Background(), l)

	got := Ctx(ctx)
	got.Info().Msg("hello")
	assert.Contains(t, buf.String(), `"message":"hello"`)

	assert.NotPanics(t, func() {
		g := Ctx(context.Background())
		g.Debug().Msg("ignored")
	})
}

func TestHTTPMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: "info", ServiceName: "chat"}, &buf)

	h := HTTPMiddleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := Ctx(r.Context())
		l.Info().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/rooms/general", nil)
	req.Header.Set(headerRequestID, "req-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "req-1", rr.Header().Get(headerRequestID))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var done map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[1], &done))
	assert.Equal(t, "request completed", done["message"])
	assert.Equal(t, "req-1", done[FieldRequestID])
	assert.Equal(t, "/rooms/general", done[FieldPath])
	assert.Equal(t, "chat", done[FieldService])
	assert.EqualValues(t, http.StatusTeapot, done[FieldStatus])
}
