package tts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoogleSynthesizeFetchesChunksInOrder(t *testing.T) {
	var queries []url.Values
	var userAgents []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query())
		userAgents = append(userAgents, r.Header.Get("User-Agent"))
		w.Write([]byte("MP3" + r.URL.Query().Get("idx")))
	}))
	defer server.Close()

	cfg := newTestConfig(t)
	cfg.GoogleURL = server.URL
	engine := NewGoogleEngine(newTestLogger(), cfg)
	require.NoError(t, engine.Initialize())

	// 24 five-letter words do not fit in one 100-character chunk
	longText := strings.TrimSpace(strings.Repeat("hello world ", 12))
	result, err := engine.Synthesize(context.Background(), Request{Text: longText, Language: "en", Speed: 1.0})
	require.NoError(t, err)

	require.Len(t, queries, 2)
	assert.Equal(t, "UTF-8", queries[0].Get("ie"))
	assert.Equal(t, "en", queries[0].Get("tl"))
	assert.Equal(t, "tw-ob", queries[0].Get("client"))
	assert.Equal(t, "0", queries[0].Get("idx"))
	assert.Equal(t, "1", queries[1].Get("idx"))
	assert.Equal(t, "2", queries[0].Get("total"))
	assert.Contains(t, userAgents[0], "Mozilla")

	data, err := os.ReadFile(result.AudioPath)
	require.NoError(t, err)
	assert.Equal(t, "MP30MP31", string(data), "chunk audio should be concatenated in order")
	assert.True(t, strings.HasSuffix(result.Filename, ".mp3"))
}

func TestGoogleSynthesizeRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("MP3"))
	}))
	defer server.Close()

	cfg := newTestConfig(t)
	cfg.GoogleURL = server.URL
	engine := NewGoogleEngine(newTestLogger(), cfg)
	require.NoError(t, engine.Initialize())

	result, err := engine.Synthesize(context.Background(), Request{Text: "hello", Language: "en"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(3))

	data, err := os.ReadFile(result.AudioPath)
	require.NoError(t, err)
	assert.Equal(t, "MP3", string(data))
}

func TestGoogleSynthesizeClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	cfg := newTestConfig(t)
	cfg.GoogleURL = server.URL
	engine := NewGoogleEngine(newTestLogger(), cfg)
	require.NoError(t, engine.Initialize())

	_, err := engine.Synthesize(context.Background(), Request{Text: "hello", Language: "en"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSplitTextRespectsWordBoundaries(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("alpha beta gamma ", 10))
	chunks := splitText(text, 30)
	require.NotEmpty(t, chunks)

	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 30)
		assert.False(t, strings.HasPrefix(chunk, " "))
		assert.False(t, strings.HasSuffix(chunk, " "))
	}

	// No words lost or reordered
	assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(chunks, " ")))
}

func TestSplitTextHardSplitsOversizedWords(t *testing.T) {
	word := strings.Repeat("a", 25)
	chunks := splitText(word, 10)
	assert.Equal(t, []string{strings.Repeat("a", 10), strings.Repeat("a", 10), strings.Repeat("a", 5)}, chunks)
}

func TestSplitTextEmptyInput(t *testing.T) {
	assert.Empty(t, splitText("", 100))
	assert.Empty(t, splitText("   \n\t", 100))
}

func TestSplitTextSingleChunk(t *testing.T) {
	chunks := splitText("a short sentence", 100)
	assert.Equal(t, []string{"a short sentence"}, chunks)
}
