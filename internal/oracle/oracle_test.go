package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

// #region client-tests

func TestClientTrimsReply(t *testing.T) {
	c := NewClient(NewTranscript("hello world \n\n"), "m")
	got, err := c.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
}

func TestClientRetriesAbnormalFinish(t *testing.T) {
	tb := NewTranscriptCompletions(
		Completion{Text: "partial", FinishReason: "length"},
		Completion{Text: "partial", FinishReason: "length"},
		Completion{Text: "done", FinishReason: FinishStop},
	)
	c := NewClient(tb, "m")
	got, err := c.Invoke(context.Background(), []Message{User("x")})
	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Len(t, tb.Calls(), 3)
}

func TestClientRaisesTransportErrorAfterAttempts(t *testing.T) {
	comps := make([]Completion, DefaultAttempts)
	for i := range comps {
		comps[i] = Completion{Text: "cut", FinishReason: "length"}
	}
	tb := NewTranscriptCompletions(comps...)
	c := NewClient(tb, "m")

	_, err := c.Generate(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, IsTransport(err))

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, DefaultAttempts, te.Attempts)
	assert.Equal(t, "length", te.Last)
	assert.Equal(t, 0, tb.Remaining())
}

func TestClientRetriesBackendErrors(t *testing.T) {
	calls := 0
	fn := BackendFunc(func(context.Context, string, []Message) (Completion, error) {
		calls++
		if calls < 3 {
			return Completion{}, errors.New("connection reset")
		}
		return Completion{Text: "ok", FinishReason: FinishStop}, nil
	})
	got, err := NewClient(fn, "m").Generate(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestClientStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fn := BackendFunc(func(ctx context.Context, _ string, _ []Message) (Completion, error) {
		return Completion{}, ctx.Err()
	})
	_, err := NewClient(fn, "m").Generate(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRouterFallsBackToDefault(t *testing.T) {
	def, _ := NewScripted("default")
	special, _ := NewScripted("special")
	r := Router{Default: def, Stages: map[string]Oracle{"assign_placement": special}}
	assert.Same(t, special, r.For("assign_placement"))
	assert.Same(t, def, r.For("extract_layout"))
}

// #endregion client-tests

// #region openai-tests

func TestOpenAIBackendAgainstCompatibleServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"model":  req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "echo: " + req.Messages[len(req.Messages)-1].Content},
				"finish_reason": "stop",
			}},
		})
	}))
	defer srv.Close()

	c := NewClient(NewOpenAIBackend(srv.URL+"/v1", "", 0), "local-model")
	got, err := c.Generate(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "echo: ping", got)
}

// #endregion openai-tests

// #region grpc-tests

func TestGRPCBackendRoundTrip(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterCompletionServer(s, BackendServer{Backend: BackendFunc(func(_ context.Context, model string, msgs []Message) (Completion, error) {
		return Completion{Text: model + ":" + string(msgs[0].Role) + ":" + msgs[len(msgs)-1].Content, FinishReason: FinishStop}, nil
	})})
	go s.Serve(lis)
	defer s.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	c := NewClient(NewGRPCBackendWithConn(conn), "remote")
	got, err := c.Invoke(context.Background(), []Message{User("first"), Assistant("mid"), User("last")})
	require.NoError(t, err)
	assert.Equal(t, "remote:user:last", got)
}

func TestRequestCodec(t *testing.T) {
	req, err := encodeRequest("m", []Message{User("a"), Assistant("b")})
	require.NoError(t, err)
	model, msgs := decodeRequest(req)
	assert.Equal(t, "m", model)
	assert.Equal(t, []Message{User("a"), Assistant("b")}, msgs)
}

// #endregion grpc-tests
