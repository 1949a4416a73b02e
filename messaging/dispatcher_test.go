package messaging

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/loom/errors"
	"github.com/xraph/loom/internal/container"
	"github.com/xraph/loom/internal/dispatch"
	"github.com/xraph/loom/internal/graph"
	"github.com/xraph/loom/internal/pipeline"
	"github.com/xraph/loom/internal/shared"
	"github.com/xraph/loom/logger"
)

func newTestBridge(t *testing.T, root *shared.Module) *dispatch.Bridge {
	t.Helper()
	g, err := graph.Resolve(root)
	require.NoError(t, err)
	c := container.New(g)
	table, err := pipeline.Build(context.Background(), g, c)
	require.NoError(t, err)
	return dispatch.NewBridge(g, c, table, logger.NewNoopLogger())
}

// sumInput and sumOutput exercise Call's marshalling on both ends.
type sumInput struct {
	A int `json:"a"`
	B int `json:"b"`
}

type sumOutput struct {
	Total int `json:"total"`
}

func registerSum(t *testing.T, bridge *dispatch.Bridge) {
	t.Helper()
	err := bridge.RegisterPattern("root", shared.PatternHandler{
		Pattern: shared.PatternOf(map[string]string{"cmd": "math.sum"}),
		Handle: func(ctx context.Context, payload []byte) ([]byte, error) {
			var in sumInput
			if err := codec.Unmarshal(payload, &in); err != nil {
				return nil, errors.BadRequest("bad sum input")
			}
			return codec.Marshal(sumOutput{Total: in.A + in.B})
		},
	})
	require.NoError(t, err)
}

func TestDispatcherRoutesByPattern(t *testing.T) {
	bridge := newTestBridge(t, &shared.Module{Name: "root"})
	registerSum(t, bridge)
	d := NewDispatcher(bridge, logger.NewNoopLogger())

	reply, err := d.Dispatch(context.Background(), map[string]string{"cmd": "math.sum"}, []byte(`{"a":2,"b":3}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":5}`, string(reply))
}

func TestDispatcherUnknownPatternIsNotFound(t *testing.T) {
	d := NewDispatcher(newTestBridge(t, &shared.Module{Name: "root"}), nil)

	_, err := d.Dispatch(context.Background(), "no.such.pattern", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, errors.GetHTTPStatusCode(err))
	assert.Contains(t, err.Error(), "no.such.pattern")
}

func TestDispatcherCallMarshalsBothEnds(t *testing.T) {
	bridge := newTestBridge(t, &shared.Module{Name: "root"})
	registerSum(t, bridge)
	d := NewDispatcher(bridge, nil)

	var out sumOutput
	err := d.Call(context.Background(), map[string]string{"cmd": "math.sum"}, sumInput{A: 40, B: 2}, &out)
	require.NoError(t, err)
	assert.Equal(t, 42, out.Total)

	// A nil out discards the reply.
	err = d.Call(context.Background(), map[string]string{"cmd": "math.sum"}, sumInput{A: 1, B: 1}, nil)
	require.NoError(t, err)
}

func TestDispatcherHandlersSeeModuleScopedResolver(t *testing.T) {
	root := &shared.Module{
		Name:      "root",
		Providers: []shared.Provider{{Token: "Greeting", Value: "hello"}},
	}
	bridge := newTestBridge(t, root)

	require.NoError(t, bridge.RegisterPattern("root", shared.PatternHandler{
		Pattern: shared.PatternOf("greet"),
		Handle: func(ctx context.Context, payload []byte) ([]byte, error) {
			r, ok := dispatch.ResolverFromContext(ctx)
			require.True(t, ok)
			greeting, err := r.Resolve(ctx, "Greeting")
			require.NoError(t, err)
			return codec.Marshal(greeting)
		},
	}))

	d := NewDispatcher(bridge, nil)
	reply, err := d.Dispatch(context.Background(), "greet", nil)
	require.NoError(t, err)
	assert.Equal(t, `"hello"`, string(reply))
}

func TestHandleEnvelopeBuildsCorrelatedReplies(t *testing.T) {
	bridge := newTestBridge(t, &shared.Module{Name: "root"})
	registerSum(t, bridge)
	require.NoError(t, bridge.RegisterPattern("root", shared.PatternHandler{
		Pattern: shared.PatternOf("always.fails"),
		Handle: func(ctx context.Context, payload []byte) ([]byte, error) {
			return nil, errors.Conflict("already exists")
		},
	}))
	d := NewDispatcher(bridge, nil)

	ok := d.HandleEnvelope(context.Background(), Envelope{
		ID:      "call-1",
		Pattern: patternKey(map[string]string{"cmd": "math.sum"}),
		Data:    []byte(`{"a":1,"b":2}`),
	})
	assert.Equal(t, "call-1", ok.ID)
	assert.Nil(t, ok.Error)
	assert.JSONEq(t, `{"total":3}`, string(ok.Data))

	failed := d.HandleEnvelope(context.Background(), Envelope{ID: "call-2", Pattern: "always.fails"})
	assert.Equal(t, "call-2", failed.ID)
	require.NotNil(t, failed.Error)
	assert.Equal(t, "CONFLICT", failed.Error.Code)
	assert.Equal(t, "already exists", failed.Error.Message)
}

func TestHandleEnvelopeReportsUnknownPatterns(t *testing.T) {
	d := NewDispatcher(newTestBridge(t, &shared.Module{Name: "root"}), nil)

	reply := d.HandleEnvelope(context.Background(), Envelope{ID: "x", Pattern: "ghost"})
	require.NotNil(t, reply.Error)
	assert.Equal(t, "NOT_FOUND", reply.Error.Code)
}

func TestDispatcherHonoursCancellation(t *testing.T) {
	bridge := newTestBridge(t, &shared.Module{Name: "root"})
	ran := false
	require.NoError(t, bridge.RegisterPattern("root", shared.PatternHandler{
		Pattern: shared.PatternOf("slow"),
		Handle: func(ctx context.Context, payload []byte) ([]byte, error) {
			ran = true
			return nil, nil
		},
	}))
	d := NewDispatcher(bridge, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Dispatch(ctx, "slow", nil)
	require.Error(t, err)
	assert.True(t, errors.IsContextCancelled(err))
	assert.False(t, ran)
}
