package ocpp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"csms/backend/services/ocpp-server/internal/events"
	"csms/backend/services/ocpp-server/internal/models"
	"csms/backend/services/ocpp-server/internal/ocpp/protocol"
)

type fakeStore struct {
	mu        sync.Mutex
	ensured   []string
	logged    []*models.ProtocolMessage
	ensureErr error
	logErr    error
	calls     []string
}

func (f *fakeStore) EnsureStation(_ context.Context, id string) (*models.Station, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "ensure")
	f.ensured = append(f.ensured, id)
	if f.ensureErr != nil {
		return nil, f.ensureErr
	}
	return &models.Station{ID: id}, nil
}

func (f *fakeStore) LogMessage(_ context.Context, msg *models.ProtocolMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "log")
	f.logged = append(f.logged, msg)
	return f.logErr
}

func (f *fakeStore) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func newTestProcessor(store *fakeStore, sink events.Sink) (*Processor, *Router, *PendingRequests) {
	router := NewRouter()
	pending := NewPendingRequests()
	return NewProcessor(NewParser(), router, store, pending, sink, zap.NewNop()), router, pending
}

func TestProcessDispatchesKnownAction(t *testing.T) {
	store := &fakeStore{}
	processor, router, _ := newTestProcessor(store, nil)
	router.Register(protocol.ActionHeartbeat, func(ctx context.Context, id string, payload json.RawMessage) (interface{}, error) {
		store.record("handler")
		return map[string]string{"currentTime": "now"}, nil
	})

	out, err := processor.Process(context.Background(), "CP1", []byte(`[2,"1","Heartbeat",{}]`))
	require.NoError(t, err)
	assert.JSONEq(t, `[3,"1",{"currentTime":"now"}]`, string(out))

	assert.Equal(t, []string{"ensure", "handler", "log"}, store.calls)
	require.Len(t, store.logged, 1)
	assert.Equal(t, "CP1", store.logged[0].ChargePointID)
	assert.Equal(t, "Heartbeat", store.logged[0].Action)
	assert.Equal(t, "1", store.logged[0].MessageID)
	assert.JSONEq(t, `{}`, string(store.logged[0].Request))
	assert.Equal(t, out, store.logged[0].Response)
}

func TestProcessUnknownActionIsNotSupported(t *testing.T) {
	store := &fakeStore{}
	processor, _, _ := newTestProcessor(store, nil)

	out, err := processor.Process(context.Background(), "CP1", []byte(`[2,"7","Teleport",{}]`))
	require.NoError(t, err)
	assert.JSONEq(t, `[4,"7","NotSupported","Action Teleport is not supported",{}]`, string(out))
	assert.Empty(t, store.calls)
}

func TestProcessMalformedFrameIsDropped(t *testing.T) {
	store := &fakeStore{}
	processor, _, _ := newTestProcessor(store, nil)

	out, err := processor.Process(context.Background(), "CP1", []byte(`{"not":"a frame"}`))
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Empty(t, store.calls)
}

func TestProcessCollaboratorFailuresDoNotBreakExchange(t *testing.T) {
	store := &fakeStore{ensureErr: errors.New("db down"), logErr: errors.New("db down")}
	processor, router, _ := newTestProcessor(store, nil)
	router.Register(protocol.ActionHeartbeat, func(context.Context, string, json.RawMessage) (interface{}, error) {
		return protocol.EmptyResponse{}, nil
	})

	out, err := processor.Process(context.Background(), "CP1", []byte(`[2,"1","Heartbeat",{}]`))
	require.NoError(t, err)
	assert.JSONEq(t, `[3,"1",{}]`, string(out))
}

func TestProcessHandlerErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler HandlerFunc
		payload string
		want    string
	}{
		{
			name: "error with fallback payload",
			handler: func(context.Context, string, json.RawMessage) (interface{}, error) {
				return protocol.StatusResponse{Status: protocol.StatusRejected}, errors.New("store failed")
			},
			payload: `{}`,
			want:    `[3,"9",{"status":"Rejected"}]`,
		},
		{
			name: "error without payload",
			handler: func(context.Context, string, json.RawMessage) (interface{}, error) {
				return nil, errors.New("store failed")
			},
			payload: `{}`,
			want:    `[4,"9","InternalError","Internal error while processing Authorize",{}]`,
		},
		{
			name: "panic",
			handler: func(context.Context, string, json.RawMessage) (interface{}, error) {
				panic("nil map")
			},
			payload: `{}`,
			want:    `[4,"9","InternalError","Internal error while processing Authorize",{}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			processor, router, _ := newTestProcessor(store, nil)
			router.Register(protocol.ActionAuthorize, tt.handler)

			out, err := processor.Process(context.Background(), "CP1", []byte(`[2,"9","Authorize",`+tt.payload+`]`))
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(out))
			assert.Len(t, store.logged, 1)
		})
	}
}

func TestProcessFormationViolation(t *testing.T) {
	store := &fakeStore{}
	processor, router, _ := newTestProcessor(store, nil)
	router.Register(protocol.ActionAuthorize, func(_ context.Context, _ string, payload json.RawMessage) (interface{}, error) {
		req, err := Decode[protocol.AuthorizeRequest](payload)
		if err != nil {
			return nil, err
		}
		return req, nil
	})

	out, err := processor.Process(context.Background(), "CP1", []byte(`[2,"5","Authorize",{"idTag":42}]`))
	require.NoError(t, err)

	msg, err := NewParser().Parse(out)
	require.NoError(t, err)
	assert.Equal(t, protocol.MessageTypeCallError, msg.Type)
	assert.Equal(t, protocol.ErrorFormationViolation, msg.ErrorCode)
}

func TestProcessPayloadThatIsNotAnObject(t *testing.T) {
	store := &fakeStore{}
	processor, router, _ := newTestProcessor(store, nil)
	router.Register(protocol.ActionAuthorize, func(_ context.Context, _ string, payload json.RawMessage) (interface{}, error) {
		req, err := Decode[protocol.AuthorizeRequest](payload)
		if err != nil {
			return nil, err
		}
		return req, nil
	})

	for _, payload := range []string{`null`, `["T1"]`, `"T1"`} {
		out, err := processor.Process(context.Background(), "CP1", []byte(`[2,"6","Authorize",`+payload+`]`))
		require.NoError(t, err)

		msg, err := NewParser().Parse(out)
		require.NoError(t, err)
		assert.Equal(t, protocol.MessageTypeCallError, msg.Type, payload)
		assert.Equal(t, protocol.ErrorProtocolError, msg.ErrorCode, payload)
	}
}

func TestProcessCorrelatesReplies(t *testing.T) {
	store := &fakeStore{}
	sink := &events.Recorder{}
	processor, _, pending := newTestProcessor(store, sink)

	pending.Add("CP1", "m-1", protocol.ActionReset)
	pending.Add("CP1", "m-2", protocol.ActionUnlockConnector)

	out, err := processor.Process(context.Background(), "CP1", []byte(`[3,"m-1",{"status":"Accepted"}]`))
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = processor.Process(context.Background(), "CP1", []byte(`[4,"m-2","InternalError","jammed",{}]`))
	require.NoError(t, err)
	assert.Nil(t, out)

	// unknown reply is ignored
	_, err = processor.Process(context.Background(), "CP1", []byte(`[3,"m-3",{}]`))
	require.NoError(t, err)

	recorded := sink.Events()
	require.Len(t, recorded, 2)

	first := recorded[0].Payload.(events.CommandResultPayload)
	assert.Equal(t, events.CommandResult, recorded[0].Name)
	assert.Equal(t, protocol.ActionReset, first.Action)
	assert.Equal(t, "Accepted", first.Status)

	second := recorded[1].Payload.(events.CommandResultPayload)
	assert.Equal(t, protocol.ActionUnlockConnector, second.Action)
	assert.Equal(t, "InternalError", second.ErrorCode)
	assert.Equal(t, "jammed", second.ErrorDescription)

	assert.Zero(t, pending.Len("CP1"))
	assert.Empty(t, store.calls)
}
