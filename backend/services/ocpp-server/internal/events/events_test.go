package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	data     [][]byte
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.data = append(f.data, data)
	return f.err
}

func TestMultiFansOutInOrder(t *testing.T) {
	first, second := &Recorder{}, &Recorder{}
	sink := Multi{first, nil, Noop{}, second}

	sink.Emit(StationConnected, ConnectionPayload{ChargePointID: "CP1"})
	sink.Emit(StationDisconnected, ConnectionPayload{ChargePointID: "CP1"})

	assert.Equal(t, []string{StationConnected, StationDisconnected}, first.Names())
	assert.Equal(t, first.Names(), second.Names())
}

func TestNATSSinkPublishesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	sink := newNATSSink(pub, "csms.test.", zap.NewNop())
	sink.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	sink.Emit(TransactionStarted, TransactionStartedPayload{ChargePointID: "CP1", TransactionID: 7, ConnectorID: 1, IDTag: "T1"})

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "csms.test.transaction_started", pub.subjects[0])

	var got struct {
		Event     string          `json:"event"`
		Payload   json.RawMessage `json:"payload"`
		EmittedAt time.Time       `json:"emittedAt"`
	}
	require.NoError(t, json.Unmarshal(pub.data[0], &got))
	assert.Equal(t, TransactionStarted, got.Event)
	assert.Equal(t, sink.now(), got.EmittedAt)
	assert.Contains(t, string(got.Payload), `"transactionId":7`)
}

func TestNATSSinkDefaultsAndFailures(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	sink := newNATSSink(pub, "  ", zap.NewNop())

	assert.Equal(t, DefaultSubjectPrefix+"."+MeterValues, sink.Subject(MeterValues))
	assert.NotPanics(t, func() { sink.Emit(MeterValues, MeterValuesPayload{}) })
	assert.NotPanics(t, func() { sink.Emit(MeterValues, func() {}) })
	assert.Len(t, pub.subjects, 1)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestHubBroadcastsToDashboards(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(zap.NewNop())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	hub.Emit(StationConnected, ConnectionPayload{ChargePointID: "CP7"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, StationConnected, got.Name)
	assert.Equal(t, "CP7", got.Payload.(map[string]interface{})["chargePointId"])

	require.NoError(t, conn.Close())
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func TestHubEmitDoesNotBlockWithoutRun(t *testing.T) {
	hub := NewHub(zap.NewNop())
	done := make(chan struct{})
	go func() {
		for i := 0; i < hubBroadcastBuffer+10; i++ {
			hub.Emit(MeterValues, MeterValuesPayload{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked")
	}
}
