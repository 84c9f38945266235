package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestEncoderWritesUTCTimestamps(t *testing.T) {
	enc := zapcore.NewJSONEncoder(encoderConfig())
	at := time.Date(2024, 1, 1, 10, 0, 0, 500, time.FixedZone("CEST", 2*60*60))

	buf, err := enc.EncodeEntry(zapcore.Entry{Level: zapcore.InfoLevel, Time: at, Message: "hello"}, nil)
	require.NoError(t, err)
	defer buf.Free()

	assert.Contains(t, buf.String(), `"ts":"2024-01-01T08:00:00.0000005Z"`)
	assert.Contains(t, buf.String(), `"level":"info"`)
}
