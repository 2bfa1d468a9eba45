package logger

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLinesRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	session := NewJSONLinesLogRecorder(&buf).NewSession()
	session.now = func() time.Time { return time.UnixMicro(1234) }

	require.NoError(t, session.Record(Event{Type: SessionStart}))
	require.NoError(t, session.Record(Event{
		Type:    PipelineFinished,
		Line:    "false",
		Program: "false",
		Stages:  1,
		Status:  IntPtr(1),
	}))

	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	var got []Event
	err := ReadJSONLinesLog(&buf, func(e *Event) {
		got = append(got, *e)
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	for _, e := range got {
		assert.Equal(t, int64(1234), e.TimestampMicros)
		assert.Equal(t, session.SessionID(), e.SessionID)
	}
	assert.Equal(t, SessionStart, got[0].Type)
	assert.Nil(t, got[0].Status)
	assert.Equal(t, "false", got[1].Line)
	require.NotNil(t, got[1].Status)
	assert.Equal(t, 1, *got[1].Status)
}

func TestSessionsHaveDistinctIDs(t *testing.T) {
	logger := NewNopLogger()
	a, b := logger.NewSession(), logger.NewSession()
	assert.NotEmpty(t, a.SessionID())
	assert.NotEqual(t, a.SessionID(), b.SessionID())
	assert.NoError(t, a.Record(Event{Type: SessionEnd}))
}

func TestRecordError(t *testing.T) {
	boom := errors.New("boom")
	logger := &Logger{Record: func(*Event) error { return boom }}
	assert.ErrorIs(t, logger.NewSession().Record(Event{Type: SessionStart}), boom)
}

func TestReadJSONLinesLogMalformed(t *testing.T) {
	calls := 0
	err := ReadJSONLinesLog(strings.NewReader(`{"type":"session_start"}`+"\n{not json"), func(*Event) {
		calls++
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
