package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParsesLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{" warn ", logrus.WarnLevel},
		{"", logrus.InfoLevel},
		{"nonsense", logrus.InfoLevel},
	}
	for _, tt := range tests {
		log := New("test", Config{Level: tt.in, Output: &bytes.Buffer{}})
		assert.Equal(t, tt.want, log.GetLevel(), "level %q", tt.in)
	}
}

func TestJSONOutputCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New("coordinator", Config{Level: "info", Format: "JSON", Output: &buf})

	log.WithField("sub_id", 7).Info("subscription created")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "coordinator", line["component"])
	assert.Equal(t, "subscription created", line["msg"])
	assert.EqualValues(t, 7, line["sub_id"])
}

func TestNamedSharesSink(t *testing.T) {
	var buf bytes.Buffer
	root := New("root", Config{Level: "info", Format: "json", Output: &buf})
	child := root.Named("wrapper")

	assert.Equal(t, "wrapper", child.Component())
	assert.Equal(t, "root", root.Component())

	child.WithFields(logrus.Fields{"a": 1}).Info("hello")
	assert.Contains(t, buf.String(), `"component":"wrapper"`)
}

func TestWithContextAddsTraceID(t *testing.T) {
	var buf bytes.Buffer
	log := New("http", Config{Level: "info", Format: "json", Output: &buf})

	ctx := WithTraceID(context.Background(), "abc-123")
	assert.Equal(t, "abc-123", TraceID(ctx))
	log.WithContext(ctx).Info("request")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "abc-123", line["trace_id"])

	buf.Reset()
	log.WithContext(context.Background()).Info("untraced")
	assert.NotContains(t, buf.String(), "trace_id")
}

func TestTraceIDNilContext(t *testing.T) {
	assert.Empty(t, TraceID(nil))
}

func TestNewDiscardDropsEverything(t *testing.T) {
	log := NewDiscard("test")
	assert.Equal(t, logrus.PanicLevel, log.GetLevel())
	log.WithError(assert.AnError).Error("ignored")
}
