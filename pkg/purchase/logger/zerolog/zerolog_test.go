package zerolog

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gopurchase/pkg/purchase"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestZerologLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		log   func(l *Logger, msg string, fields ...purchase.Field)
	}{
		{"debug", (*Logger).Debug},
		{"info", (*Logger).Info},
		{"warn", (*Logger).Warn},
		{"error", (*Logger).Error},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var output bytes.Buffer
			logger := NewLogger(zerolog.New(&output))

			tt.log(logger, "test message", purchase.Field{Key: "product_id", Value: "pro"})

			entry := decode(t, &output)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "test message", entry["message"])
			assert.Equal(t, "pro", entry["product_id"])
			assert.Equal(t, "purchase", entry["component"])
		})
	}
}

func TestZerologLogger_FieldTypes(t *testing.T) {
	var output bytes.Buffer
	logger := NewLogger(zerolog.New(&output))

	logger.Info("typed",
		purchase.Field{Key: "changed", Value: true},
		purchase.Field{Key: "count", Value: 3},
		purchase.Field{Key: "error", Value: errors.New("boom")},
		purchase.Field{Key: "identifiers", Value: []string{"a", "b"}},
		purchase.Field{Key: "kind", Value: purchase.ProductPurchased},
	)

	entry := decode(t, &output)
	assert.Equal(t, true, entry["changed"])
	assert.Equal(t, float64(3), entry["count"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, []interface{}{"a", "b"}, entry["identifiers"])
	assert.Equal(t, "product_purchased", entry["kind"])
}

func TestZerologLogger_LevelFiltered(t *testing.T) {
	var output bytes.Buffer
	logger := NewLogger(zerolog.New(&output).Level(zerolog.WarnLevel))

	logger.Debug("hidden")
	logger.Info("hidden")
	assert.Zero(t, output.Len())

	logger.Warn("shown")
	assert.NotZero(t, output.Len())
}
