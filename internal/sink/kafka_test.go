package sink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/paralela17-sudo/tradepulse-bot/internal/asset"
	"github.com/paralela17-sudo/tradepulse-bot/internal/scanner"
	"github.com/paralela17-sudo/tradepulse-bot/internal/signal"
)

type mockWriter struct{ mock.Mock }

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockWriter) Close() error { return m.Called().Error(0) }

func report() scanner.Report {
	return scanner.Report{
		ID:        uuid.MustParse("6a1f2b3c-4d5e-4f60-8a7b-9c0d1e2f3a4b"),
		StartedAt: time.Unix(1_700_000_000, 0).UTC(),
		Ranked: []scanner.Result{
			{Asset: asset.Asset{Symbol: "btcusdt", Name: "Bitcoin"}, Price: 64000, Source: "binance",
				Prediction: signal.Prediction{Probability: 96, Signal: signal.Buy, Rationale: "CRITICAL"}},
			{Asset: asset.Asset{Symbol: "ethusdt", Name: "Ethereum"}, Price: 3400, Source: "bybit",
				Prediction: signal.Prediction{Probability: 82, Signal: signal.Sell}},
			{Asset: asset.Asset{Symbol: "solusdt"}, Prediction: signal.Prediction{Probability: 55, Signal: signal.Wait}},
		},
	}
}

func TestKafkaPublishesOpportunitiesAboveThreshold(t *testing.T) {
	w := &mockWriter{}
	var sent []kafka.Message
	w.On("WriteMessages", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(1).([]kafka.Message)
	}).Return(nil).Once()

	k := NewKafka(w, KafkaConfig{Topic: "opportunities"}, zerolog.Nop())
	require.NoError(t, k.Publish(context.Background(), report()))
	w.AssertExpectations(t)

	require.Len(t, sent, 2)
	assert.Equal(t, "BTCUSDT", string(sent[0].Key))
	assert.Equal(t, "scan_id", sent[0].Headers[0].Key)

	var msg Message
	require.NoError(t, json.Unmarshal(sent[1].Value, &msg))
	assert.Equal(t, "ethusdt", msg.Symbol)
	assert.Equal(t, "SELL", msg.Signal)
	assert.Equal(t, "medium", msg.Tier)
	assert.Equal(t, "6a1f2b3c-4d5e-4f60-8a7b-9c0d1e2f3a4b", msg.ScanID)
}

func TestKafkaSkipsEmptyReports(t *testing.T) {
	w := &mockWriter{}
	k := NewKafka(w, KafkaConfig{Threshold: 97}, zerolog.Nop())
	require.NoError(t, k.Publish(context.Background(), report()))
	w.AssertNotCalled(t, "WriteMessages", mock.Anything, mock.Anything)
}

func TestKafkaWrapsWriteError(t *testing.T) {
	w := &mockWriter{}
	boom := errors.New("broker down")
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(boom)
	w.On("Close").Return(nil)

	k := NewKafka(w, KafkaConfig{}, zerolog.Nop())
	err := k.Publish(context.Background(), report())
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, k.Close())
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "opps"})
	assert.Equal(t, "opps", w.Topic)
	assert.Equal(t, "localhost:9092", w.Addr.String())
}
