// Package publish exports executed trades to Kafka.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/Yusufzhafir/hftsim/pkg/model"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	DefaultTopic = "hftsim.trades"

	queueSize    = 4096
	maxBatch     = 256
	flushTimeout = 5 * time.Second
)

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// TradeEvent is the value of every exported message.
type TradeEvent struct {
	RunID  string      `json:"runId"`
	Symbol string      `json:"symbol"`
	Seq    uint64      `json:"seq"`
	Trade  model.Trade `json:"trade"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher queues trades from the execution path and writes them from Run.
type KafkaPublisher struct {
	writer messageWriter
	symbol string
	runID  uuid.UUID
	queue  chan model.Trade

	seq     atomic.Uint64
	written atomic.Uint64
	drops   atomic.Uint64

	logger *zap.Logger
}

func NewKafkaPublisher(cfg KafkaConfig, symbol string, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newPublisher(w, symbol, logger), nil
}

func newPublisher(w messageWriter, symbol string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &KafkaPublisher{
		writer: w,
		symbol: symbol,
		runID:  uuid.New(),
		queue:  make(chan model.Trade, queueSize),
	}
	p.logger = logger.With(zap.String("component", "kafka"), zap.Stringer("runId", p.runID))
	return p
}

func (p *KafkaPublisher) RunID() uuid.UUID { return p.runID }

// Publish never blocks; a full queue drops the trade.
func (p *KafkaPublisher) Publish(t model.Trade) {
	select {
	case p.queue <- t:
	default:
		p.drops.Add(1)
	}
}

// Run writes queued trades until ctx ends, then flushes what is left.
func (p *KafkaPublisher) Run(ctx context.Context) error {
	batch := make([]kafka.Message, 0, maxBatch)
	for {
		select {
		case t := <-p.queue:
			batch = p.collect(batch[:0], t)
			p.write(ctx, batch)
		case <-ctx.Done():
			return p.flush()
		}
	}
}

// collect appends t and whatever else is already queued, up to maxBatch.
func (p *KafkaPublisher) collect(batch []kafka.Message, t model.Trade) []kafka.Message {
	for {
		msg, err := p.encode(t)
		if err != nil {
			p.logger.Error("encode trade", zap.Error(err))
		} else {
			batch = append(batch, msg)
		}
		if len(batch) >= maxBatch {
			return batch
		}
		select {
		case t = <-p.queue:
		default:
			return batch
		}
	}
}

func (p *KafkaPublisher) write(ctx context.Context, batch []kafka.Message) {
	if len(batch) == 0 {
		return
	}
	if err := p.writer.WriteMessages(ctx, batch...); err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("write trades", zap.Int("count", len(batch)), zap.Error(err))
		}
		p.drops.Add(uint64(len(batch)))
		return
	}
	p.written.Add(uint64(len(batch)))
}

func (p *KafkaPublisher) flush() error {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	batch := make([]kafka.Message, 0, maxBatch)
	for {
		select {
		case t := <-p.queue:
			batch = p.collect(batch[:0], t)
			p.write(ctx, batch)
		default:
			p.logger.Info("kafka publisher stopped",
				zap.Uint64("written", p.written.Load()),
				zap.Uint64("dropped", p.drops.Load()),
			)
			return nil
		}
	}
}

func (p *KafkaPublisher) encode(t model.Trade) (kafka.Message, error) {
	value, err := json.Marshal(TradeEvent{
		RunID:  p.runID.String(),
		Symbol: p.symbol,
		Seq:    p.seq.Add(1),
		Trade:  t,
	})
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(p.symbol), Value: value}, nil
}

// Stats reports messages written and trades dropped.
func (p *KafkaPublisher) Stats() (written, dropped uint64) {
	return p.written.Load(), p.drops.Load()
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
