package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-circulation/pkg/circuit_breaker"
	"github.com/Astemirdum/library-circulation/pkg/kafka"
)

type Type string

const (
	BookCreated    Type = "book.created"
	BookDeleted    Type = "book.deleted"
	StudentDeleted Type = "student.deleted"
	IssueCreated   Type = "issue.created"
	IssueReturned  Type = "issue.returned"
)

type Event struct {
	ID        uuid.UUID `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	BookID    int64     `json:"bookId,omitempty"`
	BookCode  string    `json:"bookCode,omitempty"`
	StudentID int64     `json:"studentId,omitempty"`
	IssueID   int64     `json:"issueId,omitempty"`
	Fine      float64   `json:"fine,omitempty"`
}

// Publisher is fire-and-forget: events describe committed state, so a failed
// send is logged and dropped rather than reported to the caller.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) {}

type kafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	cb       circuit_breaker.CircuitBreaker
	log      *zap.Logger
}

// NewKafkaPublisher publishes to topic, or to kafka.CirculationTopic when
// topic is empty.
func NewKafkaPublisher(producer sarama.SyncProducer, topic string, log *zap.Logger) Publisher {
	if topic == "" {
		topic = kafka.CirculationTopic
	}
	return &kafkaPublisher{
		producer: producer,
		topic:    topic,
		cb:       circuit_breaker.New(10, 30*time.Second, 0.5, 3),
		log:      log.Named("events"),
	}
}

func (p *kafkaPublisher) Publish(_ context.Context, e Event) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		p.log.Error("json.Marshal", zap.Error(err))
		return
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		// keyed by book so events of one copy stay ordered within a partition
		Key:   sarama.StringEncoder(strconv.FormatInt(e.BookID, 10)),
		Value: sarama.ByteEncoder(data),
	}
	err = p.cb.Call(func() error {
		_, _, err := p.producer.SendMessage(msg)
		return err
	})
	if err != nil {
		p.log.Warn("event dropped", zap.String("type", string(e.Type)), zap.Error(err))
		return
	}
	p.log.Debug("event published", zap.String("type", string(e.Type)), zap.String("id", e.ID.String()))
}
