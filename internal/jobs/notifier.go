package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// FileNotifier records reminders in a log file as
// "YYYY-MM-DD HH:MM:SS - Order {id} reminder sent to {email}".
type FileNotifier struct {
	Log *LogFile
}

func (n *FileNotifier) Notify(_ context.Context, reminders []Reminder) error {
	lines := make([]string, len(reminders))
	for i, r := range reminders {
		lines[i] = fmt.Sprintf("%s - Order %s reminder sent to %s", r.SentAt.UTC().Format(logLayout), r.OrderID, r.Email)
	}
	return n.Log.Append(lines...)
}

// MessageWriter is the subset of *kafka.Writer used by KafkaNotifier.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes each reminder as a JSON message keyed by order id.
type KafkaNotifier struct {
	writer MessageWriter
}

// NewKafkaWriter builds a writer for topic on the given brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		BatchSize:              100,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaNotifier wraps writer.
func NewKafkaNotifier(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer}
}

func (n *KafkaNotifier) Notify(ctx context.Context, reminders []Reminder) error {
	msgs := make([]kafka.Message, len(reminders))
	for i, r := range reminders {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode reminder %s: %w", r.OrderID, err)
		}
		msgs[i] = kafka.Message{
			Key:   []byte(r.OrderID),
			Value: payload,
			Time:  r.SentAt,
		}
	}
	if err := n.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish reminders: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (n *KafkaNotifier) Close() error { return n.writer.Close() }
