package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSender publishes outbox entries through a shared kgo client.
// Sends are synchronous: the relay only marks an entry published once the
// broker has acknowledged it.
type KafkaSender struct {
	client *kgo.Client
}

func NewKafkaSender(client *kgo.Client) *KafkaSender {
	return &KafkaSender{client: client}
}

func (s *KafkaSender) Send(ctx context.Context, topic string, key, value []byte) error {
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

func (s *KafkaSender) Close() {
	s.client.Close()
}

// EnsureTopics creates the audit topics if they do not exist yet. Safe to run
// on every startup.
func EnsureTopics(ctx context.Context, client *kgo.Client, partitions int32, topics Topics) error {
	admin := kadm.NewClient(client)
	responses, err := admin.CreateTopics(ctx, partitions, 1, nil, topics.Compliance, topics.Operations)
	if err != nil {
		return fmt.Errorf("create audit topics: %w", err)
	}
	for _, response := range responses.Sorted() {
		if response.Err != nil && !errors.Is(response.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", response.Topic, response.Err)
		}
	}
	return nil
}
