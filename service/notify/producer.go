package notify

import (
	"encoding/json"
	"time"

	"github.com/Shopify/sarama"

	"PulseIM/logger"
	chatmodel "PulseIM/module/chat/model"
	"PulseIM/tools/ids"
)

// Producer fans message-arrival notifications out to the notification
// collaborator over Kafka. Delivery of the chat message itself never
// depends on this path.
type Producer interface {
	NotifyMessage(userID, fromID, preview string)
	Close() error
}

type KafkaProducer struct {
	prod  sarama.AsyncProducer
	topic string
}

func NewKafkaProducer(brokers []string, topic string) (*KafkaProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Partitioner = sarama.NewHashPartitioner // key = user id keeps per-user order

	p, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	kp := &KafkaProducer{prod: p, topic: topic}
	go func() {
		for err := range p.Errors() {
			logger.Errorf("[notify] async produce error: %v", err)
		}
	}()
	return kp, nil
}

func (p *KafkaProducer) NotifyMessage(userID, fromID, preview string) {
	n := chatmodel.Notification{
		NotifyID:   ids.GenerateString(),
		UserID:     userID,
		Kind:       chatmodel.NotifyKindMessage,
		FromID:     fromID,
		Body:       preview,
		CreateTime: time.Now().UnixMilli(),
	}
	b, err := json.Marshal(&n)
	if err != nil {
		logger.Errorf("[notify] marshal: %v", err)
		return
	}
	p.prod.Input() <- &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(userID),
		Value: sarama.ByteEncoder(b),
	}
}

func (p *KafkaProducer) Close() error { return p.prod.Close() }

// Nop drops notifications; dev/test default.
type Nop struct{}

func (Nop) NotifyMessage(userID, fromID, preview string) {}
func (Nop) Close() error                                 { return nil }

var (
	_ Producer = (*KafkaProducer)(nil)
	_ Producer = Nop{}
)
