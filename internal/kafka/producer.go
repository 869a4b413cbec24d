package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"booking-intake/internal/config"
	"booking-intake/internal/logger"
	"booking-intake/internal/models"
)

const EventBookingCreated = "booking.created"

type Producer struct {
	producer sarama.SyncProducer
	topic    string
	mockMode bool
	log      *logger.Logger
}

// NewProducer connects to the configured brokers. With Kafka disabled it
// returns a producer that only logs what it would have sent.
func NewProducer(cfg config.KafkaConfig, log *logger.Logger) (*Producer, error) {
	if !cfg.Enabled {
		log.LogKafka("MOCK_MODE", cfg.Topic, "Running in mock mode - no actual Kafka connection")
		return &Producer{
			topic:    cfg.Topic,
			mockMode: true,
			log:      log,
		}, nil
	}

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	sc.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	log.LogKafka("CONNECTED", cfg.Topic, fmt.Sprintf("Connected to Kafka brokers: %v", cfg.Brokers))
	return newProducer(producer, cfg.Topic, log), nil
}

func newProducer(producer sarama.SyncProducer, topic string, log *logger.Logger) *Producer {
	return &Producer{
		producer: producer,
		topic:    topic,
		log:      log,
	}
}

// BookingCreated publishes a booking.created event for a stored booking.
func (p *Producer) BookingCreated(booking *models.Booking) error {
	return p.PublishBookingEvent(&models.BookingEvent{
		Type:      EventBookingCreated,
		BookingID: booking.ID,
		Booking:   booking,
		Timestamp: time.Now().UTC(),
	})
}

func (p *Producer) PublishBookingEvent(event *models.BookingEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if p.mockMode {
		p.log.LogKafka("MOCK_PUBLISH", p.topic, fmt.Sprintf("Mock publishing event: %s for booking: %d", event.Type, event.BookingID))
		p.log.Debug("KAFKA", string(data))
		return nil
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(event.BookingID, 10)),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(event.Type)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.log.Error("KAFKA", fmt.Sprintf("Failed to send message to topic %s: %v", p.topic, err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.log.LogKafka("PUBLISHED", p.topic, fmt.Sprintf("Message sent to partition %d at offset %d for booking %d", partition, offset, event.BookingID))
	return nil
}

func (p *Producer) Close() error {
	if p.mockMode {
		p.log.LogKafka("MOCK_CLOSE", p.topic, "Mock producer closed")
		return nil
	}

	if p.producer != nil {
		p.log.LogKafka("CLOSING", p.topic, "Closing Kafka producer connection")
		return p.producer.Close()
	}
	return nil
}
