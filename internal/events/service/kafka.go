package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/programisto-labs/edrm-mailer/internal/config"
	evdomain "github.com/programisto-labs/edrm-mailer/internal/events/domain"
	mdomain "github.com/programisto-labs/edrm-mailer/internal/mailer/domain"
)

// KafkaSource bridges an external Kafka topic onto the in-process bus.
// Each message value is a JSON envelope {type, payload}; SEND_EMAIL payloads
// are dispatch requests, anything else on the topic is ignored. Malformed
// values are logged and skipped.
type KafkaSource struct {
	reader *kafka.Reader
	bus    evdomain.Bus
	log    zerolog.Logger
}

// NewKafkaSource returns nil when no brokers are configured.
func NewKafkaSource(cfg config.Config, bus evdomain.Bus, log zerolog.Logger) *KafkaSource {
	if len(cfg.KafkaBrokers) == 0 {
		return nil
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.KafkaGroupID,
		Topic:    cfg.KafkaTopic,
		MinBytes: 1,
		MaxBytes: 10 << 20,
	})
	return &KafkaSource{reader: reader, bus: bus, log: log}
}

// Run consumes the topic until the context is canceled.
func (s *KafkaSource) Run(ctx context.Context) {
	s.log.Info().Str("topic", s.reader.Config().Topic).Msg("kafka event source started")
	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			s.log.Error().Err(err).Msg("kafka read failed")
			continue
		}
		req, ok, err := decodeEvent(msg.Value)
		if err != nil {
			s.log.Error().Err(err).
				Str("topic", msg.Topic).
				Int64("offset", msg.Offset).
				Msg("invalid event payload, skipping")
			continue
		}
		if !ok {
			s.log.Debug().
				Str("topic", msg.Topic).
				Int64("offset", msg.Offset).
				Msg("ignoring event of foreign type")
			continue
		}
		_ = s.bus.Publish(ctx, req)
	}
}

// decodeEvent unpacks one message value. ok is false for events of a type
// other than SEND_EMAIL; err reports values that cannot be decoded at all.
func decodeEvent(value []byte) (mdomain.DispatchRequest, bool, error) {
	var env struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(value, &env); err != nil {
		return mdomain.DispatchRequest{}, false, err
	}
	if env.Type != evdomain.TypeSendEmail {
		return mdomain.DispatchRequest{}, false, nil
	}
	var req mdomain.DispatchRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return mdomain.DispatchRequest{}, false, err
	}
	return req, true, nil
}

func (s *KafkaSource) Close() error {
	return s.reader.Close()
}
