package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/W3nkt/Nyuj-PVP-sub001/pkg/contracts/events"
)

// KafkaPublisher emite os eventos de domínio da plataforma. Um writer por
// tópico; publicação é best-effort depois do commit financeiro.
type KafkaPublisher struct {
	BetPlacedW     *kafka.Writer
	BetMatchedW    *kafka.Writer
	VoteSubmittedW *kafka.Writer
	EventSettledW  *kafka.Writer
}

func (p *KafkaPublisher) PublishBetPlaced(ctx context.Context, e events.BetPlaced) error {
	e.TsUnixMs = time.Now().UnixMilli()
	b, _ := json.Marshal(e)
	return p.BetPlacedW.WriteMessages(ctx, kafka.Message{Key: []byte(e.EventID), Value: b})
}

func (p *KafkaPublisher) PublishBetMatched(ctx context.Context, e events.BetMatched) error {
	e.TsUnixMs = time.Now().UnixMilli()
	b, _ := json.Marshal(e)
	return p.BetMatchedW.WriteMessages(ctx, kafka.Message{Key: []byte(e.EventID), Value: b})
}

func (p *KafkaPublisher) PublishVoteSubmitted(ctx context.Context, e events.VoteSubmitted) error {
	e.Ts = time.Now().UTC()
	b, _ := json.Marshal(e)
	return p.VoteSubmittedW.WriteMessages(ctx, kafka.Message{Key: []byte(e.EventID), Value: b})
}

func (p *KafkaPublisher) PublishEventSettled(ctx context.Context, e events.EventSettled) error {
	e.Ts = time.Now().UTC()
	b, _ := json.Marshal(e)
	return p.EventSettledW.WriteMessages(ctx, kafka.Message{Key: []byte(e.EventID), Value: b})
}
