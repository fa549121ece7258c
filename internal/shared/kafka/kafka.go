// Package kafka concentra a construção dos writers de eventos de domínio.
// A plataforma só publica: o casamento de apostas e a liquidação são síncronos
// dentro da transação financeira, então não há consumidor interno.
package kafka

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

// NewWriter cria um writer para o tópico informado. brokers aceita lista
// separada por vírgula ("a:9092,b:9092"); tópicos são criados sob demanda.
func NewWriter(brokers string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(strings.Split(brokers, ",")...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

// CloseAll fecha os writers no desligamento; erros individuais não impedem o
// fechamento dos demais.
func CloseAll(writers ...*kafka.Writer) {
	for _, w := range writers {
		if w != nil {
			_ = w.Close()
		}
	}
}
