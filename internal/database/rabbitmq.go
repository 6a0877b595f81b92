package database

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-rewards/internal/config"
)

// NewAMQPConnection dials RabbitMQ. Only used when QUEUE_BACKEND=rabbitmq.
func NewAMQPConnection(cfg *config.Config, log zerolog.Logger) (*amqp.Connection, error) {
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	log.Info().Msg("RabbitMQ connected")
	return conn, nil
}
