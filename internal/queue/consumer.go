package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/amirkhv/member-gate/internal/logging"
)

// StartTokenAuditConsumer consumes token.issued events and records an
// audit line for each issuance. In production the mailer service
// consumes this queue instead; this consumer stands in when no
// delivery collaborator is attached so issued tokens remain traceable.
// The raw token is deliberately absent from the audit record.
// The function runs a reconnect loop and never returns under normal
// operation.
func StartTokenAuditConsumer(log *zap.Logger) {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(BrokerURL())
		if err != nil {
			log.Warn("token-consumer: dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(conn, log); err != nil {
			log.Warn("token-consumer: consume loop ended", zap.Error(err))
			time.Sleep(2 * time.Second)
		}
	}
}

func consumeLoop(conn *amqp.Connection, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(TokenIssuedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(TokenIssuedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		var ev TokenIssuedEvent
		if err := json.Unmarshal(d.Body, &ev); err != nil {
			log.Warn("token-consumer: bad event payload", zap.Error(err))
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		log.Info("lifecycle token issued",
			zap.String("user_id", ev.UserID),
			zap.String("email", logging.MaskEmail(ev.Email)),
			zap.String("kind", ev.Kind),
			zap.Time("expires_at", ev.ExpiresAt),
		)
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}
