package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// Topic prefix for saved-response notifications: survey.responses.<session_id>
const topicPrefix = "survey.responses"

// RoutingKey returns the topic a session's notification is published under.
func RoutingKey(sessionID string) string {
	if sessionID == "" {
		sessionID = "anonymous"
	}
	// Dots would add topic levels.
	return topicPrefix + "." + strings.ReplaceAll(sessionID, ".", "_")
}

// RabbitNotifier 将 SavedEvent 发布到 topic 交换机
type RabbitNotifier struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	exchange string
	logger   *zap.Logger
	now      func() time.Time
}

// DialRabbit 连接 RabbitMQ, 按 retryInterval 最多重试 attempts 次, 并声明交换机
func DialRabbit(ctx context.Context, uri, exchange string, retryInterval time.Duration, attempts int, logger *zap.Logger) (*RabbitNotifier, error) {
	if !strings.HasPrefix(uri, "amqp://") && !strings.HasPrefix(uri, "amqps://") {
		return nil, fmt.Errorf("rabbit url must contain amqp:// prefix")
	}
	if exchange == "" {
		return nil, errors.New("notification exchange must be specified")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := connectWithRetry(ctx, uri, retryInterval, attempts, logger)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := declareExchangeWithDefaults(exchange, ch); err != nil {
		conn.Close()
		return nil, err
	}

	return &RabbitNotifier{conn: conn, exchange: exchange, logger: logger, now: time.Now}, nil
}

func connectWithRetry(ctx context.Context, uri string, retryInterval time.Duration, attempts int, logger *zap.Logger) (*amqp.Connection, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		conn, err := amqp.Dial(uri)
		if err == nil {
			logger.Info("established connection to rabbit")
			return conn, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		logger.Warn("failed to connect to rabbit - retrying", zap.Int("attempt", i+1), zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return nil, fmt.Errorf("connect to rabbit: %w", lastErr)
}

// declareExchangeWithDefaults 声明持久化的 topic 交换机
func declareExchangeWithDefaults(exchange string, ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange [%s]: %v", exchange, err)
	}
	return nil
}

// ResponsesSaved 在新的 channel 上发布一条 SavedEvent
func (n *RabbitNotifier) ResponsesSaved(ctx context.Context, sessionID string, count int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(SavedEvent{SessionID: sessionID, Count: count, SavedAt: n.now().UTC()})
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		return errors.New("no connection to rabbit")
	}
	ch, err := n.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	topic := RoutingKey(sessionID)
	if err := ch.Publish(
		n.exchange,
		topic,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		}); err != nil {
		return err
	}

	n.logger.Debug("published notification", zap.String("topic", topic))
	return nil
}

// Close 关闭连接
func (n *RabbitNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	n.conn = nil
	return err
}
