package mq

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// ExchangeName 是所有 aimate 领域事件使用的 topic exchange
const ExchangeName = "aimate.events"

const heartbeat = 10 * time.Second

// dialConfig 带上连接名，便于在 RabbitMQ 管理台区分 api 和 admin 进程
func dialConfig(name string) amqp091.Config {
	props := amqp091.NewConnectionProperties()
	props.SetClientConnectionName(name)
	return amqp091.Config{
		Heartbeat:  heartbeat,
		Locale:     "en_US",
		Properties: props,
	}
}

// openChannel 连接 broker、打开 channel 并声明事件 exchange
func openChannel(url, name string) (*amqp091.Connection, *amqp091.Channel, error) {
	conn, err := amqp091.DialConfig(url, dialConfig(name))
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	// durable topic exchange，不自动删除
	if err := ch.ExchangeDeclare(ExchangeName, amqp091.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", ExchangeName, err)
	}
	return conn, ch, nil
}
