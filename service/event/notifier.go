/*
 * @module service/event/notifier
 * @description 分析完成事件的发布：Kafka、MQTT、组合与空实现
 * @architecture 适配器模式 - 封装第三方消息客户端，对分析服务暴露统一接口
 * @documentReference DESIGN.md
 * @stateFlow 分析完成 -> 序列化事件 -> 各通道发布
 * @rules 事件发布失败不影响分析结果的持久化；组合发布器汇总所有通道的错误
 * @dependencies github.com/segmentio/kafka-go, github.com/eclipse/paho.mqtt.golang
 * @refs service/analysis/analysis_service.go
 */

package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"siconfi-service/service/reconcile"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"
)

// EventTypeAnalysisCompleted 分析完成事件类型
const EventTypeAnalysisCompleted = "siconfi.analysis.completed"

// AnalysisCompletedEvent 分析完成事件
type AnalysisCompletedEvent struct {
	Type       string                       `json:"type"`
	RunID      string                       `json:"run_id"`
	EntityCode string                       `json:"entity_code"`
	EntityType string                       `json:"entity_type"`
	FiscalYear int                          `json:"fiscal_year"`
	Status     string                       `json:"status"`
	Overall    *float64                     `json:"overall"`
	Failed     int                          `json:"failed"`
	Dimensions []reconcile.DimensionSummary `json:"dimensions"`
	Error      string                       `json:"error,omitempty"`
	FinishedAt time.Time                    `json:"finished_at"`
}

// Key 消息键，同一实体同一年度的事件落在同一分区
func (e *AnalysisCompletedEvent) Key() string {
	return fmt.Sprintf("%s:%d", e.EntityCode, e.FiscalYear)
}

// Notifier 事件发布接口
type Notifier interface {
	Publish(ctx context.Context, evt *AnalysisCompletedEvent) error
	Close() error
}

// NopNotifier 不发布任何事件
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, *AnalysisCompletedEvent) error { return nil }
func (NopNotifier) Close() error                                          { return nil }

// MultiNotifier 依次向多个通道发布
type MultiNotifier []Notifier

// Publish 发布到所有通道，某个通道失败不影响其余通道
func (m MultiNotifier) Publish(ctx context.Context, evt *AnalysisCompletedEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close 关闭所有通道
func (m MultiNotifier) Close() error {
	var errs []error
	for _, n := range m {
		if err := n.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// messageWriter kafka.Writer 的最小接口
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier 通过 Kafka 发布事件
type KafkaNotifier struct {
	writer messageWriter
	topic  string
}

// NewKafkaNotifier 创建 Kafka 发布器
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &KafkaNotifier{writer: w, topic: topic}
}

// Publish 发布事件
func (k *KafkaNotifier) Publish(ctx context.Context, evt *AnalysisCompletedEvent) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(evt.Key()),
		Value: value,
		Time:  evt.FinishedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("发送Kafka消息失败 topic=%s: %w", k.topic, err)
	}
	slog.Debug("事件已发送到Kafka", "topic", k.topic, "run_id", evt.RunID)
	return nil
}

// Close 关闭生产者
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}

// MQTTNotifier 通过 MQTT 发布事件
type MQTTNotifier struct {
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
}

// MQTTOptions MQTT 连接参数
type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
}

// NewMQTTNotifier 连接 broker 并创建发布器
func NewMQTTNotifier(o MQTTOptions) (*MQTTNotifier, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("MQTT连接断开", "broker", o.Broker, "error", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) {
		return nil, fmt.Errorf("MQTT连接超时: %s", o.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("MQTT连接失败: %w", err)
	}
	slog.Info("MQTT发布器已连接", "broker", o.Broker, "topic", o.Topic)
	return newMQTTNotifier(client, o.Topic, o.QoS), nil
}

func newMQTTNotifier(client mqtt.Client, topic string, qos byte) *MQTTNotifier {
	return &MQTTNotifier{client: client, topic: topic, qos: qos, timeout: 5 * time.Second}
}

// Publish 发布事件；主题追加实体编码，便于订阅方按实体过滤
func (m *MQTTNotifier) Publish(ctx context.Context, evt *AnalysisCompletedEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	topic := fmt.Sprintf("%s/%s", m.topic, evt.EntityCode)
	token := m.client.Publish(topic, m.qos, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.timeout):
		return fmt.Errorf("MQTT发布超时 topic=%s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT发布失败 topic=%s: %w", topic, err)
	}
	slog.Debug("事件已发送到MQTT", "topic", topic, "run_id", evt.RunID)
	return nil
}

// Close 断开连接
func (m *MQTTNotifier) Close() error {
	m.client.Disconnect(250)
	return nil
}
