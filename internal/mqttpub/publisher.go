// Package mqttpub publishes alarm lifecycle events and device status
// frames to an MQTT broker when enabled.
package mqttpub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/nirspec-go/internal/conf"
	"github.com/tphakala/nirspec-go/internal/errors"
	"github.com/tphakala/nirspec-go/internal/frame"
	"github.com/tphakala/nirspec-go/internal/logging"
)

const (
	connectTimeout = 30 * time.Second
	publishTimeout = 5 * time.Second
)

// Publisher wraps the paho client behind the two publish operations the
// host needs.
type Publisher struct {
	broker   string
	topic    string
	username string
	password string
	clientID string
	log      *slog.Logger

	mu       sync.Mutex
	internal mqtt.Client
}

// NewPublisher creates an unconnected publisher from settings.
func NewPublisher(settings *conf.Settings) *Publisher {
	return &Publisher{
		broker:   settings.MQTT.Broker,
		topic:    settings.MQTT.Topic,
		username: settings.MQTT.Username,
		password: settings.MQTT.Password,
		clientID: settings.Main.Name,
		log:      logging.ForService("mqttpub"),
	}
}

// Connect establishes the broker session with automatic reconnect enabled.
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.broker)
	opts.SetClientID(p.clientID)
	opts.SetUsername(p.username)
	opts.SetPassword(p.password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		if p.log != nil {
			p.log.Info("mqtt connected", "broker", p.broker)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if p.log != nil {
			p.log.Warn("mqtt connection lost", "error", err)
		}
	})

	p.internal = mqtt.NewClient(opts)

	token := p.internal.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return errors.Newf("mqtt connect timeout").
			Component("mqttpub").
			Category(errors.CategoryMQTTConnection).
			Context("broker", p.broker).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqttpub").
			Category(errors.CategoryMQTTConnection).
			Context("broker", p.broker).
			Build()
	}

	// Honor a cancelled context even after a successful connect
	if ctx.Err() != nil {
		p.internal.Disconnect(0)
		return ctx.Err()
	}
	return nil
}

// Disconnect closes the broker session.
func (p *Publisher) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.internal != nil && p.internal.IsConnected() {
		p.internal.Disconnect(250)
	}
}

// alarmMessage is the JSON body published for alarm edges.
type alarmMessage struct {
	ID        string  `json:"id"`
	Event     string  `json:"event"`
	Property  string  `json:"property"`
	Value     float64 `json:"value"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Timestamp string  `json:"timestamp"`
}

// PublishAlarm publishes one alarm edge under <topic>/alarm.
func (p *Publisher) PublishAlarm(id, event, property string, value, lo, hi float64, ts time.Time) error {
	body, err := json.Marshal(alarmMessage{
		ID:        id,
		Event:     event,
		Property:  property,
		Value:     value,
		Min:       lo,
		Max:       hi,
		Timestamp: frame.Timestamp(ts),
	})
	if err != nil {
		return err
	}
	return p.publish(p.topic+"/alarm", body)
}

// PublishDeviceStatus forwards a raw device_status frame body under
// <topic>/device_status.
func (p *Publisher) PublishDeviceStatus(body []byte) error {
	return p.publish(p.topic+"/device_status", body)
}

func (p *Publisher) publish(topic string, body []byte) error {
	p.mu.Lock()
	client := p.internal
	p.mu.Unlock()

	if client == nil || !client.IsConnected() {
		return errors.Newf("mqtt not connected").
			Component("mqttpub").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	token := client.Publish(topic, 0, false, body)
	if !token.WaitTimeout(publishTimeout) {
		return errors.Newf("mqtt publish timeout").
			Component("mqttpub").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqttpub").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}
	return nil
}
