package mqttpub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/nirspec-go/internal/conf"
	"github.com/tphakala/nirspec-go/internal/errors"
)

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Main.Name = "nirspec-test"
	s.MQTT.Broker = "tcp://127.0.0.1:1883"
	s.MQTT.Topic = "nirspec"
	s.MQTT.Username = "user"
	s.MQTT.Password = "pass"
	return s
}

func TestNewPublisherMapsSettings(t *testing.T) {
	t.Parallel()

	p := NewPublisher(testSettings())
	assert.Equal(t, "tcp://127.0.0.1:1883", p.broker)
	assert.Equal(t, "nirspec", p.topic)
	assert.Equal(t, "nirspec-test", p.clientID)
}

func TestPublishWithoutConnectionFails(t *testing.T) {
	t.Parallel()

	p := NewPublisher(testSettings())

	err := p.PublishAlarm("id-1", "raised", "A", 1.5, 0, 1, time.Now())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTPublish))

	err = p.PublishDeviceStatus([]byte(`{"type":"device_status"}`))
	assert.Error(t, err)
}

func TestDisconnectWithoutConnectionIsSafe(t *testing.T) {
	t.Parallel()

	p := NewPublisher(testSettings())
	p.Disconnect()
}
