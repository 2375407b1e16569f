package notify

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/core-tools/hsu-mcservice/pkg/errors"
	"github.com/core-tools/hsu-mcservice/pkg/logging"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second
	maxQoS                   = 2
)

type MQTTConfig struct {
	Broker      string `yaml:"broker"` // e.g. tcp://localhost:1883
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// MQTTPublisher is the part of a paho client the sink needs.
type MQTTPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// MQTTSink publishes each event as JSON to <prefix>/<signal>. Server state
// events are retained so late subscribers see the current state.
type MQTTSink struct {
	client  MQTTPublisher
	prefix  string
	qos     byte
	timeout time.Duration
}

func NewMQTTSink(client MQTTPublisher, topicPrefix string, qos byte) *MQTTSink {
	if qos > maxQoS {
		qos = maxQoS
	}
	return &MQTTSink{
		client:  client,
		prefix:  strings.TrimSuffix(topicPrefix, "/"),
		qos:     qos,
		timeout: defaultPublishTimeout,
	}
}

func (s *MQTTSink) Topic(signal string) string {
	return s.prefix + "/" + signal
}

func (s *MQTTSink) Emit(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.NewInternalError("failed to encode event", err).WithContext("signal", event.Signal)
	}

	topic := s.Topic(event.Signal)
	retained := event.Signal == SignalServerChanged

	token := s.client.Publish(topic, s.qos, retained, payload)
	if !token.WaitTimeout(s.timeout) {
		return errors.NewTimeoutError("mqtt publish timed out", nil).WithContext("topic", topic)
	}
	if err := token.Error(); err != nil {
		return errors.NewIOError("mqtt publish failed", err).WithContext("topic", topic)
	}
	return nil
}

// ConnectMQTT dials the broker with auto-reconnect enabled.
func ConnectMQTT(config MQTTConfig, logger logging.Logger) (pahomqtt.Client, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		logger.Infof("Connected to MQTT broker %s", config.Broker)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warnf("MQTT connection lost: %v", err)
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, errors.NewTimeoutError("mqtt connect timed out", nil).WithContext("broker", config.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.NewIOError("mqtt connect failed", err).WithContext("broker", config.Broker)
	}

	return client, nil
}

// DisconnectMQTT lets in-flight publishes finish before closing.
func DisconnectMQTT(client pahomqtt.Client) {
	client.Disconnect(defaultDisconnectQuiesce)
}
