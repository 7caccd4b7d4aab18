package notify

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/hannesrauhe/bttimeout/base"
	"github.com/sirupsen/logrus"
)

const mqttPublishTimeout = 5 * time.Second

// mqttPayload is published as JSON to the configured topic
type mqttPayload struct {
	Kind             Kind   `json:"kind"`
	Title            string `json:"title"`
	Body             string `json:"body"`
	RemainingSeconds int64  `json:"remaining_seconds"`
	Timestamp        string `json:"timestamp"`
	ID               string `json:"id"`
	Session          string `json:"session,omitempty"`
}

// MQTTNotifier publishes notifications to a broker, for home automation dashboards and phones
type MQTTNotifier struct {
	config MQTTConfig
	log    logrus.FieldLogger
	client MQTT.Client
}

var _ Notifier = &MQTTNotifier{}

// NewMQTTNotifier creates the client and connects in the background, the client keeps
// reconnecting if the broker is not reachable
func NewMQTTNotifier(logger logrus.FieldLogger, config MQTTConfig) *MQTTNotifier {
	mqttlogger := logger.WithField("component", "mqtt")
	m := &MQTTNotifier{config: config, log: mqttlogger, client: MQTT.NewClient(mqttClientOptions(mqttlogger, config))}
	go func() {
		if token := m.client.Connect(); token.Wait() && token.Error() != nil {
			mqttlogger.Errorf("Error when connecting to %s: %v", config.Server, token.Error())
		}
	}()
	return m
}

func mqttClientOptions(mqttlogger logrus.FieldLogger, config MQTTConfig) *MQTT.ClientOptions {
	hostname, _ := os.Hostname()
	clientid := "bttimeout-" + hostname + strconv.Itoa(time.Now().Second())
	connOpts := MQTT.NewClientOptions().AddBroker(config.Server).SetClientID(clientid).SetCleanSession(true)
	if config.Username != "" {
		connOpts.SetUsername(config.Username)
		if config.Password != "" {
			connOpts.SetPassword(config.Password)
		}
	}
	if config.InsecureSkipVerify {
		mqttlogger.Warnf("TLS certificate of %s is not verified", config.Server)
	}
	connOpts.SetTLSConfig(&tls.Config{InsecureSkipVerify: config.InsecureSkipVerify, ClientAuth: tls.NoClientCert})
	connOpts.SetAutoReconnect(true)
	connOpts.SetConnectRetry(true)
	connOpts.OnConnect = func(c MQTT.Client) {
		mqttlogger.Infof("Connected to %s", config.Server)
	}
	connOpts.OnConnectionLost = func(c MQTT.Client, err error) {
		mqttlogger.Warnf("Connection to %s lost: %v", config.Server, err)
	}
	return connOpts
}

func (m *MQTTNotifier) Notify(ctx *base.Context, n Notification) error {
	payload, err := json.Marshal(mqttPayload{
		Kind:             n.Kind,
		Title:            n.Title,
		Body:             n.Body,
		RemainingSeconds: int64(n.Remaining / time.Second),
		Timestamp:        time.Now().Format(time.RFC3339),
		ID:               ctx.GetID(),
		Session:          n.Session,
	})
	if err != nil {
		return fmt.Errorf("mqtt: cannot encode notification: %w", err)
	}

	token := m.client.Publish(m.config.Topic, byte(m.config.Qos), m.config.Retain, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("mqtt: publishing to %v timed out", m.config.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publishing to %v failed: %w", m.config.Topic, err)
	}
	ctx.GetLogger().Debugf("Published notification to %v", m.config.Topic)
	return nil
}

// Shutdown disconnects from the broker
func (m *MQTTNotifier) Shutdown() {
	if m.client == nil {
		return
	}
	m.client.Disconnect(100)
}
