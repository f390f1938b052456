package publisher

import (
	"crypto/tls"
	"net/url"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jake-scott/dahua-bridge/internal/pkg/logging"
)

const (
	connectTimeout = 30 * time.Second
	publishTimeout = 10 * time.Second
)

// Broker is the part of an MQTT client the publisher needs
type Broker interface {
	Publish(topic string, payload []byte, retain bool) error
	Close()
}

type mqttBroker struct {
	cli mqtt.Client
}

// Connect dials an MQTT broker given as mqtt://, tcp://, ssl:// or ws://
// URL, with optional user info.  willTopic, if set, is marked "offline" by
// the broker when the connection drops.
func Connect(brokerURL string, willTopic string) (Broker, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing broker URL")
	}

	server := u.Host
	switch u.Scheme {
	case "mqtt", "tcp", "":
		server = "tcp://" + server
	case "ssl", "tls", "mqtts":
		server = "ssl://" + server
	case "ws", "wss":
		server = u.Scheme + "://" + server + u.Path
	default:
		return nil, errors.Errorf("unsupported broker scheme %q", u.Scheme)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(server)
	opts.SetClientID("dahua-bridge-" + uuid.New().String()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.OnConnect = func(c mqtt.Client) {
		logging.Logger(nil).WithField("broker", server).Info("mqtt connected")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		logging.Logger(nil).WithField("broker", server).WithError(err).Error("mqtt connection lost")
	}

	if u.User != nil {
		pw, _ := u.User.Password()
		opts.SetUsername(u.User.Username())
		opts.SetPassword(pw)
	}
	if u.Scheme == "ssl" || u.Scheme == "tls" || u.Scheme == "mqtts" || u.Scheme == "wss" {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	if willTopic != "" {
		opts.SetWill(willTopic, availabilityOffline, 1, true)
	}

	cli := mqtt.NewClient(opts)
	t := cli.Connect()
	if !t.WaitTimeout(connectTimeout) {
		return nil, errors.Errorf("timed out connecting to %s", server)
	}
	if err := t.Error(); err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", server)
	}

	return &mqttBroker{cli: cli}, nil
}

func (b *mqttBroker) Publish(topic string, payload []byte, retain bool) error {
	t := b.cli.Publish(topic, 1, retain, payload)
	if !t.WaitTimeout(publishTimeout) {
		return errors.Errorf("timed out publishing to %s", topic)
	}
	return t.Error()
}

func (b *mqttBroker) Close() {
	b.cli.Disconnect(250)
}
