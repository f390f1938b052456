package publisher

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/jake-scott/dahua-bridge/internal/pkg/coordinator"
	"github.com/jake-scott/dahua-bridge/internal/pkg/logging"
)

const (
	availabilityOnline  = "online"
	availabilityOffline = "offline"
)

// Publisher republishes coordinator events and state under one topic
// prefix:
//
//	<prefix>/availability   online|offline, retained
//	<prefix>/state          JSON state map, retained
//	<prefix>/events/<code>  JSON event
type Publisher struct {
	broker Broker
	prefix string
}

var _ coordinator.EventSink = (*Publisher)(nil)

func New(broker Broker, prefix string) *Publisher {
	return &Publisher{
		broker: broker,
		prefix: strings.TrimSuffix(prefix, "/"),
	}
}

// AvailabilityTopic is where the broker will for this prefix belongs
func AvailabilityTopic(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/availability"
}

type eventMessage struct {
	Code      string      `json:"code"`
	Action    string      `json:"action"`
	Channel   int         `json:"channel"`
	Active    bool        `json:"active"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// PublishEvent sends one event.  Failures are logged; the event bus does not
// block on the broker.
func (p *Publisher) PublishEvent(n coordinator.Notification) {
	payload, err := json.Marshal(eventMessage{
		Code:      n.Code,
		Action:    n.Action,
		Channel:   n.Channel,
		Active:    n.Timestamp != 0,
		Timestamp: n.Timestamp,
		Data:      n.Data,
	})
	if err != nil {
		logging.Logger(nil).WithError(err).Errorf("encoding %s event", n.Code)
		return
	}

	topic := p.prefix + "/events/" + n.Code
	if err := p.broker.Publish(topic, payload, false); err != nil {
		logging.Logger(nil).WithError(err).Warnf("publishing to %s", topic)
	}
}

// PublishState sends the whole state map, retained
func (p *Publisher) PublishState(state map[string]string) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "encoding state")
	}

	return errors.Wrap(p.broker.Publish(p.prefix+"/state", payload, true), "publishing state")
}

func (p *Publisher) PublishAvailability(online bool) error {
	msg := availabilityOffline
	if online {
		msg = availabilityOnline
	}

	return errors.Wrap(p.broker.Publish(AvailabilityTopic(p.prefix), []byte(msg), true), "publishing availability")
}

// Close marks the device offline and disconnects
func (p *Publisher) Close() {
	if err := p.PublishAvailability(false); err != nil {
		logging.Logger(nil).WithError(err).Warn("could not publish offline status")
	}
	p.broker.Close()
}
