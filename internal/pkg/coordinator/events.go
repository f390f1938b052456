package coordinator

import (
	"github.com/jake-scott/dahua-bridge/internal/pkg/events"
	"github.com/jake-scott/dahua-bridge/internal/pkg/metrics"
)

const (
	actionStart = "Start"
	actionStop  = "Stop"
	actionPulse = "Pulse"

	codeCrossLine       = "CrossLineDetection"
	codeDoorStatus      = "DoorStatus"
	codeDoorbellPressed = "DoorbellPressed"
)

type listener struct {
	fn func()
}

// AddEventListener registers fn to run whenever the timestamp for code on
// this coordinator's channel changes.  The returned function unregisters it.
func (c *Coordinator) AddEventListener(code string, fn func()) func() {
	key := eventKey(code, c.cfg.Channel)
	l := &listener{fn: fn}

	c.mu.Lock()
	c.listeners[key] = append(c.listeners[key], l)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		ls := c.listeners[key]
		for i := range ls {
			if ls[i] == l {
				c.listeners[key] = append(ls[:i:i], ls[i+1:]...)
				break
			}
		}
		if len(c.listeners[key]) == 0 {
			delete(c.listeners, key)
		}
	}
}

func (c *Coordinator) hasListenerLocked(code string) bool {
	return len(c.listeners[eventKey(code, c.cfg.Channel)]) > 0
}

// EventTimestamp is the epoch second the event last started, or 0 when it
// is not active
func (c *Coordinator) EventTimestamp(code string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timestamps[eventKey(code, c.cfg.Channel)]
}

// OnReceive handles a chunk of the HTTP event stream.  Events for other
// channels are dropped.
func (c *Coordinator) OnReceive(data []byte, channel int) {
	for _, e := range events.Parse(data) {
		if e.IndexInt() != c.cfg.Channel {
			c.log().Debugf("ignoring %s event for channel %s", e.Code, e.Index)
			continue
		}
		c.handleEvent(e)
	}
}

// OnVTOEvent handles an event pushed by a doorbell
func (c *Coordinator) OnVTOEvent(event map[string]interface{}) {
	c.handleEvent(events.FromNotification(event))
}

// TranslateEventCode maps vendor event codes onto the codes listeners
// subscribe to
func (c *Coordinator) TranslateEventCode(e events.Event) string {
	switch e.Code {
	case "BackKeyLight", "PhoneCallDetect":
		return codeDoorbellPressed

	case codeCrossLine:
		c.mu.RLock()
		explicit := c.hasListenerLocked(codeCrossLine)
		c.mu.RUnlock()
		if explicit {
			return e.Code
		}

		object, _ := e.DataMap()["Object"].(map[string]interface{})
		switch object["ObjectType"] {
		case "Human":
			return "SmartMotionHuman"
		case "Vehicle":
			return "SmartMotionVehicle"
		}
	}

	return e.Code
}

func (c *Coordinator) handleEvent(e events.Event) {
	code := c.TranslateEventCode(e)
	log := c.log().WithField("event", code)

	var active bool
	switch e.Action {
	case actionStart:
		active = true
	case actionStop:
		active = false
	case actionPulse:
		if e.Code == codeDoorStatus {
			active = e.DataMap()["Status"] == "Open"
		} else {
			active = isOne(e.DataMap()["State"])
		}
	default:
		log.Debugf("ignoring action %q", e.Action)
		return
	}

	var ts int64
	if active {
		ts = c.now().Unix()
	}

	key := eventKey(code, c.cfg.Channel)

	c.mu.Lock()
	c.timestamps[key] = ts
	ls := append([]*listener(nil), c.listeners[key]...)
	c.mu.Unlock()

	log.WithField("action", e.Action).Debugf("event timestamp now %d", ts)
	metrics.ObserveEvent(code, e.Action)

	for _, l := range ls {
		l.fn()
	}

	if c.sink != nil {
		c.sink.PublishEvent(Notification{
			Code:      code,
			Action:    e.Action,
			Channel:   c.cfg.Channel,
			Timestamp: ts,
			Data:      e.Data,
		})
	}
}

// isOne accepts the doorbell's State field as a number or a string
func isOne(v interface{}) bool {
	switch s := v.(type) {
	case float64:
		return s == 1
	case int:
		return s == 1
	case string:
		return s == "1"
	}
	return false
}
