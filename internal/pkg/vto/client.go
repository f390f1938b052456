package vto

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jake-scott/dahua-bridge/internal/pkg/logging"
)

const DefaultPort = 5000

var (
	// ErrClosed is returned when the device ends the session
	ErrClosed = errors.New("connection closed by device")

	// ErrLoginFailed is returned when the challenge response is rejected
	ErrLoginFailed = errors.New("login rejected by device")
)

// EventHandler receives each entry of a pushed event list, with the
// device type and serial number added when known
type EventHandler func(event map[string]interface{})

type responseHandler func(m *message)

// Client speaks the doorbell's framed JSON-RPC protocol.  A Client serves a
// single connection; create a new one to reconnect.
type Client struct {
	host        string
	port        int
	username    string
	password    string
	dialTimeout time.Duration
	onEvent     EventHandler

	writeMu sync.Mutex
	conn    net.Conn

	mu                sync.Mutex
	requestID         int
	sessionID         int64
	keepAliveInterval int
	holdTime          int
	details           map[string]interface{}
	handlers          map[int]responseHandler
	keepAliveTimer    *time.Timer
	err               error

	disconnected chan struct{}
	closeOnce    sync.Once
}

func NewClient(host string, port int, username string, password string, onEvent EventHandler) *Client {
	if port == 0 {
		port = DefaultPort
	}

	return &Client{
		host:         host,
		port:         port,
		username:     username,
		password:     password,
		dialTimeout:  time.Second * 10,
		onEvent:      onEvent,
		requestID:    1,
		details:      make(map[string]interface{}),
		handlers:     make(map[int]responseHandler),
		disconnected: make(chan struct{}),
	}
}

func (c *Client) WithDialTimeout(d time.Duration) *Client {
	c.dialTimeout = d
	return c
}

func (c *Client) log() *logrus.Entry {
	return logging.Logger(nil).WithField("vto", c.host)
}

// Disconnected is closed once the connection has gone away
func (c *Client) Disconnected() <-chan struct{} {
	return c.disconnected
}

// HoldTime is the door unlock interval read from the access control config
func (c *Client) HoldTime() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holdTime
}

// Details returns what the device told us about itself: version,
// buildDate, deviceType and serialNumber
func (c *Client) Details() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := make(map[string]interface{}, len(c.details))
	for k, v := range c.details {
		d[k] = v
	}
	return d
}

// Run connects, logs in and processes messages until the connection drops
// or ctx is cancelled
func (c *Client) Run(ctx context.Context) error {
	dialer := net.Dialer{Timeout: c.dialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(c.host, fmt.Sprint(c.port)))
	if err != nil {
		return errors.Wrap(err, "connecting to doorbell")
	}

	return c.Serve(ctx, conn)
}

// Serve runs the protocol over an established connection
func (c *Client) Serve(ctx context.Context, conn net.Conn) error {
	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	defer c.shutdown()

	c.log().Debug("connection established")

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-c.disconnected:
		}
	}()

	if err := c.preLogin(); err != nil {
		return err
	}

	readErr := c.readLoop(conn)

	if ctx.Err() != nil {
		return ctx.Err()
	}

	c.mu.Lock()
	err := c.err
	c.mu.Unlock()
	if err != nil {
		return err
	}

	if readErr != nil {
		return errors.Wrap(readErr, "reading from doorbell")
	}
	return ErrClosed
}

func (c *Client) readLoop(conn net.Conn) error {
	var buffer []byte
	chunk := make([]byte, 4096)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			c.log().Tracef("event data: %q", chunk[:n])
			buffer = append(buffer, chunk[:n]...)

			for {
				idx := bytes.IndexByte(buffer, '\n')
				if idx < 0 {
					break
				}
				packet := buffer[:idx+1]
				buffer = buffer[idx+1:]

				for _, m := range parsePacket(packet) {
					c.dispatch(m)
				}
			}
		}

		if err != nil {
			if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
				c.log().Info("device closed the connection")
				return nil
			}
			c.log().WithError(err).Error("connection lost")
			return err
		}
	}
}

func (c *Client) dispatch(m *message) {
	if m.Method == methodNotifyEvents {
		c.handleNotifyEventStream(m)
		return
	}

	c.mu.Lock()
	h, ok := c.handlers[m.ID]
	c.mu.Unlock()

	if !ok {
		c.log().Infof("data received without handler: id %d method %q", m.ID, m.Method)
		return
	}

	h(m)
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.keepAliveTimer != nil {
			c.keepAliveTimer.Stop()
			c.keepAliveTimer = nil
		}
		close(c.disconnected)
		c.mu.Unlock()

		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *Client) send(method string, handler responseHandler, params map[string]interface{}) error {
	c.mu.Lock()
	c.requestID++
	r := request{
		ID:      c.requestID,
		Session: c.sessionID,
		Magic:   requestMagic,
		Method:  method,
		Params:  params,
	}
	c.handlers[r.ID] = handler
	c.mu.Unlock()

	frame, err := encodeRequest(r)
	if err != nil {
		return errors.Wrapf(err, "encoding %s request", method)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return ErrClosed
	}

	select {
	case <-c.disconnected:
		return ErrClosed
	default:
	}

	if _, err := c.conn.Write(frame); err != nil {
		return errors.Wrapf(err, "sending %s request", method)
	}

	return nil
}

func (c *Client) sendOrFail(method string, handler responseHandler, params map[string]interface{}) {
	if err := c.send(method, handler, params); err != nil {
		c.log().WithError(err).Error("sending request")
		c.fail(err)
	}
}

func (c *Client) loginParams(password string) map[string]interface{} {
	return map[string]interface{}{
		"clientType": "",
		"ipAddr":     "(null)",
		"loginType":  "Direct",
		"userName":   c.username,
		"password":   password,
	}
}

func (c *Client) preLogin() error {
	c.log().Debug("sending pre-login")
	return c.send(methodLogin, c.handlePreLogin, c.loginParams(""))
}

func (c *Client) handlePreLogin(m *message) {
	if m.Error == nil || m.Error.Message != loginChallengeError {
		c.log().Errorf("unexpected pre-login response: %+v", m.Error)
		c.fail(ErrLoginFailed)
		return
	}

	var params struct {
		Random string `json:"random"`
		Realm  string `json:"realm"`
	}
	if err := m.decodeParams(&params); err != nil {
		c.fail(errors.Wrap(err, "decoding login challenge"))
		return
	}

	c.mu.Lock()
	c.sessionID = m.Session
	c.mu.Unlock()

	c.login(params.Random, params.Realm)
}

func (c *Client) login(random, realm string) {
	c.log().Debug("sending login")

	params := c.loginParams(hashPassword(random, realm, c.username, c.password))
	params["authorityType"] = "Default"

	c.sendOrFail(methodLogin, c.handleLogin, params)
}

func (c *Client) handleLogin(m *message) {
	var params struct {
		KeepAliveInterval *int `json:"keepAliveInterval"`
	}
	_ = m.decodeParams(&params)

	if params.KeepAliveInterval == nil {
		c.log().Errorf("login failed: %+v", m.Error)
		c.fail(ErrLoginFailed)
		return
	}

	interval := *params.KeepAliveInterval - 5
	if interval < 1 {
		interval = 1
	}

	c.mu.Lock()
	c.keepAliveInterval = interval
	c.mu.Unlock()

	c.loadAccessControl()
	c.loadVersion()
	c.loadSerialNumber()
	c.loadDeviceType()
	c.attachEventManager()

	c.scheduleKeepAlive()
}

func (c *Client) scheduleKeepAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.disconnected:
		return
	default:
	}

	c.keepAliveTimer = time.AfterFunc(time.Duration(c.keepAliveInterval)*time.Second, c.keepAlive)
}

func (c *Client) keepAlive() {
	c.log().Debug("keep alive")

	c.mu.Lock()
	interval := c.keepAliveInterval
	c.mu.Unlock()

	c.sendOrFail(methodKeepAlive, func(m *message) {
		c.mu.Lock()
		delete(c.handlers, m.ID)
		c.mu.Unlock()

		c.scheduleKeepAlive()
	}, map[string]interface{}{
		"timeout": interval,
		"action":  true,
	})
}

func (c *Client) loadAccessControl() {
	c.sendOrFail(methodGetConfig, func(m *message) {
		var params struct {
			Table []struct {
				AccessProtocol       string `json:"AccessProtocol"`
				UnlockReloadInterval int    `json:"UnlockReloadInterval"`
			} `json:"table"`
		}
		if err := m.decodeParams(&params); err != nil {
			c.log().WithError(err).Warn("decoding access control config")
			return
		}

		for _, item := range params.Table {
			if item.AccessProtocol == "Local" {
				c.mu.Lock()
				c.holdTime = item.UnlockReloadInterval
				c.mu.Unlock()

				c.log().Infof("hold time: %d", item.UnlockReloadInterval)
			}
		}
	}, map[string]interface{}{"name": "AccessControl"})
}

func (c *Client) loadVersion() {
	c.sendOrFail(methodSoftwareVer, func(m *message) {
		var params struct {
			Version struct {
				Version   string `json:"Version"`
				BuildDate string `json:"BuildDate"`
			} `json:"version"`
		}
		if err := m.decodeParams(&params); err != nil {
			c.log().WithError(err).Warn("decoding software version")
			return
		}

		c.mu.Lock()
		c.details["version"] = params.Version.Version
		c.details["buildDate"] = params.Version.BuildDate
		c.mu.Unlock()

		c.log().Infof("version: %s, build date: %s", params.Version.Version, params.Version.BuildDate)
	}, nil)
}

func (c *Client) loadSerialNumber() {
	c.sendOrFail(methodGetConfig, func(m *message) {
		var params struct {
			Table struct {
				UUID string `json:"UUID"`
			} `json:"table"`
		}
		if err := m.decodeParams(&params); err != nil {
			c.log().WithError(err).Warn("decoding serial number")
			return
		}

		c.mu.Lock()
		c.details["serialNumber"] = params.Table.UUID
		c.mu.Unlock()

		c.log().Infof("serial number: %s", params.Table.UUID)
	}, map[string]interface{}{"name": "T2UServer"})
}

func (c *Client) loadDeviceType() {
	c.sendOrFail(methodDeviceType, func(m *message) {
		var params struct {
			Type string `json:"type"`
		}
		if err := m.decodeParams(&params); err != nil {
			c.log().WithError(err).Warn("decoding device type")
			return
		}

		c.mu.Lock()
		c.details["deviceType"] = params.Type
		c.mu.Unlock()

		c.log().Infof("device type: %s", params.Type)
	}, nil)
}

func (c *Client) attachEventManager() {
	c.log().Info("attaching event manager")

	c.sendOrFail(methodAttach, func(m *message) {
		if m.Error != nil {
			c.log().Errorf("attaching event manager: %s", m.Error.Message)
		}
	}, map[string]interface{}{"codes": []string{"All"}})
}

func (c *Client) handleNotifyEventStream(m *message) {
	var params struct {
		EventList []map[string]interface{} `json:"eventList"`
	}
	if err := m.decodeParams(&params); err != nil {
		c.log().WithError(err).Error("decoding event list")
		return
	}

	c.mu.Lock()
	deviceType, hasType := c.details["deviceType"]
	serial, hasSerial := c.details["serialNumber"]
	c.mu.Unlock()

	for _, event := range params.EventList {
		if hasType {
			event["deviceType"] = deviceType
		}
		if hasSerial {
			event["serialNumber"] = serial
		}

		if c.onEvent != nil {
			c.onEvent(event)
		}
	}
}

// CancelCall hangs up a ringing call on the doorbell
func (c *Client) CancelCall() error {
	c.log().Info("cancelling call")

	return c.send(methodRunCmd, func(m *message) {
		raw, _ := json.Marshal(m)
		c.log().Infof("cancel call response: %s", raw)
	}, map[string]interface{}{"command": "hc"})
}
