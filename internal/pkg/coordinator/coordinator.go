package coordinator

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/korovkin/limiter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jake-scott/dahua-bridge/internal/pkg/dahuaapi"
	"github.com/jake-scott/dahua-bridge/internal/pkg/logging"
	"github.com/jake-scott/dahua-bridge/internal/pkg/metrics"
	"github.com/jake-scott/dahua-bridge/internal/pkg/vto"
)

const (
	defaultPollConcurrency = 4

	defaultStreamRetry = 5 * time.Second
	defaultVTORetry    = 15 * time.Second
	defaultMaxRetry    = 5 * time.Minute
)

// Config is the host-supplied description of one device
type Config struct {
	Address  string
	Port     int
	RTSPPort int
	Username string
	Password string

	// Channel is the zero based channel this coordinator tracks
	Channel int
	// Events are the event codes to subscribe to.  No events, no HTTP stream.
	Events []string
	// Name overrides the device's machine name
	Name string

	VTOPort        int
	VTODialTimeout time.Duration

	// StreamRetry and VTORetry are the first reconnect delays; later
	// attempts back off exponentially up to MaxRetry
	StreamRetry time.Duration
	VTORetry    time.Duration
	MaxRetry    time.Duration

	PollConcurrency int
}

// Host is the runtime that owns the coordinator
type Host interface {
	// StartReauth asks the user for new credentials
	StartReauth()
}

// EventSink receives every accepted event after translation
type EventSink interface {
	PublishEvent(n Notification)
}

// Notification describes an accepted event
type Notification struct {
	Code      string
	Action    string
	Channel   int
	Timestamp int64
	Data      interface{}
}

type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateAuthFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateAuthFailed:
		return "auth-failed"
	}
	return "unknown"
}

// Capabilities are decided once by probing the device
type Capabilities struct {
	CoaxialControl       bool
	DisarmingLinkage     bool
	EventNotifications   bool
	SmartMotionDetection bool
	PTZPosition          bool
	Lighting             bool
	LightingV2           bool
	FloodLightMode       bool
	ProfileMode          bool
}

// Coordinator tracks the state of one device.  It is safe for concurrent
// use; overlapping Refresh calls run one after the other.
type Coordinator struct {
	cfg    Config
	client dahuaapi.DeviceReader
	host   Host
	sink   EventSink
	now    func() time.Time

	// runVTO runs one doorbell session until it ends
	runVTO func(ctx context.Context, onEvent vto.EventHandler) error

	// refreshMu serialises Refresh so initialisation starts one listener
	refreshMu sync.Mutex

	mu             sync.RWMutex
	state          State
	reauthStarted  bool
	model          string
	class          Classification
	machineName    string
	serialNumber   string
	firmware       string
	maxStreams     int
	channelNumber  int
	caps           Capabilities
	profileMode    string
	presetPosition string
	floodLightMode int
	data           map[string]string
	timestamps     map[string]int64
	listeners      map[string][]*listener
	vtoClient      *vto.Client

	lifeMu  sync.Mutex
	cancels []context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// New returns an uninitialised coordinator.  Nothing talks to the device
// until the first Refresh.
func New(cfg Config, client dahuaapi.DeviceReader, host Host) *Coordinator {
	if cfg.VTOPort == 0 {
		cfg.VTOPort = vto.DefaultPort
	}
	if cfg.StreamRetry == 0 {
		cfg.StreamRetry = defaultStreamRetry
	}
	if cfg.VTORetry == 0 {
		cfg.VTORetry = defaultVTORetry
	}
	if cfg.MaxRetry == 0 {
		cfg.MaxRetry = defaultMaxRetry
	}
	if cfg.PollConcurrency <= 0 {
		cfg.PollConcurrency = defaultPollConcurrency
	}

	c := &Coordinator{
		cfg:            cfg,
		client:         client,
		host:           host,
		now:            time.Now,
		class:          Classification{},
		channelNumber:  cfg.Channel + 1,
		profileMode:    "0",
		presetPosition: "0",
		data:           make(map[string]string),
		timestamps:     make(map[string]int64),
		listeners:      make(map[string][]*listener),
	}
	c.runVTO = c.runVTOSession

	return c
}

// WithEventSink forwards accepted events to sink
func (c *Coordinator) WithEventSink(sink EventSink) *Coordinator {
	c.sink = sink
	return c
}

func (c *Coordinator) log() *logrus.Entry {
	return logging.ForDevice(c.cfg.Address, c.cfg.Channel)
}

func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()

	metrics.SetReady(s == StateReady)
}

// Refresh initialises the coordinator on first use and then polls the
// device, returning a copy of the merged state map
func (c *Coordinator) Refresh(ctx context.Context) (map[string]string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if c.State() != StateReady {
		if err := c.initialize(ctx); err != nil {
			metrics.ObservePoll(err)
			return nil, err
		}
	}

	data, err := c.poll(ctx)
	metrics.ObservePoll(err)

	return data, err
}

// deviceInfo is collected during initialisation before being published
type deviceInfo struct {
	model         string
	machineName   string
	serialNumber  string
	firmware      string
	maxStreams    int
	channelNumber int
	caps          Capabilities
}

func (c *Coordinator) initialize(ctx context.Context) error {
	c.setState(StateInitializing)

	info, err := c.probeDevice(ctx)
	if err != nil {
		if dahuaapi.IsUnauthorized(err) {
			c.mu.Lock()
			c.state = StateAuthFailed
			startReauth := !c.reauthStarted
			c.reauthStarted = true
			c.mu.Unlock()

			c.log().WithError(err).Error("device rejected credentials")
			if startReauth && c.host != nil {
				c.host.StartReauth()
			}
			return &AuthFailedError{Err: err}
		}

		c.setState(StateUninitialized)
		c.log().WithError(err).Warn("device not ready")
		return &NotReadyError{Err: err}
	}

	class := Classify(info.model)

	c.mu.Lock()
	c.model = info.model
	c.class = class
	c.machineName = info.machineName
	c.serialNumber = info.serialNumber
	c.firmware = info.firmware
	c.maxStreams = info.maxStreams
	c.channelNumber = info.channelNumber
	c.caps = info.caps
	c.mu.Unlock()

	c.log().WithFields(logrus.Fields{
		"model":    info.model,
		"families": class.Families(),
		"firmware": info.firmware,
	}).Infof("device initialised: %+v", info.caps)

	c.startListener()
	c.setState(StateReady)

	return nil
}

func (c *Coordinator) probeDevice(ctx context.Context) (*deviceInfo, error) {
	info := &deviceInfo{channelNumber: c.cfg.Channel + 1}

	extra, err := c.client.GetMaxExtraStreams(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetching max extra streams")
	}
	info.maxStreams = extra + 1

	machine, err := c.client.GetMachineName(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetching machine name")
	}
	info.machineName = machine["table.General.MachineName"]

	sysInfo, err := c.client.GetSystemInfo(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetching system info")
	}
	info.serialNumber = sysInfo["serialNumber"]

	info.model, err = c.resolveModel(ctx, sysInfo)
	if err != nil {
		return nil, err
	}

	version, err := c.client.GetSoftwareVersion(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetching software version")
	}
	info.firmware = version["version"]

	class := Classify(info.model)

	if !class.Is(FamilyDoorbell) {
		info.caps.CoaxialControl = c.probe(ctx, "coaxial control", func(ctx context.Context) error {
			_, err := c.client.GetCoaxialControlIOStatus(ctx)
			return err
		})
	}
	info.caps.DisarmingLinkage = c.probe(ctx, "disarming linkage", func(ctx context.Context) error {
		_, err := c.client.GetDisarmingLinkage(ctx)
		return err
	})
	info.caps.EventNotifications = c.probe(ctx, "event notifications", func(ctx context.Context) error {
		_, err := c.client.GetEventNotifications(ctx)
		return err
	})
	info.caps.SmartMotionDetection = c.probe(ctx, "smart motion detection", func(ctx context.Context) error {
		_, err := c.client.GetSmartMotionDetection(ctx)
		return err
	})
	info.caps.PTZPosition = c.probe(ctx, "ptz position", func(ctx context.Context) error {
		_, err := c.client.GetPTZPosition(ctx)
		return err
	})
	info.caps.Lighting = c.probe(ctx, "lighting", func(ctx context.Context) error {
		_, err := c.client.GetConfigLighting(ctx, c.cfg.Channel, "0")
		return err
	})
	info.caps.LightingV2 = c.probe(ctx, "lighting v2", func(ctx context.Context) error {
		_, err := c.client.GetLightingV2(ctx)
		return err
	})
	info.caps.ProfileMode = c.probe(ctx, "profile mode", func(ctx context.Context) error {
		_, err := c.client.GetVideoInMode(ctx)
		return err
	})
	info.caps.FloodLightMode = class.Is(FamilyFloodLightMode)

	// Devices that number their channels from zero answer a snapshot for
	// channel 0; doorbells answer it regardless
	if !class.Is(FamilyDoorbell) {
		if _, err := c.client.GetSnapshot(ctx, 0); err == nil {
			info.channelNumber = c.cfg.Channel
		}
	}

	return info, nil
}

func (c *Coordinator) resolveModel(ctx context.Context, sysInfo map[string]string) (string, error) {
	deviceType := sysInfo["deviceType"]
	updateSerial, hasUpdateSerial := sysInfo["updateSerial"]

	switch {
	case deviceType == "31" && hasUpdateSerial:
		return updateSerial, nil

	case deviceType == "IP Camera" || deviceType == "":
		if hasUpdateSerial && updateSerial != "" {
			return updateSerial, nil
		}

		dt, err := c.client.GetDeviceType(ctx)
		if err != nil {
			return "", errors.Wrap(err, "fetching device type")
		}
		return dt["type"], nil
	}

	return deviceType, nil
}

// probe reports whether fn succeeded.  Failures only mean "not supported".
func (c *Coordinator) probe(ctx context.Context, what string, fn func(ctx context.Context) error) bool {
	if err := fn(ctx); err != nil {
		c.log().WithError(err).Debugf("device does not support %s", what)
		return false
	}
	return true
}

type pollFetch struct {
	name string
	run  func(ctx context.Context) (map[string]string, error)
}

func (c *Coordinator) poll(ctx context.Context) (map[string]string, error) {
	results, err := c.client.GetConfigMotionDetection(ctx)
	if err != nil {
		return nil, &UpdateFailedError{Err: errors.Wrap(err, "fetching motion detection config")}
	}

	var (
		resMu          sync.Mutex
		firstErr       error
		profileMode    *string
		presetPosition *string
		floodLightMode *int
	)

	c.mu.RLock()
	caps := c.caps
	class := c.class
	currentProfile := c.profileMode
	infrared := c.supportsInfraredLightLocked()
	c.mu.RUnlock()

	var fetches []pollFetch
	add := func(enabled bool, name string, run func(ctx context.Context) (map[string]string, error)) {
		if enabled {
			fetches = append(fetches, pollFetch{name: name, run: run})
		}
	}

	add(infrared, "lighting", func(ctx context.Context) (map[string]string, error) {
		return c.client.GetConfigLighting(ctx, c.cfg.Channel, currentProfile)
	})
	add(caps.DisarmingLinkage, "disarming linkage", c.client.GetDisarmingLinkage)
	add(caps.EventNotifications, "event notifications", c.client.GetEventNotifications)
	add(caps.CoaxialControl, "coaxial control", c.client.GetCoaxialControlIOStatus)
	add(caps.SmartMotionDetection, "smart motion detection", c.client.GetSmartMotionDetection)
	add(class.Is(FamilyAmcrestSmartMotion), "video analyse rules", c.client.GetVideoAnalyseRulesForAmcrest)
	add(class.Is(FamilyAmcrestDoorbell), "light global", c.client.GetLightGlobalEnabled)
	add(caps.LightingV2, "lighting v2", c.client.GetLightingV2)
	add(caps.PTZPosition, "ptz position", func(ctx context.Context) (map[string]string, error) {
		r, err := c.client.GetPTZPosition(ctx)
		if err == nil {
			preset := r["status.PresetID"]
			if preset == "" {
				preset = "0"
			}
			resMu.Lock()
			presetPosition = &preset
			resMu.Unlock()
		}
		return r, err
	})
	add(caps.ProfileMode, "video in mode", func(ctx context.Context) (map[string]string, error) {
		r, err := c.client.GetVideoInMode(ctx)
		if err == nil {
			mode := r["table.VideoInMode[0].Config[0]"]
			if mode == "" {
				mode = "0"
			}
			resMu.Lock()
			profileMode = &mode
			resMu.Unlock()
		}
		return r, err
	})
	add(caps.FloodLightMode, "flood light mode", func(ctx context.Context) (map[string]string, error) {
		mode, err := c.client.GetFloodLightMode(ctx)
		if err == nil {
			resMu.Lock()
			floodLightMode = &mode
			resMu.Unlock()
		}
		return nil, err
	})

	limit := limiter.NewConcurrencyLimiter(c.cfg.PollConcurrency)
	for _, f := range fetches {
		f := f
		limit.ExecuteWithTicket(func(ticket int) {
			r, err := f.run(ctx)

			resMu.Lock()
			defer resMu.Unlock()

			if err != nil {
				if firstErr == nil {
					firstErr = errors.Wrapf(err, "fetching %s", f.name)
				}
				return
			}
			for k, v := range r {
				results[k] = v
			}
		})
	}
	limit.Wait()

	if firstErr != nil {
		c.log().WithError(firstErr).Warn("poll failed")
		return nil, &UpdateFailedError{Err: firstErr}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if profileMode != nil {
		c.profileMode = *profileMode
	}
	if presetPosition != nil {
		c.presetPosition = *presetPosition
	}
	if floodLightMode != nil {
		c.floodLightMode = *floodLightMode
	}

	// Merge only: keys the device stops reporting keep their last value
	for k, v := range results {
		c.data[k] = v
	}

	return copyMap(c.data), nil
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func eventKey(code string, channel int) string {
	return code + "-" + strconv.Itoa(channel)
}

// Stop cancels the background listeners and waits for them to exit.  It is
// safe to call more than once.
func (c *Coordinator) Stop() {
	c.lifeMu.Lock()
	cancels := c.cancels
	c.cancels = nil
	c.stopped = true
	c.lifeMu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	c.wg.Wait()

	c.mu.Lock()
	c.vtoClient = nil
	c.mu.Unlock()
}
