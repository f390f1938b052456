package handlers

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-openapi/runtime/middleware/header"
	"github.com/gorilla/mux"
	cache "github.com/patrickmn/go-cache"

	"github.com/jake-scott/dahua-bridge/internal/pkg/coordinator"
	"github.com/jake-scott/dahua-bridge/internal/pkg/dahuaapi"
	"github.com/jake-scott/dahua-bridge/internal/pkg/logging"
)

const maxAudioSize = 4 * 1024 * 1024

// Device is the view of the coordinator the HTTP API works from
type Device interface {
	State() coordinator.State
	Refresh(ctx context.Context) (map[string]string, error)
	Data() map[string]string
	Timestamps() map[string]int64

	DeviceName() string
	Model() string
	SerialNumber() string
	FirmwareVersion() string
	Channel() int
	ChannelNumber() int
	ProfileMode() string
	PresetPosition() string
	Capabilities() coordinator.Capabilities

	SupportsSpeaker() bool
	SupportsFloodLightMode() bool
	SupportsSmartMotionDetectionAmcrest() bool
	CancelCall() error
}

// DeviceClient is the set of device calls the HTTP API makes directly
type DeviceClient interface {
	dahuaapi.DeviceCommander
	GetSnapshot(ctx context.Context, channel int) ([]byte, error)
	GetFloodLightMode(ctx context.Context) (int, error)
}

// DeviceHandler serves state, events, snapshots, commands and audio for
// one device
type DeviceHandler struct {
	device    Device
	client    DeviceClient
	snapshots *cache.Cache

	// flood light mode to restore when the flood light is switched off
	floodMu        sync.Mutex
	savedFloodMode int
}

func NewDeviceHandler(device Device, client DeviceClient, snapshotTTL time.Duration) *DeviceHandler {
	return &DeviceHandler{
		device:         device,
		client:         client,
		snapshots:      cache.New(snapshotTTL, 10*snapshotTTL),
		savedFloodMode: 2,
	}
}

// RegisterRoutes adds the device API to r
func (h *DeviceHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/state", h.HandleState).Methods(http.MethodGet)
	r.HandleFunc("/events", h.HandleEvents).Methods(http.MethodGet)
	r.HandleFunc("/snapshot", h.HandleSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/audio", h.HandleAudio).Methods(http.MethodPost)
	r.HandleFunc("/command/{name}", h.HandleCommand).Methods(http.MethodPost)
}

type stateResponse struct {
	Name           string                   `json:"name"`
	Model          string                   `json:"model"`
	SerialNumber   string                   `json:"serialNumber"`
	Firmware       string                   `json:"firmware"`
	Channel        int                      `json:"channel"`
	ChannelNumber  int                      `json:"channelNumber"`
	State          string                   `json:"state"`
	ProfileMode    string                   `json:"profileMode"`
	PresetPosition string                   `json:"presetPosition"`
	Capabilities   coordinator.Capabilities `json:"capabilities"`
	Data           map[string]string        `json:"data"`
}

// HandleState returns the device description and the merged state map
func (h *DeviceHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	sendJSONResponse(w, r, http.StatusOK, stateResponse{
		Name:           h.device.DeviceName(),
		Model:          h.device.Model(),
		SerialNumber:   h.device.SerialNumber(),
		Firmware:       h.device.FirmwareVersion(),
		Channel:        h.device.Channel(),
		ChannelNumber:  h.device.ChannelNumber(),
		State:          h.device.State().String(),
		ProfileMode:    h.device.ProfileMode(),
		PresetPosition: h.device.PresetPosition(),
		Capabilities:   h.device.Capabilities(),
		Data:           h.device.Data(),
	})
}

// HandleEvents returns the event timestamp table
func (h *DeviceHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	sendJSONResponse(w, r, http.StatusOK, h.device.Timestamps())
}

// HandleSnapshot returns a JPEG from the device.  Images are cached briefly
// so that several viewers do not each hit the camera.
func (h *DeviceHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	channel := h.device.ChannelNumber()
	key := strconv.Itoa(channel)

	var img []byte
	if cached, ok := h.snapshots.Get(key); ok {
		img = cached.([]byte)
	} else {
		var err error
		img, err = h.client.GetSnapshot(r.Context(), channel)
		if err != nil {
			sendCommandError(w, r, err)
			return
		}
		h.snapshots.SetDefault(key, img)
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	if _, err := w.Write(img); err != nil {
		logging.Logger(r.Context()).WithError(err).Warn("writing snapshot")
	}
}

var audioEncodings = map[string]string{
	"audio/aac":   "AAC",
	"audio/g711a": "G.711A",
	"audio/g711u": "G.711Mu",
	"audio/pcm":   "PCM",
}

// HandleAudio plays an already encoded clip on the device speaker.  The
// request Content-Type selects the device audio encoding.
func (h *DeviceHandler) HandleAudio(w http.ResponseWriter, r *http.Request) {
	if !h.device.SupportsSpeaker() {
		sendError(w, r, http.StatusConflict, "not_supported", "device has no speaker")
		return
	}

	value, _ := header.ParseValueAndParams(r.Header, "Content-Type")
	encoding, ok := audioEncodings[strings.ToLower(value)]
	if !ok {
		sendError(w, r, http.StatusUnsupportedMediaType, "unsupported_media_type",
			fmt.Sprintf("content type %q is not a supported audio encoding", value))
		return
	}

	data, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioSize))
	if err != nil {
		sendError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if len(data) == 0 {
		sendError(w, r, http.StatusBadRequest, "bad_request", "empty audio clip")
		return
	}

	if err := h.client.PostAudio(r.Context(), h.device.ChannelNumber(), data, encoding); err != nil {
		sendCommandError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
