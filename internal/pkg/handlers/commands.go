package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/jake-scott/dahua-bridge/internal/pkg/dahuaapi"
	"github.com/jake-scott/dahua-bridge/internal/pkg/logging"
)

// CommandRequest is the body of POST /command/{name}.  Each command reads
// only the fields it needs.
type CommandRequest struct {
	Enabled    *bool    `json:"enabled,omitempty"`
	Brightness *int     `json:"brightness,omitempty"`
	Mode       string   `json:"mode,omitempty"`
	Position   string   `json:"position,omitempty"`
	Profile    string   `json:"profile,omitempty"`
	Index      int      `json:"index,omitempty"`
	Group      int      `json:"group,omitempty"`
	Door       int      `json:"door,omitempty"`
	Text       []string `json:"text,omitempty"`
	Focus      string   `json:"focus,omitempty"`
	Zoom       string   `json:"zoom,omitempty"`
}

// badRequestError is returned by a command when the body does not carry
// what it needs
type badRequestError struct {
	msg string
}

func (e badRequestError) Error() string {
	return e.msg
}

func (req CommandRequest) enabled() (bool, error) {
	if req.Enabled == nil {
		return false, badRequestError{"missing field: enabled"}
	}
	return *req.Enabled, nil
}

func (req CommandRequest) requireMode() (string, error) {
	if req.Mode == "" {
		return "", badRequestError{"missing field: mode"}
	}
	return req.Mode, nil
}

// texts returns exactly n text lines, padding with empty strings
func (req CommandRequest) texts(n int) ([]string, error) {
	if len(req.Text) > n {
		return nil, badRequestError{fmt.Sprintf("at most %d text lines allowed", n)}
	}
	out := make([]string, n)
	copy(out, req.Text)
	return out, nil
}

type commandFunc func(ctx context.Context, h *DeviceHandler, req CommandRequest) error

// toggle adapts a channel/enabled setter into a command
func toggle(set func(c DeviceClient, ctx context.Context, channel int, on bool) error) commandFunc {
	return func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		on, err := req.enabled()
		if err != nil {
			return err
		}
		return set(h.client, ctx, h.device.Channel(), on)
	}
}

func coaxial(ioType int) commandFunc {
	return toggle(func(c DeviceClient, ctx context.Context, channel int, on bool) error {
		return c.SetCoaxialControlState(ctx, channel, ioType, on)
	})
}

var commands = map[string]commandFunc{
	"motion_detection":    toggle(DeviceClient.EnableMotionDetection),
	"disarming_linkage":   toggle(DeviceClient.SetDisarmingLinkage),
	"event_notifications": toggle(DeviceClient.SetEventNotifications),
	"siren":               coaxial(dahuaapi.CoaxialSiren),
	"security_light":      coaxial(dahuaapi.CoaxialWhiteLight),
	"channel_title":       toggle(DeviceClient.EnableChannelTitle),
	"time_overlay":        toggle(DeviceClient.EnableTimeOverlay),
	"all_ivs_rules":       toggle(DeviceClient.SetAllIVSRules),

	"smart_motion_detection": func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		on, err := req.enabled()
		if err != nil {
			return err
		}
		if h.device.SupportsSmartMotionDetectionAmcrest() {
			return h.client.SetIVSRule(ctx, 0, 0, on)
		}
		return h.client.SetSmartMotionDetection(ctx, on)
	},

	"infrared_light": func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		on, err := req.enabled()
		if err != nil {
			return err
		}
		return h.client.SetLightingV1(ctx, h.device.Channel(), on, dahuaapi.HassToDahuaBrightness(req.Brightness))
	},

	// infrared_mode takes Auto, Manual or Off and a brightness already on
	// the device's 0-100 scale
	"infrared_mode": func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		mode, err := req.requireMode()
		if err != nil {
			return err
		}
		brightness := 100
		if req.Brightness != nil {
			brightness = *req.Brightness
		}
		if brightness < 0 || brightness > 100 {
			return badRequestError{fmt.Sprintf("brightness %d out of range 0-100", brightness)}
		}
		return h.client.SetLightingV1Mode(ctx, h.device.Channel(), mode, brightness)
	},

	"illuminator": func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		on, err := req.enabled()
		if err != nil {
			return err
		}
		return h.client.SetLightingV2(ctx, h.device.Channel(), on,
			dahuaapi.HassToDahuaBrightness(req.Brightness), h.device.ProfileMode())
	},

	"flood_light": func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		return h.setFloodLight(ctx, req)
	},

	"ring_light": func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		on, err := req.enabled()
		if err != nil {
			return err
		}
		return h.client.SetLightGlobalEnabled(ctx, on)
	},

	"doorbell_light": func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		mode, err := req.requireMode()
		if err != nil {
			return err
		}
		return h.client.SetLightingV2ForAmcrestDoorbells(ctx, mode)
	},

	"preset_position": func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		if req.Position == "" {
			return badRequestError{"missing field: position"}
		}
		if strings.EqualFold(req.Position, "manual") {
			return nil
		}
		pos, err := strconv.Atoi(req.Position)
		if err != nil || pos < 1 {
			return badRequestError{fmt.Sprintf("invalid preset position %q", req.Position)}
		}
		return h.client.GotoPresetPosition(ctx, h.device.Channel(), pos)
	},

	"profile_mode": func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		mode, err := req.requireMode()
		if err != nil {
			return err
		}
		if switchesProfileByNightMode(h.device.Model()) {
			return h.client.SetNightSwitchMode(ctx, h.device.Channel(), mode)
		}
		return h.client.SetVideoProfileMode(ctx, h.device.Channel(), mode)
	},

	"record_mode": func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		mode, err := req.requireMode()
		if err != nil {
			return err
		}
		return h.client.SetRecordMode(ctx, h.device.Channel(), mode)
	},

	"day_night_color": func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		mode, err := req.requireMode()
		if err != nil {
			return err
		}
		profile, ok := dayNightProfiles[strings.ToLower(req.Profile)]
		if !ok {
			return badRequestError{fmt.Sprintf("invalid profile %q, expected day, night or general", req.Profile)}
		}
		return h.client.SetDayNightColorMode(ctx, h.device.Channel(), profile, mode)
	},

	"night_switch_mode": func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		mode, err := req.requireMode()
		if err != nil {
			return err
		}
		return h.client.SetNightSwitchMode(ctx, h.device.Channel(), mode)
	},

	"privacy_mask": func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		on, err := req.enabled()
		if err != nil {
			return err
		}
		return h.client.SetPrivacyMask(ctx, req.Index, on)
	},

	"text_overlay": func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		on, err := req.enabled()
		if err != nil {
			return err
		}
		return h.client.EnableTextOverlay(ctx, h.device.Channel(), req.Group, on)
	},

	"custom_overlay": func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		on, err := req.enabled()
		if err != nil {
			return err
		}
		return h.client.EnableCustomOverlay(ctx, h.device.Channel(), req.Group, on)
	},

	"set_channel_title": func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		t, err := req.texts(2)
		if err != nil {
			return err
		}
		return h.client.SetServiceSetChannelTitle(ctx, h.device.Channel(), t[0], t[1])
	},

	"set_text_overlay": func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		t, err := req.texts(4)
		if err != nil {
			return err
		}
		return h.client.SetServiceSetTextOverlay(ctx, h.device.Channel(), req.Group, t[0], t[1], t[2], t[3])
	},

	"set_custom_overlay": func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		t, err := req.texts(2)
		if err != nil {
			return err
		}
		return h.client.SetServiceSetCustomOverlay(ctx, h.device.Channel(), req.Group, t[0], t[1])
	},

	"adjust_focus": func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		if req.Focus == "" || req.Zoom == "" {
			return badRequestError{"focus and zoom are both required"}
		}
		return h.client.AdjustFocus(ctx, req.Focus, req.Zoom)
	},

	"ivs_rule": func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		on, err := req.enabled()
		if err != nil {
			return err
		}
		return h.client.SetIVSRule(ctx, h.device.Channel(), req.Index, on)
	},

	"open_door": func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		door := req.Door
		if door == 0 {
			door = 1
		}
		return h.client.AccessControlOpenDoor(ctx, door)
	},

	"reboot": func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		return h.client.Reboot(ctx)
	},

	"cancel_call": func(ctx context.Context, h *DeviceHandler, req CommandRequest) error {
		return h.device.CancelCall()
	},
}

// switchesProfileByNightMode reports whether the model changes its day/night
// profile through the night switch rule instead of VideoInMode
func switchesProfileByNightMode(model string) bool {
	return strings.Contains(model, "NVR4108HS") || strings.Contains(model, "IPC-Color4K")
}

var dayNightProfiles = map[string]int{
	"day":     0,
	"night":   1,
	"general": 2,
}

// CommandNames lists the commands accepted by HandleCommand
func CommandNames() []string {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// setFloodLight drives the flood light.  Devices with a flood light mode
// are switched to manual mode (2) while the light is on and their previous
// mode is put back when it goes off.
func (h *DeviceHandler) setFloodLight(ctx context.Context, req CommandRequest) error {
	on, err := req.enabled()
	if err != nil {
		return err
	}
	channel := h.device.Channel()

	if !h.device.SupportsFloodLightMode() {
		return h.client.SetLightingV2ForFloodLights(ctx, channel, on,
			dahuaapi.HassToDahuaBrightness(req.Brightness), h.device.ProfileMode())
	}

	h.floodMu.Lock()
	defer h.floodMu.Unlock()

	if on {
		if mode, err := h.client.GetFloodLightMode(ctx); err == nil {
			h.savedFloodMode = mode
		} else {
			logging.Logger(ctx).WithError(err).Warn("could not read flood light mode, keeping previous value")
		}
		if err := h.client.SetFloodLightMode(ctx, 2); err != nil {
			return err
		}
		return h.client.SetCoaxialControlState(ctx, channel, dahuaapi.CoaxialWhiteLight, true)
	}

	if err := h.client.SetCoaxialControlState(ctx, channel, dahuaapi.CoaxialWhiteLight, false); err != nil {
		return err
	}
	return h.client.SetFloodLightMode(ctx, h.savedFloodMode)
}

// HandleCommand runs /command/{name} and refreshes the device state after
// a successful command
func (h *DeviceHandler) HandleCommand(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	log := logging.Logger(r.Context()).WithField("command", name)

	cmd, ok := commands[name]
	if !ok {
		sendError(w, r, http.StatusNotFound, "unknown_command", fmt.Sprintf("unknown command %q", name))
		return
	}

	var req CommandRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		sendError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	if err := cmd(r.Context(), h, req); err != nil {
		if br, ok := err.(badRequestError); ok {
			sendError(w, r, http.StatusBadRequest, "bad_request", br.msg)
			return
		}
		sendCommandError(w, r, err)
		return
	}
	log.Info("command sent")

	if _, err := h.device.Refresh(r.Context()); err != nil {
		log.WithError(err).Warn("refresh after command failed")
	}

	w.WriteHeader(http.StatusNoContent)
}
