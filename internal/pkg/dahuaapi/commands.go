package dahuaapi

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const setConfigPath = "/cgi-bin/configManager.cgi?action=setConfig"

// Day/night profile indexes used by VideoInDayNight
const (
	ProfileDay     = 0
	ProfileNight   = 1
	ProfileGeneral = 2
)

// Coaxial IO types
const (
	CoaxialWhiteLight = 1
	CoaxialSiren      = 2
)

// setConfig joins key=value pairs onto a setConfig request
func setConfig(pairs ...string) string {
	return setConfigPath + "&" + strings.Join(pairs, "&")
}

func escapeTexts(texts ...string) string {
	escaped := make([]string, len(texts))
	for i, t := range texts {
		escaped[i] = url.QueryEscape(t)
	}
	return strings.Join(escaped, "|")
}

// EnableMotionDetection toggles motion detection.  Older firmware rejects
// the DetectVersion parameter, so the plain form is retried on a non-OK answer.
func (c *Live) EnableMotionDetection(ctx context.Context, channel int, enabled bool) error {
	en := boolString(enabled)

	result, err := c.Get(ctx, setConfig(
		fmt.Sprintf("MotionDetect[%d].Enable=%s", channel, en),
		fmt.Sprintf("MotionDetect[%d].DetectVersion=V3.0", channel),
	))
	if err != nil {
		return errors.Wrap(err, "enabling motion detection")
	}
	if isOK(result) {
		return nil
	}

	return c.command(ctx, setConfig(fmt.Sprintf("MotionDetect[%d].Enable=%s", channel, en)), "enabling motion detection")
}

func lightingMode(enabled bool) string {
	if enabled {
		return "Manual"
	}
	return "Off"
}

// SetLightingV1 turns the IR light on at a brightness (0-100) or off
func (c *Live) SetLightingV1(ctx context.Context, channel int, enabled bool, brightness int) error {
	return c.SetLightingV1Mode(ctx, channel, lightingMode(enabled), brightness)
}

// SetLightingV1Mode sets an explicit IR light mode.  "on" is an alias for Manual.
func (c *Live) SetLightingV1Mode(ctx context.Context, channel int, mode string, brightness int) error {
	if strings.EqualFold(mode, "on") {
		mode = "Manual"
	}

	return c.command(ctx, setConfig(
		fmt.Sprintf("Lighting[%d][0].Mode=%s", channel, mode),
		fmt.Sprintf("Lighting[%d][0].MiddleLight[0].Light=%d", channel, brightness),
	), "setting infrared light")
}

func (c *Live) setLightingV2(ctx context.Context, channel int, light int, enabled bool, brightness int, profileMode string) error {
	prefix := fmt.Sprintf("Lighting_V2[%d][%s][%d]", channel, profileMode, light)

	return c.command(ctx, setConfig(
		prefix+".Mode="+lightingMode(enabled),
		fmt.Sprintf("%s.MiddleLight[0].Light=%d", prefix, brightness),
	), "setting lighting")
}

// SetLightingV2 controls the white illuminator
func (c *Live) SetLightingV2(ctx context.Context, channel int, enabled bool, brightness int, profileMode string) error {
	return c.setLightingV2(ctx, channel, 0, enabled, brightness, profileMode)
}

// SetLightingV2ForFloodLights controls the flood light, the second light slot
func (c *Live) SetLightingV2ForFloodLights(ctx context.Context, channel int, enabled bool, brightness int, profileMode string) error {
	return c.setLightingV2(ctx, channel, 1, enabled, brightness, profileMode)
}

// SetLightingV2ForAmcrestDoorbells drives the doorbell security light: on,
// strobe or off
func (c *Live) SetLightingV2ForAmcrestDoorbells(ctx context.Context, mode string) error {
	const prefix = "Lighting_V2[0][0][1]"

	var path string
	switch strings.ToLower(mode) {
	case "on":
		path = setConfig(prefix+".Mode=ForceOn", prefix+".State=On")
	case "strobe", "flicker":
		path = setConfig(prefix+".Mode=ForceOn", prefix+".State=Flicker")
	default:
		path = setConfig(prefix + ".Mode=Off")
	}

	return c.command(ctx, path, "setting doorbell light")
}

// SetVideoProfileMode switches between the Day and Night video profiles
func (c *Live) SetVideoProfileMode(ctx context.Context, channel int, mode string) error {
	value := "0"
	if strings.EqualFold(mode, "night") {
		value = "1"
	}

	return c.command(ctx, setConfig(fmt.Sprintf("VideoInMode[%d].Config[0]=%s", channel, value)), "setting video profile mode")
}

// SetRecordMode sets recording to auto, on or off
func (c *Live) SetRecordMode(ctx context.Context, channel int, mode string) error {
	var value string
	switch strings.ToLower(mode) {
	case "auto":
		value = "0"
	case "on":
		value = "1"
	case "off":
		value = "2"
	default:
		return errors.Errorf("unknown record mode %q", mode)
	}

	return c.command(ctx, setConfig(fmt.Sprintf("RecordMode[%d].Mode=%s", channel, value)), "setting record mode")
}

// SetDayNightColorMode picks Color, BlackWhite or Brightness (auto) for one
// of the day/night/general profiles
func (c *Live) SetDayNightColorMode(ctx context.Context, channel int, profile int, mode string) error {
	value := "Brightness"
	switch strings.ToLower(mode) {
	case "color":
		value = "Color"
	case "blackwhite", "black&white", "black_white":
		value = "BlackWhite"
	}

	return c.command(ctx, setConfig(fmt.Sprintf("VideoInDayNight[%d][%d].Mode=%s", channel, profile, value)),
		"could not set day/night mode")
}

// SetNightSwitchMode sets the profile switching rule: Day, Night or auto
func (c *Live) SetNightSwitchMode(ctx context.Context, channel int, mode string) error {
	value := "2"
	switch strings.ToLower(mode) {
	case "night":
		value = "3"
	case "day":
		value = "0"
	}

	return c.command(ctx, setConfig(fmt.Sprintf("VideoInOptions[%d].NightOptions.SwitchMode=%s", channel, value)),
		"setting night switch mode")
}

// SetCoaxialControlState toggles a coaxial IO, eg. 1 white light, 2 siren
func (c *Live) SetCoaxialControlState(ctx context.Context, channel int, ioType int, on bool) error {
	io := 2
	if on {
		io = 1
	}

	path := fmt.Sprintf("/cgi-bin/coaxialControlIO.cgi?action=control&channel=%d&info[0].Type=%d&info[0].IO=%d", channel, ioType, io)
	return c.command(ctx, path, "setting coaxial control state")
}

func (c *Live) SetDisarmingLinkage(ctx context.Context, channel int, enabled bool) error {
	return c.command(ctx, setConfig(fmt.Sprintf("DisableLinkage[%d].Enable=%s", channel, boolString(enabled))),
		"setting disarming linkage")
}

// SetEventNotifications writes the inverted DisableEventNotify flag
func (c *Live) SetEventNotifications(ctx context.Context, channel int, enabled bool) error {
	return c.command(ctx, setConfig("DisableEventNotify.Enable="+boolString(!enabled)),
		"setting event notifications")
}

func (c *Live) SetSmartMotionDetection(ctx context.Context, enabled bool) error {
	return c.command(ctx, setConfig("SmartMotionDetect[0].Enable="+boolString(enabled)),
		"setting smart motion detection")
}

// SetLightGlobalEnabled toggles the ring light on Amcrest doorbells
func (c *Live) SetLightGlobalEnabled(ctx context.Context, enabled bool) error {
	return c.command(ctx, setConfig("LightGlobal[0].Enable="+boolString(enabled)),
		"setting ring light")
}

func (c *Live) SetIVSRule(ctx context.Context, channel int, index int, enabled bool) error {
	return c.command(ctx, setConfig(fmt.Sprintf("VideoAnalyseRule[%d][%d].Enable=%s", channel, index, boolString(enabled))),
		"setting IVS rule")
}

var ivsRuleKey = regexp.MustCompile(`^table\.VideoAnalyseRule\[(\d+)\]\[(\d+)\]\.Enable$`)

// SetAllIVSRules toggles every IVS rule on a channel in one request.
// Nothing is sent when the channel has no rules.
func (c *Live) SetAllIVSRules(ctx context.Context, channel int, enabled bool) error {
	rules, err := c.GetIVSRules(ctx)
	if err != nil {
		return errors.Wrap(err, "listing IVS rules")
	}

	var pairs []string
	for key := range rules {
		m := ivsRuleKey.FindStringSubmatch(key)
		if m == nil || m[1] != fmt.Sprint(channel) {
			continue
		}
		pairs = append(pairs, fmt.Sprintf("VideoAnalyseRule[%s][%s].Enable=%s", m[1], m[2], boolString(enabled)))
	}

	if len(pairs) == 0 {
		return nil
	}
	sort.Strings(pairs)

	return c.command(ctx, setConfig(pairs...), "setting IVS rules")
}

func (c *Live) SetFloodLightMode(ctx context.Context, mode int) error {
	return c.command(ctx, setConfig(fmt.Sprintf("FloodLightMode.Mode=%d", mode)), "setting flood light mode")
}

func (c *Live) SetPrivacyMask(ctx context.Context, index int, enabled bool) error {
	return c.command(ctx, setConfig(fmt.Sprintf("PrivacyMasking[0][%d].Enable=%s", index, boolString(enabled))),
		"setting privacy mask")
}

func (c *Live) EnableChannelTitle(ctx context.Context, channel int, enabled bool) error {
	return c.command(ctx, setConfig(fmt.Sprintf("VideoWidget[%d].ChannelTitle.EncodeBlend=%s", channel, boolString(enabled))),
		"could not enable/disable channel title")
}

func (c *Live) EnableTimeOverlay(ctx context.Context, channel int, enabled bool) error {
	return c.command(ctx, setConfig(fmt.Sprintf("VideoWidget[%d].TimeTitle.EncodeBlend=%s", channel, boolString(enabled))),
		"could not enable/disable time overlay")
}

func (c *Live) EnableTextOverlay(ctx context.Context, channel int, group int, enabled bool) error {
	return c.command(ctx, setConfig(fmt.Sprintf("VideoWidget[%d].CustomTitle[%d].EncodeBlend=%s", channel, group, boolString(enabled))),
		"could not enable/disable text overlay")
}

func (c *Live) EnableCustomOverlay(ctx context.Context, channel int, group int, enabled bool) error {
	return c.command(ctx, setConfig(fmt.Sprintf("VideoWidget[%d].UserDefinedTitle[%d].EncodeBlend=%s", channel, group, boolString(enabled))),
		"could not enable/disable customer overlay")
}

func (c *Live) SetServiceSetChannelTitle(ctx context.Context, channel int, text1 string, text2 string) error {
	return c.command(ctx, setConfig(fmt.Sprintf("ChannelTitle[%d].Name=%s", channel, escapeTexts(text1, text2))),
		"could not set text")
}

func (c *Live) SetServiceSetTextOverlay(ctx context.Context, channel int, group int, text1, text2, text3, text4 string) error {
	return c.command(ctx, setConfig(fmt.Sprintf("VideoWidget[%d].CustomTitle[%d].Text=%s", channel, group,
		escapeTexts(text1, text2, text3, text4))), "could not set text")
}

func (c *Live) SetServiceSetCustomOverlay(ctx context.Context, channel int, group int, text1 string, text2 string) error {
	return c.command(ctx, setConfig(fmt.Sprintf("VideoWidget[%d].UserDefinedTitle[%d].Text=%s", channel, group,
		escapeTexts(text1, text2))), "could not set text")
}

func (c *Live) GotoPresetPosition(ctx context.Context, channel int, position int) error {
	path := fmt.Sprintf("/cgi-bin/ptz.cgi?action=start&channel=%d&code=GotoPreset&arg1=0&arg2=%d&arg3=0", channel, position)
	return c.command(ctx, path, "moving to preset position")
}

func (c *Live) AdjustFocus(ctx context.Context, focus string, zoom string) error {
	path := fmt.Sprintf("/cgi-bin/devVideoInput.cgi?action=adjustFocus&focus=%s&zoom=%s", url.QueryEscape(focus), url.QueryEscape(zoom))
	return c.command(ctx, path, "adjusting focus")
}

// AccessControlOpenDoor releases the door lock wired to a doorbell
func (c *Live) AccessControlOpenDoor(ctx context.Context, doorID int) error {
	path := fmt.Sprintf("/cgi-bin/accessControl.cgi?action=openDoor&UserID=101&Type=Remote&channel=%d", doorID)
	return c.command(ctx, path, "opening door")
}

func (c *Live) Reboot(ctx context.Context) error {
	return c.command(ctx, "/cgi-bin/magicBox.cgi?action=reboot", "rebooting device")
}
