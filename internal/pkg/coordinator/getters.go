package coordinator

import (
	"fmt"

	"github.com/jake-scott/dahua-bridge/internal/pkg/dahuaapi"
)

func (c *Coordinator) value(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data[key]
}

func (c *Coordinator) is(f Family) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.class.Is(f)
}

func (c *Coordinator) IsDoorbell() bool        { return c.is(FamilyDoorbell) }
func (c *Coordinator) IsAmcrestDoorbell() bool { return c.is(FamilyAmcrestDoorbell) }
func (c *Coordinator) IsFloodLight() bool      { return c.is(FamilyFloodLight) }
func (c *Coordinator) SupportsSiren() bool     { return c.is(FamilySiren) }

func (c *Coordinator) SupportsSecurityLight() bool {
	return c.is(FamilySecurityLight)
}

func (c *Coordinator) SupportsFloodLightMode() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.caps.FloodLightMode
}

func (c *Coordinator) SupportsSmartMotionDetectionAmcrest() bool {
	return c.is(FamilyAmcrestSmartMotion)
}

// SupportsSpeaker is true for devices that can play audio
func (c *Coordinator) SupportsSpeaker() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.class.Is(FamilyDoorbell) || c.class.Is(FamilySiren)
}

func (c *Coordinator) supportsInfraredLightLocked() bool {
	return c.caps.Lighting && !c.class.Is(FamilyNoInfrared)
}

// SupportsInfraredLight is true when the v1 lighting config exists and the
// model's light is an IR illuminator
func (c *Coordinator) SupportsInfraredLight() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.supportsInfraredLightLocked()
}

func (c *Coordinator) hasLightingV2Locked() bool {
	_, ok := c.data[fmt.Sprintf("table.Lighting_V2[%d][0][0].Mode", c.cfg.Channel)]
	return ok && !c.class.Is(FamilyFloodLight) && !c.class.Is(FamilyAmcrestDoorbell)
}

func (c *Coordinator) SupportsIlluminator() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasLightingV2Locked()
}

func (c *Coordinator) SupportsPTZPosition() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasLightingV2Locked()
}

// Capabilities returns the probed capability set
func (c *Coordinator) Capabilities() Capabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.caps
}

func (c *Coordinator) SupportsCoaxialControl() bool       { return c.Capabilities().CoaxialControl }
func (c *Coordinator) SupportsDisarmingLinkage() bool     { return c.Capabilities().DisarmingLinkage }
func (c *Coordinator) SupportsEventNotifications() bool   { return c.Capabilities().EventNotifications }
func (c *Coordinator) SupportsSmartMotionDetection() bool { return c.Capabilities().SmartMotionDetection }
func (c *Coordinator) SupportsProfileMode() bool          { return c.Capabilities().ProfileMode }

func (c *Coordinator) IsMotionDetectionEnabled() bool {
	return c.value(fmt.Sprintf("table.MotionDetect[%d].Enable", c.cfg.Channel)) == "true"
}

func (c *Coordinator) IsDisarmingLinkageEnabled() bool {
	return c.value("table.DisableLinkage.Enable") == "true"
}

// IsEventNotificationsEnabled reads an inverted device flag: the device
// stores "disable notifications"
func (c *Coordinator) IsEventNotificationsEnabled() bool {
	return c.value("table.DisableEventNotify.Enable") == "false"
}

func (c *Coordinator) IsSmartMotionDetectionEnabled() bool {
	if c.SupportsSmartMotionDetectionAmcrest() {
		return c.value("table.VideoAnalyseRule[0][0].Enable") == "true"
	}
	return c.value("table.SmartMotionDetect[0].Enable") == "true"
}

func (c *Coordinator) IsSirenOn() bool {
	return c.value("status.status.Speaker") == "On"
}

func (c *Coordinator) IsInfraredLightOn() bool {
	return c.value(fmt.Sprintf("table.Lighting[%d][0].Mode", c.cfg.Channel)) == "Manual"
}

// InfraredBrightness is on the host's 0-255 scale
func (c *Coordinator) InfraredBrightness() int {
	return dahuaapi.DahuaToHassBrightness(c.value(fmt.Sprintf("table.Lighting[%d][0].MiddleLight[0].Light", c.cfg.Channel)))
}

func (c *Coordinator) IsIlluminatorOn() bool {
	profile := c.ProfileMode()
	return c.value(fmt.Sprintf("table.Lighting_V2[%d][%s][0].Mode", c.cfg.Channel, profile)) == "Manual"
}

func (c *Coordinator) IlluminatorBrightness() int {
	return dahuaapi.DahuaToHassBrightness(c.value(fmt.Sprintf("table.Lighting_V2[%d][0][0].MiddleLight[0].Light", c.cfg.Channel)))
}

// IsFloodLightOn reads the white light status on models with a flood light
// mode and the second lighting v2 light otherwise
func (c *Coordinator) IsFloodLightOn() bool {
	if c.SupportsFloodLightMode() {
		return c.value("status.status.WhiteLight") == "On"
	}
	profile := c.ProfileMode()
	return c.value(fmt.Sprintf("table.Lighting_V2[%d][%s][1].Mode", c.cfg.Channel, profile)) == "Manual"
}

func (c *Coordinator) IsRingLightOn() bool {
	return c.value("table.LightGlobal[0].Enable") == "true"
}

func (c *Coordinator) IsSecurityLightOn() bool {
	return c.value("status.status.WhiteLight") == "On"
}

// DeviceName is the configured name, falling back to the device's own
func (c *Coordinator) DeviceName() string {
	if c.cfg.Name != "" {
		return c.cfg.Name
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.machineName
}

func (c *Coordinator) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// SerialNumber identifies the device; extra channels of one device get a
// suffix so each channel is unique
func (c *Coordinator) SerialNumber() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cfg.Channel > 0 {
		return fmt.Sprintf("%s_%d", c.serialNumber, c.cfg.Channel)
	}
	return c.serialNumber
}

func (c *Coordinator) FirmwareVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.firmware
}

func (c *Coordinator) EventList() []string {
	return append([]string(nil), c.cfg.Events...)
}

func (c *Coordinator) ProfileMode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.profileMode
}

func (c *Coordinator) PresetPosition() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.presetPosition
}

func (c *Coordinator) FloodLightMode() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.floodLightMode
}

func (c *Coordinator) Channel() int {
	return c.cfg.Channel
}

// ChannelNumber is the channel as the device numbers it in stream URLs
func (c *Coordinator) ChannelNumber() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channelNumber
}

func (c *Coordinator) MaxStreams() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxStreams
}

func (c *Coordinator) Address() string {
	return c.cfg.Address
}

// Data returns a copy of the state map
func (c *Coordinator) Data() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyMap(c.data)
}

// Timestamps returns a copy of the event timestamp table
func (c *Coordinator) Timestamps() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]int64, len(c.timestamps))
	for k, v := range c.timestamps {
		out[k] = v
	}
	return out
}
