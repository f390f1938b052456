package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateGetters(t *testing.T) {
	tests := []struct {
		name  string
		data  map[string]string
		check func(c *Coordinator) bool
	}{
		{"motion on", map[string]string{"table.MotionDetect[0].Enable": "true"}, (*Coordinator).IsMotionDetectionEnabled},
		{"disarming on", map[string]string{"table.DisableLinkage.Enable": "true"}, (*Coordinator).IsDisarmingLinkageEnabled},
		{"notifications inverted", map[string]string{"table.DisableEventNotify.Enable": "false"}, (*Coordinator).IsEventNotificationsEnabled},
		{"smart motion", map[string]string{"table.SmartMotionDetect[0].Enable": "true"}, (*Coordinator).IsSmartMotionDetectionEnabled},
		{"siren", map[string]string{"status.status.Speaker": "On"}, (*Coordinator).IsSirenOn},
		{"infrared", map[string]string{"table.Lighting[0][0].Mode": "Manual"}, (*Coordinator).IsInfraredLightOn},
		{"illuminator", map[string]string{"table.Lighting_V2[0][0][0].Mode": "Manual"}, (*Coordinator).IsIlluminatorOn},
		{"ring light", map[string]string{"table.LightGlobal[0].Enable": "true"}, (*Coordinator).IsRingLightOn},
		{"security light", map[string]string{"status.status.WhiteLight": "On"}, (*Coordinator).IsSecurityLightOn},
		{"flood light v2", map[string]string{"table.Lighting_V2[0][0][1].Mode": "Manual"}, (*Coordinator).IsFloodLightOn},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newReady(newFakeDevice(), "IPC-HDW5831R-ZE")

			c.data = tc.data
			assert.True(t, tc.check(c))

			// empty state is the conservative answer
			c.data = map[string]string{}
			assert.False(t, tc.check(c))
		})
	}
}

func TestEventNotificationsDisabled(t *testing.T) {
	c := newReady(newFakeDevice(), "IPC-HDW5831R-ZE")
	c.data = map[string]string{"table.DisableEventNotify.Enable": "true"}
	assert.False(t, c.IsEventNotificationsEnabled())
}

func TestSmartMotionAmcrest(t *testing.T) {
	c := newReady(newFakeDevice(), "AD410")

	c.data = map[string]string{"table.SmartMotionDetect[0].Enable": "true"}
	assert.False(t, c.IsSmartMotionDetectionEnabled())

	c.data = map[string]string{"table.VideoAnalyseRule[0][0].Enable": "true"}
	assert.True(t, c.IsSmartMotionDetectionEnabled())
}

func TestIlluminatorFollowsProfile(t *testing.T) {
	c := newReady(newFakeDevice(), "IPC-HDW5831R-ZE")
	c.data = map[string]string{
		"table.Lighting_V2[0][0][0].Mode": "Off",
		"table.Lighting_V2[0][1][0].Mode": "Manual",
	}

	assert.False(t, c.IsIlluminatorOn())
	c.profileMode = "1"
	assert.True(t, c.IsIlluminatorOn())
}

func TestFloodLightWithMode(t *testing.T) {
	c := newReady(newFakeDevice(), "W452ASD")
	c.caps.FloodLightMode = true

	c.data = map[string]string{"status.status.WhiteLight": "On", "table.Lighting_V2[0][0][1].Mode": "Off"}
	assert.True(t, c.IsFloodLightOn())

	c.data = map[string]string{"status.status.WhiteLight": "Off", "table.Lighting_V2[0][0][1].Mode": "Manual"}
	assert.False(t, c.IsFloodLightOn())
}

func TestBrightnessGetters(t *testing.T) {
	c := newReady(newFakeDevice(), "IPC-HDW5831R-ZE")
	c.data = map[string]string{
		"table.Lighting[0][0].MiddleLight[0].Light":       "100",
		"table.Lighting_V2[0][0][0].MiddleLight[0].Light": "50",
	}

	assert.Equal(t, 255, c.InfraredBrightness())
	assert.Equal(t, 127, c.IlluminatorBrightness())
}

func TestSimpleGetters(t *testing.T) {
	cfg := testConfig()
	cfg.Events = []string{"VideoMotion", "CrossLineDetection"}
	c := New(cfg, newFakeDevice(), &fakeHost{})
	c.machineName = "MachineCam"
	c.serialNumber = "SERIAL123"
	c.maxStreams = 3

	assert.Equal(t, "TestCam", c.DeviceName())
	c.cfg.Name = ""
	assert.Equal(t, "MachineCam", c.DeviceName())

	assert.Equal(t, "SERIAL123", c.SerialNumber())
	assert.Equal(t, []string{"VideoMotion", "CrossLineDetection"}, c.EventList())
	assert.Equal(t, "0", c.ProfileMode())
	assert.Equal(t, "0", c.PresetPosition())
	assert.Equal(t, 0, c.Channel())
	assert.Equal(t, 1, c.ChannelNumber())
	assert.Equal(t, 3, c.MaxStreams())
	assert.Equal(t, "192.168.1.108", c.Address())
	assert.Equal(t, StateUninitialized, c.State())
	assert.Equal(t, "uninitialized", c.State().String())
}

func TestSpeakerSupport(t *testing.T) {
	assert.True(t, newReady(newFakeDevice(), "IPC-L46N").SupportsSpeaker())
	assert.True(t, newReady(newFakeDevice(), "DB61i").SupportsSpeaker())
	assert.False(t, newReady(newFakeDevice(), "IPC-HDW5831R-ZE").SupportsSpeaker())
}
