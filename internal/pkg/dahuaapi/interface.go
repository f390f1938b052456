package dahuaapi

import (
	"context"
	"time"
)

// EventCallback receives every raw chunk read from the event stream along
// with the channel the stream was opened for
type EventCallback func(data []byte, channel int)

// DeviceReader is the read and probe surface used to track device state
type DeviceReader interface {
	GetMaxExtraStreams(ctx context.Context) (int, error)
	GetMachineName(ctx context.Context) (map[string]string, error)
	GetSystemInfo(ctx context.Context) (map[string]string, error)
	GetDeviceType(ctx context.Context) (map[string]string, error)
	GetSoftwareVersion(ctx context.Context) (map[string]string, error)
	GetVendor(ctx context.Context) (map[string]string, error)

	GetCoaxialControlIOStatus(ctx context.Context) (map[string]string, error)
	GetDisarmingLinkage(ctx context.Context) (map[string]string, error)
	GetEventNotifications(ctx context.Context) (map[string]string, error)
	GetSmartMotionDetection(ctx context.Context) (map[string]string, error)
	GetPTZPosition(ctx context.Context) (map[string]string, error)
	GetConfigLighting(ctx context.Context, channel int, profileMode string) (map[string]string, error)
	GetLightingV2(ctx context.Context) (map[string]string, error)
	GetVideoInMode(ctx context.Context) (map[string]string, error)
	GetConfigMotionDetection(ctx context.Context) (map[string]string, error)
	GetVideoAnalyseRulesForAmcrest(ctx context.Context) (map[string]string, error)
	GetLightGlobalEnabled(ctx context.Context) (map[string]string, error)
	GetFloodLightMode(ctx context.Context) (int, error)
	GetSnapshot(ctx context.Context, channel int) ([]byte, error)

	StreamEvents(ctx context.Context, codes []string, channel int, cb EventCallback) error
}

// DeviceCommander is the set of state-changing calls
type DeviceCommander interface {
	EnableMotionDetection(ctx context.Context, channel int, enabled bool) error
	SetLightingV1(ctx context.Context, channel int, enabled bool, brightness int) error
	SetLightingV1Mode(ctx context.Context, channel int, mode string, brightness int) error
	SetLightingV2(ctx context.Context, channel int, enabled bool, brightness int, profileMode string) error
	SetLightingV2ForFloodLights(ctx context.Context, channel int, enabled bool, brightness int, profileMode string) error
	SetLightingV2ForAmcrestDoorbells(ctx context.Context, mode string) error
	SetVideoProfileMode(ctx context.Context, channel int, mode string) error
	SetRecordMode(ctx context.Context, channel int, mode string) error
	SetDayNightColorMode(ctx context.Context, channel int, profile int, mode string) error
	SetNightSwitchMode(ctx context.Context, channel int, mode string) error
	SetCoaxialControlState(ctx context.Context, channel int, ioType int, on bool) error
	SetDisarmingLinkage(ctx context.Context, channel int, enabled bool) error
	SetEventNotifications(ctx context.Context, channel int, enabled bool) error
	SetSmartMotionDetection(ctx context.Context, enabled bool) error
	SetLightGlobalEnabled(ctx context.Context, enabled bool) error
	SetIVSRule(ctx context.Context, channel int, index int, enabled bool) error
	SetAllIVSRules(ctx context.Context, channel int, enabled bool) error
	SetFloodLightMode(ctx context.Context, mode int) error
	SetPrivacyMask(ctx context.Context, index int, enabled bool) error
	EnableChannelTitle(ctx context.Context, channel int, enabled bool) error
	EnableTimeOverlay(ctx context.Context, channel int, enabled bool) error
	EnableTextOverlay(ctx context.Context, channel int, group int, enabled bool) error
	EnableCustomOverlay(ctx context.Context, channel int, group int, enabled bool) error
	SetServiceSetChannelTitle(ctx context.Context, channel int, text1 string, text2 string) error
	SetServiceSetTextOverlay(ctx context.Context, channel int, group int, text1, text2, text3, text4 string) error
	SetServiceSetCustomOverlay(ctx context.Context, channel int, group int, text1 string, text2 string) error
	GotoPresetPosition(ctx context.Context, channel int, position int) error
	AdjustFocus(ctx context.Context, focus string, zoom string) error
	AccessControlOpenDoor(ctx context.Context, doorID int) error
	Reboot(ctx context.Context) error
	PostAudio(ctx context.Context, channel int, data []byte, encoding string) error
}

// DeviceAPI is the full device surface
type DeviceAPI interface {
	DeviceReader
	DeviceCommander
	WithTimeout(d time.Duration) DeviceAPI
	Address() string
	RTSPStreamURL(channel int, subtype int) string
}
