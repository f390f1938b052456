package cmd

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/dahua-bridge/internal/pkg/coordinator"
	"github.com/jake-scott/dahua-bridge/internal/pkg/dahuaapi"
	"github.com/jake-scott/dahua-bridge/internal/pkg/logging"
)

var defaultEvents = []string{
	"VideoMotion", "CrossLineDetection", "AlarmLocal", "VideoLoss", "VideoBlind",
	"AudioMutation", "CrossRegionDetection", "SmartMotionHuman", "SmartMotionVehicle",
}

var _deviceOpts struct {
	address           string
	port              int
	rtspPort          int
	username          string
	password          string
	channel           int
	events            []string
	name              string
	vtoPort           int
	timeout           time.Duration
	streamIdleTimeout time.Duration
}

func addDeviceFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&_deviceOpts.address, "address", "", "device host name or IP address")
	f.IntVar(&_deviceOpts.port, "port", 80, "device HTTP port, 443 selects HTTPS")
	f.IntVar(&_deviceOpts.rtspPort, "rtsp-port", 554, "device RTSP port")
	f.StringVar(&_deviceOpts.username, "username", "admin", "device user name")
	f.StringVar(&_deviceOpts.password, "password", "", "device password")
	f.IntVar(&_deviceOpts.channel, "channel", 0, "zero based channel to track")
	f.StringSliceVar(&_deviceOpts.events, "events", defaultEvents, "event codes to subscribe to, empty disables the event stream")
	f.StringVar(&_deviceOpts.name, "name", "", "device name, defaults to the device's machine name")
	f.IntVar(&_deviceOpts.vtoPort, "vto-port", 5000, "doorbell (VTO) TCP port")
	f.DurationVar(&_deviceOpts.timeout, "timeout", time.Second*10, "maximum duration of a device API call, eg. 1m or 10s")
	f.DurationVar(&_deviceOpts.streamIdleTimeout, "stream-idle-timeout", time.Minute*2, "reconnect the event stream after this much silence, 0 to disable")

	errPanic(viper.GetViper().BindPFlag("device.address", f.Lookup("address")))
	errPanic(viper.GetViper().BindPFlag("device.port", f.Lookup("port")))
	errPanic(viper.GetViper().BindPFlag("device.rtsp-port", f.Lookup("rtsp-port")))
	errPanic(viper.GetViper().BindPFlag("device.username", f.Lookup("username")))
	errPanic(viper.GetViper().BindPFlag("device.password", f.Lookup("password")))
	errPanic(viper.GetViper().BindPFlag("device.channel", f.Lookup("channel")))
	errPanic(viper.GetViper().BindPFlag("device.events", f.Lookup("events")))
	errPanic(viper.GetViper().BindPFlag("device.name", f.Lookup("name")))
	errPanic(viper.GetViper().BindPFlag("device.vto-port", f.Lookup("vto-port")))
	errPanic(viper.GetViper().BindPFlag("device.timeout", f.Lookup("timeout")))
	errPanic(viper.GetViper().BindPFlag("device.stream-idle-timeout", f.Lookup("stream-idle-timeout")))
}

func checkRequiredFlags(needFlags ...string) error {
	missingFlags := []string{}

	for _, f := range needFlags {
		if !viper.IsSet(f) || viper.GetString(f) == "" {
			missingFlags = append(missingFlags, f)
		}
	}

	if len(missingFlags) > 0 {
		itemPlural := "item"
		if len(missingFlags) > 1 {
			itemPlural = "items"
		}
		return fmt.Errorf("required config %s `%s` not set", itemPlural, strings.Join(missingFlags, "`, `"))
	}

	return nil
}

func checkDeviceFlags() error {
	return checkRequiredFlags("device.address", "device.password")
}

// newDeviceClient builds the device API client from the device.* keys
func newDeviceClient() dahuaapi.DeviceAPI {
	live := dahuaapi.NewLiveClient(
		viper.GetString("device.address"),
		viper.GetInt("device.port"),
		viper.GetInt("device.rtsp-port"),
		viper.GetString("device.username"),
		viper.GetString("device.password"),
	).WithStreamIdleTimeout(viper.GetDuration("device.stream-idle-timeout"))

	return live.WithTimeout(viper.GetDuration("device.timeout"))
}

func coordinatorConfig() coordinator.Config {
	return coordinator.Config{
		Address:  viper.GetString("device.address"),
		Port:     viper.GetInt("device.port"),
		RTSPPort: viper.GetInt("device.rtsp-port"),
		Username: viper.GetString("device.username"),
		Password: viper.GetString("device.password"),
		Channel:  viper.GetInt("device.channel"),
		Events:   viper.GetStringSlice("device.events"),
		Name:     viper.GetString("device.name"),
		VTOPort:  viper.GetInt("device.vto-port"),
	}
}

// reauthHost turns a credential rejection into a shutdown request: the
// bridge cannot recover without new configuration
type reauthHost struct {
	once sync.Once
	done chan struct{}
}

func newReauthHost() *reauthHost {
	return &reauthHost{done: make(chan struct{})}
}

func (h *reauthHost) StartReauth() {
	h.once.Do(func() {
		logging.Logger(nil).Error("device rejected the configured credentials, check device.username and device.password")
		close(h.done)
	})
}

// Done is closed once the device has rejected the credentials
func (h *reauthHost) Done() <-chan struct{} {
	return h.done
}
