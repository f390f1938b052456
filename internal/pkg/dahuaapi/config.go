package dahuaapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/pkg/errors"

	"github.com/jake-scott/dahua-bridge/internal/pkg/logging"
)

const defaultMaxExtraStreams = 3
const defaultFloodLightMode = 2

func configPath(name string) string {
	return "/cgi-bin/configManager.cgi?action=getConfig&name=" + name
}

// GetConfig fetches a named config table
func (c *Live) GetConfig(ctx context.Context, name string) (map[string]string, error) {
	result, err := c.Get(ctx, configPath(name))
	if err != nil {
		return nil, errors.Wrapf(err, "fetching config %s", name)
	}
	return result, nil
}

func (c *Live) GetSystemInfo(ctx context.Context) (map[string]string, error) {
	result, err := c.Get(ctx, "/cgi-bin/magicBox.cgi?action=getSystemInfo")
	if err != nil {
		if !isFallbackable(err) {
			return nil, errors.Wrap(err, "fetching system info")
		}
		// Some generic RTSP devices do not implement magicBox at all
		logging.Logger(ctx).WithError(err).Debug("system info unavailable, assuming a generic device")
		return map[string]string{
			"serialNumber": "",
			"deviceType":   "Generic RTSP",
		}, nil
	}
	return result, nil
}

func (c *Live) GetDeviceType(ctx context.Context) (map[string]string, error) {
	result, err := c.Get(ctx, "/cgi-bin/magicBox.cgi?action=getDeviceType")
	if err != nil {
		if !isFallbackable(err) {
			return nil, errors.Wrap(err, "fetching device type")
		}
		return map[string]string{"type": "Generic RTSP"}, nil
	}
	return result, nil
}

func (c *Live) GetSoftwareVersion(ctx context.Context) (map[string]string, error) {
	result, err := c.Get(ctx, "/cgi-bin/magicBox.cgi?action=getSoftwareVersion")
	if err != nil {
		if !isFallbackable(err) {
			return nil, errors.Wrap(err, "fetching software version")
		}
		return map[string]string{"version": "1.0"}, nil
	}
	return result, nil
}

func (c *Live) GetVendor(ctx context.Context) (map[string]string, error) {
	result, err := c.Get(ctx, "/cgi-bin/magicBox.cgi?action=getVendor")
	if err != nil {
		if !isFallbackable(err) {
			return nil, errors.Wrap(err, "fetching vendor")
		}
		return map[string]string{"vendor": "Generic RTSP"}, nil
	}
	return result, nil
}

// GetMachineName reads the device name from the General config table
func (c *Live) GetMachineName(ctx context.Context) (map[string]string, error) {
	result, err := c.Get(ctx, configPath("General"))
	if err != nil {
		if !isFallbackable(err) {
			return nil, errors.Wrap(err, "fetching machine name")
		}
		return map[string]string{"table.General.MachineName": ""}, nil
	}
	return result, nil
}

// GetMaxExtraStreams returns how many sub streams the device offers beyond
// the main stream
func (c *Live) GetMaxExtraStreams(ctx context.Context) (int, error) {
	result, err := c.Get(ctx, "/cgi-bin/magicBox.cgi?action=getProductDefinition&name=MaxExtraStream")
	if err != nil {
		if !isFallbackable(err) {
			return 0, errors.Wrap(err, "fetching max extra streams")
		}
		return defaultMaxExtraStreams, nil
	}

	n, err := strconv.Atoi(result["table.MaxExtraStream"])
	if err != nil {
		return defaultMaxExtraStreams, nil
	}
	return n, nil
}

func (c *Live) GetCoaxialControlIOStatus(ctx context.Context) (map[string]string, error) {
	return c.Get(ctx, "/cgi-bin/coaxialControlIO.cgi?action=getStatus&channel=1")
}

func (c *Live) GetLightingV2(ctx context.Context) (map[string]string, error) {
	return c.GetConfig(ctx, "Lighting_V2")
}

func (c *Live) GetDisarmingLinkage(ctx context.Context) (map[string]string, error) {
	return c.GetConfig(ctx, "DisableLinkage")
}

func (c *Live) GetEventNotifications(ctx context.Context) (map[string]string, error) {
	return c.GetConfig(ctx, "DisableEventNotify")
}

func (c *Live) GetSmartMotionDetection(ctx context.Context) (map[string]string, error) {
	return c.GetConfig(ctx, "SmartMotionDetect")
}

func (c *Live) GetLightGlobalEnabled(ctx context.Context) (map[string]string, error) {
	return c.GetConfig(ctx, "LightGlobal")
}

func (c *Live) GetVideoInMode(ctx context.Context) (map[string]string, error) {
	return c.GetConfig(ctx, "VideoInMode")
}

func (c *Live) GetIVSRules(ctx context.Context) (map[string]string, error) {
	return c.GetConfig(ctx, "VideoAnalyseRule")
}

func (c *Live) GetPTZPosition(ctx context.Context) (map[string]string, error) {
	return c.Get(ctx, "/cgi-bin/ptz.cgi?action=getStatus")
}

// GetConfigLighting reads the v1 lighting table for a channel and profile.
// A 400 means the table does not exist and yields an empty result.
func (c *Live) GetConfigLighting(ctx context.Context, channel int, profileMode string) (map[string]string, error) {
	result, err := c.Get(ctx, configPath(fmt.Sprintf("Lighting[%d][%s]", channel, profileMode)))
	if err != nil {
		if StatusCode(err) == http.StatusBadRequest {
			return map[string]string{}, nil
		}
		return nil, errors.Wrap(err, "fetching lighting config")
	}
	return result, nil
}

func (c *Live) GetConfigMotionDetection(ctx context.Context) (map[string]string, error) {
	result, err := c.Get(ctx, configPath("MotionDetect"))
	if err != nil {
		if !isFallbackable(err) {
			return nil, errors.Wrap(err, "fetching motion detection config")
		}
		return map[string]string{"table.MotionDetect[0].Enable": "false"}, nil
	}
	return result, nil
}

// GetVideoAnalyseRulesForAmcrest reads the first rule, which Amcrest
// doorbells use as their smart motion switch
func (c *Live) GetVideoAnalyseRulesForAmcrest(ctx context.Context) (map[string]string, error) {
	result, err := c.Get(ctx, configPath("VideoAnalyseRule[0][0].Enable"))
	if err != nil {
		if !isFallbackable(err) {
			return nil, errors.Wrap(err, "fetching video analyse rules")
		}
		return map[string]string{"table.VideoAnalyseRule[0][0].Enable": "false"}, nil
	}
	return result, nil
}

func (c *Live) GetFloodLightMode(ctx context.Context) (int, error) {
	result, err := c.Get(ctx, configPath("FloodLightMode.Mode"))
	if err != nil {
		if !isFallbackable(err) {
			return 0, errors.Wrap(err, "fetching flood light mode")
		}
		return defaultFloodLightMode, nil
	}

	mode, err := strconv.Atoi(result["table.FloodLightMode.Mode"])
	if err != nil {
		return defaultFloodLightMode, nil
	}
	return mode, nil
}

// GetSnapshot returns a JPEG from the given channel
func (c *Live) GetSnapshot(ctx context.Context, channel int) ([]byte, error) {
	data, err := c.GetBytes(ctx, "/cgi-bin/snapshot.cgi?channel="+strconv.Itoa(channel))
	if err != nil {
		return nil, errors.Wrap(err, "fetching snapshot")
	}
	return data, nil
}
