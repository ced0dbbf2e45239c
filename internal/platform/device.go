// Package platform classifies the capturing client as mobile or desktop.
package platform

import (
	"regexp"
	"runtime"

	"github.com/dharsanguruparan/FitScan/internal/model"
)

var mobileAgent = regexp.MustCompile(`Mobile|Android|iPhone|iPad`)

// FromUserAgent classifies a browser user agent string.
func FromUserAgent(ua string) model.Device {
	if mobileAgent.MatchString(ua) {
		return model.DeviceMobile
	}
	return model.DeviceDesktop
}

// Local classifies the machine this process runs on.
func Local() model.Device {
	return fromGOOS(runtime.GOOS)
}

func fromGOOS(goos string) model.Device {
	switch goos {
	case "android", "ios":
		return model.DeviceMobile
	default:
		return model.DeviceDesktop
	}
}
