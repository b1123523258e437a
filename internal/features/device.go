package features

import (
	"strconv"
	"strings"

	"fraudlens/internal/frame"
)

// screenSentinel marks unparseable screen dimensions.
const screenSentinel = -1

// deviceStage parses device type, brand, browser, OS and screen geometry
// from the identity fields.
func (e *Engine) deviceStage(f *frame.Frame, _ Options) error {
	n := f.NumRows()

	deviceType := e.tokens(f, "DeviceType", e.cfg.MissingToken)
	isMobile := make([]float64, n)
	isDesktop := make([]float64, n)
	for i, v := range deviceType {
		isMobile[i] = boolFlag(v == "mobile")
		isDesktop[i] = boolFlag(v == "desktop")
	}
	f.AddFloat("DeviceType_is_mobile", isMobile)
	f.AddFloat("DeviceType_is_desktop", isDesktop)

	deviceInfo := e.tokens(f, "DeviceInfo", "")
	brand := make([]string, n)
	infoLen := make([]float64, n)
	for i, v := range deviceInfo {
		if v == "" {
			brand[i] = e.cfg.MissingToken
			continue
		}
		brand[i] = firstToken(v, "/", " ")
		infoLen[i] = float64(len(v))
	}
	f.AddString("Device_brand", brand)
	f.AddFloat("DeviceInfo_length", infoLen)

	// Browser from id_31: first token plus contains-flags on the lowered
	// full value.
	id31 := e.tokens(f, "id_31", "")
	browser := make([]string, n)
	browserFlags := map[string][]float64{
		"chrome":  make([]float64, n),
		"firefox": make([]float64, n),
		"edge":    make([]float64, n),
		"safari":  make([]float64, n),
	}
	for i, v := range id31 {
		lower := strings.ToLower(v)
		if lower == "" {
			browser[i] = e.cfg.MissingToken
		} else {
			browser[i] = firstToken(lower, " ")
		}
		for name, flags := range browserFlags {
			flags[i] = boolFlag(strings.Contains(lower, name))
		}
	}
	f.AddString("browser", browser)
	for _, name := range []string{"chrome", "firefox", "edge", "safari"} {
		f.AddFloat("browser_is_"+name, browserFlags[name])
	}

	// OS name/version from id_30, split on the first space.
	id30 := e.tokens(f, "id_30", "")
	osName := make([]string, n)
	osVersion := make([]string, n)
	osFlags := map[string][]float64{
		"windows": make([]float64, n),
		"mac":     make([]float64, n),
		"ios":     make([]float64, n),
		"android": make([]float64, n),
	}
	for i, v := range id30 {
		if v == "" {
			osName[i] = e.cfg.MissingToken
			osVersion[i] = e.cfg.MissingToken
		} else if sp := strings.Index(v, " "); sp >= 0 {
			osName[i] = v[:sp]
			osVersion[i] = v[sp+1:]
		} else {
			osName[i] = v
			osVersion[i] = e.cfg.MissingToken
		}
		lower := strings.ToLower(v)
		for name, flags := range osFlags {
			flags[i] = boolFlag(strings.Contains(lower, name))
		}
	}
	f.AddString("os_name", osName)
	f.AddString("os_version", osVersion)
	for _, name := range []string{"windows", "mac", "ios", "android"} {
		f.AddFloat("os_is_"+name, osFlags[name])
	}

	// Screen geometry from id_33 "WxH" values.
	id33 := e.tokens(f, "id_33", "")
	width := make([]float64, n)
	height := make([]float64, n)
	area := make([]float64, n)
	aspect := make([]float64, n)
	for i, v := range id33 {
		w, h := parseScreen(v)
		width[i], height[i] = w, h
		if w > 0 && h > 0 {
			area[i] = w * h
			aspect[i] = w / h
		} else {
			area[i] = screenSentinel
			aspect[i] = screenSentinel
		}
	}
	f.AddFloat("Screen_width", width)
	f.AddFloat("Screen_height", height)
	f.AddFloat("Screen_area", area)
	f.AddFloat("Screen_aspect_ratio", aspect)

	return nil
}

// parseScreen parses a "WxH" value; anything non-conforming yields the
// sentinel for both dimensions.
func parseScreen(v string) (w, h float64) {
	parts := strings.Split(v, "x")
	if len(parts) != 2 {
		return screenSentinel, screenSentinel
	}
	wi, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	hi, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil {
		return screenSentinel, screenSentinel
	}
	return float64(wi), float64(hi)
}
