// internal/requestinfo/requestinfo.go
//
// Client metadata for audit rows.
//
// Context
// -------
// Every form submission may land in the audit table.  Alongside the user
// id the row records where the submission came from: client IP, a short
// browser/OS/device fingerprint, and the country when a GeoLite2 database
// is configured.  Enrich computes this once per request and stores it in
// the request context; the audit action reads it back with FromContext.
//
// Notes
// -----
// • The values are plain strings, safe to log or JSON-encode.
// • A nil *geoip2.Reader is valid and leaves Country empty.
package requestinfo

import (
	"context"
	"net"
	"strconv"
	"strings"

	"github.com/avct/uasurfer"
	"github.com/oschwald/geoip2-golang"
)

// Info describes the client behind one request.
type Info struct {
	IP      string `json:"ip,omitempty"`
	Browser string `json:"browser,omitempty"` // "Chrome 124"
	OS      string `json:"os,omitempty"`      // "Windows 10"
	Device  string `json:"device,omitempty"`  // "Desktop", "Phone", ...
	Bot     bool   `json:"bot,omitempty"`
	Country string `json:"country,omitempty"` // ISO code
}

// Agent is the one-line fingerprint stored in the audit row.
func (i Info) Agent() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{i.Browser, i.OS, i.Device} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " / ")
}

type ctxKey struct{}

// WithInfo returns a copy of ctx carrying info.
func WithInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

// FromContext returns the Info stored by Enrich.
func FromContext(ctx context.Context) (Info, bool) {
	if ctx == nil {
		return Info{}, false
	}
	v, ok := ctx.Value(ctxKey{}).(Info)
	return v, ok
}

// OpenGeo opens a GeoLite2 Country or City database.  An empty path
// returns a nil reader and no error.
func OpenGeo(path string) (*geoip2.Reader, error) {
	if path == "" {
		return nil, nil
	}
	return geoip2.Open(path)
}

// Describe builds Info from the raw User-Agent header and client address.
func Describe(userAgent string, ip net.IP, geo *geoip2.Reader) Info {
	u := uasurfer.Parse(userAgent)
	info := Info{
		Browser: join(strings.TrimPrefix(u.Browser.Name.String(), "Browser"), majorMinor(u.Browser.Version)),
		OS:      join(osName(u.OS.Name), majorMinor(u.OS.Version)),
		Device:  deviceName(u.DeviceType),
		Bot:     u.IsBot(),
	}
	if info.Browser == "Unknown" {
		info.Browser = ""
	}
	if ip != nil {
		info.IP = ip.String()
		info.Country = country(geo, ip)
	}
	return info
}

func country(geo *geoip2.Reader, ip net.IP) string {
	if geo == nil {
		return ""
	}
	rec, err := geo.Country(ip)
	if err != nil {
		return ""
	}
	return rec.Country.IsoCode
}

func osName(n uasurfer.OSName) string {
	s := strings.TrimPrefix(n.String(), "OS")
	switch s {
	case "MacOSX":
		return "macOS"
	case "Unknown":
		return ""
	}
	return s
}

// majorMinor renders "124" or "10.15"; a zero version is empty.
func majorMinor(v uasurfer.Version) string {
	switch {
	case v.Major == 0 && v.Minor == 0:
		return ""
	case v.Minor == 0:
		return strconv.Itoa(v.Major)
	}
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

func join(name, version string) string {
	if name == "" || version == "" {
		return name
	}
	return name + " " + version
}

func deviceName(dt uasurfer.DeviceType) string {
	switch dt {
	case uasurfer.DeviceComputer:
		return "Desktop"
	case uasurfer.DevicePhone:
		return "Phone"
	case uasurfer.DeviceTablet:
		return "Tablet"
	case uasurfer.DeviceConsole:
		return "Console"
	case uasurfer.DeviceWearable:
		return "Wearable"
	case uasurfer.DeviceTV:
		return "TV"
	}
	return ""
}
