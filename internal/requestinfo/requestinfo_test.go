package requestinfo

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

func TestDescribeParsesAgent(t *testing.T) {
	info := Describe(chromeWindows, net.ParseIP("203.0.113.9"), nil)
	assert.Equal(t, "203.0.113.9", info.IP)
	assert.Equal(t, "Chrome 124", info.Browser)
	assert.Contains(t, info.OS, "Windows")
	assert.Equal(t, "Desktop", info.Device)
	assert.False(t, info.Bot)
	assert.Empty(t, info.Country)
}

func TestDescribeEmptyAgent(t *testing.T) {
	info := Describe("", nil, nil)
	assert.Empty(t, info.IP)
	assert.Empty(t, info.Browser)
	assert.Empty(t, info.Agent())
}

func TestAgentJoinsNonEmptyParts(t *testing.T) {
	assert.Equal(t, "Firefox 125 / Linux", Info{Browser: "Firefox 125", OS: "Linux"}.Agent())
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"forwarded", map[string]string{"X-Forwarded-For": "198.51.100.4, 10.0.0.1"}, "10.0.0.2:5000", "198.51.100.4"},
		{"real ip", map[string]string{"X-Real-Ip": "198.51.100.7"}, "10.0.0.2:5000", "198.51.100.7"},
		{"remote addr", nil, "192.0.2.1:1234", "192.0.2.1"},
		{"bare remote", nil, "192.0.2.2", "192.0.2.2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, clientIP(r).String())
		})
	}
}

func TestEnrichStoresInfo(t *testing.T) {
	var got Info
	var ok bool
	h := Enrich(nil)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, ok = FromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/forms", nil)
	r.RemoteAddr = "192.0.2.10:443"
	r.Header.Set("User-Agent", chromeWindows)
	h.ServeHTTP(httptest.NewRecorder(), r)

	require.True(t, ok)
	assert.Equal(t, "192.0.2.10", got.IP)
	assert.Equal(t, "Desktop", got.Device)
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}

func TestOpenGeoEmptyPath(t *testing.T) {
	r, err := OpenGeo("")
	assert.NoError(t, err)
	assert.Nil(t, r)
}
