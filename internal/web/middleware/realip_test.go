package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"untrusted peer keeps socket", "203.0.113.7:5555", map[string]string{"X-Real-IP": "1.2.3.4"}, "203.0.113.7"},
		{"trusted cidr uses real ip", "10.0.0.5:5555", map[string]string{"X-Real-IP": "1.2.3.4"}, "1.2.3.4"},
		{"trusted uses first forwarded hop", "10.0.0.5:5555", map[string]string{"X-Forwarded-For": "5.6.7.8, 10.0.0.1"}, "5.6.7.8"},
		{"real ip wins over forwarded", "10.0.0.5:5555", map[string]string{"X-Real-IP": "1.2.3.4", "X-Forwarded-For": "5.6.7.8"}, "1.2.3.4"},
		{"trusted bare ip", "192.168.1.1:80", map[string]string{"X-Real-IP": "1.2.3.4"}, "1.2.3.4"},
		{"garbage header ignored", "10.0.0.5:5555", map[string]string{"X-Real-IP": "not-an-ip"}, "10.0.0.5"},
		{"no headers", "10.0.0.5:5555", nil, "10.0.0.5"},
	}

	mw := TrustedRealIP([]string{"10.0.0.0/8", "192.168.1.1", "bogus", ""})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ClientIP(r)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseTrusted(t *testing.T) {
	nets := parseTrusted([]string{"10.0.0.0/8", " ::1 ", "1.2.3.4", "nope"})
	if len(nets) != 3 {
		t.Fatalf("parseTrusted() len = %d, want 3", len(nets))
	}
	if !isTrusted(extractIP("[::1]:80"), nets) {
		t.Error("isTrusted(::1) = false, want true")
	}
	if isTrusted(extractIP("1.2.3.5"), nets) {
		t.Error("isTrusted(1.2.3.5) = true, want false")
	}
	if isTrusted(nil, nets) {
		t.Error("isTrusted(nil) = true, want false")
	}
}
