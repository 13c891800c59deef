package envconfig

import (
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHost(t *testing.T) {
	cases := map[string]struct {
		value  string
		expect string
	}{
		"empty":        {"", "http://127.0.0.1:11535"},
		"only address": {"1.2.3.4", "http://1.2.3.4:11535"},
		"only port":    {":1234", "http://:1234"},
		"address port": {"1.2.3.4:1234", "http://1.2.3.4:1234"},
		"hostname":     {"example.com", "http://example.com:11535"},
		"https":        {"https://example.com", "https://example.com:443"},
		"bad port":     {"1.2.3.4:99999", "http://1.2.3.4:11535"},
		"with path":    {"http://1.2.3.4:1234/path", "http://1.2.3.4:1234/path"},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("GPT2_HOST", tt.value)
			if host := Host(); host.String() != tt.expect {
				t.Errorf("Host() = %s, want %s", host.String(), tt.expect)
			}
		})
	}
}

func TestBool(t *testing.T) {
	cases := map[string]bool{
		"":      false,
		"true":  true,
		"false": false,
		"1":     true,
		"0":     false,
		// nicht parsbare Werte gelten als gesetzt
		"random": true,
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("GPT2_BOOL", k)
			if b := Bool("GPT2_BOOL")(); b != v {
				t.Errorf("Bool(%q) = %v, want %v", k, b, v)
			}
		})
	}
}

func TestUint(t *testing.T) {
	cases := map[string]uint{
		"0":    0,
		"1":    1,
		"1337": 1337,
		"":     11,
		"-1":   11,
		"abc":  11,
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("GPT2_UINT", k)
			if i := Uint("GPT2_UINT", 11)(); i != v {
				t.Errorf("Uint(%q) = %d, want %d", k, i, v)
			}
		})
	}
}

func TestNumThreads(t *testing.T) {
	t.Setenv("GPT2_NUM_THREADS", "3")
	if n := NumThreads(); n != 3 {
		t.Errorf("NumThreads() = %d, want 3", n)
	}

	t.Setenv("GPT2_NUM_THREADS", "")
	if n := NumThreads(); n < 1 {
		t.Errorf("NumThreads() = %d, want >= 1", n)
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"t":     slog.LevelDebug,
		"1":     slog.LevelDebug,
		"2":     slog.Level(-8),
		"-1":    slog.LevelWarn,
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("GPT2_DEBUG", k)
			if i := LogLevel(); i != v {
				t.Errorf("LogLevel(%q) = %v, want %v", k, i, v)
			}
		})
	}
}

func TestOrigins(t *testing.T) {
	t.Setenv("GPT2_ORIGINS", "http://10.0.0.1,https://example.com")
	origins := AllowedOrigins()
	if diff := cmp.Diff([]string{"http://10.0.0.1", "https://example.com"}, origins[:2]); diff != "" {
		t.Errorf("AllowedOrigins() mismatch (-want +got):\n%s", diff)
	}

	if len(origins) != 2+3*4 {
		t.Errorf("len(AllowedOrigins()) = %d, want %d", len(origins), 2+3*4)
	}
}

func TestValues(t *testing.T) {
	t.Setenv("GPT2_NUM_PARALLEL", "4")
	if v := Values()["GPT2_NUM_PARALLEL"]; v != "4" {
		t.Errorf("Values()[GPT2_NUM_PARALLEL] = %q, want 4", v)
	}
}
