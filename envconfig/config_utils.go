// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - BoolWithDefault/Bool: Boolean-Getter mit Default-Wert
// - String: String-Getter
// - Uint: Integer-Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
)

// BoolWithDefault gibt eine Funktion zurueck, die einen Bool mit Default-Wert liest
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// String gibt eine Funktion zurueck, die einen String liest
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"GPT2_DEBUG":          {"GPT2_DEBUG", LogLevel(), "Show additional debug information (e.g. GPT2_DEBUG=1)"},
		"GPT2_HOST":           {"GPT2_HOST", Host(), "IP Address for the gpt2 server (default 127.0.0.1:11535)"},
		"GPT2_MODEL":          {"GPT2_MODEL", Model(), "Path to the weight archive (default model.safetensors)"},
		"GPT2_ORIGINS":        {"GPT2_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
		"GPT2_NUM_THREADS":    {"GPT2_NUM_THREADS", NumThreads(), "Maximum number of parallel tensor operations"},
		"GPT2_NUM_PARALLEL":   {"GPT2_NUM_PARALLEL", NumParallel(), "Maximum number of parallel generations"},
		"GPT2_MAX_NEW_TOKENS": {"GPT2_MAX_NEW_TOKENS", MaxNewTokens(), "Tokens to generate unless otherwise specified (default 20)"},
		"GPT2_NUM_HEADS":      {"GPT2_NUM_HEADS", NumHeads(), "Override the number of attention heads (default: from config.json)"},
		"GPT2_NOSTREAM":       {"GPT2_NOSTREAM", NoStream(), "Do not stream responses in the client"},
	}
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
