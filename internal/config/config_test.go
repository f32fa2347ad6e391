package config

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	assert.EqualValues(t, DefaultAppConfig, *cfg)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DECKGEN_ADDR", "127.0.0.1:9090")
	t.Setenv("DECKGEN_TEXT_MODEL", "gpt-4o-mini")
	t.Setenv("DECKGEN_TEXT_TEMPERATURE", "0.2")
	t.Setenv("DECKGEN_MAX_KEYS", "3")
	t.Setenv("DECKGEN_TEXT_RETRY", "500ms, 1s,2s")
	t.Setenv("DECKGEN_REQUEST_TIMEOUT", "3m")
	t.Setenv("DECKGEN_SECONDARY_IMAGE_POOL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Addr)
	assert.Equal(t, "gpt-4o-mini", cfg.TextModel)
	assert.InDelta(t, 0.2, cfg.TextTemperature, 1e-6)
	assert.Equal(t, 3, cfg.MaxKeys)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}, cfg.TextRetry)
	assert.Equal(t, 3*time.Minute, cfg.RequestTimeout)
	assert.Equal(t, []string{"HF_API_KEY"}, cfg.ImagePools())
}

func TestEmptyRetryDisablesRetries(t *testing.T) {
	t.Setenv("DECKGEN_TEXT_RETRY", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.TextRetry)
}

func TestImagePoolsOrder(t *testing.T) {
	cfg := DefaultAppConfig
	assert.Equal(t, []string{"HF_API_KEY", "OPENAI_IMAGE_KEY"}, cfg.ImagePools())
}

func TestInvalidValues(t *testing.T) {
	tests := map[string]string{
		"DECKGEN_ADDR":                 "localhost:8080",
		"DECKGEN_LOG_LEVEL":            "verbose",
		"DECKGEN_LOG_FORMAT":           "xml",
		"DECKGEN_MAX_KEYS":             "0",
		"DECKGEN_TEXT_POOL":            "1BAD",
		"DECKGEN_IMAGE_POOL":           "HF-KEY",
		"DECKGEN_TEXT_BASE_URL":        "not a url",
		"DECKGEN_TEXT_TEMPERATURE":     "3",
		"DECKGEN_TEXT_RETRY":           "2s,1s",
		"DECKGEN_HF_WIDTH":             "-1",
		"DECKGEN_SECONDARY_IMAGE_SIZE": "big",
		"DECKGEN_METRICS_DSN":          "",
	}
	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, value)
			_, err := Load()
			assert.Error(t, err, "%s=%q should be rejected", name, value)
		})
	}
}

func TestUnparseableRetry(t *testing.T) {
	t.Setenv("DECKGEN_TEXT_RETRY", "1s,soon")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "soon")
}

func TestStringToDurationsIgnoresOtherTypes(t *testing.T) {
	hook := StringToDurations(",").(func(reflect.Type, reflect.Type, any) (any, error))
	got, err := hook(reflect.TypeOf(""), reflect.TypeOf(time.Duration(0)), "1s")
	require.NoError(t, err)
	assert.Equal(t, "1s", got)

	got, err = hook(reflect.TypeOf(""), reflect.TypeOf([]time.Duration{}), " 1s , 250ms ")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second, 250 * time.Millisecond}, got)
}

func TestValidPoolName(t *testing.T) {
	type sample struct {
		Pool string `validate:"pool_name"`
	}
	v := validator.New()
	require.NoError(t, v.RegisterValidation("pool_name", validPoolName))
	for name, valid := range map[string]bool{
		"ROUTELLM_KEY": true,
		"hf_api_key":   true,
		"KEY2":         true,
		"":             false,
		"2KEY":         false,
		"KEY-2":        false,
		"KEY 2":        false,
	} {
		err := v.Struct(sample{Pool: name})
		assert.Equal(t, valid, err == nil, "pool %q", name)
	}
}

func TestValidIPPort(t *testing.T) {
	type sample struct {
		Addr string `validate:"ip_port"`
	}

	v := validator.New()
	if err := v.RegisterValidation("ip_port", validIPPort); err != nil {
		t.Fatalf("register validation: %v", err)
	}

	tests := []struct {
		name  string
		addr  string
		valid bool
	}{
		{name: "empty", addr: "", valid: false},
		{name: "missing_port", addr: "127.0.0.1", valid: false},
		{name: "missing_port_after_colon", addr: "127.0.0.1:", valid: false},
		{name: "just_colon_port", addr: ":8080", valid: true},
		{name: "loopback_ipv4", addr: "127.0.0.1:8080", valid: true},
		{name: "any_ipv4_low_port", addr: "0.0.0.0:1", valid: true},
		{name: "ipv6_loopback", addr: "[::1]:8080", valid: true},
		{name: "ipv6_any", addr: "[::]:443", valid: true},
		{name: "unbracketed_ipv6", addr: "::1:8080", valid: false},
		{name: "hostname_not_ip", addr: "localhost:8080", valid: false},
		{name: "invalid_host_chars", addr: "not_an_ip!:80", valid: false},
		{name: "non_numeric_port", addr: "127.0.0.1:http", valid: false},
		{name: "port_zero", addr: "127.0.0.1:0", valid: false},
		{name: "port_max_valid", addr: "127.0.0.1:65535", valid: true},
		{name: "port_overflow", addr: "127.0.0.1:65536", valid: false},
		{name: "negative_port", addr: "127.0.0.1:-1", valid: false},
		{name: "multi_leading_zero_port", addr: "127.0.0.1:00080", valid: true},
		{name: "space_prefixed", addr: " :8080", valid: false},
		{name: "trailing_space", addr: "127.0.0.1:8080 ", valid: false},
		{name: "embedded_space", addr: "127.0. 0.1:8080", valid: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := sample{Addr: tc.addr}
			err := v.Struct(&s)
			if tc.valid && err != nil {
				t.Fatalf("expected valid, got error: %v", err)
			}
			if !tc.valid && err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestLoadDefaultError(t *testing.T) {
	// swap out the defaultLoader to return an error
	orig := defaultLoader
	t.Cleanup(func() { defaultLoader = orig })
	defaultLoader = func(k *koanf.Koanf) error {
		assert.NotNil(t, k)
		return assert.AnError
	}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, assert.AnError) {
		t.Fatalf("expected assert.AnError, got: %v", err)
	}
}

func TestLoadEnvError(t *testing.T) {
	// swap out the envLoader to return an error
	orig := envLoader
	t.Cleanup(func() { envLoader = orig })
	envLoader = func(k *koanf.Koanf) error {
		assert.NotNil(t, k)
		return assert.AnError
	}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, assert.AnError) {
		t.Fatalf("expected assert.AnError, got: %v", err)
	}
}

func TestRegisterValidationFails(t *testing.T) {
	orig := registerValidators
	t.Cleanup(func() { registerValidators = orig })
	registerValidators = func(v *validator.Validate) error {
		assert.NotNil(t, v)
		return assert.AnError
	}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, assert.AnError) {
		t.Fatalf("expected assert.AnError, got: %v", err)
	}
}

func TestRequestTimeoutBelowUpstream(t *testing.T) {
	t.Setenv("DECKGEN_REQUEST_TIMEOUT", "10s")
	t.Setenv("DECKGEN_UPSTREAM_TIMEOUT", "30s")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err.Error() != "request_timeout must not be less than upstream_timeout" {
		t.Fatalf("expected timeout ordering error, got: %v", err)
	}
}
