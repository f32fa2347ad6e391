// Package config loads the deckgen runtime configuration.
// It merges struct defaults with DECKGEN_* environment variables and validates
// the result before the service starts.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variables before they are matched
// against configuration keys, so DECKGEN_TEXT_MODEL sets text_model.
const EnvPrefix = "DECKGEN_"

// Config holds the merged runtime configuration.
type Config struct {
	Addr      string `koanf:"addr" validate:"required,ip_port"`
	LogLevel  string `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `koanf:"log_format" validate:"oneof=json text"`
	MaxBody   int64  `koanf:"max_body" validate:"gt=0"`

	// RequestTimeout bounds one generate call end to end, retries included.
	RequestTimeout  time.Duration `koanf:"request_timeout" validate:"gt=0"`
	UpstreamTimeout time.Duration `koanf:"upstream_timeout" validate:"gt=0"`

	// Credential pools are read from the plain environment as <pool>_1..<pool>_<max_keys>.
	MaxKeys            int    `koanf:"max_keys" validate:"min=1,max=100"`
	TextPool           string `koanf:"text_pool" validate:"required,pool_name"`
	ImagePool          string `koanf:"image_pool" validate:"required,pool_name"`
	SecondaryImagePool string `koanf:"secondary_image_pool" validate:"omitempty,pool_name"`

	TextBaseURL     string          `koanf:"text_base_url" validate:"required,http_url"`
	TextModel       string          `koanf:"text_model"`
	TextMaxTokens   int             `koanf:"text_max_tokens" validate:"gt=0"`
	TextTemperature float32         `koanf:"text_temperature" validate:"gte=0,lte=2"`
	TextRetry       []time.Duration `koanf:"text_retry" validate:"max=5,ascending"`

	HFURL           string `koanf:"hf_url" validate:"required,http_url"`
	HFQualitySuffix string `koanf:"hf_quality_suffix"`
	HFWidth         int    `koanf:"hf_width" validate:"gte=0,lte=4096"`
	HFHeight        int    `koanf:"hf_height" validate:"gte=0,lte=4096"`

	SecondaryImageBaseURL string `koanf:"secondary_image_base_url" validate:"omitempty,http_url"`
	SecondaryImageModel   string `koanf:"secondary_image_model"`
	SecondaryImageSize    string `koanf:"secondary_image_size" validate:"omitempty,image_size"`

	MetricsDSN           string        `koanf:"metrics_dsn" validate:"required"`
	MetricsToken         string        `koanf:"metrics_token"`
	MetricsFlushInterval time.Duration `koanf:"metrics_flush_interval" validate:"gt=0"`
}

// DefaultAppConfig is the configuration used when nothing is overridden.
var DefaultAppConfig = Config{
	Addr:      ":8080",
	LogLevel:  "info",
	LogFormat: "json",
	MaxBody:   64 << 10, // 64 KiB

	RequestTimeout:  2 * time.Minute,
	UpstreamTimeout: 60 * time.Second,

	MaxKeys:            10,
	TextPool:           "ROUTELLM_KEY",
	ImagePool:          "HF_API_KEY",
	SecondaryImagePool: "OPENAI_IMAGE_KEY",

	TextBaseURL:     "https://routellm.abacus.ai/v1",
	TextMaxTokens:   2000,
	TextTemperature: 0.7,
	TextRetry:       []time.Duration{time.Second, 2500 * time.Millisecond},

	HFURL:           "https://api-inference.huggingface.co/models/stabilityai/stable-diffusion-xl-base-1.0",
	HFQualitySuffix: ", high quality, detailed, professional",
	HFWidth:         1024,
	HFHeight:        1024,

	SecondaryImageBaseURL: "https://api.openai.com/v1",
	SecondaryImageModel:   "dall-e-3",
	SecondaryImageSize:    "1024x1024",

	MetricsDSN:           "file:deckgen-metrics?mode=memory&cache=shared",
	MetricsFlushInterval: 10 * time.Second,
}

// ImagePools lists the image pools in provider priority order.
func (c *Config) ImagePools() []string {
	if c.SecondaryImagePool == "" {
		return []string{c.ImagePool}
	}
	return []string{c.ImagePool, c.SecondaryImagePool}
}

// Load builds a Config from defaults and the environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				StringToDurations(","),
				mapstructure.StringToTimeDurationHookFunc(),
			),
			WeaklyTypedInput: true,
			Result:           &cfg,
		},
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidators(v); err != nil {
		return nil, fmt.Errorf("register validators: %w", err)
	}
	if err := v.Struct(&cfg); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout < cfg.UpstreamTimeout {
		return nil, errors.New("request_timeout must not be less than upstream_timeout")
	}
	return &cfg, nil
}

var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DefaultAppConfig, "koanf"), nil)
}

var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), value
		},
	}), nil)
}

var registerValidators = func(v *validator.Validate) error {
	for tag, fn := range map[string]validator.Func{
		"ip_port":    validIPPort,
		"pool_name":  validPoolName,
		"ascending":  validAscending,
		"image_size": validImageSize,
	} {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	return nil
}

// validIPPort accepts ":port" or "ip:port" with a literal IP and port 1-65535.
func validIPPort(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return false
	}
	if host != "" && net.ParseIP(host) == nil {
		return false
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return p > 0 && p <= 65535
}

// validPoolName accepts environment-variable-safe base names.
func validPoolName(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" || s[0] >= '0' && s[0] <= '9' {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

// validAscending requires a positive, non-decreasing backoff schedule.
func validAscending(fl validator.FieldLevel) bool {
	ds, ok := fl.Field().Interface().([]time.Duration)
	if !ok {
		return false
	}
	var prev time.Duration
	for _, d := range ds {
		if d <= 0 || d < prev {
			return false
		}
		prev = d
	}
	return true
}

// validImageSize accepts "<w>x<h>".
func validImageSize(fl validator.FieldLevel) bool {
	w, h, ok := strings.Cut(fl.Field().String(), "x")
	if !ok {
		return false
	}
	for _, part := range []string{w, h} {
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return false
		}
	}
	return true
}
