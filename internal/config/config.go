package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode        string        `mapstructure:"mode" validate:"oneof=debug release test"`
	Port        int           `mapstructure:"port" validate:"min=1,max=65535"`
	StaticPath  string        `mapstructure:"static_path"`
	Secret      string        `mapstructure:"secret" validate:"required"`
	ReadLimit   int64         `mapstructure:"read_limit" validate:"gt=0"`
	PingPeriod  time.Duration `mapstructure:"ping_period" validate:"gt=0,ltfield=PongWait"`
	PongWait    time.Duration `mapstructure:"pong_wait" validate:"gt=0"`
	WriteWait   time.Duration `mapstructure:"write_wait" validate:"gt=0"`
	SendBuffer  int           `mapstructure:"send_buffer" validate:"gt=0"`
	EventBuffer int           `mapstructure:"event_buffer" validate:"gt=0"`

	Log   LogConfig   `mapstructure:"log"`
	Calls CallsConfig `mapstructure:"calls"`
	Rate  RateConfig  `mapstructure:"rate"`
	ICE   ICEConfig   `mapstructure:"ice"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
}

// CallsConfig holds call policies. Zero GroupCapacity means unbounded groups;
// zero PendingTimeout keeps unanswered calls until a disconnect.
type CallsConfig struct {
	GroupCapacity  int           `mapstructure:"group_capacity" validate:"gte=0"`
	PendingTimeout time.Duration `mapstructure:"pending_timeout" validate:"gte=0"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval" validate:"gte=0"`
}

// RateConfig limits inbound events per connection. Limit 0 disables it.
type RateConfig struct {
	Limit    int           `mapstructure:"limit" validate:"gte=0"`
	Interval time.Duration `mapstructure:"interval" validate:"gte=0"`
}

type ICEConfig struct {
	Servers []ICEServer `mapstructure:"servers" validate:"dive"`
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls" validate:"required,min=1,dive,required"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

var validate = validator.New()

// Flags declares the command line overrides understood by Load.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("meet", pflag.ContinueOnError)
	fs.String("config", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	fs.Int("port", 0, "listen port")
	fs.String("mode", "", "gin mode: debug, release or test")
	return fs
}

// Load reads defaults, the YAML file, MEET_* environment variables and flags,
// in increasing priority. The returned viper instance can be passed to Watch.
func Load(flags *pflag.FlagSet) (*Config, *viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("MEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := ""
	if flags != nil {
		explicit, _ = flags.GetString("config")
		for _, name := range []string{"port", "mode"} {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(name, f); err != nil {
					return nil, nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	fileName := explicit
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		if explicit != "" {
			return nil, nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return cfg, v, nil
}

// Watch re-decodes the config whenever its file changes and hands valid
// results to fn. Invalid edits are logged and ignored.
func Watch(v *viper.Viper, fn func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			log.Error().Err(err).Str("module", "config").Str("file", e.Name).Msg("reload rejected")
			return
		}
		log.Info().Str("module", "config").Str("file", e.Name).Msg("config reloaded")
		fn(cfg)
	})
	v.WatchConfig()
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("invalid config field %s (%s): %w", verrs[0].Namespace(), verrs[0].Tag(), err)
		}
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "change-me")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("event_buffer", 1024)

	v.SetDefault("log.level", "info")

	v.SetDefault("calls.group_capacity", 4)
	v.SetDefault("calls.pending_timeout", "60s")
	v.SetDefault("calls.sweep_interval", "5s")

	v.SetDefault("rate.limit", 50)
	v.SetDefault("rate.interval", "1s")

	v.SetDefault("ice.servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
}
