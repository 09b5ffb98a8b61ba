// Package rsadvcfg loads and hot-reloads the daemon's YAML configuration
// file.
package rsadvcfg

import (
	"fmt"
	"os"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/validate"
	"gopkg.in/yaml.v3"
)

// Config is the daemon's configuration, as loaded from a YAML file.
type Config struct {
	// Interface is the name of the network interface to advertise on. It
	// must not be empty.
	Interface string `yaml:"interface"`

	// ControlSocket is the path of the control Unix domain socket.
	ControlSocket string `yaml:"control_socket"`

	// DBPath is the path of the persisted prefix/DNS-server database.
	DBPath string `yaml:"db"`

	// MTU is the link MTU to advertise. Zero omits the MTU option.
	MTU uint32 `yaml:"mtu"`

	// MinRtrAdvInterval is the minimum interval, in seconds, between
	// unsolicited multicast Router Advertisements. Zero selects the
	// RFC-recommended default.
	MinRtrAdvInterval uint64 `yaml:"min_rtr_adv_interval"`

	// MaxRtrAdvInterval is the maximum interval, in seconds, between
	// unsolicited multicast Router Advertisements.
	MaxRtrAdvInterval uint64 `yaml:"max_rtr_adv_interval"`

	// AnnounceOnExit controls whether a terminating burst of Router
	// Advertisements with RouterLifetime=0 is sent on shutdown.
	AnnounceOnExit bool `yaml:"announce_on_exit"`
}

// type check
var _ validate.Interface = (*Config)(nil)

// Validate implements the [validate.Interface] interface for *Config.
func (conf *Config) Validate() (err error) {
	if conf == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotEmpty("interface", conf.Interface),
		validate.NotEmpty("control_socket", conf.ControlSocket),
		validate.NotEmpty("db", conf.DBPath),
	}

	return errors.Join(errs...)
}

// Load reads and parses the YAML configuration file at path.
func Load(path string) (conf *Config, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	conf = &Config{}
	if err = yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err = conf.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return conf, nil
}

// MinInterval returns conf.MinRtrAdvInterval as a [time.Duration].
func (conf *Config) MinInterval() time.Duration {
	return time.Duration(conf.MinRtrAdvInterval) * time.Second
}

// MaxInterval returns conf.MaxRtrAdvInterval as a [time.Duration].
func (conf *Config) MaxInterval() time.Duration {
	return time.Duration(conf.MaxRtrAdvInterval) * time.Second
}
