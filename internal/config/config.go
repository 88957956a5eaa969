package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"tinycore-go/drivers/lsm6ds3trc"
	"tinycore-go/internal/utils"
	"tinycore-go/types"
)

const DefaultAppName = "tinycore"
const DefaultConfigName = "config"
const DefaultEnvPrefix = "TINYCORE"
const DefaultBus = "/dev/i2c-1"
const DefaultPeriodMs = 100
const DefaultBaud = 115200
const DefaultTimeoutMs = 2000

var userHomeDir, _ = os.UserHomeDir()
var DefaultConfig = path.Join(userHomeDir, ".config/"+DefaultAppName+"/"+DefaultConfigName+".yaml")
var DefaultConfigSearchPath0 = path.Join(userHomeDir, ".config", DefaultAppName)

const DefaultConfigSearchPath1 = "/etc/" + DefaultAppName
const DefaultConfigSearchPath2 = "./"

// RemoteOpt selects a board reached over the bus bridge instead of a local bus.
type RemoteOpt struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	Port          string `yaml:"port" mapstructure:"port"`
	Baud          int    `yaml:"baud" mapstructure:"baud"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms" mapstructure:"read_timeout_ms"`
}

type ImuctlOpt struct {
	IMU       types.IMUConfig `yaml:"imu" mapstructure:"imu"`
	Remote    RemoteOpt       `yaml:"remote" mapstructure:"remote"`
	TimeoutMs int             `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	Debug     bool            `yaml:"debug" mapstructure:"debug"`
}

type ImuctlDesc struct {
	Opt   ImuctlOpt
	Viper *viper.Viper
}

func NewImuctlDesc() ImuctlDesc {
	return ImuctlDesc{
		Opt:   NewImuctlOpt(),
		Viper: nil,
	}
}

func NewImuctlOpt() ImuctlOpt {
	return ImuctlOpt{
		IMU: types.IMUConfig{
			Bus:        DefaultBus,
			Addr:       lsm6ds3trc.Address,
			PeriodMs:   DefaultPeriodMs,
			AccelRange: "4g",
			GyroRange:  "2000dps",
			RateHz:     104,
		},
		Remote: RemoteOpt{
			Baud: DefaultBaud,
		},
		TimeoutMs: DefaultTimeoutMs,
		Debug:     false,
	}
}

func setDefaults(v *viper.Viper) {
	d := NewImuctlOpt()
	v.SetDefault("imu.bus", d.IMU.Bus)
	v.SetDefault("imu.addr", d.IMU.Addr)
	v.SetDefault("imu.sensor_id", d.IMU.SensorID)
	v.SetDefault("imu.cs_pin", d.IMU.CSPin)
	v.SetDefault("imu.period_ms", d.IMU.PeriodMs)
	v.SetDefault("imu.rate_hz", d.IMU.RateHz)
	v.SetDefault("imu.accel_range", d.IMU.AccelRange)
	v.SetDefault("imu.gyro_range", d.IMU.GyroRange)
	v.SetDefault("imu.pedometer", d.IMU.Pedometer)
	v.SetDefault("imu.pullups", d.IMU.Pullups)
	v.SetDefault("remote.enabled", d.Remote.Enabled)
	v.SetDefault("remote.port", d.Remote.Port)
	v.SetDefault("remote.baud", d.Remote.Baud)
	v.SetDefault("remote.read_timeout_ms", d.Remote.ReadTimeoutMs)
	v.SetDefault("timeout_ms", d.TimeoutMs)
	v.SetDefault("debug", d.Debug)
}

// flagKeys maps persistent flags onto config keys.
var flagKeys = map[string]string{
	"bus":       "imu.bus",
	"addr":      "imu.addr",
	"sensor-id": "imu.sensor_id",
	"cs-pin":    "imu.cs_pin",
	"period":    "imu.period_ms",
	"remote":    "remote.port",
	"baud":      "remote.baud",
	"timeout":   "timeout_ms",
	"debug":     "debug",
}

func (o *ImuctlDesc) Parse(cmd *cobra.Command) error {
	vipCfg := viper.New()
	setDefaults(vipCfg)

	if configFileCmd, err := cmd.Flags().GetString("config"); err == nil && configFileCmd != "" {
		vipCfg.SetConfigFile(configFileCmd)
	} else {
		configFileEnv := os.Getenv(DefaultEnvPrefix + "_CONFIG")
		if configFileEnv != "" {
			vipCfg.SetConfigFile(configFileEnv)
		} else {
			vipCfg.SetConfigName(DefaultConfigName)
			vipCfg.SetConfigType("yaml")
			vipCfg.AddConfigPath(DefaultConfigSearchPath0)
			vipCfg.AddConfigPath(DefaultConfigSearchPath1)
			vipCfg.AddConfigPath(DefaultConfigSearchPath2)
		}
	}

	vipCfg.SetEnvPrefix(DefaultEnvPrefix)
	vipCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vipCfg.AutomaticEnv()

	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			_ = vipCfg.BindPFlag(key, f)
		}
	}

	// If a config file is found, read it in.
	if err := vipCfg.ReadInConfig(); err == nil {
		log.Debugln("using config file:", vipCfg.ConfigFileUsed())
	} else {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
		log.Debugln(err)
	}

	if err := vipCfg.Unmarshal(&o.Opt); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	o.Opt.Remote.Enabled = o.Opt.Remote.Enabled || o.Opt.Remote.Port != ""

	o.Viper = vipCfg
	return nil
}

func (o *ImuctlDesc) PostParse() {
	if o.Opt.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// InitCfg prepares a config file for imuctl.
func InitCfg(cmd *cobra.Command, _ []string) error {
	printFlag, _ := cmd.Flags().GetBool("print")
	outputPath, _ := cmd.Flags().GetString("output")
	overwriteFlag, _ := cmd.Flags().GetBool("yes")

	desc := NewImuctlDesc()
	err := desc.Parse(cmd)
	if err != nil {
		log.Errorln(err)
		return err
	}

	if printFlag {
		configBuffer, err := yaml.Marshal(desc.Opt)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(configBuffer))
		return nil
	}
	return utils.DumpOption(desc.Opt, outputPath, overwriteFlag)
}
