package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tinycore-go/drivers/lsm6ds3trc"
	"tinycore-go/internal/app"
	"tinycore-go/internal/config"
	"tinycore-go/internal/platform"
	"tinycore-go/internal/serialport"
	"tinycore-go/services/imu"
	"tinycore-go/types"
)

var RootCmd = &cobra.Command{
	Use:   "imuctl",
	Short: "drive an LSM6DS3TR-C locally or on a board over the bus bridge",
	Long: `imuctl drives an LSM6DS3TR-C IMU.
Locally it opens an I2C bus (periph) or an FT232H USB-SPI bridge.
With --remote it talks to a board running pico-imu over a serial link.

Options are read, lowest priority first, from:
1. defaults
2. the config file: --config, TINYCORE_CONFIG, or config.yaml in
   $HOME/.config/tinycore, /etc/tinycore, the current directory
3. environment variables (TINYCORE_IMU_BUS, TINYCORE_REMOTE_PORT, ...)
4. command line flags
`,
	SilenceUsage: true,
}

func RootCmdFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("config", "", "configuration file path")
	f.StringP("bus", "b", config.DefaultBus, "bus name: /dev/i2c-1, i2c-1, ft232h, ft232h:<index>")
	f.Uint16P("addr", "a", lsm6ds3trc.Address, "I2C address (0x6A or 0x6B)")
	f.Int32("sensor-id", 0, "base sensor id (gyro and temp follow)")
	f.Int("cs-pin", 0, "SPI chip select line (FT232H C-bus)")
	f.Int("period", config.DefaultPeriodMs, "poll period in ms")
	f.StringP("remote", "r", "", "serial port of a remote board, enables remote mode")
	f.Int("baud", config.DefaultBaud, "remote serial baud rate")
	f.Int("timeout", config.DefaultTimeoutMs, "request timeout in ms")
	f.Bool("debug", false, "toggle debug logging")
}

// loadOpt parses options for a command and applies the log level.
func loadOpt(cmd *cobra.Command) (config.ImuctlOpt, error) {
	desc := config.NewImuctlDesc()
	if err := desc.Parse(cmd); err != nil {
		return desc.Opt, err
	}
	desc.PostParse()
	return desc.Opt, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// startApp loads options and brings up the bus side of a command.
func startApp(cmd *cobra.Command) (context.Context, context.CancelFunc, *app.App, error) {
	opt, err := loadOpt(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := signalContext(cmd)
	a := app.New(opt, platform.IMUFactory())
	if err := a.Start(ctx); err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return ctx, cancel, a, nil
}

// startConfigured also configures the sensor, except remotely where the
// board keeps its own configuration.
func startConfigured(cmd *cobra.Command) (context.Context, context.CancelFunc, *app.App, error) {
	ctx, cancel, a, err := startApp(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	remote, _ := cmd.Flags().GetString("remote")
	if remote != "" {
		return ctx, cancel, a, nil
	}
	if _, err := a.Configure(ctx); err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return ctx, cancel, a, nil
}

// parseOnOff accepts on/off, true/false, 1/0 and enable/disable.
func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1", "enable", "yes":
		return true, nil
	case "off", "false", "0", "disable", "no":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

var ProbeCmd = &cobra.Command{
	Use: "probe",
	SuggestFor: []string{
		"pro", "pr", "prob",
	},
	Short: "read WHO_AM_I without initialising the sensor",
	Long: `probe reads the chip id from the configured bus and reports whether an
LSM6DS3TR-C answers. Remotely it reports the id the board published.`,
	Example: `  imuctl probe --bus /dev/i2c-1 --addr 0x6b`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		opt, err := loadOpt(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext(cmd)
		defer cancel()
		a := app.New(opt, platform.IMUFactory())
		if opt.Remote.Enabled {
			if err := a.Start(ctx); err != nil {
				return err
			}
		}
		id, err := a.Probe(ctx, platform.IMUFactory(), platform.Close)
		if err != nil {
			return err
		}
		match := "no"
		if id == lsm6ds3trc.ChipID {
			match = "yes"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "chip id 0x%02X (lsm6ds3tr-c: %s)\n", id, match)
		return nil
	},
}

var InitCmd = &cobra.Command{
	Use:   "init",
	Short: "initialise the sensor and print its info",
	Long: `init sends the IMU configuration, which verifies the chip, resets it,
configures ranges and rates and enables block data update. Remotely this
reconfigures the board.`,
	Example: `  imuctl init --sensor-id 10
  imuctl init --remote /dev/ttyACM0`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel, a, err := startApp(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		st, err := a.Configure(ctx)
		if err != nil {
			return err
		}
		info, err := a.Info(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: bus %s addr 0x%02X chip 0x%02X sensor ids %d..%d\n",
			st.Status, info.Bus, info.Addr, info.ChipID, info.SensorID, info.SensorID+2)
		return nil
	},
}

func enableCmd(use, verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:       use + " on|off",
		Short:     short,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseOnOff(args[0])
			if err != nil {
				return err
			}
			ctx, cancel, a, err := startConfigured(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			var ack types.EnableAck
			if err := a.Control(ctx, verb, types.Enable{Enable: on}, &ack); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", use, onOff(ack.Enable))
			return nil
		},
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

var PedometerCmd = enableCmd("pedometer", imu.CtrlPedometer, "enable or disable the step counter (clears the count)")

var PullupsCmd = enableCmd("pullups", imu.CtrlPullups, "enable or disable the sensor hub I2C pull-ups")

var ReadCmd = &cobra.Command{
	Use:   "read",
	Short: "take one reading of every channel",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel, a, err := startConfigured(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		var r types.ReadNowReply
		if err := a.Control(ctx, imu.CtrlReadNow, nil, &r); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, app.Sample{Kind: types.KindAccel, Vector: r.Accel})
		fmt.Fprintln(out, app.Sample{Kind: types.KindGyro, Vector: r.Gyro})
		fmt.Fprintln(out, app.Sample{Kind: types.KindTemperature, Temp: r.Temp})
		fmt.Fprintln(out, app.Sample{Kind: types.KindSteps, Steps: r.Steps})
		return nil
	},
}

var ResetStepsCmd = &cobra.Command{
	Use:   "reset-steps",
	Short: "clear the step counter",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel, a, err := startConfigured(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		return a.Control(ctx, imu.CtrlResetSteps, nil, nil)
	},
}

var StreamCmd = &cobra.Command{
	Use:     "stream",
	Short:   "print readings until interrupted",
	Example: `  imuctl stream --count 100`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		count, _ := cmd.Flags().GetInt("count")
		ctx, cancel, a, err := startConfigured(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		out := cmd.OutOrStdout()
		err = a.Stream(ctx, count, func(s app.Sample) { fmt.Fprintln(out, s) })
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func StreamCmdFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("count", "n", 0, "stop after n samples (0 streams until interrupted)")
}

var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "manage the imuctl configuration file",
}

func InitCfgCmdFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("print", false, "print config to stdout")
	cmd.Flags().BoolP("yes", "y", false, "overwrite")
	cmd.Flags().StringP("output", "o", config.DefaultConfig, "specify output path")
}

var InitCfgCmd = &cobra.Command{
	Use: "init",
	SuggestFor: []string{
		"ini", "in",
	},
	Short: "init create a configuration template",
	Long: `init create a configuration template.
If --print flag is present, the configuration will be printed to stdout.
If --output / -o flag is present, the configuration will be saved to the path specified
Otherwise init will output configuration file to $HOME/.config/tinycore/config.yaml
If --yes / -y flag is present, the configuration will be overwrite without confirmation
`,
	Example: `  imuctl config init --print
  imuctl config init -o /path/to/config.yaml -y`,
	RunE: config.InitCfg,
}

func getRootCmd() *cobra.Command {
	serialport.Register()

	RootCmdFlags(RootCmd)

	RootCmd.AddCommand(ProbeCmd, InitCmd, PedometerCmd, PullupsCmd, ReadCmd, ResetStepsCmd)

	StreamCmdFlags(StreamCmd)
	RootCmd.AddCommand(StreamCmd)

	InitCfgCmdFlags(InitCfgCmd)
	ConfigCmd.AddCommand(InitCfgCmd)
	RootCmd.AddCommand(ConfigCmd)

	return RootCmd
}

func Execute() {
	rootCmd := getRootCmd()
	if err := rootCmd.Execute(); err != nil {
		log.Errorln(err)
		os.Exit(1)
	}
}
