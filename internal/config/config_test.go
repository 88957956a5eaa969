package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	f := cmd.Flags()
	f.String("config", "", "")
	f.String("bus", DefaultBus, "")
	f.Uint16("addr", 0x6A, "")
	f.Int32("sensor-id", 0, "")
	f.String("remote", "", "")
	f.Bool("debug", false, "")
	f.Bool("print", false, "")
	f.String("output", "", "")
	f.Bool("yes", false, "")
	if err := f.Parse(args); err != nil {
		t.Fatal(err)
	}
	return cmd
}

func TestParseDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	desc := NewImuctlDesc()
	if err := desc.Parse(newCmd(t)); err != nil {
		t.Fatal(err)
	}
	o := desc.Opt
	if o.IMU.Bus != DefaultBus || o.IMU.Addr != 0x6A || o.IMU.PeriodMs != DefaultPeriodMs {
		t.Fatalf("imu = %+v", o.IMU)
	}
	if o.Remote.Enabled || o.Remote.Baud != DefaultBaud || o.TimeoutMs != DefaultTimeoutMs {
		t.Fatalf("opt = %+v", o)
	}
}

func TestParseFilePrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "imu.yaml")
	body := `
imu:
  bus: ft232h
  sensor_id: 4
  pedometer: true
remote:
  baud: 230400
debug: true
`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(DefaultEnvPrefix+"_IMU_SENSOR_ID", "9")

	desc := NewImuctlDesc()
	if err := desc.Parse(newCmd(t, "--config", path, "--remote", "/dev/ttyUSB0")); err != nil {
		t.Fatal(err)
	}
	o := desc.Opt
	if o.IMU.Bus != "ft232h" || !o.IMU.Pedometer || !o.Debug {
		t.Fatalf("file values not applied: %+v", o)
	}
	if o.IMU.SensorID != 9 {
		t.Fatalf("env should override file: sensor_id = %d", o.IMU.SensorID)
	}
	if !o.Remote.Enabled || o.Remote.Port != "/dev/ttyUSB0" || o.Remote.Baud != 230400 {
		t.Fatalf("remote = %+v", o.Remote)
	}
}

func TestParseMissingExplicitFile(t *testing.T) {
	desc := NewImuctlDesc()
	err := desc.Parse(newCmd(t, "--config", filepath.Join(t.TempDir(), "nope.yaml")))
	if err == nil {
		t.Fatal("expected error for missing --config file")
	}
}

func TestInitCfgPrint(t *testing.T) {
	t.Chdir(t.TempDir())
	cmd := newCmd(t, "--print", "--bus", "i2c-3")
	var out bytes.Buffer
	cmd.SetOut(&out)
	if err := InitCfg(cmd, nil); err != nil {
		t.Fatal(err)
	}
	var got ImuctlOpt
	if err := yaml.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("printed config is not YAML: %v\n%s", err, out.String())
	}
	if got.IMU.Bus != "i2c-3" || !strings.Contains(out.String(), "accel_range: 4g") {
		t.Fatalf("printed config:\n%s", out.String())
	}
}

func TestInitCfgWritesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "sub", "config.yaml")
	cmd := newCmd(t, "--output", path, "--yes")
	if err := InitCfg(cmd, nil); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got ImuctlOpt
	if err := yaml.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got.IMU.Bus != DefaultBus {
		t.Fatalf("written bus = %q", got.IMU.Bus)
	}
}
