package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// toggleFlag exercises binding an arbitrary pflag.Value.
type toggleFlag bool

func (f toggleFlag) String() string {
	if f {
		return "on"
	}
	return "off"
}

func (f *toggleFlag) Set(s string) error {
	*f = s == "on"
	return nil
}

func (f *toggleFlag) Type() string {
	return "toggle"
}

func ExampleNewCommand() {
	var (
		listenAddr string
		clusters   int
		threshold  int64
		trace      bool
		runtime    time.Duration
		modes      []string
		level      zapcore.Level
	)
	cmd, err := NewCommand(viper.New(), &Program{
		Run: func() error {
			fmt.Println(listenAddr)
			fmt.Println(clusters)
			fmt.Println(threshold)
			fmt.Println(trace)
			fmt.Println(runtime)
			fmt.Println(modes)
			fmt.Println(level)
			return nil
		},
		Name: "jitdemo",
		Opts: []Opt{
			{DestP: &listenAddr, Flag: "listen-addr", Default: ":9090", Desc: "metrics listen address"},
			{DestP: &clusters, Flag: "clusters", Default: 4, Desc: "number of synthetic clusters"},
			{DestP: &threshold, Flag: "compilation-threshold", Default: int64(2), Desc: "lazy compilation threshold"},
			{DestP: &trace, Flag: "trace", Default: false, Desc: "enable tracing"},
			{DestP: &runtime, Flag: "runtime", Default: time.Minute, Desc: "how long to drive load"},
			{DestP: &modes, Flag: "modes", Default: []string{"strict", "lazy"}, Desc: "compile modes to exercise"},
			{DestP: &level, Flag: "log-level", Default: zapcore.InfoLevel, Desc: "log verbosity"},
		},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}

	cmd.SetArgs([]string{"--clusters", "2"})
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	// Output:
	// :9090
	// 2
	// 2
	// false
	// 1m0s
	// [strict lazy]
	// info
}

func TestProgram_OptionPrecedence(t *testing.T) {
	config := map[string]string{
		"database-path": "/var/lib/jit/autotune.bolt",
		"object-size":   "65536",
		"log-level":     "debug",
	}

	tests := []struct {
		name     string
		env      string
		args     []string
		expected string
	}{
		{
			name:     "config value applies when nothing else is set",
			expected: "/var/lib/jit/autotune.bolt",
		},
		{
			name:     "env var beats config",
			env:      "/tmp/env.bolt",
			expected: "/tmp/env.bolt",
		},
		{
			name:     "flag beats config",
			args:     []string{"--database-path=/tmp/flag.bolt"},
			expected: "/tmp/flag.bolt",
		},
		{
			name:     "flag beats env",
			env:      "/tmp/env.bolt",
			args:     []string{"--database-path=/tmp/flag.bolt"},
			expected: "/tmp/flag.bolt",
		},
	}

	for _, tt := range tests {
		for _, w := range configWriters {
			t.Run(fmt.Sprintf("%s_%s", tt.name, w.ext), func(t *testing.T) {
				confFile, err := w.write(t.TempDir(), config)
				require.NoError(t, err)
				t.Setenv("STRESS_CONFIG_PATH", confFile)
				if tt.env != "" {
					t.Setenv("STRESS_DATABASE_PATH", tt.env)
				}

				var (
					databasePath string
					objectSize   int64
					level        zapcore.Level
				)
				program := &Program{
					Name: "stress",
					Run:  func() error { return nil },
					Opts: []Opt{
						// Required is satisfied by the config file.
						{DestP: &databasePath, Flag: "database-path", Required: true},
						{DestP: &objectSize, Flag: "object-size"},
						{DestP: &level, Flag: "log-level"},
					},
				}

				cmd, err := NewCommand(viper.New(), program)
				require.NoError(t, err)
				cmd.SetArgs(append([]string{}, tt.args...))
				require.NoError(t, cmd.Execute())

				require.Equal(t, tt.expected, databasePath)
				assert.Equal(t, int64(65536), objectSize)
				assert.Equal(t, zapcore.DebugLevel, level)
			})
		}
	}
}

func TestProgram_RequiredFlagMissing(t *testing.T) {
	var databasePath string
	program := &Program{
		Name: "stress",
		Run:  func() error { return nil },
		Opts: []Opt{
			{DestP: &databasePath, Flag: "database-path", Required: true},
		},
	}

	cmd, err := NewCommand(viper.New(), program)
	require.NoError(t, err)
	cmd.SilenceUsage = true
	cmd.SetArgs([]string{})

	err = cmd.Execute()
	require.Error(t, err)
	require.Equal(t, `required flag(s) "database-path" not set`, err.Error())
}

func TestProgram_ConfigFormatPrecedence(t *testing.T) {
	content := map[string]map[string]string{
		"json": {"log-level": "debug"},
		"toml": {"log-level": "info"},
		"yaml": {"log-level": "warn"},
		"yml":  {"log-level": "error"},
	}

	tests := []struct {
		name     string
		formats  []string
		expected zapcore.Level
	}{
		{
			name:     "json wins over every other format",
			formats:  []string{"json", "toml", "yaml", "yml"},
			expected: zapcore.DebugLevel,
		},
		{
			name:     "toml wins when no json is present",
			formats:  []string{"toml", "yaml", "yml"},
			expected: zapcore.InfoLevel,
		},
		{
			name:     "yaml wins when no json or toml is present",
			formats:  []string{"yaml", "yml"},
			expected: zapcore.WarnLevel,
		},
		{
			name:     "yml is the last resort",
			formats:  []string{"yml"},
			expected: zapcore.ErrorLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testDir := t.TempDir()
			t.Setenv("STRESS_CONFIG_PATH", testDir)

			for _, ext := range tt.formats {
				_, err := writerFor(t, ext).write(testDir, content[ext])
				require.NoError(t, err)
			}

			var level zapcore.Level
			program := &Program{
				Name: "stress",
				Run:  func() error { return nil },
				Opts: []Opt{
					{DestP: &level, Flag: "log-level"},
				},
			}

			cmd, err := NewCommand(viper.New(), program)
			require.NoError(t, err)
			cmd.SetArgs([]string{})
			require.NoError(t, cmd.Execute())

			require.Equal(t, tt.expected, level)
		})
	}
}

func TestProgram_ConfigDirWithDots(t *testing.T) {
	tests := []struct {
		name string
		dir  string
	}{
		{name: "dot at start", dir: ".stress"},
		{name: "dot in middle", dir: "conf.d"},
		{name: "dot at end", dir: "forgotmyextension."},
	}

	config := map[string]string{
		"database-path": "/var/lib/jit/picks.bolt",
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configDir := filepath.Join(t.TempDir(), tt.dir)
			require.NoError(t, os.Mkdir(configDir, 0700))

			_, err := writeTOMLConfig(configDir, config)
			require.NoError(t, err)
			t.Setenv("STRESS_CONFIG_PATH", configDir)

			var databasePath string
			program := &Program{
				Name: "stress",
				Run:  func() error { return nil },
				Opts: []Opt{
					{DestP: &databasePath, Flag: "database-path"},
				},
			}

			cmd, err := NewCommand(viper.New(), program)
			require.NoError(t, err)
			cmd.SetArgs([]string{})
			require.NoError(t, cmd.Execute())

			require.Equal(t, "/var/lib/jit/picks.bolt", databasePath)
		})
	}
}

func TestBindOptions_CustomPflagValue(t *testing.T) {
	var record toggleFlag
	program := &Program{
		Name: "stress",
		Run:  func() error { return nil },
		Opts: []Opt{
			{DestP: &record, Flag: "record", Default: "on"},
		},
	}

	cmd, err := NewCommand(viper.New(), program)
	require.NoError(t, err)
	cmd.SetArgs([]string{"--record=off"})
	require.NoError(t, cmd.Execute())
	require.False(t, bool(record))

	cmd, err = NewCommand(viper.New(), program)
	require.NoError(t, err)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	require.True(t, bool(record))
}

type labeledWriter struct {
	ext   string
	write func(dir string, config interface{}) (string, error)
}

var configWriters = []labeledWriter{
	{ext: "json", write: writeJSONConfig},
	{ext: "toml", write: writeTOMLConfig},
	{ext: "yaml", write: writeYAMLConfig("config.yaml")},
	{ext: "yml", write: writeYAMLConfig("config.yml")},
}

func writerFor(t *testing.T, ext string) labeledWriter {
	t.Helper()
	for _, w := range configWriters {
		if w.ext == ext {
			return w
		}
	}
	t.Fatalf("no config writer for extension %q", ext)
	return labeledWriter{}
}

func writeJSONConfig(dir string, config interface{}) (string, error) {
	b, err := json.Marshal(config)
	if err != nil {
		return "", err
	}
	name := filepath.Join(dir, "config.json")
	return name, os.WriteFile(name, b, 0600)
}

func writeTOMLConfig(dir string, config interface{}) (string, error) {
	name := filepath.Join(dir, "config.toml")
	f, err := os.Create(name)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return name, toml.NewEncoder(f).Encode(config)
}

func writeYAMLConfig(filename string) func(dir string, config interface{}) (string, error) {
	return func(dir string, config interface{}) (string, error) {
		name := filepath.Join(dir, filename)
		f, err := os.Create(name)
		if err != nil {
			return "", err
		}
		defer f.Close()
		return name, yaml.NewEncoder(f).Encode(config)
	}
}
