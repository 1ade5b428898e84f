// Package cli builds cobra commands whose options resolve from flags,
// environment variables, and an optional config file through a single
// declaration.
package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Opt is a single command-line option.
type Opt struct {
	// DestP points at the variable the resolved value is stored in.
	DestP interface{}

	Flag    string
	Default interface{}
	Desc    string

	// Required rejects execution when no value is supplied by flag, env
	// var, or config file.
	Required bool
}

// Program parses CLI options.
type Program struct {
	// Run is invoked by cobra on execute.
	Run func() error

	// Name is the name of the program in help usage and the env var prefix.
	Name string

	// Opts are the command line/env var options to the program.
	Opts []Opt
}

// NewCommand creates a cobra command for p that respects env vars and an
// optional config file.
//
// Option values resolve with flags over env vars over the config file. Env
// vars use the upper-cased program name as prefix. The config file location
// comes from <NAME>_CONFIG_PATH, naming either a file or a directory
// holding "config" with a json, toml, yaml, or yml extension; when unset,
// the working directory is searched.
func NewCommand(v *viper.Viper, p *Program) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:  p.Name,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return p.Run()
		},
	}

	v.SetEnvPrefix(strings.ToUpper(p.Name))
	v.AutomaticEnv()
	// This normalizes "-" to an underscore in env names.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := loadConfigFile(v); err != nil {
		return nil, err
	}
	if err := BindOptions(v, cmd, p.Opts); err != nil {
		return nil, err
	}

	return cmd, nil
}

// loadConfigFile reads the config file named by CONFIG_PATH into v. When no
// file is found, options resolve from flags and env vars alone.
func loadConfigFile(v *viper.Viper) error {
	configPath := v.GetString("CONFIG_PATH")
	if configPath == "" {
		// Default to looking in the working directory.
		configPath = "."
	}

	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".json", ".toml", ".yaml", ".yml":
		v.SetConfigFile(configPath)
	default:
		// Anything else is treated as a directory holding a file named
		// "config". Dotted directory names land here too.
		v.AddConfigPath(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}
	return nil
}

// BindOptions adds opts to cmd and automatically registers them with v.
func BindOptions(v *viper.Viper, cmd *cobra.Command, opts []Opt) error {
	for _, o := range opts {
		flagset := cmd.Flags()

		// Consult env and config before the flag is registered: once a
		// flag is bound, its default satisfies viper's IsSet.
		supplied := v.IsSet(o.Flag)

		switch destP := o.DestP.(type) {
		case *string:
			var d string
			if o.Default != nil {
				d = o.Default.(string)
			}
			flagset.StringVar(destP, o.Flag, d, o.Desc)
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			*destP = v.GetString(o.Flag)

		case *int:
			var d int
			if o.Default != nil {
				d = o.Default.(int)
			}
			flagset.IntVar(destP, o.Flag, d, o.Desc)
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			*destP = v.GetInt(o.Flag)

		case *int32:
			var d int32
			if o.Default != nil {
				// Viper config files deliver whole numbers as ints.
				switch dflt := o.Default.(type) {
				case int:
					d = int32(dflt)
				case int32:
					d = dflt
				}
			}
			flagset.Int32Var(destP, o.Flag, d, o.Desc)
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			*destP = v.GetInt32(o.Flag)

		case *int64:
			var d int64
			if o.Default != nil {
				switch dflt := o.Default.(type) {
				case int:
					d = int64(dflt)
				case int64:
					d = dflt
				}
			}
			flagset.Int64Var(destP, o.Flag, d, o.Desc)
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			*destP = v.GetInt64(o.Flag)

		case *bool:
			var d bool
			if o.Default != nil {
				d = o.Default.(bool)
			}
			flagset.BoolVar(destP, o.Flag, d, o.Desc)
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			*destP = v.GetBool(o.Flag)

		case *time.Duration:
			var d time.Duration
			if o.Default != nil {
				d = o.Default.(time.Duration)
			}
			flagset.DurationVar(destP, o.Flag, d, o.Desc)
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			*destP = v.GetDuration(o.Flag)

		case *[]string:
			var d []string
			if o.Default != nil {
				d = o.Default.([]string)
			}
			flagset.StringSliceVar(destP, o.Flag, d, o.Desc)
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			*destP = v.GetStringSlice(o.Flag)

		case *zapcore.Level:
			var d zapcore.Level
			if o.Default != nil {
				d = o.Default.(zapcore.Level)
			}
			LevelVar(flagset, destP, o.Flag, d, o.Desc)
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			if s := v.GetString(o.Flag); s != "" {
				if err := destP.Set(s); err != nil {
					return fmt.Errorf("invalid value for %s: %v", o.Flag, err)
				}
			}

		case pflag.Value:
			if o.Default != nil {
				if err := destP.Set(o.Default.(string)); err != nil {
					return err
				}
			}
			flagset.Var(destP, o.Flag, o.Desc)
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			if s := v.GetString(o.Flag); s != "" {
				if err := destP.Set(s); err != nil {
					return fmt.Errorf("invalid value for %s: %v", o.Flag, err)
				}
			}

		default:
			return fmt.Errorf("unsupported destination type %T for flag %q", o.DestP, o.Flag)
		}

		if o.Required && !supplied {
			// Env and config values satisfy the requirement; otherwise let
			// cobra insist on the flag.
			if err := cmd.MarkFlagRequired(o.Flag); err != nil {
				return err
			}
		}
	}
	return nil
}
