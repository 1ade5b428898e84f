package cli

import (
	"fmt"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
)

// levelFlag exposes a zapcore.Level as a pflag.Value.
type levelFlag struct {
	dest *zapcore.Level
}

func (f levelFlag) String() string { return f.dest.String() }

func (f levelFlag) Set(s string) error {
	var parsed zapcore.Level
	if err := parsed.Set(s); err != nil {
		return fmt.Errorf("unknown log level; supported levels are debug, info, warn, error")
	}
	*f.dest = parsed
	return nil
}

func (f levelFlag) Type() string { return "log-level" }

// LevelVar registers a zapcore.Level flag on fs with the given name, default
// value, and usage string. Parsed values are stored in dest.
func LevelVar(fs *pflag.FlagSet, dest *zapcore.Level, name string, value zapcore.Level, usage string) {
	LevelVarP(fs, dest, name, "", value, usage)
}

// LevelVarP is LevelVar with a single-dash shorthand.
func LevelVarP(fs *pflag.FlagSet, dest *zapcore.Level, name, shorthand string, value zapcore.Level, usage string) {
	*dest = value
	fs.VarP(levelFlag{dest}, name, shorthand, usage)
}
