package main

import (
	"fmt"
	"time"

	btoml "github.com/BurntSushi/toml"

	"github.com/jitcache/jitcache"
	"github.com/jitcache/jitcache/jit"
	"github.com/jitcache/jitcache/toml"
)

// profile describes a synthetic workload: how many computation clusters and
// distinct shapes to request, how the fake compiler behaves, and the cache
// configuration to run it against.
type profile struct {
	Clusters             int           `toml:"clusters"`
	SignaturesPerCluster int           `toml:"signatures-per-cluster"`
	Requests             int           `toml:"requests"`
	Modes                []string      `toml:"modes"`
	ObjectSize           toml.Size     `toml:"object-size"`
	CompileDelay         toml.Duration `toml:"compile-delay"`
	FailEvery            int64         `toml:"fail-every"`

	Cache jit.Config `toml:"cache"`

	modes []jitcache.CompileMode
}

// defaultProfile is a small mixed workload that finishes in a few seconds.
func defaultProfile() profile {
	return profile{
		Clusters:             8,
		SignaturesPerCluster: 16,
		Requests:             20000,
		Modes:                []string{"strict", "lazy", "async"},
		ObjectSize:           64 << 10,
		CompileDelay:         toml.Duration(2 * time.Millisecond),
		Cache:                jit.NewConfig(),
	}
}

// loadProfile reads a TOML profile from path, layered over the defaults.
// An empty path returns the defaults unchanged.
func loadProfile(path string) (profile, error) {
	p := defaultProfile()
	if path != "" {
		if _, err := btoml.DecodeFile(path, &p); err != nil {
			return profile{}, fmt.Errorf("unable to load workload profile %s: %v", path, err)
		}
	}
	if err := p.validate(); err != nil {
		return profile{}, err
	}
	return p, nil
}

func (p *profile) validate() error {
	if p.Clusters <= 0 {
		return fmt.Errorf("profile: clusters must be positive")
	}
	if p.SignaturesPerCluster <= 0 {
		return fmt.Errorf("profile: signatures-per-cluster must be positive")
	}
	if p.Requests <= 0 {
		return fmt.Errorf("profile: requests must be positive")
	}
	if p.FailEvery < 0 {
		return fmt.Errorf("profile: fail-every must not be negative")
	}
	if err := p.Cache.Validate(); err != nil {
		return err
	}
	p.modes = p.modes[:0]
	for _, name := range p.Modes {
		mode, err := jitcache.ParseCompileMode(name)
		if err != nil {
			return err
		}
		p.modes = append(p.modes, mode)
	}
	if len(p.modes) == 0 {
		// No mix requested; every driver uses the cache's default mode.
		p.modes = append(p.modes, p.Cache.CompileMode)
		p.Modes = []string{p.Cache.CompileMode.String()}
	}
	return nil
}
