package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/vnodefs/vnodefs/pkg/vpath"
)

// Validate checks a configuration for structural and cross-field
// errors: tag-level validation first, then mount prefix parsing and
// uniqueness, backend reference resolution, and composite backend
// reference cycles.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("field %q fails %q validation", first.Namespace(), first.Tag())
		}
		return err
	}
	if err := validateMounts(cfg); err != nil {
		return err
	}
	return validateComposites(cfg)
}

// validateMounts checks that every mount prefix parses, is unique
// and references a defined backend.
func validateMounts(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Mounts))
	for i, m := range cfg.Mounts {
		prefix, err := vpath.Parse(m.Prefix)
		if err != nil {
			return fmt.Errorf("mount %d: invalid prefix %q: %w", i, m.Prefix, err)
		}
		canonical := prefix.String()
		if seen[canonical] {
			return fmt.Errorf("mount %d: duplicate prefix %q", i, canonical)
		}
		seen[canonical] = true
		if _, ok := cfg.Backends[m.Backend]; !ok {
			return fmt.Errorf("mount %d: unknown backend %q", i, m.Backend)
		}
	}
	return nil
}

// overlayLayerConfig mirrors one entry of an overlay's layers list.
type overlayLayerConfig struct {
	Backend  string `mapstructure:"backend"`
	Writable bool   `mapstructure:"writable"`
}

type overlayOptions struct {
	Layers []overlayLayerConfig `mapstructure:"layers"`
}

// symlinkOptions mirrors a symlink backend's option section.
type symlinkOptions struct {
	Target string            `mapstructure:"target"`
	Links  map[string]string `mapstructure:"links"`
}

// validateComposites checks the backends that reference other backends
// (overlay layers, symlink targets): every reference must be defined
// and no reference chain may loop back on itself.
func validateComposites(cfg *Config) error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(cfg.Backends))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("backend %q is part of a reference cycle", name)
		}
		state[name] = visiting
		bc := cfg.Backends[name]
		switch bc.Type {
		case "overlay":
			var opts overlayOptions
			if err := mapstructure.Decode(bc.Overlay, &opts); err != nil {
				return fmt.Errorf("backend %q: failed to decode overlay options: %w", name, err)
			}
			if len(opts.Layers) == 0 {
				return fmt.Errorf("backend %q: overlay requires at least one layer", name)
			}
			for _, layer := range opts.Layers {
				if _, ok := cfg.Backends[layer.Backend]; !ok {
					return fmt.Errorf("backend %q: unknown layer backend %q", name, layer.Backend)
				}
				if err := visit(layer.Backend); err != nil {
					return err
				}
			}
		case "symlink":
			var opts symlinkOptions
			if err := mapstructure.Decode(bc.Symlink, &opts); err != nil {
				return fmt.Errorf("backend %q: failed to decode symlink options: %w", name, err)
			}
			if opts.Target == "" {
				return fmt.Errorf("backend %q: symlink requires a target", name)
			}
			if _, ok := cfg.Backends[opts.Target]; !ok {
				return fmt.Errorf("backend %q: unknown target backend %q", name, opts.Target)
			}
			for from, to := range opts.Links {
				if _, err := vpath.Parse(from); err != nil {
					return fmt.Errorf("backend %q: invalid link prefix %q: %w", name, from, err)
				}
				if _, err := vpath.Parse(to); err != nil {
					return fmt.Errorf("backend %q: invalid link destination %q: %w", name, to, err)
				}
			}
			if err := visit(opts.Target); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for name := range cfg.Backends {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}
