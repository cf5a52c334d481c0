package config

import (
	"context"
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
	"github.com/vnodefs/vnodefs/pkg/backend/badgerdb"
	"github.com/vnodefs/vnodefs/pkg/backend/embedded"
	"github.com/vnodefs/vnodefs/pkg/backend/local"
	"github.com/vnodefs/vnodefs/pkg/backend/memory"
	"github.com/vnodefs/vnodefs/pkg/backend/overlay"
	s3backend "github.com/vnodefs/vnodefs/pkg/backend/s3"
	"github.com/vnodefs/vnodefs/pkg/backend/symlink"
	"github.com/vnodefs/vnodefs/pkg/mount"
	"github.com/vnodefs/vnodefs/pkg/vnode"
	"github.com/vnodefs/vnodefs/pkg/vpath"
)

// BuildRouter materializes every backend and mounts them into a
// router per the mount table. Overlay backends are built after the
// backends their layers reference.
func BuildRouter(ctx context.Context, cfg *Config) (*mount.Router, error) {
	backends, err := BuildBackends(ctx, cfg)
	if err != nil {
		return nil, err
	}
	router := mount.NewRouter()
	for _, m := range cfg.Mounts {
		prefix, err := vpath.Parse(m.Prefix)
		if err != nil {
			return nil, fmt.Errorf("mount %q: %w", m.Prefix, err)
		}
		if err := router.Mount(prefix, backends[m.Backend]); err != nil {
			return nil, fmt.Errorf("mounting %q: %w", m.Prefix, err)
		}
	}
	return router, nil
}

// BuildBackends creates every configured backend by name.
func BuildBackends(ctx context.Context, cfg *Config) (map[string]vnode.Backend, error) {
	built := make(map[string]vnode.Backend, len(cfg.Backends))

	var build func(name string) (vnode.Backend, error)
	build = func(name string) (vnode.Backend, error) {
		if b, ok := built[name]; ok {
			return b, nil
		}
		bc, ok := cfg.Backends[name]
		if !ok {
			return nil, fmt.Errorf("unknown backend %q", name)
		}
		var (
			b   vnode.Backend
			err error
		)
		switch bc.Type {
		case "overlay":
			b, err = createOverlayBackend(bc.Overlay, build)
		case "symlink":
			b, err = createSymlinkBackend(bc.Symlink, build)
		default:
			b, err = CreateBackend(ctx, &bc)
		}
		if err != nil {
			return nil, fmt.Errorf("backend %q: %w", name, err)
		}
		built[name] = b
		return b, nil
	}

	for name := range cfg.Backends {
		if _, err := build(name); err != nil {
			return nil, err
		}
	}
	return built, nil
}

// CreateBackend creates a single non-composite backend from its
// configuration. Composite backends (overlay, symlink) need the full
// backend set and are handled by BuildBackends.
func CreateBackend(ctx context.Context, bc *BackendConfig) (vnode.Backend, error) {
	switch bc.Type {
	case "memory":
		return createMemoryBackend(bc.Memory)
	case "local":
		return createLocalBackend(bc.Local)
	case "embedded":
		return createEmbeddedBackend(bc.Embedded)
	case "badger":
		return createBadgerBackend(bc.Badger)
	case "s3":
		return createS3Backend(ctx, bc.S3)
	case "overlay", "symlink":
		return nil, fmt.Errorf("%s backends require BuildBackends", bc.Type)
	default:
		return nil, fmt.Errorf("unknown backend type: %q", bc.Type)
	}
}

func createMemoryBackend(options map[string]any) (vnode.Backend, error) {
	type memoryOptions struct {
		RootReadOnly bool `mapstructure:"root_read_only"`
	}
	var opts memoryOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode memory options: %w", err)
	}
	if opts.RootReadOnly {
		return memory.New(memory.WithRootReadOnly()), nil
	}
	return memory.New(), nil
}

func createLocalBackend(options map[string]any) (vnode.Backend, error) {
	type localOptions struct {
		Path     string `mapstructure:"path"`
		ReadOnly bool   `mapstructure:"read_only"`
	}
	var opts localOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode local options: %w", err)
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("local backend: path is required")
	}
	if opts.ReadOnly {
		return local.New(opts.Path, local.WithReadOnly())
	}
	return local.New(opts.Path)
}

func createEmbeddedBackend(options map[string]any) (vnode.Backend, error) {
	type embeddedOptions struct {
		// Files maps path strings to inline file content.
		Files map[string]string `mapstructure:"files"`
	}
	var opts embeddedOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode embedded options: %w", err)
	}
	table := make(map[string][]byte, len(opts.Files))
	for path, content := range opts.Files {
		table[path] = []byte(content)
	}
	return embedded.New(table)
}

func createBadgerBackend(options map[string]any) (vnode.Backend, error) {
	type badgerOptions struct {
		Path     string `mapstructure:"path"`
		InMemory bool   `mapstructure:"in_memory"`
	}
	var opts badgerOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode badger options: %w", err)
	}
	if opts.InMemory {
		return badgerdb.OpenInMemory()
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("badger backend: path is required")
	}
	return badgerdb.Open(opts.Path)
}

func createS3Backend(ctx context.Context, options map[string]any) (vnode.Backend, error) {
	type s3Options struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		UsePathStyle    bool   `mapstructure:"use_path_style"`
	}
	var opts s3Options
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode s3 options: %w", err)
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 backend: bucket is required")
	}
	if opts.Region == "" {
		return nil, fmt.Errorf("s3 backend: region is required")
	}
	client, err := s3backend.NewClient(ctx, s3backend.ClientOptions{
		Region:          opts.Region,
		Endpoint:        opts.Endpoint,
		AccessKeyID:     opts.AccessKeyID,
		SecretAccessKey: opts.SecretAccessKey,
		UsePathStyle:    opts.UsePathStyle,
	})
	if err != nil {
		return nil, err
	}
	return s3backend.New(ctx, s3backend.Config{
		Client:    client,
		Bucket:    opts.Bucket,
		KeyPrefix: opts.KeyPrefix,
	})
}

// createSymlinkBackend builds a symlink backend over its target,
// registering links in sorted prefix order so construction errors are
// deterministic.
func createSymlinkBackend(options map[string]any, resolve func(string) (vnode.Backend, error)) (vnode.Backend, error) {
	var opts symlinkOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode symlink options: %w", err)
	}
	if opts.Target == "" {
		return nil, fmt.Errorf("symlink backend: target is required")
	}
	target, err := resolve(opts.Target)
	if err != nil {
		return nil, err
	}
	b, err := symlink.New(target)
	if err != nil {
		return nil, err
	}
	prefixes := make([]string, 0, len(opts.Links))
	for from := range opts.Links {
		prefixes = append(prefixes, from)
	}
	sort.Strings(prefixes)
	for _, from := range prefixes {
		fromPath, err := vpath.Parse(from)
		if err != nil {
			return nil, fmt.Errorf("invalid link prefix %q: %w", from, err)
		}
		toPath, err := vpath.Parse(opts.Links[from])
		if err != nil {
			return nil, fmt.Errorf("invalid link destination %q: %w", opts.Links[from], err)
		}
		if err := b.Link(fromPath, toPath); err != nil {
			return nil, fmt.Errorf("linking %q: %w", from, err)
		}
	}
	return b, nil
}

// createOverlayBackend builds an overlay from its layer list,
// resolving each referenced backend through resolve.
func createOverlayBackend(options map[string]any, resolve func(string) (vnode.Backend, error)) (vnode.Backend, error) {
	var opts overlayOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode overlay options: %w", err)
	}
	layers := make([]overlay.Layer, 0, len(opts.Layers))
	for _, lc := range opts.Layers {
		b, err := resolve(lc.Backend)
		if err != nil {
			return nil, err
		}
		layers = append(layers, overlay.Layer{Backend: b, Writable: lc.Writable})
	}
	return overlay.New(layers...)
}
