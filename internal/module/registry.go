package module

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Options configures module construction.
type Options struct {
	// IDColumn is the column holding document ids (default record_id).
	IDColumn string
	// DefaultLimit is the page size used when limit is absent (default 20).
	DefaultLimit int
	// MaxLimit is the largest accepted limit (default 1000).
	MaxLimit int
	Logger   *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.IDColumn == "" {
		o.IDColumn = "record_id"
	}
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = 20
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = 1000
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Factory builds a module.
type Factory func(Options) Module

var factories = map[string]Factory{
	"core":     func(o Options) Module { return NewCore(o) },
	"geo":      func(o Options) Module { return NewGeo(o) },
	"keywords": func(o Options) Module { return NewKeywords(o) },
}

// Names lists the registered module names.
func Names() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build instantiates the named modules in order. Core is placed first
// whether or not it is named, and repeated names are built once.
func Build(names []string, opts Options) ([]Module, error) {
	mods := []Module{factories["core"](opts)}
	seen := map[string]bool{"core": true}

	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		f, ok := factories[name]
		if !ok {
			return nil, fmt.Errorf("unknown module %q (available: %s)", raw, strings.Join(Names(), ", "))
		}
		seen[name] = true
		mods = append(mods, f(opts))
	}
	return mods, nil
}
