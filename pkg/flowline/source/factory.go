package source

import (
	"fmt"
	"log/slog"

	"github.com/randalmurphal/flowline/pkg/flowline"
	"github.com/randalmurphal/flowline/pkg/flowline/backpressure"
	"github.com/randalmurphal/flowline/pkg/flowline/config"
	"github.com/randalmurphal/flowline/pkg/flowline/registry"
)

// Env carries shared dependencies into factories.
type Env struct {
	Logger *slog.Logger
}

// Factory creates a source from its configuration.
type Factory func(def *config.ComponentDef, env Env) (flowline.MessageSource, error)

// Builtins returns a registry holding the configurable sources:
//
//	trigger  back_pressure
//	cron     schedule, payload, back_pressure
//
// Channel sources are built in code.
func Builtins() *registry.Registry[string, Factory] {
	r := registry.New[string, Factory]()
	r.Register("trigger", newTriggerable)
	r.Register("cron", newCron)
	return r
}

// Build creates the source def describes using the factories in r.
func Build(r *registry.Registry[string, Factory], def *config.ComponentDef, env Env) (flowline.MessageSource, error) {
	factory, ok := r.Get(def.Type)
	if !ok {
		return nil, fmt.Errorf("%w: unknown source type %q", config.ErrInvalidDefinition, def.Type)
	}
	s, err := factory(def, env)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", def.DisplayName(), err)
	}
	return s, nil
}

func commonOptions(def *config.ComponentDef, env Env) ([]Option, error) {
	opts := []Option{WithLogger(env.Logger)}
	if bp := def.Config.String("back_pressure", ""); bp != "" {
		s, err := backpressure.ParseStrategy(bp)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithBackPressure(s))
	}
	return opts, nil
}

func newTriggerable(def *config.ComponentDef, env Env) (flowline.MessageSource, error) {
	opts, err := commonOptions(def, env)
	if err != nil {
		return nil, err
	}
	return NewTriggerable(def.DisplayName(), opts...), nil
}

func newCron(def *config.ComponentDef, env Env) (flowline.MessageSource, error) {
	if err := def.Config.Require("schedule"); err != nil {
		return nil, err
	}
	opts, err := commonOptions(def, env)
	if err != nil {
		return nil, err
	}
	return NewCron(def.DisplayName(), def.Config.String("schedule", ""), def.Config.Any("payload", nil), opts...)
}
