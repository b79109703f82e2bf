package processors

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/flowline/pkg/flowline"
	"github.com/randalmurphal/flowline/pkg/flowline/config"
	flowerrors "github.com/randalmurphal/flowline/pkg/flowline/errors"
	"github.com/randalmurphal/flowline/pkg/flowline/expr"
	"github.com/randalmurphal/flowline/pkg/flowline/registry"
	"github.com/randalmurphal/flowline/pkg/flowline/template"
)

// Env carries shared dependencies into factories.
type Env struct {
	Logger *slog.Logger
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Factory creates a processor from its configuration.
type Factory func(def *config.ComponentDef, env Env) (flowline.Processor, error)

// Builtins returns a registry holding a factory for every built-in stage:
//
//	log              level
//	set_variable     variable, value (${...} placeholders render per event)
//	remove_variable  variable
//	filter           when | variable, equals; negate, reject_with_error
//	retry            max_attempts, initial_backoff, max_backoff, jitter
//	throttle         rate, burst
//	text             op (upper, lower, trim, prefix, suffix, template), value
//
// Callers add their own factories to the returned registry.
func Builtins() *registry.Registry[string, Factory] {
	r := registry.New[string, Factory]()
	r.Register("log", newLog)
	r.Register("set_variable", newSetVariable)
	r.Register("remove_variable", newRemoveVariable)
	r.Register("filter", newFilter)
	r.Register("retry", newRetry)
	r.Register("throttle", newThrottle)
	r.Register("text", newText)
	return r
}

// Build creates the processor def describes using the factories in r.
func Build(r *registry.Registry[string, Factory], def *config.ComponentDef, env Env) (flowline.Processor, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: nil processor definition", config.ErrInvalidDefinition)
	}
	factory, ok := r.Get(def.Type)
	if !ok {
		return nil, fmt.Errorf("%w: unknown processor type %q", config.ErrInvalidDefinition, def.Type)
	}
	p, err := factory(def, env)
	if err != nil {
		return nil, fmt.Errorf("processor %s: %w", def.DisplayName(), err)
	}
	return p, nil
}

func newLog(def *config.ComponentDef, env Env) (flowline.Processor, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(def.Config.String("level", "info"))); err != nil {
		return nil, err
	}
	return Log(env.logger().With(slog.String("stage", def.DisplayName())), level), nil
}

func newSetVariable(def *config.ComponentDef, _ Env) (flowline.Processor, error) {
	if err := def.Config.Require("variable", "value"); err != nil {
		return nil, err
	}
	name, value := def.Config.String("variable", ""), def.Config.Any("value", nil)
	if s, ok := value.(string); ok {
		t, err := template.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidDefinition, err)
		}
		if !t.IsStatic() {
			return SetVariableFrom(name, t), nil
		}
	}
	return SetVariable(name, value), nil
}

func newRemoveVariable(def *config.ComponentDef, _ Env) (flowline.Processor, error) {
	if err := def.Config.Require("variable"); err != nil {
		return nil, err
	}
	return RemoveVariable(def.Config.String("variable", "")), nil
}

func newFilter(def *config.ComponentDef, _ Env) (flowline.Processor, error) {
	cfg := def.Config
	var pred Predicate
	switch {
	case cfg.Has("when"):
		cond, err := expr.Compile(cfg.String("when", ""))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidDefinition, err)
		}
		pred = When(cond)
	case cfg.Has("variable"):
		name := cfg.String("variable", "")
		pred = HasVariable(name)
		if cfg.Has("equals") {
			pred = VariableEquals(name, cfg.Any("equals", nil))
		}
	default:
		return nil, fmt.Errorf("%w: filter needs when or variable", config.ErrInvalidDefinition)
	}
	if cfg.Bool("negate", false) {
		pred = Not(pred)
	}
	var opts []FilterOption
	if cfg.Bool("reject_with_error", false) {
		opts = append(opts, RejectWithError())
	}
	return Filter(def.DisplayName(), pred, opts...), nil
}

func newRetry(def *config.ComponentDef, env Env) (flowline.Processor, error) {
	cfg := def.Config
	d := flowerrors.DefaultRetry
	rc := flowerrors.NewRetryConfig(
		flowerrors.WithMaxAttempts(cfg.Int("max_attempts", d.MaxAttempts)),
		flowerrors.WithInitialBackoff(cfg.Duration("initial_backoff", d.InitialBackoff)),
		flowerrors.WithMaxBackoff(cfg.Duration("max_backoff", d.MaxBackoff)),
		flowerrors.WithJitter(cfg.Float("jitter", d.Jitter)),
	)
	if rc.MaxAttempts < 1 {
		return nil, fmt.Errorf("%w: max_attempts must be at least 1", config.ErrInvalidDefinition)
	}
	return Retry(rc).WithLogger(env.logger()), nil
}

func newThrottle(def *config.ComponentDef, _ Env) (flowline.Processor, error) {
	if err := def.Config.Require("rate"); err != nil {
		return nil, err
	}
	perSecond := def.Config.Float("rate", 0)
	if perSecond <= 0 {
		return nil, fmt.Errorf("%w: rate must be positive", config.ErrInvalidDefinition)
	}
	return Throttle(def.DisplayName(), perSecond, def.Config.Int("burst", 1)), nil
}

func newText(def *config.ComponentDef, _ Env) (flowline.Processor, error) {
	value := def.Config.String("value", "")
	var fn func(string) string
	switch op := strings.ToLower(def.Config.String("op", "")); op {
	case "template":
		t, err := template.Parse(value, template.WithMissing(template.MissingFail))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidDefinition, err)
		}
		return Render(def.DisplayName(), t), nil
	case "upper":
		fn = strings.ToUpper
	case "lower":
		fn = strings.ToLower
	case "trim":
		fn = strings.TrimSpace
	case "prefix":
		fn = func(s string) string { return value + s }
	case "suffix":
		fn = func(s string) string { return s + value }
	default:
		return nil, fmt.Errorf("%w: unknown text op %q", config.ErrInvalidDefinition, op)
	}
	return Transform(def.DisplayName(), fn), nil
}
