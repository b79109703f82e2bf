package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/randalmurphal/flowline/pkg/flowline/backpressure"
	"github.com/randalmurphal/flowline/pkg/flowline/strategy"
)

// Sentinel errors for definitions and settings.
var (
	// ErrInvalidDefinition indicates a definition failed validation.
	ErrInvalidDefinition = errors.New("invalid pipeline definition")

	// ErrMissingSetting indicates a required setting key is absent.
	ErrMissingSetting = errors.New("missing required setting")
)

// Initial states a pipeline definition may request.
const (
	StateStarted = "started"
	StateStopped = "stopped"
)

// Exception handling modes a pipeline definition may request.
const (
	OnErrorPropagate  = "propagate"
	OnErrorContinue   = "continue"
	OnErrorDeadLetter = "dead_letter"
)

// Definition describes a set of pipelines.
type Definition struct {
	Pipelines []PipelineDef `yaml:"pipelines" json:"pipelines"`
}

// PipelineDef describes one pipeline.
type PipelineDef struct {
	Name string `yaml:"name" json:"name"`

	// InitialState is "started" (default) or "stopped".
	InitialState string `yaml:"initial_state,omitempty" json:"initial_state,omitempty"`

	// MaxConcurrency bounds in-flight events. Zero means unbounded.
	MaxConcurrency int `yaml:"max_concurrency,omitempty" json:"max_concurrency,omitempty"`

	// BackPressure overrides the source's admission strategy: "wait" or
	// "fail_fast".
	BackPressure string `yaml:"back_pressure,omitempty" json:"back_pressure,omitempty"`

	// OnError selects the exception handler: "propagate" (default),
	// "continue" or "dead_letter".
	OnError string `yaml:"on_error,omitempty" json:"on_error,omitempty"`

	// PoisonThreshold dead-letters an event once this many failures share
	// its correlation id. Zero disables poison detection.
	PoisonThreshold int `yaml:"poison_threshold,omitempty" json:"poison_threshold,omitempty"`

	Strategy   StrategyDef     `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	Source     *ComponentDef   `yaml:"source,omitempty" json:"source,omitempty"`
	Processors []*ComponentDef `yaml:"processors" json:"processors"`
}

// StrategyDef selects a processing strategy.
type StrategyDef struct {
	// Kind is "direct" (default), "queued" or "pooled".
	Kind       string `yaml:"kind,omitempty" json:"kind,omitempty"`
	Workers    int    `yaml:"workers,omitempty" json:"workers,omitempty"`
	BufferSize int    `yaml:"buffer_size,omitempty" json:"buffer_size,omitempty"`
}

// Options converts the definition to strategy options.
func (s StrategyDef) Options() strategy.Options {
	return strategy.Options{Workers: s.Workers, BufferSize: s.BufferSize}
}

// ComponentDef names a registered processor or source type and its
// settings.
type ComponentDef struct {
	Type   string `yaml:"type" json:"type"`
	Name   string `yaml:"name,omitempty" json:"name,omitempty"`
	Config Config `yaml:"config,omitempty" json:"config,omitempty"`
}

// DisplayName returns Name, or Type when no name was given.
func (c *ComponentDef) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Type
}

// Lookup returns the pipeline definition named name.
func (d *Definition) Lookup(name string) (*PipelineDef, bool) {
	for i := range d.Pipelines {
		if d.Pipelines[i].Name == name {
			return &d.Pipelines[i], true
		}
	}
	return nil, false
}

// Validate reports every problem in the definition at once.
func (d *Definition) Validate() error {
	var errs []error
	if len(d.Pipelines) == 0 {
		errs = append(errs, fmt.Errorf("%w: no pipelines defined", ErrInvalidDefinition))
	}
	seen := make(map[string]bool, len(d.Pipelines))
	for i := range d.Pipelines {
		p := &d.Pipelines[i]
		if p.Name != "" && seen[p.Name] {
			errs = append(errs, fmt.Errorf("%w: duplicate pipeline name %q", ErrInvalidDefinition, p.Name))
		}
		seen[p.Name] = true
		errs = append(errs, p.validate(i))
	}
	return errors.Join(errs...)
}

func (p *PipelineDef) validate(index int) error {
	label := p.Name
	if label == "" {
		label = fmt.Sprintf("#%d", index)
	}
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: pipeline %s: %s", ErrInvalidDefinition, label, fmt.Sprintf(format, args...))
	}

	var errs []error
	if p.Name == "" {
		errs = append(errs, invalid("name is required"))
	}
	switch strings.ToLower(p.InitialState) {
	case "", StateStarted, StateStopped:
	default:
		errs = append(errs, invalid("initial_state must be %q or %q, got %q", StateStarted, StateStopped, p.InitialState))
	}
	if p.MaxConcurrency < 0 {
		errs = append(errs, invalid("max_concurrency must not be negative"))
	}
	if p.PoisonThreshold < 0 {
		errs = append(errs, invalid("poison_threshold must not be negative"))
	}
	if p.BackPressure != "" {
		if _, err := backpressure.ParseStrategy(p.BackPressure); err != nil {
			errs = append(errs, invalid("%v", err))
		}
	}
	switch strings.ToLower(p.OnError) {
	case "", OnErrorPropagate, OnErrorContinue, OnErrorDeadLetter:
	default:
		errs = append(errs, invalid("unknown on_error %q", p.OnError))
	}
	switch strategy.Kind(strings.ToLower(p.Strategy.Kind)) {
	case "", strategy.KindDirect, strategy.KindQueued, strategy.KindPooled:
	default:
		errs = append(errs, invalid("unknown strategy kind %q", p.Strategy.Kind))
	}
	if p.Strategy.Workers < 0 || p.Strategy.BufferSize < 0 {
		errs = append(errs, invalid("strategy workers and buffer_size must not be negative"))
	}
	if p.Source != nil && p.Source.Type == "" {
		errs = append(errs, invalid("source type is required"))
	}
	for i, c := range p.Processors {
		if c == nil || c.Type == "" {
			errs = append(errs, invalid("processor %d: type is required", i))
		}
	}
	return errors.Join(errs...)
}
