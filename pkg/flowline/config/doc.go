// Package config loads flowline configuration.
//
// Three layers are provided:
//
//   - Config, a map wrapper with typed accessors, holds the free-form
//     settings of one processor or source.
//   - Definition describes a set of pipelines and is loaded from YAML or
//     JSON.
//   - Settings holds process-wide options read from FLOWLINE_* environment
//     variables.
//
// # Definitions
//
//	pipelines:
//	  - name: orders
//	    initial_state: started
//	    max_concurrency: 8
//	    back_pressure: fail_fast
//	    on_error: dead_letter
//	    poison_threshold: 3
//	    strategy:
//	      kind: queued
//	      workers: 4
//	      buffer_size: 128
//	    source:
//	      type: cron
//	      config:
//	        schedule: "@every 1s"
//	    processors:
//	      - type: set_variable
//	        config:
//	          variable: region
//	          value: eu
//	      - type: filter
//	        config:
//	          when: "region == 'eu' and payload.amount > 100"
//	      - type: log
//
//	def, err := config.LoadDefinition("flows.yaml")
//	if err != nil {
//	    return err
//	}
//
// # Processor settings
//
//	cfg := def.Pipelines[0].Processors[0].Config
//	name := cfg.String("name", "")
//	every := cfg.Duration("interval", time.Second)
//
// Accessors never fail: a missing or mistyped key yields the default.
// Durations accept Go duration strings or numbers of seconds.
//
// # Settings
//
//	settings, err := config.LoadSettings()
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: settings.Level()}))
package config
