// Package processors provides reusable pipeline stages.
//
// Plain stages transform or observe events:
//
//	flowline.WithProcessors(
//	    processors.SetVariable("region", "eu"),
//	    processors.Transform("upper", strings.ToUpper),
//	    processors.Log(logger, slog.LevelDebug),
//	)
//
// Filter and Retry are intercepting stages: they own the stages that
// follow them in the chain. Filter runs them only for accepted events;
// Retry re-runs them until they succeed:
//
//	flowline.WithProcessors(
//	    processors.Filter("eu-only", processors.VariableEquals("region", "eu")),
//	    processors.Retry(flowerrors.NewRetryConfig(flowerrors.WithMaxAttempts(5))),
//	    callDownstream,
//	)
//
// Conditions and templates see event variables plus the payload, id,
// correlation_id and source fields:
//
//	processors.Filter("big-eu", processors.When(expr.MustCompile("payload.amount > 100 and region == 'eu'")))
//	processors.Render("receipt", template.MustParse("order ${payload.id} for ${customer:-guest}"))
//
// Every built-in stage can also be created from configuration by type
// name; see Builtins.
package processors
