/*
Package template renders ${name} placeholders from event data.

# Overview

Templates are parsed once and rendered many times. Values are looked up
through a function, so the same template works against a plain map or an
event:

	t, err := template.Parse("order ${id} for ${payload.customer:-guest}")
	if err != nil {
	    return err
	}
	s, err := t.Render(template.Map(map[string]any{"id": 7}))
	// s: "order 7 for guest"

# Placeholders

  - ${name} is replaced by the value of name
  - ${a.b.c} descends into nested map[string]any values
  - ${name:-fallback} renders fallback when name is missing
  - $$ renders a literal $

A $ not followed by { or $ is copied as is.

# Missing Values

By default a missing name without a fallback keeps its placeholder. Use
WithMissing to render an empty string or fail with *MissingError instead:

	t, _ := template.Parse("${region}", template.WithMissing(template.MissingFail))
	_, err := t.Render(template.Map(nil))
	// err: missing template value: region
*/
package template
