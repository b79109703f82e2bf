/*
Package expr compiles boolean conditions over event data.

# Overview

Conditions are compiled once and evaluated per event. Identifiers are
looked up through a Resolver; processors.When resolves them against an
event's variables, payload and metadata.

	cond, err := expr.Compile("region == 'eu' and amount >= 100")
	if err != nil {
	    return err
	}
	ok := cond.Eval(expr.Vars(map[string]any{"region": "eu", "amount": 250}))

# Syntax

	<or>         := <and> { ('or' | '||') <and> }
	<and>        := <unary> { ('and' | '&&') <unary> }
	<unary>      := ('not' | '!') <unary> | <comparison>
	<comparison> := <operand> [ <op> <operand> ]
	<op>         := '==' | '!=' | '<' | '>' | '<=' | '>=' | 'contains' | 'matches' | custom
	<operand>    := '(' <or> ')' | string | number | true | false | null | identifier

Identifiers may contain dots to reach into nested maps: payload.customer.id.
An identifier the resolver does not know evaluates to null.

# Comparison

== and != compare numbers numerically and everything else by its printed
form. Ordering operators compare numbers numerically and strings
lexically; mixed operands are never ordered. matches takes a regular
expression on the right, compiled once when it is a literal.

A lone operand is tested for truthiness: null, false, "" and zero are
false, anything else is true.

# Custom operators

	cond, err := expr.Compile("tags has 'urgent'",
	    expr.WithOperator("has", func(left, right any) bool { ... }),
	)
*/
package expr
