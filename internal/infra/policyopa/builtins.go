package policyopa

import "github.com/open-policy-agent/opa/ast"

// Materiality policies do arithmetic and comparisons only; anything that
// reaches outside the input (http.send, time.now_ns, rand) is rejected.
var allowedBuiltins = map[string]struct{}{
	"abs":        {},
	"assign":     {},
	"ceil":       {},
	"count":      {},
	"div":        {},
	"eq":         {},
	"equal":      {},
	"floor":      {},
	"gt":         {},
	"gte":        {},
	"lt":         {},
	"lte":        {},
	"max":        {},
	"min":        {},
	"minus":      {},
	"mul":        {},
	"neq":        {},
	"object.get": {},
	"plus":       {},
	"rem":        {},
	"round":      {},
	"sprintf":    {},
	"startswith": {},
	"sum":        {},
}

func filterBuiltins(builtins []*ast.Builtin) []*ast.Builtin {
	allowed := make([]*ast.Builtin, 0, len(allowedBuiltins))
	for _, builtin := range builtins {
		if _, ok := allowedBuiltins[builtin.Name]; ok {
			allowed = append(allowed, builtin)
		}
	}
	return allowed
}
