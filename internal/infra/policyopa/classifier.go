// Package policyopa evaluates materiality with a Rego policy so operators
// can change what counts as a discrepancy without a release.
package policyopa

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"reconledger/internal/fingerprint"
	"reconledger/internal/variance"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

const resultQuery = "data.reconledger.materiality.result"

//go:embed policies/materiality.rego
var defaultPolicy []byte

type Classifier struct {
	query      rego.PreparedEvalQuery
	threshold  variance.Threshold
	policyHash string
}

type policyInput struct {
	Ledger    string          `json:"ledger"`
	Expected  json.Number     `json:"expected"`
	Actual    json.Number     `json:"actual"`
	Amount    json.Number     `json:"amount"`
	AbsAmount json.Number     `json:"abs_amount"`
	Threshold thresholdInput  `json:"threshold"`
}

type thresholdInput struct {
	Absolute json.Number `json:"absolute"`
	Percent  json.Number `json:"percent"`
}

type policyResult struct {
	Flagged bool `json:"flagged"`
}

// NewDefaultClassifier uses the bundled policy, which matches
// variance.Classify.
func NewDefaultClassifier(ctx context.Context, threshold variance.Threshold) (*Classifier, error) {
	return NewClassifier(ctx, "materiality.rego", defaultPolicy, threshold)
}

func NewClassifierFromFile(ctx context.Context, path string, threshold variance.Threshold) (*Classifier, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return NewClassifier(ctx, path, source, threshold)
}

func NewClassifier(ctx context.Context, name string, source []byte, threshold variance.Threshold) (*Classifier, error) {
	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	prepared, err := rego.New(
		rego.Query(resultQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
		rego.Module(name, string(source)),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile policy %s: %w", name, err)
	}
	if err := assertNoForbiddenBuiltins(compiler); err != nil {
		return nil, err
	}
	return &Classifier{
		query:      prepared,
		threshold:  threshold,
		policyHash: fingerprint.Hash(source),
	}, nil
}

func (c *Classifier) PolicyHash() string {
	return c.policyHash
}

func (c *Classifier) Classify(ctx context.Context, ledger string, v variance.Variance) (variance.Status, error) {
	if c == nil {
		return "", errors.New("policy classifier is nil")
	}
	input := policyInput{
		Ledger:    ledger,
		Expected:  json.Number(v.Expected.String()),
		Actual:    json.Number(v.Actual.String()),
		Amount:    json.Number(v.Amount.String()),
		AbsAmount: json.Number(v.Amount.Abs().String()),
		Threshold: thresholdInput{
			Absolute: json.Number(c.threshold.Absolute.String()),
			Percent:  json.Number(c.threshold.Percent.String()),
		},
	}
	raw, err := toRegoInput(input)
	if err != nil {
		return "", err
	}
	results, err := c.query.Eval(ctx, rego.EvalInput(raw))
	if err != nil {
		return "", fmt.Errorf("evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "", errors.New("empty policy result")
	}
	payload, err := json.Marshal(results[0].Expressions[0].Value)
	if err != nil {
		return "", err
	}
	var out policyResult
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", fmt.Errorf("decode policy result: %w", err)
	}
	if out.Flagged {
		return variance.StatusFlagged, nil
	}
	return variance.StatusOK, nil
}

// toRegoInput round-trips through JSON so numbers reach Rego as numbers
// rather than strings.
func toRegoInput(input policyInput) (map[string]any, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(strings.NewReader(string(payload)))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func assertNoForbiddenBuiltins(compiler *ast.Compiler) error {
	forbidden := make(map[string]struct{})
	for _, module := range compiler.Modules {
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			name := call[0].Value.String()
			if _, ok := ast.BuiltinMap[name]; !ok {
				return false
			}
			if _, ok := allowedBuiltins[name]; !ok {
				forbidden[name] = struct{}{}
			}
			return false
		})
	}
	if len(forbidden) == 0 {
		return nil
	}
	names := make([]string, 0, len(forbidden))
	for name := range forbidden {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("forbidden builtins: %s", strings.Join(names, ", "))
}
