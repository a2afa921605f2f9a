package raster

import (
	"fmt"
	"math"
	"sort"

	"github.com/Knetic/govaluate"
)

var expressionFunctions = map[string]govaluate.ExpressionFunction{
	"ln":    unary("ln", math.Log),
	"log10": unary("log10", math.Log10),
	"exp":   unary("exp", math.Exp),
	"sqrt":  unary("sqrt", math.Sqrt),
	"abs":   unary("abs", math.Abs),
	"cos":   unary("cos", math.Cos),
	"sin":   unary("sin", math.Sin),
	"pow": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("pow expects 2 arguments, got %d", len(args))
		}
		base, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		exponent, err := toFloat(args[1])
		if err != nil {
			return nil, err
		}
		return math.Pow(base, exponent), nil
	},
}

func unary(name string, fn func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s expects 1 argument, got %d", name, len(args))
		}
		v, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		return fn(v), nil
	}
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("unexpected value of type %T in expression", v)
}

// Expression is a band math expression such as "(B5 - B4) / (B5 + B4)".
// Variables resolve to named parameters first and to image bands otherwise.
type Expression struct {
	source string
	expr   *govaluate.EvaluableExpression
	vars   []string
}

func ParseExpression(source string) (*Expression, error) {
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(source, expressionFunctions)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expression %q: %w", source, err)
	}
	seen := map[string]bool{}
	var vars []string
	for _, token := range expr.Tokens() {
		if token.Kind != govaluate.VARIABLE {
			continue
		}
		name, ok := token.Value.(string)
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		vars = append(vars, name)
	}
	sort.Strings(vars)
	return &Expression{source: source, expr: expr, vars: vars}, nil
}

func (e *Expression) String() string {
	return e.source
}

func (e *Expression) Variables() []string {
	return e.vars
}

// Evaluate computes the expression per pixel and returns it as a band named
// name. Non-finite results are masked.
func (e *Expression) Evaluate(img *Image, name string, params map[string]float64, workers int) (*Band, error) {
	var bandVars []string
	var inputs []*Band
	for _, v := range e.vars {
		if _, ok := params[v]; ok {
			continue
		}
		b, err := img.Band(v)
		if err != nil {
			return nil, fmt.Errorf("expression %q: %w", e.source, err)
		}
		bandVars = append(bandVars, v)
		inputs = append(inputs, b)
	}

	if len(inputs) == 0 {
		// constant expression, broadcast over the grid
		value, err := e.eval(params)
		if err != nil {
			return nil, err
		}
		out := NewBand(name, img.Grid.Width, img.Grid.Height)
		for i := range out.Data {
			out.Data[i] = value
		}
		return out, nil
	}

	return Map(name, workers, func(x, y int, values []float64) (float64, error) {
		vars := make(map[string]interface{}, len(params)+len(values))
		for k, v := range params {
			vars[k] = v
		}
		for i, v := range values {
			vars[bandVars[i]] = v
		}
		return e.eval(vars)
	}, inputs...)
}

func (e *Expression) eval(vars interface{}) (float64, error) {
	params := map[string]interface{}{}
	switch v := vars.(type) {
	case map[string]interface{}:
		params = v
	case map[string]float64:
		for k, f := range v {
			params[k] = f
		}
	}
	result, err := e.expr.Evaluate(params)
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate expression %q: %w", e.source, err)
	}
	value, err := toFloat(result)
	if err != nil {
		return 0, fmt.Errorf("expression %q: %w", e.source, err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return math.NaN(), nil
	}
	return value, nil
}
