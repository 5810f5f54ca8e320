// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package rules

import (
	"fmt"
	"reflect"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

// variables is the activation every expression sees.
type variables struct {
	Actor  string
	Path   string
	Op     string
	Params map[string]string
}

func (v variables) activation() map[string]any {
	params := v.Params
	if params == nil {
		params = map[string]string{}
	}
	return map[string]any{
		"actor":  v.Actor,
		"path":   v.Path,
		"op":     v.Op,
		"params": params,
	}
}

// program is one compiled expression. Results are native Go values:
// bool, string, []string, or whatever the engine produced.
type program interface {
	eval(variables) (any, error)
}

type compiler interface {
	compile(expression string) (program, error)
}

func newCompiler(engine Engine) (compiler, error) {
	switch engine {
	case EngineCEL, "":
		return newCELCompiler()
	case EngineExpr:
		return exprCompiler{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", ErrInvalidDocument, engine)
	}
}

type celCompiler struct {
	env *cel.Env
}

func newCELCompiler() (*celCompiler, error) {
	env, err := cel.NewEnv(
		cel.Variable("actor", cel.StringType),
		cel.Variable("path", cel.StringType),
		cel.Variable("op", cel.StringType),
		cel.Variable("params", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("rules: building CEL environment: %w", err)
	}
	return &celCompiler{env: env}, nil
}

func (c *celCompiler) compile(expression string) (program, error) {
	ast, issues := c.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	compiled, err := c.env.Program(ast)
	if err != nil {
		return nil, err
	}
	return celProgram{program: compiled}, nil
}

type celProgram struct {
	program cel.Program
}

var stringSliceType = reflect.TypeOf([]string(nil))

func (p celProgram) eval(vars variables) (any, error) {
	out, _, err := p.program.Eval(vars.activation())
	if err != nil {
		return nil, err
	}
	return celNative(out)
}

func celNative(value ref.Val) (any, error) {
	switch typed := value.(type) {
	case types.Bool:
		return bool(typed), nil
	case types.String:
		return string(typed), nil
	case types.Null:
		return nil, nil
	case traits.Lister:
		native, err := typed.ConvertToNative(stringSliceType)
		if err != nil {
			return nil, fmt.Errorf("list is not a list of strings: %w", err)
		}
		return native, nil
	}
	return value.Value(), nil
}

type exprCompiler struct{}

func (exprCompiler) compile(expression string) (program, error) {
	compiled, err := expr.Compile(expression, expr.Env(variables{}.activation()))
	if err != nil {
		return nil, err
	}
	return exprProgram{program: compiled}, nil
}

type exprProgram struct {
	program *vm.Program
}

func (p exprProgram) eval(vars variables) (any, error) {
	out, err := expr.Run(p.program, vars.activation())
	if err != nil {
		return nil, err
	}
	return out, nil
}
