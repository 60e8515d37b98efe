// Package cel compiles and runs CEL expressions over event content.
//
// A Transformer maps content to (output, label) and backs the cel-transform
// node type. A Selector maps a whole event to destination ids and backs the
// cel dispatch policy. Each value owns its compiled program.
package cel

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"github.com/google/cel-go/ext"

	"switchyard/pkg/models"
)

const interruptCheckFrequency = 100

var (
	mapType  = reflect.TypeOf(map[string]interface{}{})
	listType = reflect.TypeOf([]string{})
)

func transformEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("content", cel.StringType),
		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
		ext.Strings(),
	)
}

func selectorEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("content", cel.StringType),
		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("fields", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("source_id", cel.StringType),
		cel.Variable("collector_id", cel.StringType),
		ext.Strings(),
	)
}

func compile(env *cel.Env, expression string) (cel.Program, *cel.Ast, error) {
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	program, err := env.Program(ast, cel.InterruptCheckFrequency(interruptCheckFrequency))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	return program, ast, nil
}

// outputKindIn reports whether the checked output type is dyn or one of kinds.
func outputKindIn(ast *cel.Ast, kinds ...types.Kind) bool {
	out := ast.OutputType().Kind()
	if out == types.DynKind || out == types.AnyKind {
		return true
	}
	for _, k := range kinds {
		if out == k {
			return true
		}
	}
	return false
}

// Payload parses content as a JSON object. Non-object content yields an empty map.
func Payload(content string) map[string]interface{} {
	payload := make(map[string]interface{})
	if content == "" {
		return payload
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return make(map[string]interface{})
	}
	return payload
}

type Transformer struct {
	expression string
	program    cel.Program
}

// NewTransformer compiles an expression over `content` and `payload`. The
// expression yields either a label string, or a map with a "label" key and an
// optional replacement "content" string.
func NewTransformer(expression string) (*Transformer, error) {
	env, err := transformEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	program, ast, err := compile(env, expression)
	if err != nil {
		return nil, err
	}
	if !outputKindIn(ast, types.StringKind, types.MapKind) {
		return nil, fmt.Errorf("transform expression must return string or map, got %v", ast.OutputType())
	}
	return &Transformer{expression: expression, program: program}, nil
}

func (t *Transformer) Expression() string {
	return t.expression
}

func (t *Transformer) Evaluate(ctx context.Context, input string) (string, string, error) {
	result, _, err := t.program.ContextEval(ctx, map[string]interface{}{
		"content": input,
		"payload": Payload(input),
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}
	return transformResult(result)
}

func transformResult(result ref.Val) (string, string, error) {
	switch v := result.Value().(type) {
	case string:
		return "", v, nil
	}

	if _, ok := result.(traits.Mapper); !ok {
		return "", "", fmt.Errorf("transform expression returned %s, want string or map", result.Type().TypeName())
	}

	native, err := result.ConvertToNative(mapType)
	if err != nil {
		return "", "", fmt.Errorf("failed to convert transform result: %w", err)
	}
	m := native.(map[string]interface{})

	var output, label string
	if raw, ok := m["label"]; ok {
		s, isString := raw.(string)
		if !isString {
			return "", "", fmt.Errorf("transform result label must be a string, got %T", raw)
		}
		label = s
	}
	if raw, ok := m["content"]; ok {
		s, isString := raw.(string)
		if !isString {
			return "", "", fmt.Errorf("transform result content must be a string, got %T", raw)
		}
		output = s
	}
	return output, label, nil
}

type Selector struct {
	expression string
	program    cel.Program
}

// NewSelector compiles an expression over an event that yields one destination
// id or a list of them.
func NewSelector(expression string) (*Selector, error) {
	env, err := selectorEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	program, ast, err := compile(env, expression)
	if err != nil {
		return nil, err
	}
	if !outputKindIn(ast, types.StringKind, types.ListKind) {
		return nil, fmt.Errorf("selector expression must return string or list, got %v", ast.OutputType())
	}
	return &Selector{expression: expression, program: program}, nil
}

func (s *Selector) Select(ctx context.Context, msg *models.EventMessage) ([]string, error) {
	fields := msg.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	result, _, err := s.program.ContextEval(ctx, map[string]interface{}{
		"id":           msg.ID,
		"content":      msg.Content,
		"payload":      Payload(msg.Content),
		"fields":       fields,
		"source_id":    msg.SourceID,
		"collector_id": msg.CollectorID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	if v, ok := result.Value().(string); ok {
		if v == "" {
			return nil, nil
		}
		return []string{v}, nil
	}

	native, err := result.ConvertToNative(listType)
	if err != nil {
		return nil, fmt.Errorf("selector expression returned %s, want string or list of strings", result.Type().TypeName())
	}
	return native.([]string), nil
}
