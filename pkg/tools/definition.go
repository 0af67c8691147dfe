package tools

import (
	"context"
	"encoding/json"
	"reflect"
	"time"

	"github.com/go-go-golems/mangiafuoco/pkg/turns"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

// DefaultTimeout bounds a tool execution when the registration does not
// declare its own.
const DefaultTimeout = 30 * time.Second

// Definition is one registered tool: the wire-facing descriptor plus the
// executable function, the per-call timeout the dispatcher enforces, and the
// cost units attributed per invocation.
type Definition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
	Timeout     time.Duration      `json:"timeout,omitempty"`
	CostUnits   float64            `json:"cost_units,omitempty"`
	Function    ToolFunc           `json:"-"`
}

// DefinitionOption customizes a tool registration.
type DefinitionOption func(*Definition)

// WithTimeout declares the per-call execution timeout for this tool.
func WithTimeout(d time.Duration) DefinitionOption {
	return func(def *Definition) { def.Timeout = d }
}

// WithCostUnits declares the cost units attributed to each invocation of
// this tool. Tools can override per call by returning a CostReporter.
func WithCostUnits(units float64) DefinitionOption {
	return func(def *Definition) { def.CostUnits = units }
}

// CostReporter lets a tool result report its own attributable cost units,
// overriding the registration's flat CostUnits.
type CostReporter interface {
	ToolCost() float64
}

// Descriptor strips the executable parts for use on the wire.
func (d *Definition) Descriptor() (turns.ToolDescriptor, error) {
	schema, err := json.Marshal(d.Parameters)
	if err != nil {
		return turns.ToolDescriptor{}, errors.Wrapf(err, "marshal schema for tool %s", d.Name)
	}
	return turns.ToolDescriptor{
		Name:        d.Name,
		Description: d.Description,
		Schema:      json.RawMessage(schema),
	}, nil
}

// EffectiveTimeout returns the declared timeout or the package default.
func (d *Definition) EffectiveTimeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return DefaultTimeout
}

// ToolFunc wraps the registered Go function with a pre-compiled executor.
type ToolFunc struct {
	fn       interface{}
	executor func(context.Context, []byte) (interface{}, error)
}

// Execute calls the tool function with the given JSON argument payload.
func (tf *ToolFunc) Execute(ctx context.Context, args []byte) (interface{}, error) {
	if tf.executor == nil {
		return nil, errors.New("tool function not initialized")
	}
	return tf.executor(ctx, args)
}

var ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
var errType = reflect.TypeOf((*error)(nil)).Elem()

// NewToolFromFunc creates a Definition from a Go function. Supported
// signatures:
//
//	func(Input) (Result, error)
//	func(Input) Result
//	func(context.Context, Input) (Result, error)
//
// Input must be a struct; its JSON schema is generated by reflection.
func NewToolFromFunc(name, description string, fn interface{}, opts ...DefinitionOption) (*Definition, error) {
	funcType := reflect.TypeOf(fn)
	if funcType == nil || funcType.Kind() != reflect.Func {
		return nil, errors.New("provided value is not a function")
	}
	if funcType.NumOut() == 0 || funcType.NumOut() > 2 {
		return nil, errors.New("tool function must return (result) or (result, error)")
	}
	if funcType.NumOut() == 2 && !funcType.Out(1).Implements(errType) {
		return nil, errors.New("second return value must be an error")
	}

	inputType, err := toolInputType(funcType)
	if err != nil {
		return nil, err
	}

	schema, err := schemaForInput(inputType)
	if err != nil {
		return nil, errors.Wrapf(err, "generate schema for tool %s", name)
	}

	def := &Definition{
		Name:        name,
		Description: description,
		Parameters:  schema,
		Function:    ToolFunc{fn: fn, executor: compileExecutor(fn, funcType, inputType)},
	}
	for _, opt := range opts {
		opt(def)
	}
	return def, nil
}

// toolInputType extracts the JSON input struct type, skipping a leading
// context.Context parameter. A nil return means the tool takes no input.
func toolInputType(funcType reflect.Type) (reflect.Type, error) {
	switch funcType.NumIn() {
	case 0:
		return nil, nil
	case 1:
		if funcType.In(0) == ctxType {
			return nil, nil
		}
		return funcType.In(0), nil
	case 2:
		if funcType.In(0) != ctxType {
			return nil, errors.New("two-arg tool function must be (context.Context, Input)")
		}
		return funcType.In(1), nil
	default:
		return nil, errors.New("tool function must take (Input) or (context.Context, Input)")
	}
}

func schemaForInput(inputType reflect.Type) (*jsonschema.Schema, error) {
	if inputType == nil {
		return &jsonschema.Schema{Type: "object"}, nil
	}
	instance := reflect.New(inputType).Elem().Interface()
	reflector := jsonschema.Reflector{
		// Expand definitions inline instead of using $refs
		DoNotReference: true,
	}
	schema := reflector.Reflect(instance)
	if schema.Type == "" && schema.Ref == "" {
		schema.Type = "object"
	}
	return schema, nil
}

func compileExecutor(fn interface{}, funcType, inputType reflect.Type) func(context.Context, []byte) (interface{}, error) {
	funcValue := reflect.ValueOf(fn)
	takesCtx := funcType.NumIn() > 0 && funcType.In(0) == ctxType

	return func(ctx context.Context, args []byte) (interface{}, error) {
		var in []reflect.Value
		if takesCtx {
			in = append(in, reflect.ValueOf(ctx))
		}
		if inputType != nil {
			input := reflect.New(inputType).Interface()
			if len(args) > 0 {
				if err := json.Unmarshal(args, input); err != nil {
					return nil, errors.Wrap(err, "unmarshal tool arguments")
				}
			}
			in = append(in, reflect.ValueOf(input).Elem())
		}
		return extractResults(funcValue.Call(in))
	}
}

func extractResults(results []reflect.Value) (interface{}, error) {
	switch len(results) {
	case 1:
		return results[0].Interface(), nil
	case 2:
		var err error
		if !results[1].IsNil() {
			err = results[1].Interface().(error)
		}
		return results[0].Interface(), err
	default:
		return nil, errors.New("unexpected number of return values")
	}
}
