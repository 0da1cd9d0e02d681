package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// CalculatorArgs is the calculator tool's input, schema-derived via
// jsonschema.For (spec.md §4.11: "a typed schema").
type CalculatorArgs struct {
	Op string  `json:"op" jsonschema:"one of add, sub, mul, div"`
	A  float64 `json:"a" jsonschema:"left operand"`
	B  float64 `json:"b" jsonschema:"right operand"`
}

// NewCalculatorTool is the one built-in tool named in spec.md §4.11: a
// deterministic, idempotent arithmetic tool safe to retry.
func NewCalculatorTool() Tool {
	schema, err := jsonschema.For[CalculatorArgs](nil)
	if err != nil {
		panic("calculator tool schema: " + err.Error())
	}
	return Tool{
		Name:        "calculator",
		Description: "Evaluate a single arithmetic operation: add, sub, mul, or div.",
		Schema:      schema,
		Idempotent:  true,
		Invoke: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args CalculatorArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", err
			}
			var result float64
			switch args.Op {
			case "add":
				result = args.A + args.B
			case "sub":
				result = args.A - args.B
			case "mul":
				result = args.A * args.B
			case "div":
				if args.B == 0 {
					return "", fmt.Errorf("division by zero")
				}
				result = args.A / args.B
			default:
				return "", fmt.Errorf("unknown op %q", args.Op)
			}
			out, err := json.Marshal(map[string]float64{"result": result})
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	}
}
