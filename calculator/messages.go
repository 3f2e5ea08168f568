package calculator

import "fmt"

// Operation selects the arithmetic Calculate performs. Values match the
// calculator.v1.Operation enum.
type Operation int32

// Operations.
const (
	OperationUnspecified Operation = iota
	OperationAdd
	OperationSubtract
	OperationMultiply
	OperationDivide
)

var operationNames = map[Operation]string{
	OperationUnspecified: "OPERATION_UNSPECIFIED",
	OperationAdd:         "OPERATION_ADD",
	OperationSubtract:    "OPERATION_SUBTRACT",
	OperationMultiply:    "OPERATION_MULTIPLY",
	OperationDivide:      "OPERATION_DIVIDE",
}

// String returns the enum name.
func (o Operation) String() string {
	if n, ok := operationNames[o]; ok {
		return n
	}
	return fmt.Sprintf("OPERATION_%d", int32(o))
}

// Symbol returns the infix symbol, or "?".
func (o Operation) Symbol() string {
	switch o {
	case OperationAdd:
		return "+"
	case OperationSubtract:
		return "-"
	case OperationMultiply:
		return "*"
	case OperationDivide:
		return "/"
	default:
		return "?"
	}
}

// Apply computes a o b. Division follows IEEE 754, so dividing by zero
// yields an infinity or NaN rather than an error. ok is false for an
// unspecified or unknown operation.
func (o Operation) Apply(a, b float64) (result float64, ok bool) {
	switch o {
	case OperationAdd:
		return a + b, true
	case OperationSubtract:
		return a - b, true
	case OperationMultiply:
		return a * b, true
	case OperationDivide:
		return a / b, true
	default:
		return 0, false
	}
}

// CalculateRequest is one calculation.
type CalculateRequest struct {
	Operand1  float64   `json:"operand1"`
	Operand2  float64   `json:"operand2"`
	Operation Operation `json:"operation"`
}

// CalculateResponse carries the result.
type CalculateResponse struct {
	Result float64 `json:"result"`
	Error  string  `json:"error,omitempty"`
}
