// Package traceql parses and evaluates trace filter expressions such as
//
//	decision:REJECT AND (node:ADX OR node:DSP) AND latency_ms>=80
//
// Field matches are case-insensitive. A bare word or quoted string
// searches the reasoning text and the reason code.
package traceql

// Op is a comparison operator.
type Op string

const (
	OpEq       Op = "="
	OpNeq      Op = "!="
	OpGt       Op = ">"
	OpGte      Op = ">="
	OpLt       Op = "<"
	OpLte      Op = "<="
	OpContains Op = "CONTAINS"
)

// Node is implemented by all expression nodes.
type Node interface {
	node()
}

// BinaryExpr joins two expressions with AND or OR.
type BinaryExpr struct {
	Op    string
	Left  Node
	Right Node
}

func (BinaryExpr) node() {}

// CompareExpr compares a field with a value. Key is empty for text search.
type CompareExpr struct {
	Key   string
	Op    Op
	Value string
}

func (CompareExpr) node() {}

// NotExpr negates Expr.
type NotExpr struct {
	Expr Node
}

func (NotExpr) node() {}
