package models

// Operator is the comparison a condition applies between a context field and its value.
type Operator string

const (
	OperatorEquals      Operator = "EQUALS"
	OperatorNotEquals   Operator = "NOT_EQUALS"
	OperatorGreaterThan Operator = "GREATER_THAN"
	OperatorLessThan    Operator = "LESS_THAN"
	OperatorIn          Operator = "IN"
	OperatorContains    Operator = "CONTAINS"
)

// Combinator joins a condition's result with the one that follows it.
type Combinator string

const (
	CombineAnd Combinator = "AND"
	CombineOr  Combinator = "OR"
)

// Condition is a single comparison against event/context data.
// CombineWith applies to the next condition in the list, not to this one.
type Condition struct {
	Field       string     `json:"field"                  validate:"required"`
	Operator    Operator   `json:"operator"               validate:"required,oneof=EQUALS NOT_EQUALS GREATER_THAN LESS_THAN IN CONTAINS"`
	Value       any        `json:"value"`
	CombineWith Combinator `json:"combine_with,omitempty" validate:"omitempty,oneof=AND OR"`
}
