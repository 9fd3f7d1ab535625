package domain

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusShipped   Status = "SHIPPED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusShipped, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// StockEffect is what a status change does to the ledger.
type StockEffect int

const (
	EffectNone    StockEffect = iota
	EffectConsume             // quantity and reservedQty both drop: the hold becomes a sale
	EffectRelease             // reservedQty drops: the hold is given back
	EffectRestock             // quantity grows: a sold unit comes back
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPaid: true, StatusCancelled: true},
	StatusPaid:      {StatusShipped: true, StatusCancelled: true, StatusCompleted: true},
	StatusShipped:   {StatusCancelled: true, StatusCompleted: true},
	StatusCompleted: {},
	StatusCancelled: {},
}

// CanTransition reports whether from -> to is part of the order lifecycle graph.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// EffectOf returns the ledger effect of from -> to. Pairs outside the lifecycle graph have
// no effect.
func EffectOf(from, to Status) StockEffect {
	switch {
	case from == StatusPending && to == StatusPaid:
		return EffectConsume
	case from == StatusPending && to == StatusCancelled:
		return EffectRelease
	case (from == StatusPaid || from == StatusShipped) && to == StatusCancelled:
		return EffectRestock
	}
	return EffectNone
}
