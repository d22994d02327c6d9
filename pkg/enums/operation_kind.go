//go:generate go run github.com/dmarkham/enumer -trimprefix=OperationKind -type=OperationKind -json -text

package enums

// OperationKind is the type of a queued drainer operation.
type OperationKind int

const (
	OperationKindInsert OperationKind = iota
	OperationKindUpdate
)
