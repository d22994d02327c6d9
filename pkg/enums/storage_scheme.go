//go:generate go run github.com/dmarkham/enumer -trimprefix=StorageScheme -type=StorageScheme -json -text -transform=snake

package enums

// StorageScheme selects how a merchant's transactional entities are written.
type StorageScheme int

const (
	// StorageSchemePostgresOnly writes straight to the relational store.
	StorageSchemePostgresOnly StorageScheme = iota
	// StorageSchemeRedisKv writes to the KV cache first and drains to the
	// relational store asynchronously.
	StorageSchemeRedisKv
)
