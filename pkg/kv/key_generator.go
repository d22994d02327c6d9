package kv

import "fmt"

// KeyGenerator maps partition keys and lookup ids to redis keys.
type KeyGenerator struct {
	Prefix string
}

// Partition returns the hash holding every field of a partition.  The
// partition key is wrapped in a hash tag so all of its fields live in one
// cluster slot.
func (k KeyGenerator) Partition(partitionKey string) string {
	return fmt.Sprintf("%s:kv:{%s}", k.Prefix, partitionKey)
}

// Lookup returns the key of a reverse lookup entry.
func (k KeyGenerator) Lookup(lookupID string) string {
	return fmt.Sprintf("%s:lookup:%s", k.Prefix, lookupID)
}
