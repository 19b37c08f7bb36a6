package redisstore

import "fmt"

// RecordKey returns the Redis key for a record's attribute hash.
// Pattern: formulary:{namespace}:record:{record_id}
func RecordKey(namespace, id string) string {
	return fmt.Sprintf("formulary:%s:record:%s", namespace, id)
}

// IndexKey returns the Redis key for the record index ZSET.
// Pattern: formulary:{namespace}:records
func IndexKey(namespace string) string {
	return fmt.Sprintf("formulary:%s:records", namespace)
}

// SeqKey returns the Redis key for the insertion sequence counter.
// Pattern: formulary:{namespace}:record_seq
func SeqKey(namespace string) string {
	return fmt.Sprintf("formulary:%s:record_seq", namespace)
}
