package redisx

import "time"

const (
	// Cached entity status: entity_status:{entity_type}:{entity_id} -> status
	KeyEntityStatus = "entity_status:%s:%s"

	// Dedup of consumed events: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
