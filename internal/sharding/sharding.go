package sharding

import (
	"fmt"
	"hash/crc32"
)

// ShardCount is the fixed number of care-event partitions.
const ShardCount = 1024

// CareSubjects matches every care-event subject.
const CareSubjects = "plant.care.>"

// ShardFor maps a plant id onto one of ShardCount partitions.
func ShardFor(plantID string) int {
	return int(crc32.ChecksumIEEE([]byte(plantID)) % ShardCount)
}

// CareSubject returns the subject care events of a plant are published on.
// Format: plant.care.{shard_id}.plant.{plant_id}
func CareSubject(plantID string) string {
	return fmt.Sprintf("plant.care.%d.plant.%s", ShardFor(plantID), plantID)
}
