package queue

import "github.com/you/voxq/internal/domain"

// Broker key layout. The three priority queues and dead_letter are plain
// lists; retry is a sorted set scored by the unix time a job becomes due.
const (
	High       = "tts:queue:high"
	Standard   = "tts:queue:standard"
	Batch      = "tts:queue:batch"
	Retry      = "tts:retry"
	DeadLetter = "tts:queue:dead_letter"

	jobKeyPrefix = "tts:job:"

	// HeartbeatPrefix is where live workers keep their TTL'd liveness
	// records; the health monitor counts keys under it.
	HeartbeatPrefix = "tts:worker:alive:"
)

// Named lists workers and stats iterate over. DeadLetter is last and is
// never part of any pool's drain list.
var Named = []string{High, Standard, Batch, DeadLetter}

// Resolve maps a priority class to its target queue. Anything that is not
// explicitly high or batch lands on standard, including unknown values.
func Resolve(p domain.Priority) string {
	switch p {
	case domain.PriorityHigh:
		return High
	case domain.PriorityBatch:
		return Batch
	default:
		return Standard
	}
}

func jobKey(id string) string { return jobKeyPrefix + id }
