package coordination

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisQueueDueKey    = "pulseguard:queue:due"
	redisQueueActiveKey = "pulseguard:queue:active"
	redisQueueJobsKey   = "pulseguard:queue:jobs"
)

// RedisQueue is the production QueueBackend. Waiting and delayed jobs share
// a single due ZSET scored by their RunAt time; a job is "waiting" once that
// score is no longer in the future. Active jobs move to a separate lease
// ZSET scored by lease expiry so a crashed worker's claim can be identified
// (though reclaiming an abandoned lease is left to the Sentinel, which
// re-derives the job from the monitor rather than from the queue).
type RedisQueue struct {
	rdb *redis.Client
}

// NewRedisQueue wraps an existing Redis client.
func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	exists, err := q.Exists(ctx, job.ID, JobWaiting, JobDelayed, JobActive)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, redisQueueJobsKey, job.ID, body)
	pipe.ZAdd(ctx, redisQueueDueKey, redis.Z{Score: float64(job.RunAt.UnixMilli()), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// claimScript atomically pops the single lowest-score due member whose score
// is <= now and moves it into the active set with a lease expiry.
var claimScript = redis.NewScript(`
local due = KEYS[1]
local active = KEYS[2]
local now = tonumber(ARGV[1])
local leaseUntil = tonumber(ARGV[2])

local ids = redis.call('ZRANGEBYSCORE', due, '-inf', now, 'LIMIT', 0, 1)
if #ids == 0 then
	return nil
end
redis.call('ZREM', due, ids[1])
redis.call('ZADD', active, leaseUntil, ids[1])
return ids[1]
`)

func (q *RedisQueue) Dequeue(ctx context.Context, lease time.Duration) (*Job, bool, error) {
	now := time.Now().UTC()
	res, err := claimScript.Run(ctx, q.rdb,
		[]string{redisQueueDueKey, redisQueueActiveKey},
		now.UnixMilli(), now.Add(lease).UnixMilli(),
	).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to dequeue: %w", err)
	}
	id, ok := res.(string)
	if !ok {
		return nil, false, nil
	}

	body, err := q.rdb.HGet(ctx, redisQueueJobsKey, id).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to load claimed job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	job.State = JobActive
	return &job, true, nil
}

// Renew extends an active job's lease by re-scoring it in the active ZSET.
// The XX flag makes this a no-op if the job isn't currently active.
func (q *RedisQueue) Renew(ctx context.Context, id string, lease time.Duration) error {
	newScore := float64(time.Now().UTC().Add(lease).UnixMilli())
	args := redis.ZAddArgs{XX: true, Members: []redis.Z{{Score: newScore, Member: id}}}
	if err := q.rdb.ZAddArgs(ctx, redisQueueActiveKey, args).Err(); err != nil {
		return fmt.Errorf("failed to renew lease for job %s: %w", id, err)
	}
	return nil
}

func (q *RedisQueue) Complete(ctx context.Context, id string) error {
	pipe := q.rdb.TxPipeline()
	pipe.HDel(ctx, redisQueueJobsKey, id)
	pipe.ZRem(ctx, redisQueueDueKey, id)
	pipe.ZRem(ctx, redisQueueActiveKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to complete job %s: %w", id, err)
	}
	return nil
}

func (q *RedisQueue) RemoveByMonitor(ctx context.Context, monitorID string) error {
	ids, err := q.rdb.ZRange(ctx, redisQueueDueKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to enumerate due jobs: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	bodies, err := q.rdb.HMGet(ctx, redisQueueJobsKey, ids...).Result()
	if err != nil {
		return fmt.Errorf("failed to load due job bodies: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	for i, raw := range bodies {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(s), &job); err != nil {
			continue
		}
		if job.MonitorID != monitorID {
			continue
		}
		pipe.ZRem(ctx, redisQueueDueKey, ids[i])
		pipe.HDel(ctx, redisQueueJobsKey, ids[i])
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove jobs for monitor %s: %w", monitorID, err)
	}
	return nil
}

func (q *RedisQueue) Exists(ctx context.Context, id string, states ...JobState) (bool, error) {
	for _, state := range states {
		key := redisQueueDueKey
		if state == JobActive {
			key = redisQueueActiveKey
		}
		score, err := q.rdb.ZScore(ctx, key, id).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to check job state for %s: %w", id, err)
		}
		if state == JobActive || q.classifyDueScore(score) == state {
			return true, nil
		}
	}
	return false, nil
}

func (q *RedisQueue) ListByState(ctx context.Context, states ...JobState) ([]Job, error) {
	var out []Job
	wantActive, wantWaiting, wantDelayed := false, false, false
	for _, s := range states {
		switch s {
		case JobActive:
			wantActive = true
		case JobWaiting:
			wantWaiting = true
		case JobDelayed:
			wantDelayed = true
		}
	}

	if wantWaiting || wantDelayed {
		entries, err := q.rdb.ZRangeWithScores(ctx, redisQueueDueKey, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list due jobs: %w", err)
		}
		for _, e := range entries {
			state := q.classifyDueScore(e.Score)
			if (state == JobWaiting && !wantWaiting) || (state == JobDelayed && !wantDelayed) {
				continue
			}
			if job, ok := q.loadJob(ctx, e.Member.(string), state); ok {
				out = append(out, job)
			}
		}
	}

	if wantActive {
		ids, err := q.rdb.ZRange(ctx, redisQueueActiveKey, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list active jobs: %w", err)
		}
		for _, id := range ids {
			if job, ok := q.loadJob(ctx, id, JobActive); ok {
				out = append(out, job)
			}
		}
	}

	return out, nil
}

func (q *RedisQueue) classifyDueScore(score float64) JobState {
	if int64(score) <= time.Now().UTC().UnixMilli() {
		return JobWaiting
	}
	return JobDelayed
}

func (q *RedisQueue) loadJob(ctx context.Context, id string, state JobState) (Job, bool) {
	body, err := q.rdb.HGet(ctx, redisQueueJobsKey, id).Result()
	if err != nil {
		return Job{}, false
	}
	var job Job
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return Job{}, false
	}
	job.State = state
	return job, true
}
