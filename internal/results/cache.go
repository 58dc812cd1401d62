package results

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LatestTTL bounds how stale a cached "latest result" may get before the
// dashboard falls back to the in-memory buffer.
const LatestTTL = 10 * time.Second

// Cache mirrors the most recent detection result per project in Redis so
// dashboard polls do not contend with the ingest path.
type Cache struct {
	Redis *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{Redis: client}
}

func latestKey(projectID string) string {
	if projectID == "" {
		projectID = "global"
	}
	return fmt.Sprintf("result:latest:%s", projectID)
}

// SaveLatest stores the result under its project key for LatestTTL.
func (c *Cache) SaveLatest(ctx context.Context, r DetectionResult) error {
	data, _ := json.Marshal(r)
	return c.Redis.Set(ctx, latestKey(r.ProjectID), data, LatestTTL).Err()
}

// Latest returns the cached result for a project, or nil when none exists.
func (c *Cache) Latest(ctx context.Context, projectID string) (*DetectionResult, error) {
	data, err := c.Redis.Get(ctx, latestKey(projectID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r DetectionResult
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, err
	}
	return &r, nil
}
