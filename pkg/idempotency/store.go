package idempotency

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Record is a stored response for one idempotency key
type Record struct {
	RequestMethod  string    `json:"request_method"`
	RequestPath    string    `json:"request_path"`
	RequestHash    string    `json:"request_hash"`
	ResponseStatus int       `json:"response_status"`
	ResponseBody   []byte    `json:"response_body"`
	CreatedAt      time.Time `json:"created_at"`
}

// InFlight reports whether the record is a reservation whose handler has not finished
func (r *Record) InFlight() bool {
	return r.ResponseStatus == 0
}

// Store persists records until they expire
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	// Reserve stores the placeholder rec only if the key is free and reports
	// whether it did
	Reserve(ctx context.Context, key string, rec *Record, ttl time.Duration) (bool, error)
	// Save replaces whatever the key holds with the completed rec
	Save(ctx context.Context, key string, rec *Record, ttl time.Duration) error
	// Release frees a reserved key
	Release(ctx context.Context, key string) error
}

const redisKeyPrefix = "idempotency:"

// RedisStore keeps records as JSON strings with a TTL
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *RedisStore) Reserve(ctx context.Context, key string, rec *Record, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	return s.client.SetNX(ctx, redisKeyPrefix+key, raw, ttl).Result()
}

func (s *RedisStore) Save(ctx context.Context, key string, rec *Record, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKeyPrefix+key, raw, ttl).Err()
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisKeyPrefix+key).Err()
}

// MemoryStore is a process-local Store
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord
	now     func() time.Time
}

type memoryRecord struct {
	rec       Record
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryRecord), now: time.Now}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	if s.now().After(r.expiresAt) {
		delete(s.records, key)
		return nil, nil
	}
	rec := r.rec
	return &rec, nil
}

func (s *MemoryStore) Reserve(ctx context.Context, key string, rec *Record, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.records[key]; ok && !s.now().After(r.expiresAt) {
		return false, nil
	}
	s.records[key] = memoryRecord{rec: *rec, expiresAt: s.now().Add(ttl)}
	return true, nil
}

func (s *MemoryStore) Save(ctx context.Context, key string, rec *Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = memoryRecord{rec: *rec, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}
