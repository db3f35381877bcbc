package settings

import (
	"context"
	"encoding/json"
	"html"
	"time"

	"go.uber.org/zap"

	"github.com/panelstack/quotad/pkg/model"
	redisclient "github.com/panelstack/quotad/pkg/store/redis"
)

const (
	Namespace = "quotad"

	KeyDefaultResources = "default_resources"
	KeyMaxResources     = "max_resources"
)

// StructuralDefaults is the quota every new user starts with when the admin
// has not configured one.
var StructuralDefaults = model.ResourceVector{
	Memory:      2048,
	CPU:         100,
	Disk:        4096,
	Servers:     1,
	Databases:   3,
	Backups:     5,
	Allocations: 5,
}

// StructuralMaximums is the hard ceiling per resource when the admin has not
// configured one. Zero in a stored maximum still means unlimited.
var StructuralMaximums = model.ResourceVector{
	Memory:      65536,
	CPU:         1000,
	Disk:        131072,
	Servers:     50,
	Databases:   100,
	Backups:     200,
	Allocations: 200,
}

// KV is the persistence the service sits on: namespaced string values, with
// key absence reported rather than errored.
type KV interface {
	Get(ctx context.Context, namespace, key string) (string, bool, error)
	Set(ctx context.Context, namespace, key, value string) error
}

// Service resolves the two admin-configured resource vectors. Every read
// merges stored JSON over the structural defaults so the result is always a
// complete vector; stored garbage degrades to the defaults, never to an
// error. Resolved vectors are cached in redis when a client is wired.
type Service struct {
	store    KV
	cache    *redisclient.Client
	cacheTTL time.Duration
	logger   *zap.Logger
}

func NewService(store KV, cache *redisclient.Client, cacheTTL time.Duration, logger *zap.Logger) *Service {
	return &Service{store: store, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

func (s *Service) DefaultResources(ctx context.Context) model.ResourceVector {
	return s.resolve(ctx, KeyDefaultResources, StructuralDefaults)
}

func (s *Service) MaxResources(ctx context.Context) model.ResourceVector {
	return s.resolve(ctx, KeyMaxResources, StructuralMaximums)
}

// SetDefaultResources stores the default vector. Partial input is backfilled
// from the structural defaults before writing so the stored blob is complete.
func (s *Service) SetDefaultResources(ctx context.Context, fields map[model.ResourceType]int) error {
	return s.write(ctx, KeyDefaultResources, StructuralDefaults.Merge(fields))
}

func (s *Service) SetMaxResources(ctx context.Context, fields map[model.ResourceType]int) error {
	return s.write(ctx, KeyMaxResources, StructuralMaximums.Merge(fields))
}

func (s *Service) resolve(ctx context.Context, key string, structural model.ResourceVector) model.ResourceVector {
	if cached, ok := s.cacheGet(ctx, key); ok {
		return cached
	}

	raw, found, err := s.store.Get(ctx, Namespace, key)
	if err != nil || !found {
		return structural
	}

	resolved := mergeStored(raw, structural)
	s.cachePut(ctx, key, resolved)
	return resolved
}

func (s *Service) write(ctx context.Context, key string, vector model.ResourceVector) error {
	payload, err := json.Marshal(vector)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, Namespace, key, string(payload)); err != nil {
		return err
	}
	s.cacheDrop(ctx, key)
	return nil
}

// mergeStored overlays the stored JSON on the structural vector. Stored keys
// win, including explicit zeros; the panel historically HTML-entity-encodes
// setting values, so the blob is unescaped before parsing. Unparseable blobs
// resolve to the structural vector.
func mergeStored(raw string, structural model.ResourceVector) model.ResourceVector {
	decoded := html.UnescapeString(raw)

	var stored map[string]int
	if err := json.Unmarshal([]byte(decoded), &stored); err != nil {
		return structural
	}

	resolved := structural
	for _, t := range model.ResourceTypes {
		if value, ok := stored[string(t)]; ok && value >= 0 {
			resolved.Set(t, value)
		}
	}
	return resolved
}

func (s *Service) cacheKey(key string) string {
	return "quotad:settings:" + key
}

func (s *Service) cacheGet(ctx context.Context, key string) (model.ResourceVector, bool) {
	if s.cache == nil {
		return model.ResourceVector{}, false
	}
	raw, err := s.cache.Client().Get(ctx, s.cacheKey(key)).Result()
	if err != nil {
		return model.ResourceVector{}, false
	}
	var vector model.ResourceVector
	if err := json.Unmarshal([]byte(raw), &vector); err != nil {
		return model.ResourceVector{}, false
	}
	return vector, true
}

func (s *Service) cachePut(ctx context.Context, key string, vector model.ResourceVector) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(vector)
	if err != nil {
		return
	}
	if err := s.cache.Client().Set(ctx, s.cacheKey(key), payload, s.cacheTTL).Err(); err != nil {
		s.logger.Debug("settings cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Service) cacheDrop(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Client().Del(ctx, s.cacheKey(key)).Err(); err != nil {
		s.logger.Debug("settings cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}
