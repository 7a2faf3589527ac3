package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"coursehub/models/course"
	"coursehub/services/enrollment"

	"github.com/redis/go-redis/v9"
)

// CatalogCache stores serialized catalog reads. Get returns nil, nil on a miss.
type CatalogCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, keys ...string) error
}

type redisCatalogCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCatalogCache creates a CatalogCache whose entries expire after ttl
func NewRedisCatalogCache(client *redis.Client, ttl time.Duration) CatalogCache {
	return &redisCatalogCache{client: client, ttl: ttl}
}

func (c *redisCatalogCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return data, err
}

func (c *redisCatalogCache) Set(ctx context.Context, key string, data []byte) error {
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

func (c *redisCatalogCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// CachedCatalog is a read-through cache in front of another Catalog. Grader
// checks are never cached. A failing cache falls back to the inner catalog.
type CachedCatalog struct {
	inner enrollment.Catalog
	cache CatalogCache
}

// NewCachedCatalog wraps inner with cache
func NewCachedCatalog(inner enrollment.Catalog, cache CatalogCache) *CachedCatalog {
	return &CachedCatalog{inner: inner, cache: cache}
}

var _ enrollment.Catalog = (*CachedCatalog)(nil)

func courseKey(courseID uint) string  { return fmt.Sprintf("catalog:course:%d", courseID) }
func contentKey(courseID uint) string { return fmt.Sprintf("catalog:content:%d", courseID) }
func quizKey(courseID, quizID uint) string {
	return fmt.Sprintf("catalog:quiz:%d:%d", courseID, quizID)
}

// readThrough fills out from the cache, or from load and then the cache.
func readThrough[T any](ctx context.Context, c CatalogCache, key string, out *T, load func() (T, error)) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		log.Printf("[CATALOG-CACHE] get %s: %v", key, err)
	}
	if data != nil {
		if err := json.Unmarshal(data, out); err == nil {
			return nil
		}
		log.Printf("[CATALOG-CACHE] dropping undecodable entry %s", key)
	}

	v, err := load()
	if err != nil {
		return err
	}
	*out = v
	if data, err := json.Marshal(v); err == nil {
		if err := c.Set(ctx, key, data); err != nil {
			log.Printf("[CATALOG-CACHE] set %s: %v", key, err)
		}
	}
	return nil
}

func (c *CachedCatalog) GetCourse(ctx context.Context, courseID uint) (*course.Course, error) {
	var crs course.Course
	err := readThrough(ctx, c.cache, courseKey(courseID), &crs, func() (course.Course, error) {
		v, err := c.inner.GetCourse(ctx, courseID)
		if err != nil {
			return course.Course{}, err
		}
		return *v, nil
	})
	if err != nil {
		return nil, err
	}
	return &crs, nil
}

func (c *CachedCatalog) GetCourseContent(ctx context.Context, courseID uint) ([]course.CourseContent, error) {
	var items []course.CourseContent
	err := readThrough(ctx, c.cache, contentKey(courseID), &items, func() ([]course.CourseContent, error) {
		return c.inner.GetCourseContent(ctx, courseID)
	})
	return items, err
}

func (c *CachedCatalog) GetQuiz(ctx context.Context, courseID, quizID uint) (course.Quiz, error) {
	var quiz course.Quiz
	err := readThrough(ctx, c.cache, quizKey(courseID, quizID), &quiz, func() (course.Quiz, error) {
		return c.inner.GetQuiz(ctx, courseID, quizID)
	})
	return quiz, err
}

func (c *CachedCatalog) IsGrader(ctx context.Context, courseID, userID uint) (bool, error) {
	return c.inner.IsGrader(ctx, courseID, userID)
}

// Invalidate drops the cached definition of a course and the given quizzes.
func (c *CachedCatalog) Invalidate(ctx context.Context, courseID uint, quizIDs ...uint) error {
	keys := []string{courseKey(courseID), contentKey(courseID)}
	for _, id := range quizIDs {
		keys = append(keys, quizKey(courseID, id))
	}
	return c.cache.Delete(ctx, keys...)
}
