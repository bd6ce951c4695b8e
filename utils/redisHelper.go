package utils

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/stridemfg/mfgtrack_backend/config"
)

func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

// store a model in redis, keyed by type name + key
func StoreRedis[T any](model *T, key string) error {
	redisKey := GetTypeName[T]() + ":" + key
	return config.SetRedisObject(redisKey, model, GetCacheLifespan())
}

// retrieve a model from redis; nil result means cache miss
func RetrieveRedis[T any](key string) (*T, error) {
	redisKey := GetTypeName[T]() + ":" + key
	var model T
	exists, err := config.GetRedisObject(redisKey, &model)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return &model, nil
}

func RemoveRedis[T any](key string) error {
	redisKey := GetTypeName[T]() + ":" + key
	return config.RemoveRedisKey(redisKey)
}

func CacheKeyInt(id int) string {
	return fmt.Sprint(id)
}
