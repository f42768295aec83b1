package limiter

// Storage types
const (
	StorageMemory        = "memory"
	StorageMemorySharded = "memory_sharded"
	StorageRedis         = "redis"
	StorageRedisLock     = "redis_lock"
)
