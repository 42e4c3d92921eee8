package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	u "ogimage/internal/utils"
)

// computeImageCacheKey hashes everything that changes the rendered pixels.
func computeImageCacheKey(params *OGRequestParams, cfg u.Config) string {
	h := sha256.New()
	for _, part := range []string{
		cfg.Template.Path,
		cfg.Template.TimeZone,
		strconv.FormatBool(cfg.Template.EscapeValues),
		strconv.Itoa(cfg.Chrome.Width) + "x" + strconv.Itoa(cfg.Chrome.Height),
		params.Title,
		params.Date.UTC().Format(time.RFC3339Nano),
		params.Platform,
		params.Tag,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "ogcache:" + hex.EncodeToString(h.Sum(nil))
}

// getCachedImage returns nil, nil on a cache miss.
func getCachedImage(ctx context.Context, rdb *redis.Client, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	cached, err := rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		u.Warn("Redis read failed", "error", err)
		return nil, err
	}
	u.Debug("Image cache hit", "key", key)
	return cached, nil
}

// setCachedImage stores an image; failures are logged and ignored.
func setCachedImage(ctx context.Context, rdb *redis.Client, key string, data []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		u.Warn("Redis write failed", "error", err)
	}
}
