package transport

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/BrunoAwdd/atlasDb/internal/codec"
)

// dedupCache suppresses re-delivery of a gossip message this node has
// already seen, keyed by (topic, blake3(data)) with a TTL matching the
// consensus round timeout. libp2p's GossipSub already avoids re-publishing
// a message back to its own source peer, but a message can still reach
// this node twice via two different mesh neighbors; dedup happens once,
// at the ingress boundary, before a message ever reaches the Router.
type dedupCache struct {
	cache *expirable.LRU[string, struct{}]
}

func newDedupCache(size int, ttl time.Duration) *dedupCache {
	return &dedupCache{cache: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

// seen reports whether (topic, data) was already observed, and records it
// if not.
func (d *dedupCache) seen(topic string, data []byte) bool {
	key := topic + ":" + codec.Sum(data).Hex()
	if _, ok := d.cache.Get(key); ok {
		return true
	}
	d.cache.Add(key, struct{}{})
	return false
}
