package transport

import (
	"fmt"
	"time"

	multiaddr "github.com/multiformats/go-multiaddr"
)

// Config configures a Node the way core.Config configures the teacher's
// libp2p Node, extended with the static validator address book the
// genesis-supplied weighted validator set needs for direct SendTo (fork
// recovery's SyncRequest/SyncResponse): gossip alone can't address one
// peer, so every validator's dialable multiaddr is known up front rather
// than discovered.
type Config struct {
	ListenAddr     string
	BootstrapPeers []string
	DiscoveryTag   string

	// ValidatorAddrs maps a validator's NodeId (identity.KeyPair.Id(), the
	// same string consensus.Config.NodeId uses) to a dialable libp2p
	// multiaddr of the form "/ip4/.../tcp/.../p2p/<peer-id>". Populated
	// from the genesis validator set at startup.
	ValidatorAddrs map[string]string

	// DedupCacheSize bounds the gossip re-broadcast dedup LRU, keyed by
	// (topic, BLAKE3 of the data) at the transport ingress boundary — see DESIGN.md
	// "Gossip dedup".
	DedupCacheSize int
	// DedupTTL matches the round timeout per the same resolution.
	DedupTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.DedupCacheSize <= 0 {
		c.DedupCacheSize = 4096
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = 5 * time.Second
	}
	return c
}

// validate checks every multiaddr this Config carries is well-formed
// before New ever touches libp2p, so a typo in a config file surfaces as
// the node binary's exitConfigError rather than an opaque libp2p dial
// failure discovered only once consensus is already running.
func (c Config) validate() error {
	if _, err := multiaddr.NewMultiaddr(c.ListenAddr); err != nil {
		return fmt.Errorf("transport: invalid listen address %q: %w", c.ListenAddr, err)
	}
	for _, addr := range c.BootstrapPeers {
		if _, err := multiaddr.NewMultiaddr(addr); err != nil {
			return fmt.Errorf("transport: invalid bootstrap peer address %q: %w", addr, err)
		}
	}
	for id, addr := range c.ValidatorAddrs {
		if _, err := multiaddr.NewMultiaddr(addr); err != nil {
			return fmt.Errorf("transport: invalid validator address for %q: %w", id, err)
		}
	}
	return nil
}
