package routing

import (
	"fmt"
	"sync"

	"mailbridge/internal/domain"
)

// Config holds the process-wide routing state: the active notification target
// and the per-domain mapping. Both are written only by administrative
// commands and read on every ingested message, so reads take a shared lock
// and always observe a consistent snapshot. Neither survives a restart.
type Config struct {
	mu      sync.RWMutex
	active  domain.Target
	mapping map[string]int64
}

func NewConfig() *Config {
	return &Config{
		active:  domain.Target{Kind: domain.TargetSelf},
		mapping: make(map[string]int64),
	}
}

// Resolve picks the notification target for a recipient domain. Precedence:
// an exact domain mapping, then the active channel/group target, then self.
func (c *Config) Resolve(recipientDomain string) domain.Target {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if chatID, ok := c.mapping[recipientDomain]; ok {
		return domain.Target{Kind: domain.TargetCustom, ChatID: chatID}
	}
	if c.active.Kind == domain.TargetChannel || c.active.Kind == domain.TargetGroup {
		return c.active
	}
	return domain.Target{Kind: domain.TargetSelf}
}

// SetActive replaces the active target; the last writer wins.
func (c *Config) SetActive(target domain.Target) error {
	switch target.Kind {
	case domain.TargetSelf:
		target.ChatID = 0
	case domain.TargetChannel, domain.TargetGroup:
		if target.ChatID == 0 {
			return fmt.Errorf("routing: %s target requires a chat id", target.Kind)
		}
	default:
		return fmt.Errorf("routing: %q is not a valid active target", target.Kind)
	}

	c.mu.Lock()
	c.active = target
	c.mu.Unlock()
	return nil
}

// SetMapping binds a recipient domain to a chat id, overriding any active
// target for that domain's mail.
func (c *Config) SetMapping(recipientDomain string, chatID int64) {
	c.mu.Lock()
	c.mapping[recipientDomain] = chatID
	c.mu.Unlock()
}

// DeleteMapping removes a domain binding.
func (c *Config) DeleteMapping(recipientDomain string) {
	c.mu.Lock()
	delete(c.mapping, recipientDomain)
	c.mu.Unlock()
}

// Snapshot returns the active target and a copy of the domain mapping.
func (c *Config) Snapshot() (domain.Target, map[string]int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	mapping := make(map[string]int64, len(c.mapping))
	for k, v := range c.mapping {
		mapping[k] = v
	}
	return c.active, mapping
}
