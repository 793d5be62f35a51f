package cache

import (
	"time"

	rulesdomain "github.com/beneflow/beneflow/internal/rules/domain"
	"github.com/bwmarrin/snowflake"
)

// Short TTL: rules rows change rarely but sweeps hit them for every tenant.
const defaultRulesTTL = 45 * time.Second

// RulesCache stores per-tenant resolved business rules for the sweep and
// dispatch hot paths.
type RulesCache struct {
	entries Cache[snowflake.ID, rulesdomain.Resolved]
	ttl     time.Duration
}

func NewRulesCache() *RulesCache {
	return &RulesCache{
		entries: NewTTLCache[snowflake.ID, rulesdomain.Resolved](),
		ttl:     defaultRulesTTL,
	}
}

func (c *RulesCache) Get(tenantID snowflake.ID) (rulesdomain.Resolved, bool) {
	if c == nil {
		return rulesdomain.Resolved{}, false
	}
	return c.entries.Get(tenantID)
}

func (c *RulesCache) Set(tenantID snowflake.ID, resolved rulesdomain.Resolved) {
	if c == nil {
		return
	}
	c.entries.Set(tenantID, resolved, c.ttl)
}

func (c *RulesCache) Invalidate(tenantID snowflake.ID) {
	if c == nil {
		return
	}
	c.entries.Delete(tenantID)
}
