package fetch

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"sjsage522/storefrontscraper/services/cache"
)

// blockPhrases mark anti-bot interstitials and access-denied pages
var blockPhrases = []string{
	"cloudflare",
	"ddos-guard",
	"доступ ограничен",
	"access denied",
	"checking your browser",
	"just a moment",
	"captcha",
	"подтвердите, что вы не робот",
	"are you a robot",
	"verify you are human",
	"bot detected",
	"security check",
	"проверка безопасности",
	"пожалуйста, дождитесь окончания проверки",
}

// DetectBlock reports whether content looks like a block page rather than a
// listing. Content shorter than minBytes is treated as blocked too.
func DetectBlock(content string, minBytes int) (string, bool) {
	if len(content) < minBytes {
		return fmt.Sprintf("page too short (%d bytes)", len(content)), true
	}
	lower := strings.ToLower(content)
	for _, phrase := range blockPhrases {
		if strings.Contains(lower, phrase) {
			return fmt.Sprintf("block marker %q", phrase), true
		}
	}
	return "", false
}

// BlockCache remembers hosts that served a block page so they are not asked
// again until the cooldown expires. Entries are kept per engine because a
// host that rejects plain HTTP may still serve a real browser.
type BlockCache struct {
	svc      cache.CacheService
	cooldown time.Duration
}

// NewBlockCache wraps a cache service. A nil service disables the cache.
func NewBlockCache(svc cache.CacheService, cooldown time.Duration) *BlockCache {
	return &BlockCache{svc: svc, cooldown: cooldown}
}

// Blocked reports whether the engine is cooling down for the URL's host
func (b *BlockCache) Blocked(engine, rawURL string) bool {
	if b == nil || b.svc == nil {
		return false
	}
	_, err := b.svc.Get(blockKey(engine, rawURL))
	return err == nil
}

// Mark starts the cooldown for the URL's host
func (b *BlockCache) Mark(engine, rawURL string) error {
	if b == nil || b.svc == nil || b.cooldown <= 0 {
		return nil
	}
	value := []byte(fmt.Sprintf("%d", int(b.cooldown/time.Second)))
	return b.svc.Set(blockKey(engine, rawURL), value, b.cooldown)
}

// Cooldown returns the configured block time
func (b *BlockCache) Cooldown() time.Duration {
	if b == nil {
		return 0
	}
	return b.cooldown
}

func blockKey(engine, rawURL string) string {
	return engine + "_" + hostOf(rawURL) + "_blocked"
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
