package segmentation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/studio-platform/internal/domain"
)

const (
	membershipKeyPrefix = "segmembership"
	// fingerprintField holds the contact fingerprint the cached results were
	// computed from.
	fingerprintField = "_fp"
)

// setScript replaces the whole entry when the contact fingerprint changed,
// otherwise it merges the new results into it.
var setScript = redis.NewScript(`
	if redis.call("hget", KEYS[1], "_fp") ~= ARGV[1] then
		redis.call("del", KEYS[1])
		redis.call("hset", KEYS[1], "_fp", ARGV[1])
	end
	for i = 3, #ARGV, 2 do
		redis.call("hset", KEYS[1], ARGV[i], ARGV[i + 1])
	end
	return redis.call("pexpire", KEYS[1], ARGV[2])
`)

// MembershipCache stores single-contact evaluation results in Redis. Each
// (organization, contact) pair is one hash whose fields are definition
// hashes, so editing a segment's rules naturally misses the cache. Entries
// are stamped with a fingerprint of the contact data and are ignored once
// the contact changes.
type MembershipCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMembershipCache returns a cache whose entries expire after ttl.
func NewMembershipCache(rdb *redis.Client, ttl time.Duration) *MembershipCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &MembershipCache{rdb: rdb, ttl: ttl}
}

func (c *MembershipCache) key(orgID, contactID string) string {
	return fmt.Sprintf("%s:%s:%s", membershipKeyPrefix, orgID, contactID)
}

// ContactFingerprint hashes every contact attribute a rule can read.
func ContactFingerprint(ct *domain.Contact) string {
	data, err := json.Marshal(ct)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", ct))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

// Get returns the cached results for the given definition hashes. Hashes
// with no cached entry are absent from the returned map, and nothing is
// returned when the entry was computed from a different fingerprint.
func (c *MembershipCache) Get(ctx context.Context, orgID, contactID, fingerprint string, hashes []string) (map[string]bool, error) {
	out := make(map[string]bool, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	fields := append([]string{fingerprintField}, hashes...)
	vals, err := c.rdb.HMGet(ctx, c.key(orgID, contactID), fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("membership cache get: %w", err)
	}
	if fp, _ := vals[0].(string); fp != fingerprint {
		return out, nil
	}
	for i, v := range vals[1:] {
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[hashes[i]] = s == "1"
	}
	return out, nil
}

// Set records results for the given contact fingerprint and refreshes the
// entry's expiry. Results cached for an older fingerprint are discarded.
func (c *MembershipCache) Set(ctx context.Context, orgID, contactID, fingerprint string, results map[string]bool) error {
	if len(results) == 0 {
		return nil
	}
	args := make([]interface{}, 0, 2+2*len(results))
	args = append(args, fingerprint, c.ttl.Milliseconds())
	for h, member := range results {
		v := "0"
		if member {
			v = "1"
		}
		args = append(args, h, v)
	}
	if err := setScript.Run(ctx, c.rdb, []string{c.key(orgID, contactID)}, args...).Err(); err != nil {
		return fmt.Errorf("membership cache set: %w", err)
	}
	return nil
}
