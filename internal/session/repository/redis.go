package repository

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"blueprint-auth/internal/autherr"
	"blueprint-auth/internal/session/domain"
)

// Session hashes live at <prefix>:session:<tokenID> with fields subject,
// expires_at, created_at and (once revoked) revoked_at, all unix milliseconds.
// <prefix>:subject:<subjectID> is a set of the subject's token ids; it expires
// with the longest-lived session it indexes.

const createSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "subject", ARGV[1], "expires_at", ARGV[2], "created_at", ARGV[3])
redis.call("PEXPIREAT", KEYS[1], ARGV[4])
redis.call("SADD", KEYS[2], ARGV[5])
local want = tonumber(ARGV[6])
if redis.call("PTTL", KEYS[2]) < want then
  redis.call("PEXPIRE", KEYS[2], want)
end
return 1
`

const revokeSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
return redis.call("HSETNX", KEYS[1], "revoked_at", ARGV[1])
`

const revokeIfActiveScript = `
local fields = redis.call("HMGET", KEYS[1], "expires_at", "revoked_at")
if not fields[1] then
  return 0
end
if fields[2] then
  return 0
end
if tonumber(fields[1]) <= tonumber(ARGV[1]) then
  return 0
end
redis.call("HSET", KEYS[1], "revoked_at", ARGV[1])
return 1
`

var (
	createSessionLua  = redis.NewScript(createSessionScript)
	revokeSessionLua  = redis.NewScript(revokeSessionScript)
	revokeIfActiveLua = redis.NewScript(revokeIfActiveScript)
)

// RedisRepository stores sessions in Redis. Lua scripts make create-if-absent
// and revoke-if-active atomic. Keys expire retention after the session's own
// expiry, which stands in for the DeleteExpired sweep.
type RedisRepository struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewRedisRepository returns a RedisRepository. prefix namespaces keys; retention
// is how long expired sessions stay readable for replay detection.
func NewRedisRepository(client redis.UniversalClient, prefix string, retention time.Duration) *RedisRepository {
	if prefix == "" {
		prefix = "auth"
	}
	return &RedisRepository{client: client, prefix: prefix, retention: retention, now: time.Now}
}

func (r *RedisRepository) sessionKey(tokenID string) string {
	return r.prefix + ":session:" + tokenID
}

func (r *RedisRepository) subjectKey(subjectID string) string {
	return r.prefix + ":subject:" + subjectID
}

func (r *RedisRepository) Create(ctx context.Context, s *domain.Session) error {
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now().UTC()
	}
	expireAt := s.ExpiresAt.Add(r.retention)
	indexTTL := max(expireAt.Sub(r.now()), time.Millisecond)
	created, err := createSessionLua.Run(ctx, r.client,
		[]string{r.sessionKey(s.TokenID), r.subjectKey(s.SubjectID)},
		s.SubjectID,
		s.ExpiresAt.UnixMilli(),
		createdAt.UnixMilli(),
		expireAt.UnixMilli(),
		s.TokenID,
		indexTTL.Milliseconds(),
	).Int64()
	if err != nil {
		return oops.In("session_repository").With("subject_id", s.SubjectID).Wrapf(err, "create session")
	}
	if created == 0 {
		return autherr.New(autherr.ErrConflict, "subject_id", s.SubjectID)
	}
	return nil
}

func (r *RedisRepository) FindByTokenID(ctx context.Context, tokenID string) (*domain.Session, error) {
	fields, err := r.client.HGetAll(ctx, r.sessionKey(tokenID)).Result()
	if err != nil {
		return nil, oops.In("session_repository").Wrapf(err, "find session")
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeSession(tokenID, fields)
}

func (r *RedisRepository) Revoke(ctx context.Context, tokenID string) error {
	err := revokeSessionLua.Run(ctx, r.client, []string{r.sessionKey(tokenID)}, r.now().UnixMilli()).Err()
	if err != nil {
		return oops.In("session_repository").Wrapf(err, "revoke session")
	}
	return nil
}

func (r *RedisRepository) RevokeIfActive(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	won, err := revokeIfActiveLua.Run(ctx, r.client, []string{r.sessionKey(tokenID)}, now.UnixMilli()).Int64()
	if err != nil {
		return false, oops.In("session_repository").Wrapf(err, "revoke active session")
	}
	return won == 1, nil
}

// ListBySubject loads every session in the subject's index. Members whose hash
// has expired out of Redis are pruned from the index.
func (r *RedisRepository) ListBySubject(ctx context.Context, subjectID string) ([]*domain.Session, error) {
	ids, err := r.client.SMembers(ctx, r.subjectKey(subjectID)).Result()
	if err != nil {
		return nil, oops.In("session_repository").With("subject_id", subjectID).Wrapf(err, "list sessions")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.sessionKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, oops.In("session_repository").With("subject_id", subjectID).Wrapf(err, "load sessions")
	}

	var out []*domain.Session
	var stale []any
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		s, err := decodeSession(ids[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if len(stale) > 0 {
		_ = r.client.SRem(ctx, r.subjectKey(subjectID), stale...).Err()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *RedisRepository) RevokeAllBySubject(ctx context.Context, subjectID string) (int64, error) {
	ids, err := r.client.SMembers(ctx, r.subjectKey(subjectID)).Result()
	if err != nil {
		return 0, oops.In("session_repository").With("subject_id", subjectID).Wrapf(err, "revoke all sessions")
	}
	now := r.now().UnixMilli()
	var n int64
	for _, id := range ids {
		set, err := revokeSessionLua.Run(ctx, r.client, []string{r.sessionKey(id)}, now).Int64()
		if err != nil {
			return n, oops.In("session_repository").With("subject_id", subjectID).Wrapf(err, "revoke session")
		}
		n += set
	}
	return n, nil
}

// DeleteExpired is a no-op: session keys carry their own expiry.
func (r *RedisRepository) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func decodeSession(tokenID string, fields map[string]string) (*domain.Session, error) {
	corrupt := func(err error) error {
		return oops.In("session_repository").Wrapf(err, "corrupt session record")
	}
	expires, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, corrupt(err)
	}
	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, corrupt(err)
	}
	s := &domain.Session{
		TokenID:   tokenID,
		SubjectID: fields["subject"],
		ExpiresAt: time.UnixMilli(expires).UTC(),
		CreatedAt: time.UnixMilli(created).UTC(),
	}
	if v, ok := fields["revoked_at"]; ok {
		revoked, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, corrupt(err)
		}
		t := time.UnixMilli(revoked).UTC()
		s.RevokedAt = &t
	}
	return s, nil
}
