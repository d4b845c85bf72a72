// Package redisstore provides a Redis-backed CredentialStore. The compound
// operations the engine depends on for its single-active-record invariants
// run as Lua scripts, so they are atomic on the server even with many portal
// instances sharing one Redis.
//
// Key layout under the configured prefix (default "pa"):
//
//	pa:user:{id}            hash, the account record
//	pa:email:{email}        string, email -> user id
//	pa:reset:{token}        string, reset token -> user id
//	pa:card:{id}            hash, one stored card
//	pa:addr:{id}            hash, one stored address
//	pa:visit:{id}           hash, one visit
//	pa:cards:{userID}       set of card ids
//	pa:addrs:{userID}       set of address ids
//	pa:visits:{userID}      set of visit ids
//	pa:draft:{userID}:{type} string, the TEMPORARY visit id for that type
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/openclinic/portalauth"
)

// ErrRedisUnavailable wraps transport failures so callers can tell an outage
// from a miss.
var ErrRedisUnavailable = errors.New("redis unavailable")

const defaultPrefix = "pa"

// Store implements portalauth.CredentialStore on Redis.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

var _ portalauth.CredentialStore = (*Store)(nil)

// New creates a Store on the given client. prefix namespaces every key; pass
// "" for the default.
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) userKey(id string) string { return s.prefix + ":user:" + id }

func (s *Store) emailKey(email string) string { return s.prefix + ":email:" + email }

func (s *Store) resetKey(token string) string { return s.prefix + ":reset:" + token }

func (s *Store) cardKey(id string) string { return s.prefix + ":card:" + id }

func (s *Store) addrKey(id string) string { return s.prefix + ":addr:" + id }

func (s *Store) visitKey(id string) string { return s.prefix + ":visit:" + id }

func (s *Store) cardsKey(uid string) string { return s.prefix + ":cards:" + uid }

func (s *Store) addrsKey(uid string) string { return s.prefix + ":addrs:" + uid }

func (s *Store) visitsKey(uid string) string { return s.prefix + ":visits:" + uid }
func (s *Store) draftKey(uid, visitType string) string {
	return s.prefix + ":draft:" + uid + ":" + visitType
}

// createUserLua claims the email index and writes the account hash in one
// step. Returns 0 when the email is already taken.
//
//	KEYS[1] = email index key
//	KEYS[2] = user hash key
//	ARGV[1] = user id
//	ARGV[2..] = hash field/value pairs
var createUserLua = redis.NewScript(`
if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[2], unpack(ARGV, 2))
return 1
`)

// bumpGenerationLua increments the generation counter only when the account
// exists. Returns -1 for a missing account.
//
//	KEYS[1] = user hash key
var bumpGenerationLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
return redis.call('HINCRBY', KEYS[1], 'token_generation', 1)
`)

// swapActiveCardLua deactivates every card in the user's set and writes the
// new card as the active one.
//
//	KEYS[1] = card set key
//	KEYS[2] = new card hash key
//	ARGV[1] = card key prefix (e.g. "pa:card:")
//	ARGV[2] = new card id
//	ARGV[3..] = new card hash field/value pairs
var swapActiveCardLua = redis.NewScript(`
local ids = redis.call('SMEMBERS', KEYS[1])
for _, id in ipairs(ids) do
  redis.call('HSET', ARGV[1] .. id, 'active', '0')
end
redis.call('HSET', KEYS[2], unpack(ARGV, 3))
redis.call('SADD', KEYS[1], ARGV[2])
return 1
`)

// swapActiveAddressLua deactivates every address in the user's set, then
// reactivates an existing row whose postal fields match or creates the new
// one. Returns the id of the row that ended up active.
//
//	KEYS[1] = address set key
//	KEYS[2] = candidate new address hash key
//	ARGV[1] = address key prefix
//	ARGV[2] = candidate new address id
//	ARGV[3..7] = address_one, address_two, city, state, zip
//	ARGV[8..] = candidate hash field/value pairs
var swapActiveAddressLua = redis.NewScript(`
local ids = redis.call('SMEMBERS', KEYS[1])
local match = false
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  redis.call('HSET', key, 'active', '0')
  local f = redis.call('HMGET', key, 'address_one', 'address_two', 'city', 'state', 'zip')
  if f[1] == ARGV[3] and f[2] == ARGV[4] and f[3] == ARGV[5] and f[4] == ARGV[6] and f[5] == ARGV[7] then
    match = id
  end
end
if match then
  redis.call('HSET', ARGV[1] .. match, 'active', '1')
  return match
end
redis.call('HSET', KEYS[2], unpack(ARGV, 8))
redis.call('SADD', KEYS[1], ARGV[2])
return ARGV[2]
`)

// upsertVisitLua updates the draft slot for (user, type) in place, creating
// the visit when the slot is empty. Returns the id of the draft.
//
//	KEYS[1] = draft slot key
//	KEYS[2] = visit set key
//	KEYS[3] = candidate new visit hash key
//	ARGV[1] = visit key prefix
//	ARGV[2] = candidate new visit id
//	ARGV[3..] = visit hash field/value pairs (sans id)
var upsertVisitLua = redis.NewScript(`
local existing = redis.call('GET', KEYS[1])
if existing then
  local key = ARGV[1] .. existing
  redis.call('HSET', key, unpack(ARGV, 3))
  redis.call('HSET', key, 'id', existing)
  return existing
end
redis.call('HSET', KEYS[3], unpack(ARGV, 3))
redis.call('HSET', KEYS[3], 'id', ARGV[2])
redis.call('SADD', KEYS[2], ARGV[2])
redis.call('SET', KEYS[1], ARGV[2])
return ARGV[2]
`)

func (s *Store) GetUserByID(ctx context.Context, id string) (*portalauth.User, error) {
	return s.loadUser(ctx, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*portalauth.User, error) {
	id, err := s.redis.Get(ctx, s.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, portalauth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.loadUser(ctx, id)
}

func (s *Store) GetUserByResetToken(ctx context.Context, token string) (*portalauth.User, error) {
	if token == "" {
		return nil, portalauth.ErrUserNotFound
	}
	id, err := s.redis.Get(ctx, s.resetKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, portalauth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.loadUser(ctx, id)
}

func (s *Store) CreateUser(ctx context.Context, user *portalauth.User) (*portalauth.User, error) {
	stored := *user
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	argv := append([]interface{}{stored.ID}, userFields(&stored)...)
	created, err := createUserLua.Run(ctx, s.redis,
		[]string{s.emailKey(stored.Email), s.userKey(stored.ID)}, argv...).Int()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if created == 0 {
		return nil, portalauth.ErrDuplicateEmail
	}

	if stored.ResetToken != "" {
		if err := s.redis.Set(ctx, s.resetKey(stored.ResetToken), stored.ID, 0).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	out := stored
	return &out, nil
}

func (s *Store) UpdateUser(ctx context.Context, user *portalauth.User) (*portalauth.User, error) {
	current, err := s.loadUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	stored := *user
	// The generation counter is owned by BumpTokenGeneration; writing the
	// caller's possibly stale copy here would roll it back and resurrect
	// revoked refresh tokens.
	stored.TokenGeneration = current.TokenGeneration

	if current.Email != stored.Email {
		claimed, err := s.redis.SetNX(ctx, s.emailKey(stored.Email), stored.ID, 0).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if !claimed {
			return nil, portalauth.ErrDuplicateEmail
		}
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if current.Email != stored.Email {
			pipe.Del(ctx, s.emailKey(current.Email))
		}
		if current.ResetToken != "" && current.ResetToken != stored.ResetToken {
			pipe.Del(ctx, s.resetKey(current.ResetToken))
		}
		if stored.ResetToken != "" {
			pipe.Set(ctx, s.resetKey(stored.ResetToken), stored.ID, 0)
		}
		pipe.HSet(ctx, s.userKey(stored.ID), userUpdateFields(&stored)...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	out := stored
	return &out, nil
}

func (s *Store) BumpTokenGeneration(ctx context.Context, userID string) (uint32, error) {
	gen, err := bumpGenerationLua.Run(ctx, s.redis, []string{s.userKey(userID)}).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if gen < 0 {
		return 0, portalauth.ErrUserNotFound
	}
	return uint32(gen), nil
}

func (s *Store) SwapActiveCard(ctx context.Context, userID string, card portalauth.CreditCard) (*portalauth.CreditCard, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}

	card.UserID = userID
	card.Active = true
	if card.ID == "" {
		card.ID = uuid.NewString()
	}

	argv := append([]interface{}{s.cardKey(""), card.ID}, cardFields(&card)...)
	_, err := swapActiveCardLua.Run(ctx, s.redis,
		[]string{s.cardsKey(userID), s.cardKey(card.ID)}, argv...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	saved := card
	return &saved, nil
}

func (s *Store) SwapActiveAddress(ctx context.Context, userID string, addr portalauth.Address) (*portalauth.Address, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}

	addr.UserID = userID
	addr.Active = true
	if addr.ID == "" {
		addr.ID = uuid.NewString()
	}

	argv := append([]interface{}{
		s.addrKey(""), addr.ID,
		addr.AddressOne, addr.AddressTwo, addr.City, addr.State, addr.Zip,
	}, addressFields(&addr)...)
	activeID, err := swapActiveAddressLua.Run(ctx, s.redis,
		[]string{s.addrsKey(userID), s.addrKey(addr.ID)}, argv...).Text()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if activeID == addr.ID {
		saved := addr
		return &saved, nil
	}

	// An existing identical row was reactivated; return that one.
	saved := addr
	saved.ID = activeID
	return &saved, nil
}

func (s *Store) UpsertTemporaryVisit(ctx context.Context, userID string, visit portalauth.Visit) (*portalauth.Visit, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}

	visit.UserID = userID
	visit.Status = portalauth.VisitTemporary
	candidateID := visit.ID
	if candidateID == "" {
		candidateID = uuid.NewString()
	}

	argv := append([]interface{}{s.visitKey(""), candidateID}, visitFields(&visit)...)
	draftID, err := upsertVisitLua.Run(ctx, s.redis, []string{
		s.draftKey(userID, visit.Type),
		s.visitsKey(userID),
		s.visitKey(candidateID),
	}, argv...).Text()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	saved := visit
	saved.ID = draftID
	return &saved, nil
}

func (s *Store) CardsByUser(ctx context.Context, userID string) ([]portalauth.CreditCard, error) {
	ids, err := s.redis.SMembers(ctx, s.cardsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	out := make([]portalauth.CreditCard, 0, len(ids))
	for _, id := range ids {
		fields, err := s.redis.HGetAll(ctx, s.cardKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if len(fields) == 0 {
			continue
		}
		out = append(out, cardFromFields(fields))
	}
	return out, nil
}

func (s *Store) AddressesByUser(ctx context.Context, userID string) ([]portalauth.Address, error) {
	ids, err := s.redis.SMembers(ctx, s.addrsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	out := make([]portalauth.Address, 0, len(ids))
	for _, id := range ids {
		fields, err := s.redis.HGetAll(ctx, s.addrKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if len(fields) == 0 {
			continue
		}
		out = append(out, addressFromFields(fields))
	}
	return out, nil
}

func (s *Store) VisitsByUser(ctx context.Context, userID string) ([]portalauth.Visit, error) {
	ids, err := s.redis.SMembers(ctx, s.visitsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	out := make([]portalauth.Visit, 0, len(ids))
	for _, id := range ids {
		fields, err := s.redis.HGetAll(ctx, s.visitKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if len(fields) == 0 {
			continue
		}
		out = append(out, visitFromFields(fields))
	}
	return out, nil
}

// Ping verifies Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) requireUser(ctx context.Context, userID string) error {
	exists, err := s.redis.Exists(ctx, s.userKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if exists == 0 {
		return portalauth.ErrUserNotFound
	}
	return nil
}

func (s *Store) loadUser(ctx context.Context, id string) (*portalauth.User, error) {
	fields, err := s.redis.HGetAll(ctx, s.userKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, portalauth.ErrUserNotFound
	}

	gen, _ := strconv.ParseUint(fields["token_generation"], 10, 32)

	user := &portalauth.User{
		ID:              fields["id"],
		Email:           fields["email"],
		PasswordHash:    fields["password_hash"],
		Role:            portalauth.Role(fields["role"]),
		TokenGeneration: uint32(gen),
		ResetToken:      fields["reset_token"],
		FirstName:       fields["first_name"],
		LastName:        fields["last_name"],
		Telephone:       fields["telephone"],
	}
	if raw := fields["reset_expiry"]; raw != "" && raw != "0" {
		unix, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			user.ResetTokenExpiry = time.Unix(unix, 0)
		}
	}
	return user, nil
}

// userFields is the full hash for a fresh account. Updates go through
// userUpdateFields instead, which leaves token_generation alone so only
// BumpTokenGeneration ever moves the counter.
func userFields(u *portalauth.User) []interface{} {
	return append(userUpdateFields(u),
		"token_generation", strconv.FormatUint(uint64(u.TokenGeneration), 10),
	)
}

func userUpdateFields(u *portalauth.User) []interface{} {
	var expiry int64
	if !u.ResetTokenExpiry.IsZero() {
		expiry = u.ResetTokenExpiry.Unix()
	}
	return []interface{}{
		"id", u.ID,
		"email", u.Email,
		"password_hash", u.PasswordHash,
		"role", string(u.Role),
		"reset_token", u.ResetToken,
		"reset_expiry", strconv.FormatInt(expiry, 10),
		"first_name", u.FirstName,
		"last_name", u.LastName,
		"telephone", u.Telephone,
	}
}

func cardFields(c *portalauth.CreditCard) []interface{} {
	return []interface{}{
		"id", c.ID,
		"user_id", c.UserID,
		"cc_type", c.CCType,
		"cc_token", c.CCToken,
		"cc_number", c.CCNumber,
		"cc_expire", c.CCExpire,
		"active", boolField(c.Active),
	}
}

func cardFromFields(f map[string]string) portalauth.CreditCard {
	return portalauth.CreditCard{
		ID:       f["id"],
		UserID:   f["user_id"],
		CCType:   f["cc_type"],
		CCToken:  f["cc_token"],
		CCNumber: f["cc_number"],
		CCExpire: f["cc_expire"],
		Active:   f["active"] == "1",
	}
}

func addressFields(a *portalauth.Address) []interface{} {
	return []interface{}{
		"id", a.ID,
		"user_id", a.UserID,
		"address_one", a.AddressOne,
		"address_two", a.AddressTwo,
		"city", a.City,
		"state", a.State,
		"zip", a.Zip,
		"active", boolField(a.Active),
	}
}

func addressFromFields(f map[string]string) portalauth.Address {
	return portalauth.Address{
		ID:         f["id"],
		UserID:     f["user_id"],
		AddressOne: f["address_one"],
		AddressTwo: f["address_two"],
		City:       f["city"],
		State:      f["state"],
		Zip:        f["zip"],
		Active:     f["active"] == "1",
	}
}

func visitFields(v *portalauth.Visit) []interface{} {
	return []interface{}{
		"user_id", v.UserID,
		"type", v.Type,
		"status", string(v.Status),
		"questionnaire", string(v.Questionnaire),
		"address_one", v.AddressOne,
		"address_two", v.AddressTwo,
		"city", v.City,
		"state", v.State,
		"zip", v.Zip,
		"telephone", v.Telephone,
	}
}

func visitFromFields(f map[string]string) portalauth.Visit {
	return portalauth.Visit{
		ID:            f["id"],
		UserID:        f["user_id"],
		Type:          f["type"],
		Status:        portalauth.VisitStatus(f["status"]),
		Questionnaire: json.RawMessage(f["questionnaire"]),
		AddressOne:    f["address_one"],
		AddressTwo:    f["address_two"],
		City:          f["city"],
		State:         f["state"],
		Zip:           f["zip"],
		Telephone:     f["telephone"],
	}
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
