// Package redis keeps shopping carts in Redis.
package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xenking/loja-api/internal/domain/cart"
)

// DefaultCartTTL is how long an untouched cart survives.
const DefaultCartTTL = 72 * time.Hour

var _ cart.Store = (*CartStore)(nil)

// CartStore implements cart.Store with one JSON value per user. Every Save
// renews the expiry.
type CartStore struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// NewCartStore returns a CartStore. A non-positive ttl selects
// DefaultCartTTL.
func NewCartStore(client goredis.UniversalClient, ttl time.Duration) *CartStore {
	if ttl <= 0 {
		ttl = DefaultCartTTL
	}
	return &CartStore{client: client, ttl: ttl}
}

func (s *CartStore) Load(ctx context.Context, userID int64) (*cart.Cart, error) {
	data, err := s.client.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return cart.New(userID), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	c := cart.New(userID)
	if err := json.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "decode cart")
	}
	c.UserID = userID
	return c, nil
}

func (s *CartStore) Save(ctx context.Context, c *cart.Cart) error {
	data, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encode cart")
	}
	if err := s.client.Set(ctx, cartKey(c.UserID), data, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "set cart")
	}
	return nil
}

func (s *CartStore) Delete(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return errors.Wrap(err, "delete cart")
	}
	return nil
}

// Ping reports whether Redis answers.
func (s *CartStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func cartKey(userID int64) string {
	return "cart:" + strconv.FormatInt(userID, 10)
}
