package realtime

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"go.uber.org/fx"
)

const breachCursorKey = "orderdesk:realtime:breach_cursor"

// CursorStore holds the breach check position. With Redis every replica
// reads the same position, so whichever replica runs the check next resumes
// where the previous one stopped.
type CursorStore interface {
	Load(ctx context.Context) (orderdomain.BreachCursor, bool, error)
	Save(ctx context.Context, cursor orderdomain.BreachCursor) error
}

type CursorStoreParams struct {
	fx.In

	Client *redis.Client `optional:"true"`
}

func NewCursorStore(p CursorStoreParams) CursorStore {
	if p.Client == nil {
		return &memoryCursorStore{}
	}
	return &redisCursorStore{client: p.Client, key: breachCursorKey}
}

type memoryCursorStore struct {
	mu     sync.Mutex
	cursor orderdomain.BreachCursor
	ok     bool
}

func (s *memoryCursorStore) Load(context.Context) (orderdomain.BreachCursor, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, s.ok, nil
}

func (s *memoryCursorStore) Save(_ context.Context, cursor orderdomain.BreachCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor, s.ok = cursor, true
	return nil
}

// redisCursorStore keeps the cursor as "<unix nanos>:<order id>".
type redisCursorStore struct {
	client *redis.Client
	key    string
}

func (s *redisCursorStore) Load(ctx context.Context) (orderdomain.BreachCursor, bool, error) {
	raw, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return orderdomain.BreachCursor{}, false, nil
	}
	if err != nil {
		return orderdomain.BreachCursor{}, false, err
	}
	at, id, found := strings.Cut(raw, ":")
	if !found {
		return orderdomain.BreachCursor{}, false, fmt.Errorf("realtime: malformed breach cursor %q", raw)
	}
	nanos, err := strconv.ParseInt(at, 10, 64)
	if err != nil {
		return orderdomain.BreachCursor{}, false, fmt.Errorf("realtime: malformed breach cursor %q: %w", raw, err)
	}
	orderID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return orderdomain.BreachCursor{}, false, fmt.Errorf("realtime: malformed breach cursor %q: %w", raw, err)
	}
	return orderdomain.BreachCursor{At: time.Unix(0, nanos).UTC(), ID: snowflake.ID(orderID)}, true, nil
}

func (s *redisCursorStore) Save(ctx context.Context, cursor orderdomain.BreachCursor) error {
	value := strconv.FormatInt(cursor.At.UnixNano(), 10) + ":" + strconv.FormatInt(int64(cursor.ID), 10)
	return s.client.Set(ctx, s.key, value, 0).Err()
}
