// Package surreal implements remote.Backend on SurrealDB.
//
// Scalars live in the "aggregate" table with the key as record id. A map
// prefix is its own table and each member is a record, so dailyCounts/2025-03-10
// is the record dailyCounts:⟨2025-03-10⟩. Every record has a numeric "value"
// field. Increments are a single UPSERT evaluated by the server, so
// concurrent writers from many devices never lose updates.
package surreal

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	surrealdb "github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/sadopc/tally/internal/logging"
	"github.com/sadopc/tally/internal/remote"
)

const scalarTable = "aggregate"

const (
	incrementSQL = `UPSERT type::thing($tb, $id) SET value = (value ?? 0) + $delta, updated_at = time::now() RETURN NONE;`
	touchSQL     = `UPSERT type::thing($tb, $id) SET value = time::millis(time::now()), updated_at = time::now() RETURN NONE;`
	readSQL      = `RETURN (SELECT VALUE value FROM ONLY type::thing($tb, $id)) ?? 0;`
	readMapSQL   = `SELECT record::id(id) AS member, value FROM type::table($tb);`
)

// Config locates and authenticates against a SurrealDB instance.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

type Backend struct {
	db  *surrealdb.DB
	log zerolog.Logger
}

// Dial connects, signs in when credentials are set and selects the
// namespace and database.
func Dial(ctx context.Context, cfg Config) (*Backend, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect surrealdb %s: %w", cfg.URL, err)
	}
	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("use %s/%s: %w", cfg.Namespace, cfg.Database, err)
	}
	if cfg.Username != "" {
		if _, err := db.SignIn(ctx, surrealdb.Auth{Username: cfg.Username, Password: cfg.Password}); err != nil {
			db.Close(ctx)
			return nil, fmt.Errorf("sign in: %w", err)
		}
	}
	return &Backend{db: db, log: logging.Component("surreal")}, nil
}

// record maps a backend key to its table and record id.
func record(key string) (table, id string) {
	if prefix, member, ok := remote.SplitKey(key); ok {
		return prefix, member
	}
	return scalarTable, key
}

func (b *Backend) exec(ctx context.Context, sql string, vars map[string]any) error {
	res, err := surrealdb.Query[any](ctx, b.db, sql, vars)
	if err != nil {
		return err
	}
	for _, r := range *res {
		if r.Status != "OK" {
			return fmt.Errorf("query status %s: %v", r.Status, r.Result)
		}
	}
	return nil
}

func (b *Backend) Increment(ctx context.Context, key string, delta int64) error {
	tb, id := record(key)
	err := b.exec(ctx, incrementSQL, map[string]any{"tb": tb, "id": id, "delta": delta})
	if err != nil {
		return fmt.Errorf("increment %s: %w", key, err)
	}
	return nil
}

func (b *Backend) Touch(ctx context.Context, key string) error {
	tb, id := record(key)
	if err := b.exec(ctx, touchSQL, map[string]any{"tb": tb, "id": id}); err != nil {
		return fmt.Errorf("touch %s: %w", key, err)
	}
	return nil
}

func (b *Backend) ReadScalar(ctx context.Context, key string) (int64, error) {
	tb, id := record(key)
	res, err := surrealdb.Query[any](ctx, b.db, readSQL, map[string]any{"tb": tb, "id": id})
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	if len(*res) == 0 {
		return 0, nil
	}
	n, err := toInt64((*res)[0].Result)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	return n, nil
}

type memberRow struct {
	Member any `json:"member"`
	Value  any `json:"value"`
}

func (b *Backend) ReadMap(ctx context.Context, prefix string) (map[string]int64, error) {
	res, err := surrealdb.Query[[]memberRow](ctx, b.db, readMapSQL, map[string]any{"tb": prefix})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", prefix, err)
	}
	out := make(map[string]int64)
	if len(*res) == 0 {
		return out, nil
	}
	for _, row := range (*res)[0].Result {
		n, err := toInt64(row.Value)
		if err != nil {
			b.log.Warn().Err(err).Str("map", prefix).Msg("skip non-numeric member")
			continue
		}
		out[fmt.Sprint(row.Member)] = n
	}
	return out, nil
}

// Watch follows the table holding key with a live query and re-reads key
// on every notification.
func (b *Backend) Watch(ctx context.Context, key string, fn func(int64)) error {
	tb, _ := record(key)
	return b.live(ctx, tb, func() error {
		n, err := b.ReadScalar(ctx, key)
		if err != nil {
			return err
		}
		fn(n)
		return nil
	})
}

func (b *Backend) WatchMap(ctx context.Context, prefix string, fn func(map[string]int64)) error {
	return b.live(ctx, prefix, func() error {
		m, err := b.ReadMap(ctx, prefix)
		if err != nil {
			return err
		}
		fn(m)
		return nil
	})
}

// live runs refresh once after the live query starts and again on every
// notification for table.
func (b *Backend) live(ctx context.Context, table string, refresh func() error) error {
	id, err := surrealdb.Live(ctx, b.db, models.Table(table), false)
	if err != nil {
		return fmt.Errorf("live %s: %w", table, err)
	}
	liveID := id.String()
	defer func() {
		kctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := surrealdb.Kill(kctx, b.db, liveID); err != nil {
			b.log.Debug().Err(err).Str("table", table).Msg("kill live query")
		}
	}()

	notifications, err := b.db.LiveNotifications(liveID)
	if err != nil {
		return fmt.Errorf("live notifications %s: %w", table, err)
	}
	if err := refresh(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-notifications:
			if !ok {
				return remote.ErrStreamEnded
			}
			if err := refresh(); err != nil {
				return err
			}
		}
	}
}

func (b *Backend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.db.Close(ctx)
}

// toInt64 normalises the numeric types the CBOR decoder may produce.
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", n)
		}
		return int64(n), nil
	case float32:
		return int64(math.Round(float64(n))), nil
	case float64:
		return int64(math.Round(n)), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected value type %T", v)
	}
}
