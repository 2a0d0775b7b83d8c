package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Flume/internal/domain"
)

// DefaultRedisPrefix — префикс ключей по умолчанию.
const DefaultRedisPrefix = "flume"

// maxTxRetries — сколько раз повторять WATCH-транзакцию при конфликте.
const maxTxRetries = 8

// Redis — Backend поверх Redis.
//
// Раскладка ключей:
//
//	{prefix}:state:{stage}:{key}:{ns}  hash   cell → bytes
//	{prefix}:hold:{stage}:{key}:{ns}   string unix nanos
//	{prefix}:timers                    zset   FiredTimer JSON, score = FireAt millis
//	{prefix}:timer-index               hash   stage|key|ns|timer_id → member
//
// Commit выполняется через WATCH + MULTI/EXEC: hold накапливает минимум,
// а замена таймера удаляет старый member из zset.
type Redis struct {
	client *redis.Client
	prefix string
	owned  bool
}

// NewRedis оборачивает готовый клиент. Close клиента остаётся за вызывающим.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// OpenRedis подключается к Redis по адресу и проверяет соединение.
func OpenRedis(ctx context.Context, addr, prefix string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       addr,
		MaxRetries: 3,
		PoolSize:   10,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	r := NewRedis(client, prefix)
	r.owned = true
	return r, nil
}

func (r *Redis) stateKey(target domain.StepAndKey, namespace string) string {
	return fmt.Sprintf("%s:state:%s:%s:%s", r.prefix, target.StageID, target.Key, namespace)
}

func (r *Redis) holdKey(target domain.StepAndKey, namespace string) string {
	return fmt.Sprintf("%s:hold:%s:%s:%s", r.prefix, target.StageID, target.Key, namespace)
}

func (r *Redis) timersKey() string {
	return r.prefix + ":timers"
}

func (r *Redis) timerIndexKey() string {
	return r.prefix + ":timer-index"
}

func timerField(target domain.StepAndKey, timer domain.TimerData) string {
	return target.StageID + "|" + target.Key + "|" + timer.Namespace + "|" + timer.TimerID
}

// Read читает ячейку из hash состояния.
func (r *Redis) Read(ctx context.Context, target domain.StepAndKey, namespace, cell string) ([]byte, bool, error) {
	data, err := r.client.HGet(ctx, r.stateKey(target, namespace), cell).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s/%s: %w", target, cell, err)
	}
	return data, true, nil
}

// Hold возвращает watermark hold.
func (r *Redis) Hold(ctx context.Context, target domain.StepAndKey, namespace string) (time.Time, bool, error) {
	raw, err := r.client.Get(ctx, r.holdKey(target, namespace)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read hold %s: %w", target, err)
	}

	hold, err := parseHold(raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return hold, true, nil
}

// Commit атомарно применяет мутацию.
func (r *Redis) Commit(ctx context.Context, target domain.StepAndKey, namespace string, m Mutation) error {
	stateKey := r.stateKey(target, namespace)
	holdKey := r.holdKey(target, namespace)

	txf := func(tx *redis.Tx) error {
		// 1. Вычисляем новый hold (минимум с текущим)
		var newHold *time.Time
		if m.AddHold != nil {
			hold := *m.AddHold
			if !m.ClearHold {
				raw, err := tx.Get(ctx, holdKey).Result()
				switch {
				case errors.Is(err, redis.Nil):
				case err != nil:
					return err
				default:
					cur, err := parseHold(raw)
					if err != nil {
						return err
					}
					if cur.Before(hold) {
						hold = cur
					}
				}
			}
			newHold = &hold
		}

		// 2. Находим заменяемый таймер
		var field, oldMember, newMember string
		if m.SetTimer != nil {
			field = timerField(target, *m.SetTimer)

			old, err := tx.HGet(ctx, r.timerIndexKey(), field).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			oldMember = old

			data, err := json.Marshal(FiredTimer{Target: target, Timer: *m.SetTimer})
			if err != nil {
				return fmt.Errorf("encode timer: %w", err)
			}
			newMember = string(data)
		}

		// 3. MULTI/EXEC
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(m.Clears) > 0 {
				pipe.HDel(ctx, stateKey, m.Clears...)
			}
			if len(m.Writes) > 0 {
				values := make(map[string]any, len(m.Writes))
				for cell, data := range m.Writes {
					values[cell] = data
				}
				pipe.HSet(ctx, stateKey, values)
			}
			if m.ClearHold {
				pipe.Del(ctx, holdKey)
			}
			if newHold != nil {
				pipe.Set(ctx, holdKey, newHold.UnixNano(), 0)
			}
			if m.SetTimer != nil {
				if oldMember != "" {
					pipe.ZRem(ctx, r.timersKey(), oldMember)
				}
				pipe.ZAdd(ctx, r.timersKey(), redis.Z{
					Score:  float64(m.SetTimer.FireAt.UnixMilli()),
					Member: newMember,
				})
				pipe.HSet(ctx, r.timerIndexKey(), field, newMember)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := r.client.Watch(ctx, txf, holdKey, r.timerIndexKey())
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("commit %s: %w", target, err)
	}

	return fmt.Errorf("commit %s: %w", target, ErrTxConflict)
}

// FireDueTimers удаляет и возвращает созревшие таймеры.
//
// Score хранит миллисекунды, поэтому кандидаты с FireAt позже now
// в пределах миллисекунды остаются в zset. Таймер считается выданным
// тому, чей ZREM вернул 1.
func (r *Redis) FireDueTimers(ctx context.Context, now time.Time) ([]FiredTimer, error) {
	members, err := r.client.ZRangeByScore(ctx, r.timersKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list due timers: %w", err)
	}

	fired := make([]FiredTimer, 0, len(members))
	for _, member := range members {
		var ft FiredTimer
		if err := json.Unmarshal([]byte(member), &ft); err != nil {
			return fired, fmt.Errorf("%w: timer %q: %v", ErrCorruptState, member, err)
		}
		if ft.Timer.FireAt.After(now) {
			continue
		}

		removed, err := r.client.ZRem(ctx, r.timersKey(), member).Result()
		if err != nil {
			return fired, fmt.Errorf("remove timer: %w", err)
		}
		if removed == 0 {
			continue
		}

		field := timerField(ft.Target, ft.Timer)
		if cur, err := r.client.HGet(ctx, r.timerIndexKey(), field).Result(); err == nil && cur == member {
			r.client.HDel(ctx, r.timerIndexKey(), field)
		}

		fired = append(fired, ft)
	}

	sortFired(fired)
	return fired, nil
}

// PendingTimers возвращает размер zset таймеров.
func (r *Redis) PendingTimers(ctx context.Context) (int, error) {
	n, err := r.client.ZCard(ctx, r.timersKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("count timers: %w", err)
	}
	return int(n), nil
}

// Close закрывает клиент, если он был открыт через OpenRedis.
func (r *Redis) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}

func parseHold(raw string) (time.Time, error) {
	ns, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: hold %q", ErrCorruptState, raw)
	}
	return time.Unix(0, ns).UTC(), nil
}
