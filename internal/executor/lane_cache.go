package executor

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/shaiso/Flume/internal/domain"
	"github.com/shaiso/Flume/internal/telemetry"
)

// laneCache — serial lanes по StepAndKey со счётчиком ссылок.
//
// Ссылка берётся при постановке задачи и отпускается после её
// выполнения. Lane удаляется и закрывается, как только счётчик
// доходит до нуля.
type laneCache struct {
	pool    *Pool
	metrics *telemetry.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	lanes   map[domain.StepAndKey]*laneRef
	invalid bool

	created atomic.Int64
}

type laneRef struct {
	lane *serialLane
	refs int
}

func newLaneCache(pool *Pool, metrics *telemetry.Metrics, logger *slog.Logger) *laneCache {
	return &laneCache{
		pool:    pool,
		metrics: metrics,
		logger:  logger,
		lanes:   make(map[domain.StepAndKey]*laneRef),
	}
}

// acquire возвращает lane для target, создавая его при необходимости.
// false — кэш инвалидирован остановкой.
func (c *laneCache) acquire(target domain.StepAndKey) (*serialLane, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.invalid {
		return nil, false
	}

	ref, ok := c.lanes[target]
	if !ok {
		ref = &laneRef{lane: newSerialLane(target, c.pool)}
		c.lanes[target] = ref
		c.created.Add(1)
		c.metrics.LaneCreated()
		c.logger.Debug("serial lane created", "lane", target.String())
	}
	ref.refs++
	return ref.lane, true
}

// release отпускает ссылку и вытесняет lane на нуле.
func (c *laneCache) release(target domain.StepAndKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ref, ok := c.lanes[target]
	if !ok {
		return
	}

	ref.refs--
	if ref.refs > 0 {
		return
	}

	delete(c.lanes, target)
	ref.lane.shutdown()
	c.metrics.LaneEvicted()
}

// drainAndInvalidate закрывает все lanes и запрещает создание новых.
func (c *laneCache) drainAndInvalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.invalid = true
	for target, ref := range c.lanes {
		ref.lane.shutdown()
		delete(c.lanes, target)
		c.metrics.LaneEvicted()
	}
}

// size возвращает число живых lanes.
func (c *laneCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lanes)
}

// lanesCreated возвращает число созданных за всё время lanes.
func (c *laneCache) lanesCreated() int64 {
	return c.created.Load()
}
