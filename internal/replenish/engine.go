// Package replenish mines order history into "buy again" suggestions based
// on purchase cadence. Every computation runs fresh from the current order
// history; previous reports are never an input.
package replenish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aganoob/mercadona-mcp/internal/mercadona"
	"github.com/aganoob/mercadona-mcp/internal/ordercache"
)

const (
	// historyLimit caps how many recent orders feed the analysis.
	historyLimit = 100
	// minPurchases is the eligibility gate: fewer purchases within the
	// retained window and a product is never recommended.
	minPurchases = 3
	// defaultIntervalDays stands in for the average purchase interval when
	// fewer than two purchases exist and no gap can be computed.
	defaultIntervalDays = 30.0
	// minThresholdDays floors the recency threshold so very-frequent
	// low-interval products don't get flagged as noise.
	minThresholdDays = 4.0
	// fetchConcurrency bounds parallel order-line fetches.
	fetchConcurrency = 4
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// OrderSource is the slice of the session client the engine reads through.
type OrderSource interface {
	ListOrders(ctx context.Context, limit int) ([]mercadona.Order, error)
	OrderLines(ctx context.Context, orderID string) ([]mercadona.OrderLine, error)
}

// LineCache caches immutable order lines between runs. Implemented by
// ordercache.Store; nil disables caching.
type LineCache interface {
	GetLines(orderID string) ([]ordercache.Line, error)
	PutLines(orderID string, lines []ordercache.Line) error
}

// Engine computes replenishment recommendations.
type Engine struct {
	orders OrderSource
	cache  LineCache
	clock  Clock
}

// NewEngine creates an Engine. cache may be nil.
func NewEngine(orders OrderSource, cache LineCache) *Engine {
	return &Engine{orders: orders, cache: cache, clock: realClock{}}
}

// NewEngineWithClock creates an Engine with a custom clock (for testing).
func NewEngineWithClock(orders OrderSource, cache LineCache, clock Clock) *Engine {
	return &Engine{orders: orders, cache: cache, clock: clock}
}

// productStats accumulates one product's purchase history across orders.
type productStats struct {
	id    string
	name  string
	dates []time.Time
	qtys  []float64
}

// Compute fetches up to the last 100 orders, discards orders older than one
// year, accumulates per-product purchase dates and quantities, and emits
// recommendations for products bought 3+ times whose time since last
// purchase has reached the cadence threshold. The result is sorted by
// purchase frequency, ties keeping encounter order.
func (e *Engine) Compute(ctx context.Context) (Report, error) {
	orders, err := e.orders.ListOrders(ctx, historyLimit)
	if err != nil {
		return Report{}, fmt.Errorf("listing orders: %w", err)
	}

	now := e.clock.Now()
	cutoff := now.AddDate(-1, 0, 0)

	type datedOrder struct {
		id   string
		date time.Time
	}
	var retained []datedOrder
	for _, o := range orders {
		if o.StartDate == "" {
			continue
		}
		d, err := time.Parse(time.RFC3339, o.StartDate)
		if err != nil {
			slog.Warn("unparsable order start date, skipping order", "order", o.ID, "start_date", o.StartDate)
			continue
		}
		if d.Before(cutoff) {
			continue
		}
		retained = append(retained, datedOrder{id: o.ID, date: d})
	}

	// Fetch lines for all retained orders with bounded concurrency. Results
	// are indexed by order so accumulation stays in encounter order; a
	// failed fetch excludes that order only.
	lines := make([][]ordercache.Line, len(retained))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, o := range retained {
		g.Go(func() error {
			fetched, err := e.fetchLines(gCtx, o.id)
			if err != nil {
				slog.Warn("could not fetch order lines, excluding order", "order", o.id, "error", err)
				return nil
			}
			lines[i] = fetched
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	stats := make(map[string]*productStats)
	var seen []string
	for i, o := range retained {
		for _, line := range lines[i] {
			if line.ProductID == "" {
				continue
			}
			st, ok := stats[line.ProductID]
			if !ok {
				name := line.ProductName
				if name == "" {
					name = "Unknown Product"
				}
				st = &productStats{id: line.ProductID, name: name}
				stats[line.ProductID] = st
				seen = append(seen, line.ProductID)
			}
			st.dates = append(st.dates, o.date)
			st.qtys = append(st.qtys, line.OrderedQuantity)
		}
	}

	var recs []Recommendation
	for _, pid := range seen {
		if rec, ok := evaluate(stats[pid], now); ok {
			recs = append(recs, rec)
		}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Frequency > recs[j].Frequency
	})

	return NewReport(now, recs), nil
}

// fetchLines returns an order's lines, consulting the cache first. Cache
// errors are treated as misses; cache writes are best-effort.
func (e *Engine) fetchLines(ctx context.Context, orderID string) ([]ordercache.Line, error) {
	if e.cache != nil {
		cached, err := e.cache.GetLines(orderID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, ordercache.ErrNotFound) {
			slog.Warn("order cache read failed, fetching remotely", "order", orderID, "error", err)
		}
	}

	remote, err := e.orders.OrderLines(ctx, orderID)
	if err != nil {
		return nil, err
	}

	lines := make([]ordercache.Line, 0, len(remote))
	for _, l := range remote {
		lines = append(lines, ordercache.Line{
			ProductID:       l.ProductID,
			ProductName:     l.Product.DisplayName,
			OrderedQuantity: l.OrderedQuantity,
		})
	}

	if e.cache != nil {
		if err := e.cache.PutLines(orderID, lines); err != nil {
			slog.Warn("order cache write failed", "order", orderID, "error", err)
		}
	}
	return lines, nil
}

// evaluate applies the cadence rules to one product's accumulated history.
func evaluate(st *productStats, now time.Time) (Recommendation, bool) {
	if len(st.dates) == 0 {
		return Recommendation{}, false
	}

	dates := append([]time.Time(nil), st.dates...)
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	last := dates[len(dates)-1]
	daysSinceLast := wholeDays(last, now)
	count := len(dates)

	avgQty := 1.0
	if len(st.qtys) > 0 {
		avgQty = mean(st.qtys)
	}

	var intervals []float64
	for i := 1; i < len(dates); i++ {
		intervals = append(intervals, float64(wholeDays(dates[i-1], dates[i])))
	}
	avgInterval := defaultIntervalDays
	if len(intervals) > 0 {
		avgInterval = mean(intervals)
	}

	if count < minPurchases {
		return Recommendation{}, false
	}
	threshold := math.Max(avgInterval*0.6, minThresholdDays)
	if float64(daysSinceLast) < threshold {
		return Recommendation{}, false
	}

	suggested := int(math.Round(avgQty))
	if suggested < 1 {
		suggested = 1
	}

	return Recommendation{
		ProductID:    st.id,
		Name:         st.name,
		Reason:       fmt.Sprintf("Regular replenishment (Last: %dd ago, Avg Int: %.1fd)", daysSinceLast, avgInterval),
		SuggestedQty: suggested,
		Frequency:    count,
	}, true
}

// wholeDays returns the number of whole days from a to b.
func wholeDays(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
