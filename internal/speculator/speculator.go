// Package speculator wires the Store collaborator to the rule, trade and
// simulator packages: it replays every Price since the oldest stamp any
// wired rule's DurationRequirement needs, feeds it through each market's
// weighted rules, aggregates a Decision per market, and hands the result
// to the simulator against the simulation store's latest balances.
package speculator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sand/nicehash-speculator/internal/domain"
	"github.com/sand/nicehash-speculator/internal/rule"
	"github.com/sand/nicehash-speculator/internal/simulator"
	"github.com/sand/nicehash-speculator/internal/trade"
)

// Store is the subset of internal/store.Store operations the speculator
// reads and writes against the main database role.
type Store interface {
	GetMaxStampID(ctx context.Context) (domain.StampID, error)
	GetStampByID(ctx context.Context, id domain.StampID) (domain.Stamp, error)
	ListPricesAtOrAfter(ctx context.Context, stampID domain.StampID) ([]domain.Price, error)
	ListOrderbooksAtOrAfter(ctx context.Context, stampID domain.StampID) ([]domain.OrderbookRow, error)
	ListBalancesAt(ctx context.Context, stampID domain.StampID) ([]domain.Balance, error)
}

// SimStore is the subset of internal/store.Store operations the
// speculator reads and writes against the simulation database role.
type SimStore interface {
	ListBalancesAt(ctx context.Context, stampID domain.StampID) ([]domain.Balance, error)
	InsertBalance(ctx context.Context, balance domain.Balance) (domain.BalanceID, error)
}

// Speculator runs one decide-and-simulate cycle.
type Speculator struct {
	logger   *slog.Logger
	store    Store
	simStore SimStore
	feeRatio float64
}

// New builds a Speculator.
func New(logger *slog.Logger, store Store, simStore SimStore, feeRatio float64) *Speculator {
	return &Speculator{logger: logger, store: store, simStore: simStore, feeRatio: feeRatio}
}

// RunOnce builds one trade.Aggregation per market in rulesByMarket, feeds
// it every Price (and, where the market matches, OrderbookRow) since each
// aggregation's own DurationRequirement-derived window, computes
// recommendations, and applies them through the simulator against the
// simulation store's working balances.
func (s *Speculator) RunOnce(ctx context.Context, rulesByMarket map[domain.MarketID][]rule.WeightedRule, tradeParameter trade.TradeParameter) error {
	maxStampID, err := s.store.GetMaxStampID(ctx)
	if err != nil {
		return fmt.Errorf("speculator: get max stamp id: %w", err)
	}
	if maxStampID == 0 {
		s.logger.InfoContext(ctx, "speculator: no stamps yet, nothing to do")
		return nil
	}
	simBalances, err := s.simStore.ListBalancesAt(ctx, maxStampID)
	if err != nil {
		return fmt.Errorf("speculator: list sim balances: %w", err)
	}

	if len(simBalances) == 0 {
		// Spec §4.6 step 1: a bootstrap cycle only seeds the simulation
		// store from the main store's latest balances and stops — no
		// aggregation replay or trades run against the seed cycle.
		mainBalances, err := s.store.ListBalancesAt(ctx, maxStampID)
		if err != nil {
			return fmt.Errorf("speculator: list main balances: %w", err)
		}
		copied, bootstrapped := simulator.Bootstrap(mainBalances, false, maxStampID, sequentialBalanceID())
		if bootstrapped {
			for _, b := range copied {
				if _, err := s.simStore.InsertBalance(ctx, b); err != nil {
					return fmt.Errorf("speculator: bootstrap balance: %w", err)
				}
			}
		}
		return nil
	}

	latestStamp, err := s.store.GetStampByID(ctx, maxStampID)
	if err != nil {
		return fmt.Errorf("speculator: get latest stamp: %w", err)
	}

	aggregations := make([]*trade.Aggregation, 0, len(rulesByMarket))
	for marketID, weighted := range rulesByMarket {
		if len(weighted) == 0 {
			continue
		}
		agg := trade.NewAggregation(weighted[0].Rule.Market(), tradeParameter, weighted)
		aggregations = append(aggregations, agg)

		window := maxDurationRequirement(weighted)
		sinceStampID, err := s.stampIDSince(ctx, latestStamp.Instant.Add(-window))
		if err != nil {
			return fmt.Errorf("speculator: market %d: resolve window start: %w", marketID, err)
		}

		if err := s.feedMarketStates(ctx, agg, marketID, sinceStampID); err != nil {
			s.logger.WarnContext(ctx, "speculator: feeding market states failed", "market_id", marketID, "error", err)
		}
	}

	prices, err := s.pricesAtStamp(ctx, maxStampID)
	if err != nil {
		return fmt.Errorf("speculator: load latest prices: %w", err)
	}

	working := make(map[domain.CurrencyID]domain.Balance, len(simBalances))
	for _, b := range simBalances {
		working[b.CurrencyID] = b
	}

	aggregators := make([]simulator.Aggregator, 0, len(aggregations))
	for _, agg := range aggregations {
		aggregators = append(aggregators, agg)
	}

	outcomes, errs := simulator.Apply(aggregators, prices, working, s.feeRatio)
	for _, err := range errs {
		s.logger.WarnContext(ctx, "speculator: simulate apply error", "error", err)
	}
	for _, outcome := range outcomes {
		s.logger.InfoContext(ctx, "speculator: order outcome",
			"market_id", outcome.Market, "accepted", outcome.Accepted, "reason", outcome.Reason,
			"order_type", outcome.Order.OrderType, "side", outcome.Order.Side)
	}

	persistable := simulator.PersistableBalances(working, maxStampID, sequentialBalanceID())
	for _, b := range persistable {
		if _, err := s.simStore.InsertBalance(ctx, b); err != nil {
			s.logger.WarnContext(ctx, "speculator: persist balance failed", "currency_id", b.CurrencyID, "error", err)
		}
	}

	return nil
}

func maxDurationRequirement(weighted []rule.WeightedRule) time.Duration {
	var max time.Duration
	for _, w := range weighted {
		if d, ok := w.Rule.DurationRequirement(); ok && d > max {
			max = d
		}
	}
	return max
}

// stampIDSince returns the smallest stamp id whose instant is at or after
// since, falling back to 1 (replay everything) when no earlier bound is
// known.
func (s *Speculator) stampIDSince(ctx context.Context, since time.Time) (domain.StampID, error) {
	maxStampID, err := s.store.GetMaxStampID(ctx)
	if err != nil {
		return 0, err
	}
	for id := domain.StampID(1); id <= maxStampID; id++ {
		stamp, err := s.store.GetStampByID(ctx, id)
		if err != nil {
			continue
		}
		if !stamp.Instant.Before(since) {
			return id, nil
		}
	}
	return 1, nil
}

func (s *Speculator) feedMarketStates(ctx context.Context, agg *trade.Aggregation, marketID domain.MarketID, sinceStampID domain.StampID) error {
	prices, err := s.store.ListPricesAtOrAfter(ctx, sinceStampID)
	if err != nil {
		return err
	}
	orderbooks, err := s.store.ListOrderbooksAtOrAfter(ctx, sinceStampID)
	if err != nil {
		return err
	}
	orderbooksByStamp := make(map[domain.StampID][]domain.OrderbookRow)
	for _, row := range orderbooks {
		if row.MarketID != marketID {
			continue
		}
		orderbooksByStamp[row.StampID] = append(orderbooksByStamp[row.StampID], row)
	}

	for _, price := range prices {
		if price.MarketID != marketID {
			continue
		}
		stamp, err := s.store.GetStampByID(ctx, price.StampID)
		if err != nil {
			return err
		}
		ms := rule.MarketState{
			Stamp:     stamp,
			Price:     price,
			Orderbook: orderbooksByStamp[price.StampID],
		}
		for _, updateErr := range agg.UpdateMarketState(ms) {
			s.logger.WarnContext(ctx, "speculator: rule rejected market state", "market_id", marketID, "error", updateErr)
		}
	}
	return nil
}

func (s *Speculator) pricesAtStamp(ctx context.Context, stampID domain.StampID) (map[domain.MarketID]float64, error) {
	prices, err := s.store.ListPricesAtOrAfter(ctx, stampID)
	if err != nil {
		return nil, err
	}
	out := make(map[domain.MarketID]float64, len(prices))
	for _, p := range prices {
		if p.StampID == stampID {
			out[p.MarketID] = p.Amount
		}
	}
	return out, nil
}

// sequentialBalanceID returns a fresh-id generator seeded at 1; the real
// id sequencing lives in the simulation store's NextId row, so this is
// only a placeholder satisfied by InsertBalance ignoring the id field the
// database assigns on insert.
func sequentialBalanceID() func() domain.BalanceID {
	var next domain.BalanceID
	return func() domain.BalanceID {
		next++
		return next
	}
}
