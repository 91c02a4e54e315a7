// Package store persists the core entities of internal/domain against
// PostgreSQL, implementing the Store collaborator of spec.md §6: every
// insert advances a per-kind NextId row inside the same transaction that
// inserts the row, and a unique-constraint violation on Currency, Market
// or Stamp is treated as success (the row already exists).
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sand/nicehash-speculator/internal/domain"
	"github.com/sand/nicehash-speculator/pkg/database"
)

// uniqueViolation is PostgreSQL's SQLSTATE for a unique-constraint
// violation.
const uniqueViolation = "23505"

// Store wraps one database role (main or simulation) behind the
// operations the core consumes.
type Store struct {
	db         tx.DBGetter
	transactor tx.Transactor
	builder    sq.StatementBuilderType
}

// New wraps pg's connection and transaction machinery.
func New(pg *database.Postgres) *Store {
	return &Store{
		db:         pg.DBGetter,
		transactor: pg.Transactor,
		builder:    sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// isUniqueViolation reports whether err is a unique-constraint violation,
// per spec §7/§9's "idempotent inserts" treatment of duplicate rows.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// nextID advances NextId.<kind> and returns the id it held before the
// increment, all inside one transaction together with insert, per spec
// §5's "NextId-guarded transactional inserts".
func (s *Store) nextID(ctx context.Context, kind string, insert func(ctx context.Context, id int32) error) (int32, error) {
	var id int32

	err := s.transactor.WithinTransaction(ctx, func(txCtx context.Context) error {
		selectQuery, selectArgs, err := s.builder.
			Select("next_id").
			From("next_ids").
			Where(sq.Eq{"kind": kind}).
			Suffix("FOR UPDATE").
			ToSql()
		if err != nil {
			return fmt.Errorf("store: build next id select: %w", err)
		}
		if err := s.db(txCtx).QueryRow(txCtx, selectQuery, selectArgs...).Scan(&id); err != nil {
			return fmt.Errorf("store: read next id for %s: %w", kind, err)
		}

		updateQuery, updateArgs, err := s.builder.
			Update("next_ids").
			Set("next_id", sq.Expr("next_id + 1")).
			Where(sq.Eq{"kind": kind}).
			ToSql()
		if err != nil {
			return fmt.Errorf("store: build next id update: %w", err)
		}
		if _, err := s.db(txCtx).Exec(txCtx, updateQuery, updateArgs...); err != nil {
			return fmt.Errorf("store: advance next id for %s: %w", kind, err)
		}

		return insert(txCtx, id)
	})

	return id, err
}

// GetMaxStampID returns the highest Stamp id persisted so far.
func (s *Store) GetMaxStampID(ctx context.Context) (domain.StampID, error) {
	query, args, err := s.builder.Select("COALESCE(MAX(id), 0)").From("stamps").ToSql()
	if err != nil {
		return 0, err
	}
	var id int32
	if err := s.db(ctx).QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("store: get max stamp id: %w", err)
	}
	return domain.StampID(id), nil
}

// GetStampByID fetches one Stamp row.
func (s *Store) GetStampByID(ctx context.Context, id domain.StampID) (domain.Stamp, error) {
	query, args, err := s.builder.Select("id", "instant").From("stamps").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Stamp{}, err
	}
	var stamp domain.Stamp
	err = s.db(ctx).QueryRow(ctx, query, args...).Scan(&stamp.ID, &stamp.Instant)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Stamp{}, fmt.Errorf("store: stamp %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Stamp{}, fmt.Errorf("store: get stamp %d: %w", id, err)
	}
	return stamp, nil
}

// ListStampsSince returns every Stamp whose instant is strictly after
// since, ordered by id.
func (s *Store) ListStampsSince(ctx context.Context, since time.Time) ([]domain.Stamp, error) {
	query, args, err := s.builder.
		Select("id", "instant").
		From("stamps").
		Where(sq.Gt{"instant": since}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list stamps since %s: %w", since, err)
	}
	defer rows.Close()

	var stamps []domain.Stamp
	for rows.Next() {
		var stamp domain.Stamp
		if err := rows.Scan(&stamp.ID, &stamp.Instant); err != nil {
			return nil, fmt.Errorf("store: scan stamp row: %w", err)
		}
		stamps = append(stamps, stamp)
	}
	return stamps, rows.Err()
}

// InsertStamp inserts a new Stamp row, guarded by NextId.stamp.
func (s *Store) InsertStamp(ctx context.Context, instant time.Time) (domain.StampID, error) {
	id, err := s.nextID(ctx, "stamp", func(txCtx context.Context, id int32) error {
		query, args, err := s.builder.
			Insert("stamps").
			Columns("id", "instant").
			Values(id, instant).
			ToSql()
		if err != nil {
			return err
		}
		_, err = s.db(txCtx).Exec(txCtx, query, args...)
		if isUniqueViolation(err) {
			return nil
		}
		return err
	})
	return domain.StampID(id), err
}

// ListCurrencies returns every Currency row.
func (s *Store) ListCurrencies(ctx context.Context) ([]domain.Currency, error) {
	query, args, err := s.builder.Select("id", "symbol", "name").From("currencies").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list currencies: %w", err)
	}
	defer rows.Close()

	var out []domain.Currency
	for rows.Next() {
		var c domain.Currency
		if err := rows.Scan(&c.ID, &c.Symbol, &c.Name); err != nil {
			return nil, fmt.Errorf("store: scan currency row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertCurrency inserts a new Currency row, treating a duplicate
// (symbol, name) as success.
func (s *Store) InsertCurrency(ctx context.Context, symbol, name string) (domain.CurrencyID, error) {
	id, err := s.nextID(ctx, "currency", func(txCtx context.Context, id int32) error {
		query, args, err := s.builder.
			Insert("currencies").
			Columns("id", "symbol", "name").
			Values(id, symbol, name).
			ToSql()
		if err != nil {
			return err
		}
		_, err = s.db(txCtx).Exec(txCtx, query, args...)
		if isUniqueViolation(err) {
			return nil
		}
		return err
	})
	return domain.CurrencyID(id), err
}

// ListMarkets returns every Market row.
func (s *Store) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	query, args, err := s.builder.Select("id", "base_currency_id", "quote_currency_id").From("markets").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list markets: %w", err)
	}
	defer rows.Close()

	var out []domain.Market
	for rows.Next() {
		var m domain.Market
		if err := rows.Scan(&m.ID, &m.BaseCurrencyID, &m.QuoteCurrencyID); err != nil {
			return nil, fmt.Errorf("store: scan market row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertMarket inserts a new Market row, treating a duplicate
// (base, quote) as success.
func (s *Store) InsertMarket(ctx context.Context, base, quote domain.CurrencyID) (domain.MarketID, error) {
	id, err := s.nextID(ctx, "market", func(txCtx context.Context, id int32) error {
		query, args, err := s.builder.
			Insert("markets").
			Columns("id", "base_currency_id", "quote_currency_id").
			Values(id, base, quote).
			ToSql()
		if err != nil {
			return err
		}
		_, err = s.db(txCtx).Exec(txCtx, query, args...)
		if isUniqueViolation(err) {
			return nil
		}
		return err
	})
	return domain.MarketID(id), err
}

// InsertPrice inserts one spot Price row.
func (s *Store) InsertPrice(ctx context.Context, marketID domain.MarketID, stampID domain.StampID, amount float64) (domain.PriceID, error) {
	id, err := s.nextID(ctx, "price", func(txCtx context.Context, id int32) error {
		query, args, err := s.builder.
			Insert("prices").
			Columns("id", "market_id", "stamp_id", "amount").
			Values(id, marketID, stampID, amount).
			ToSql()
		if err != nil {
			return err
		}
		_, err = s.db(txCtx).Exec(txCtx, query, args...)
		return err
	})
	return domain.PriceID(id), err
}

// ListPricesAtOrAfter returns every Price whose stamp id is >= stampID.
func (s *Store) ListPricesAtOrAfter(ctx context.Context, stampID domain.StampID) ([]domain.Price, error) {
	query, args, err := s.builder.
		Select("id", "market_id", "stamp_id", "amount").
		From("prices").
		Where(sq.GtOrEq{"stamp_id": stampID}).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list prices at or after %d: %w", stampID, err)
	}
	defer rows.Close()

	var out []domain.Price
	for rows.Next() {
		var p domain.Price
		if err := rows.Scan(&p.ID, &p.MarketID, &p.StampID, &p.Amount); err != nil {
			return nil, fmt.Errorf("store: scan price row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertOrderbook inserts one OrderbookRow.
func (s *Store) InsertOrderbook(ctx context.Context, row domain.OrderbookRow) (domain.OrderbookRowID, error) {
	id, err := s.nextID(ctx, "orderbook_row", func(txCtx context.Context, id int32) error {
		query, args, err := s.builder.
			Insert("orderbook_rows").
			Columns("id", "market_id", "stamp_id", "side", "price", "volume").
			Values(id, row.MarketID, row.StampID, row.Side, row.Price, row.Volume).
			ToSql()
		if err != nil {
			return err
		}
		_, err = s.db(txCtx).Exec(txCtx, query, args...)
		return err
	})
	return domain.OrderbookRowID(id), err
}

// ListOrderbooksAtOrAfter returns every OrderbookRow whose stamp id is >=
// stampID.
func (s *Store) ListOrderbooksAtOrAfter(ctx context.Context, stampID domain.StampID) ([]domain.OrderbookRow, error) {
	query, args, err := s.builder.
		Select("id", "market_id", "stamp_id", "side", "price", "volume").
		From("orderbook_rows").
		Where(sq.GtOrEq{"stamp_id": stampID}).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list orderbooks at or after %d: %w", stampID, err)
	}
	defer rows.Close()

	var out []domain.OrderbookRow
	for rows.Next() {
		var r domain.OrderbookRow
		if err := rows.Scan(&r.ID, &r.MarketID, &r.StampID, &r.Side, &r.Price, &r.Volume); err != nil {
			return nil, fmt.Errorf("store: scan orderbook row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertOrUpdateMyOrder inserts a new MyOrder, or updates the existing row
// sharing its TransactionID in place (last-write-wins on state, per the
// resolved Open Question in DESIGN.md).
func (s *Store) InsertOrUpdateMyOrder(ctx context.Context, order domain.MyOrder) (domain.MyOrderID, error) {
	var resultID domain.MyOrderID

	err := s.transactor.WithinTransaction(ctx, func(txCtx context.Context) error {
		selectQuery, selectArgs, err := s.builder.
			Select("id").
			From("my_orders").
			Where(sq.Eq{"transaction_id": order.TransactionID}).
			ToSql()
		if err != nil {
			return err
		}

		var existingID int32
		err = s.db(txCtx).QueryRow(txCtx, selectQuery, selectArgs...).Scan(&existingID)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			id, insertErr := s.insertMyOrder(txCtx, order)
			resultID = id
			return insertErr
		case err != nil:
			return fmt.Errorf("store: look up my order %s: %w", order.TransactionID, err)
		default:
			resultID = domain.MyOrderID(existingID)
			return s.updateMyOrder(txCtx, resultID, order)
		}
	})

	return resultID, err
}

func (s *Store) insertMyOrder(ctx context.Context, order domain.MyOrder) (domain.MyOrderID, error) {
	id, err := s.nextID(ctx, "my_order", func(txCtx context.Context, id int32) error {
		query, args, err := s.builder.
			Insert("my_orders").
			Columns("id", "transaction_id", "market_id", "created_stamp_id", "modified_stamp_id",
				"price", "base_quantity", "quote_quantity", "order_type", "side", "state").
			Values(id, order.TransactionID, order.MarketID, order.CreatedStampID, order.ModifiedStampID,
				order.Price, order.BaseQuantity, order.QuoteQuantity, order.OrderType, order.Side, order.State).
			ToSql()
		if err != nil {
			return err
		}
		_, err = s.db(txCtx).Exec(txCtx, query, args...)
		return err
	})
	return domain.MyOrderID(id), err
}

func (s *Store) updateMyOrder(ctx context.Context, id domain.MyOrderID, order domain.MyOrder) error {
	query, args, err := s.builder.
		Update("my_orders").
		Set("modified_stamp_id", order.ModifiedStampID).
		Set("price", order.Price).
		Set("base_quantity", order.BaseQuantity).
		Set("quote_quantity", order.QuoteQuantity).
		Set("state", order.State).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db(ctx).Exec(ctx, query, args...)
	return err
}

// InsertBalance inserts a Balance snapshot row.
func (s *Store) InsertBalance(ctx context.Context, balance domain.Balance) (domain.BalanceID, error) {
	id, err := s.nextID(ctx, "balance", func(txCtx context.Context, id int32) error {
		query, args, err := s.builder.
			Insert("balances").
			Columns("id", "currency_id", "stamp_id", "available", "pending").
			Values(id, balance.CurrencyID, balance.StampID, balance.Available, balance.Pending).
			ToSql()
		if err != nil {
			return err
		}
		_, err = s.db(txCtx).Exec(txCtx, query, args...)
		return err
	})
	return domain.BalanceID(id), err
}

// ListBalancesAt returns every Balance row stamped exactly stampID.
func (s *Store) ListBalancesAt(ctx context.Context, stampID domain.StampID) ([]domain.Balance, error) {
	query, args, err := s.builder.
		Select("id", "currency_id", "stamp_id", "available", "pending").
		From("balances").
		Where(sq.Eq{"stamp_id": stampID}).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list balances at %d: %w", stampID, err)
	}
	defer rows.Close()

	var out []domain.Balance
	for rows.Next() {
		var b domain.Balance
		if err := rows.Scan(&b.ID, &b.CurrencyID, &b.StampID, &b.Available, &b.Pending); err != nil {
			return nil, fmt.Errorf("store: scan balance row: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
