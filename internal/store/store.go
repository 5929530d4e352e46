package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"order-matching-engine/internal/models"
	"order-matching-engine/internal/money"

	"github.com/shopspring/decimal"
)

// WithTx runs fn inside a serializable transaction, committing on success
// and rolling back on any error or panic. Every matching-engine operation
// (ProcessOrder, CancelOrder) is exactly one call to WithTx, per §5: "do
// not attempt to batch or pipeline matches across transactions."
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// --- Currencies ---

// CreateCurrency inserts a new Currency row.
func (s *Store) CreateCurrency(ctx context.Context, name, symbol string) (*models.Currency, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO currencies (name, symbol) VALUES (?, ?)`, name, symbol)
	if err != nil {
		return nil, fmt.Errorf("insert currency: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetCurrencyByID(ctx, id)
}

// GetCurrencyByID fetches a single Currency by its id.
func (s *Store) GetCurrencyByID(ctx context.Context, id int64) (*models.Currency, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, symbol, created_at FROM currencies WHERE id = ?`, id)
	var c models.Currency
	if err := row.Scan(&c.ID, &c.Name, &c.Symbol, &c.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetCurrencyBySymbol fetches a single Currency by its ticker symbol.
func (s *Store) GetCurrencyBySymbol(ctx context.Context, symbol string) (*models.Currency, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, symbol, created_at FROM currencies WHERE symbol = ?`, symbol)
	var c models.Currency
	if err := row.Scan(&c.ID, &c.Name, &c.Symbol, &c.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListCurrencies returns every currency, ordered by id.
func (s *Store) ListCurrencies(ctx context.Context) ([]models.Currency, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, symbol, created_at FROM currencies ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Currency
	for rows.Next() {
		var c models.Currency
		if err := rows.Scan(&c.ID, &c.Name, &c.Symbol, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Markets ---

// CreateMarket inserts a new Market row. Callers validate base != quote
// before calling (models.NewMarket enforces this).
func (s *Store) CreateMarket(ctx context.Context, m *models.Market) (*models.Market, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO markets (base_currency_id, quote_currency_id, base_symbol, quote_symbol, symbol, fee, state)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.BaseCurrencyID, m.QuoteCurrencyID, m.BaseSymbol, m.QuoteSymbol, m.Symbol, m.Fee.String(), string(m.State),
	)
	if err != nil {
		return nil, fmt.Errorf("insert market: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetMarketByID(ctx, id)
}

// GetMarketByID fetches a Market row by id.
func (s *Store) GetMarketByID(ctx context.Context, id int64) (*models.Market, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, base_currency_id, quote_currency_id, base_symbol, quote_symbol, symbol, fee, state, created_at, updated_at
		FROM markets WHERE id = ?`, id)
	return scanMarket(row)
}

// GetMarketBySymbol fetches a Market row by its derived symbol.
func (s *Store) GetMarketBySymbol(ctx context.Context, symbol string) (*models.Market, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, base_currency_id, quote_currency_id, base_symbol, quote_symbol, symbol, fee, state, created_at, updated_at
		FROM markets WHERE symbol = ?`, symbol)
	return scanMarket(row)
}

// ListMarkets returns every market, ordered by id.
func (s *Store) ListMarkets(ctx context.Context) ([]models.Market, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, base_currency_id, quote_currency_id, base_symbol, quote_symbol, symbol, fee, state, created_at, updated_at
		FROM markets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Market
	for rows.Next() {
		m, err := scanMarketRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanMarket(row scannable) (*models.Market, error) {
	return scanMarketRow(row)
}

func scanMarketRow(row scannable) (*models.Market, error) {
	var m models.Market
	var feeStr, state string
	if err := row.Scan(&m.ID, &m.BaseCurrencyID, &m.QuoteCurrencyID, &m.BaseSymbol, &m.QuoteSymbol, &m.Symbol,
		&feeStr, &state, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	fee, err := decimal.NewFromString(feeStr)
	if err != nil {
		return nil, fmt.Errorf("parse market fee: %w", err)
	}
	m.Fee = money.MustFee(fee)
	m.State = models.MarketState(state)
	return &m, nil
}

// --- Orders ---

// execer is satisfied by both *sql.DB and *sql.Tx, letting read helpers
// run either outside or inside a transaction.
type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// InsertOrder persists a freshly validated order in the Waiting state and
// assigns it an id.
func (s *Store) InsertOrder(ctx context.Context, o *models.Order) (int64, error) {
	return s.insertOrder(ctx, s.db, o)
}

// InsertOrderTx is InsertOrder run inside an already-open transaction, so a
// caller can persist the order and match it in the same transaction (§4.5:
// "persists a Waiting order, immediately invokes the matching engine under
// the same transaction as the persist").
func (s *Store) InsertOrderTx(ctx context.Context, tx *sql.Tx, o *models.Order) (int64, error) {
	return s.insertOrder(ctx, tx, o)
}

func (s *Store) insertOrder(ctx context.Context, tx execer, o *models.Order) (int64, error) {
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	res, err := tx.ExecContext(ctx, `
		INSERT INTO orders (market_id, order_type, order_side, price, amount, filled_amount, remaining_amount, order_state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.MarketID, string(o.Type), string(o.Side), o.Price.String(), o.Amount.String(),
		o.FilledAmount.String(), o.RemainingAmount.String(), string(o.State), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	o.ID = id
	return id, nil
}

// GetOrderForUpdate locks and returns the order row for id, for use inside
// a transaction (§4.1: "acquires a pessimistic lock on the incoming order
// row for the whole operation").
func (s *Store) GetOrderForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	row := tx.QueryRowContext(ctx, orderSelectColumns+` FROM orders WHERE id = ? FOR UPDATE`, id)
	return scanOrderRow(row)
}

// GetOrder returns the order row for id without locking, for read-only
// callers (the HTTP boundary, cache fallback).
func (s *Store) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx, orderSelectColumns+` FROM orders WHERE id = ?`, id)
	return scanOrderRow(row)
}

// UpdateOrder persists the mutable fields of o (amounts, state, timestamps).
func (s *Store) UpdateOrder(ctx context.Context, tx execer, o *models.Order) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orders SET filled_amount = ?, remaining_amount = ?, order_state = ?, updated_at = ?, filled_at = ?
		WHERE id = ?`,
		o.FilledAmount.String(), o.RemainingAmount.String(), string(o.State), o.UpdatedAt, nullableTime(o.FilledAt), o.ID,
	)
	if err != nil {
		return fmt.Errorf("update order %d: %w", o.ID, err)
	}
	return nil
}

// ScanOpposingForUpdate locks and returns every resting order on the
// opposing side of marketID ordered for price-time priority matching
// (§4.1's "opposing-side selection"): ascending (price, created_at) for a
// Sell book, descending price / ascending created_at for a Buy book.
func (s *Store) ScanOpposingForUpdate(ctx context.Context, tx *sql.Tx, marketID int64, opposingSide models.OrderSide) ([]*models.Order, error) {
	orderBy := "price ASC, created_at ASC, id ASC"
	if opposingSide == models.OrderSideBuy {
		orderBy = "price DESC, created_at ASC, id ASC"
	}
	query := orderSelectColumns + fmt.Sprintf(`
		FROM orders
		WHERE market_id = ? AND order_side = ? AND order_state IN (?, ?) AND remaining_amount > 0
		ORDER BY %s FOR UPDATE`, orderBy)

	rows, err := tx.QueryContext(ctx, query, marketID, string(opposingSide), string(models.OrderStateWaiting), string(models.OrderStatePartiallyFilled))
	if err != nil {
		return nil, fmt.Errorf("scan opposing orders: %w", err)
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// RestingOrders returns every resting order (Waiting or PartiallyFilled
// with positive remaining amount) for marketID, split by side, ordered for
// direct aggregation by internal/depthcache's fallback and sync paths. No
// row locking: this is a plain read used outside the matching transaction.
func (s *Store) RestingOrders(ctx context.Context, marketID int64) (buys, sells []*models.Order, err error) {
	query := orderSelectColumns + `
		FROM orders
		WHERE market_id = ? AND order_side = ? AND order_state IN (?, ?) AND remaining_amount > 0
		ORDER BY price DESC, created_at ASC, id ASC`
	buys, err = s.queryOrders(ctx, query, marketID, string(models.OrderSideBuy), string(models.OrderStateWaiting), string(models.OrderStatePartiallyFilled))
	if err != nil {
		return nil, nil, err
	}

	query = orderSelectColumns + `
		FROM orders
		WHERE market_id = ? AND order_side = ? AND order_state IN (?, ?) AND remaining_amount > 0
		ORDER BY price ASC, created_at ASC, id ASC`
	sells, err = s.queryOrders(ctx, query, marketID, string(models.OrderSideSell), string(models.OrderStateWaiting), string(models.OrderStatePartiallyFilled))
	if err != nil {
		return nil, nil, err
	}
	return buys, sells, nil
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]*models.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const orderSelectColumns = `SELECT id, market_id, order_type, order_side, price, amount, filled_amount, remaining_amount, order_state, created_at, updated_at, filled_at`

func scanOrderRow(row scannable) (*models.Order, error) {
	var o models.Order
	var typ, side, state string
	var priceStr, amountStr, filledStr, remainingStr string
	var filledAt sql.NullTime

	if err := row.Scan(&o.ID, &o.MarketID, &typ, &side, &priceStr, &amountStr, &filledStr, &remainingStr,
		&state, &o.CreatedAt, &o.UpdatedAt, &filledAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return nil, fmt.Errorf("parse order price: %w", err)
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse order amount: %w", err)
	}
	filled, err := decimal.NewFromString(filledStr)
	if err != nil {
		return nil, fmt.Errorf("parse order filled_amount: %w", err)
	}
	remaining, err := decimal.NewFromString(remainingStr)
	if err != nil {
		return nil, fmt.Errorf("parse order remaining_amount: %w", err)
	}

	o.Type = models.OrderType(typ)
	o.Side = models.OrderSide(side)
	o.State = models.OrderState(state)
	o.Price = money.MustPrice(price)
	o.Amount = money.MustAmount(amount)
	o.FilledAmount = money.MustAmount(filled)
	o.RemainingAmount = money.MustAmount(remaining)
	if filledAt.Valid {
		t := filledAt.Time
		o.FilledAt = &t
	}
	return &o, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// --- Trades ---

// InsertTrade persists an immutable trade record.
func (s *Store) InsertTrade(ctx context.Context, tx *sql.Tx, t *models.Trade) (int64, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO trades (maker_order_id, taker_order_id, market_id, price, amount, fee, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.MakerOrderID, t.TakerOrderID, t.MarketID, t.Price.String(), t.Amount.String(), t.Fee.String(), t.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert trade: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	t.ID = id
	return id, nil
}

// TradesForOrder returns every trade where orderID was either maker or
// taker, ordered by creation (§8: "Σ{t.amount | t.maker = m} = m.filled_amount").
func (s *Store) TradesForOrder(ctx context.Context, orderID int64) ([]models.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, maker_order_id, taker_order_id, market_id, price, amount, fee, created_at
		FROM trades WHERE maker_order_id = ? OR taker_order_id = ?
		ORDER BY created_at ASC, id ASC`, orderID, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Trade
	for rows.Next() {
		var t models.Trade
		var priceStr, amountStr, feeStr string
		if err := rows.Scan(&t.ID, &t.MakerOrderID, &t.TakerOrderID, &t.MarketID, &priceStr, &amountStr, &feeStr, &t.CreatedAt); err != nil {
			return nil, err
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, err
		}
		fee, err := decimal.NewFromString(feeStr)
		if err != nil {
			return nil, err
		}
		t.Price = money.MustPrice(price)
		t.Amount = money.MustAmount(amount)
		t.Fee = money.MustFee(fee)
		out = append(out, t)
	}
	return out, rows.Err()
}
