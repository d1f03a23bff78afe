package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Schema creates the auction and bid tables. The partial unique index is a
// backstop for the one-WINNING-bid rule; the ledger enforces it under the row lock.
const Schema = `
CREATE TABLE IF NOT EXISTS auctions (
	id                TEXT PRIMARY KEY,
	title             TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	category_id       TEXT NOT NULL DEFAULT '',
	seller_id         TEXT NOT NULL,
	starting_price    NUMERIC(18,2) NOT NULL CHECK (starting_price >= 0),
	current_price     NUMERIC(18,2) NOT NULL,
	min_bid_increment NUMERIC(18,2) NOT NULL CHECK (min_bid_increment >= 0),
	reserve_price     NUMERIC(18,2),
	start_time        TIMESTAMPTZ NOT NULL,
	end_time          TIMESTAMPTZ NOT NULL,
	status            TEXT NOT NULL,
	winner_id         TEXT,
	views             BIGINT NOT NULL DEFAULT 0,
	total_bids        BIGINT NOT NULL DEFAULT 0,
	version           BIGINT NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	CHECK (current_price >= starting_price)
);

CREATE TABLE IF NOT EXISTS bids (
	seq            BIGSERIAL,
	id             TEXT PRIMARY KEY,
	auction_id     TEXT NOT NULL REFERENCES auctions (id),
	bidder_id      TEXT NOT NULL,
	amount         NUMERIC(18,2) NOT NULL,
	previous_price NUMERIC(18,2) NOT NULL,
	status         TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS bids_auction_seq_idx ON bids (auction_id, seq DESC);
CREATE INDEX IF NOT EXISTS bids_bidder_seq_idx ON bids (bidder_id, seq DESC);
CREATE UNIQUE INDEX IF NOT EXISTS bids_one_winning_idx ON bids (auction_id) WHERE status = 'WINNING';
`

const auctionColumns = `id, title, description, category_id, seller_id, starting_price, current_price,
	min_bid_increment, reserve_price, start_time, end_time, status, winner_id, views, total_bids,
	version, created_at, updated_at`

const bidColumns = `id, auction_id, bidder_id, amount, previous_price, status, created_at`

// NewPool creates and pings a pgx connection pool
func NewPool(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return pool, nil
}

// PostgresRepo implements AuctionDB on PostgreSQL using row-level locks
type PostgresRepo struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgresRepo creates a repository over pool. lockTimeout bounds the wait
// for an auction row lock inside InTx.
func NewPostgresRepo(pool *pgxpool.Pool, lockTimeout time.Duration) *PostgresRepo {
	return &PostgresRepo{pool: pool, lockTimeout: lockTimeout}
}

// Migrate applies Schema
func (r *PostgresRepo) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("repo: migrate: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAuction(row scanner) (model.Auction, error) {
	var a model.Auction
	var status string
	var winnerID *string
	err := row.Scan(&a.ID, &a.Title, &a.Description, &a.CategoryID, &a.SellerID, &a.StartingPrice,
		&a.CurrentPrice, &a.MinBidIncrement, &a.ReservePrice, &a.StartTime, &a.EndTime, &status,
		&winnerID, &a.Views, &a.TotalBids, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Auction{}, err
	}
	a.Status = model.AuctionStatus(status)
	if winnerID != nil {
		a.WinnerID = *winnerID
	}
	return a, nil
}

func scanBid(row scanner) (model.Bid, error) {
	var b model.Bid
	var status string
	if err := row.Scan(&b.BidID, &b.AuctionID, &b.BidderID, &b.Amount, &b.PreviousPrice, &status, &b.CreatedAt); err != nil {
		return model.Bid{}, err
	}
	b.Status = model.BidStatus(status)
	return b, nil
}

func collectBids(rows pgx.Rows) ([]model.Bid, error) {
	defer rows.Close()

	bids := make([]model.Bid, 0)
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(model.MoneyPlaces)
}

// mapPgError translates lock and serialization failures into transient errors
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03": // lock_not_available
			return fmt.Errorf("%w: %w", biddingerrors.ErrLockTimeout, err)
		case "40001", "40P01", "23505": // serialization_failure, deadlock_detected, unique_violation
			return fmt.Errorf("%w: %w", biddingerrors.ErrConflict, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, biddingerrors.ErrTransient) {
		return fmt.Errorf("%w: %w", biddingerrors.ErrLockTimeout, err)
	}
	return err
}

// CreateAuction stores a new auction
func (r *PostgresRepo) CreateAuction(ctx context.Context, a model.Auction) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO auctions (`+auctionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, a.ID, a.Title, a.Description, a.CategoryID, a.SellerID, money(a.StartingPrice), money(a.CurrentPrice),
		money(a.MinBidIncrement), a.ReservePrice, a.StartTime, a.EndTime, string(a.Status), nullString(a.WinnerID),
		a.Views, a.TotalBids, a.Version, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("repo: create auction %s: %w", a.ID, biddingerrors.ErrAuctionExists)
		}
		return fmt.Errorf("repo: create auction %s: %w", a.ID, err)
	}
	return nil
}

// GetAuction returns a single auction
func (r *PostgresRepo) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, auctionID)
	a, err := scanAuction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Auction{}, fmt.Errorf("repo: get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Auction{}, fmt.Errorf("repo: get auction %s: %w", auctionID, err)
	}
	return a, nil
}

// ListAuctions returns auctions matching filter ordered by end time
func (r *PostgresRepo) ListAuctions(ctx context.Context, filter model.AuctionFilter) ([]model.Auction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+auctionColumns+` FROM auctions
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR category_id = $2)
		  AND ($3 = '' OR seller_id = $3)
		ORDER BY end_time ASC, id ASC
	`, string(filter.Status), filter.CategoryID, filter.SellerID)
	if err != nil {
		return nil, fmt.Errorf("repo: list auctions: %w", err)
	}
	return collectAuctions(rows)
}

// DueAuctions returns auctions whose next timed transition is due
func (r *PostgresRepo) DueAuctions(ctx context.Context, now time.Time) ([]model.Auction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+auctionColumns+` FROM auctions
		WHERE (status = 'SCHEDULED' AND start_time <= $1)
		   OR (status = 'ACTIVE' AND end_time <= $1)
		ORDER BY end_time ASC, id ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("repo: due auctions: %w", err)
	}
	return collectAuctions(rows)
}

func collectAuctions(rows pgx.Rows) ([]model.Auction, error) {
	defer rows.Close()

	out := make([]model.Auction, 0)
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("repo: scan auction: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo: iterate auctions: %w", err)
	}
	return out, nil
}

// GetBidsByAuction returns a newest-first page of an auction's bids
func (r *PostgresRepo) GetBidsByAuction(ctx context.Context, auctionID string, offset, limit int) ([]model.Bid, int, error) {
	if _, err := r.GetAuction(ctx, auctionID); err != nil {
		return nil, 0, err
	}

	offset, limit = normalizePage(offset, limit)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM bids WHERE auction_id = $1`, auctionID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo: count bids for auction %s: %w", auctionID, err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+bidColumns+` FROM bids
		WHERE auction_id = $1
		ORDER BY seq DESC
		OFFSET $2 LIMIT $3
	`, auctionID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("repo: get bids for auction %s: %w", auctionID, err)
	}
	bids, err := collectBids(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("repo: get bids for auction %s: %w", auctionID, err)
	}
	return bids, total, nil
}

// GetWinningBid returns the leading bid of an auction
func (r *PostgresRepo) GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error) {
	if _, err := r.GetAuction(ctx, auctionID); err != nil {
		return model.Bid{}, err
	}

	row := r.pool.QueryRow(ctx, `
		SELECT `+bidColumns+` FROM bids
		WHERE auction_id = $1 AND status IN ('WINNING', 'WON')
		ORDER BY seq DESC LIMIT 1
	`, auctionID)
	b, err := scanBid(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Bid{}, fmt.Errorf("repo: get winning bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	if err != nil {
		return model.Bid{}, fmt.Errorf("repo: get winning bid for auction %s: %w", auctionID, err)
	}
	return b, nil
}

// GetBid returns a single bid
func (r *PostgresRepo) GetBid(ctx context.Context, bidID string) (model.Bid, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1`, bidID)
	b, err := scanBid(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Bid{}, fmt.Errorf("repo: get bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	if err != nil {
		return model.Bid{}, fmt.Errorf("repo: get bid %s: %w", bidID, err)
	}
	return b, nil
}

const bidderWhere = `
	WHERE b.bidder_id = $1
	  AND ($2 = '' OR b.status = $2)
	  AND ($3 = '' OR a.status = $3)`

// GetBidsByBidder returns a newest-first page of a bidder's bids matching filter
func (r *PostgresRepo) GetBidsByBidder(ctx context.Context, filter model.BidderFilter, offset, limit int) ([]model.Bid, int, error) {
	offset, limit = normalizePage(offset, limit)
	args := []any{filter.BidderID, string(filter.Status), string(filter.AuctionStatus)}

	var total int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM bids b JOIN auctions a ON a.id = b.auction_id`+bidderWhere, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("repo: count bids for bidder %s: %w", filter.BidderID, err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT b.id, b.auction_id, b.bidder_id, b.amount, b.previous_price, b.status, b.created_at
		FROM bids b JOIN auctions a ON a.id = b.auction_id`+bidderWhere+`
		ORDER BY b.seq DESC
		OFFSET $4 LIMIT $5
	`, append(args, offset, limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("repo: get bids for bidder %s: %w", filter.BidderID, err)
	}
	bids, err := collectBids(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("repo: get bids for bidder %s: %w", filter.BidderID, err)
	}
	return bids, total, nil
}

// InTx locks the auction row with SELECT ... FOR UPDATE and runs fn in the same transaction
func (r *PostgresRepo) InTx(ctx context.Context, auctionID string, fn func(tx Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repo: begin tx for auction %s: %w", auctionID, mapPgError(err))
	}
	// Rollback is a no-op once committed
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if r.lockTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", r.lockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("repo: set lock timeout: %w", mapPgError(err))
		}
	}

	row := tx.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1 FOR UPDATE`, auctionID)
	a, err := scanAuction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("repo: lock auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return fmt.Errorf("repo: lock auction %s: %w", auctionID, mapPgError(err))
	}

	if err := fn(&pgTx{tx: tx, auction: a}); err != nil {
		return mapPgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repo: commit tx for auction %s: %w", auctionID, mapPgError(err))
	}
	return nil
}

// pgTx is a Tx over one locked auction row
type pgTx struct {
	tx      pgx.Tx
	auction model.Auction
}

func (t *pgTx) Auction() model.Auction { return t.auction }

func (t *pgTx) WinningBid(ctx context.Context) (model.Bid, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+bidColumns+` FROM bids
		WHERE auction_id = $1 AND status = 'WINNING'
		LIMIT 1
	`, t.auction.ID)
	b, err := scanBid(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Bid{}, fmt.Errorf("repo: winning bid for auction %s: %w", t.auction.ID, biddingerrors.ErrNoBids)
	}
	if err != nil {
		return model.Bid{}, fmt.Errorf("repo: winning bid for auction %s: %w", t.auction.ID, err)
	}
	return b, nil
}

func (t *pgTx) BidderIDs(ctx context.Context) ([]string, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT bidder_id FROM bids
		WHERE auction_id = $1
		GROUP BY bidder_id
		ORDER BY min(seq)
	`, t.auction.ID)
	if err != nil {
		return nil, fmt.Errorf("repo: bidders of auction %s: %w", t.auction.ID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("repo: scan bidder: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *pgTx) InsertBid(ctx context.Context, b model.Bid) error {
	if b.AuctionID != t.auction.ID {
		return fmt.Errorf("repo: insert bid %s: %w - auction %s is not locked", b.BidID, biddingerrors.ErrInvalidBid, b.AuctionID)
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bids (`+bidColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, b.BidID, b.AuctionID, b.BidderID, money(b.Amount), money(b.PreviousPrice), string(b.Status), b.CreatedAt)
	if err != nil {
		return fmt.Errorf("repo: insert bid %s: %w", b.BidID, err)
	}
	return nil
}

func (t *pgTx) SetBidStatus(ctx context.Context, bidID string, status model.BidStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE bids SET status = $1 WHERE id = $2 AND auction_id = $3`,
		string(status), bidID, t.auction.ID)
	if err != nil {
		return fmt.Errorf("repo: set status of bid %s: %w", bidID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo: set status of bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	return nil
}

func (t *pgTx) SaveAuction(ctx context.Context, a model.Auction) error {
	if a.ID != t.auction.ID {
		return fmt.Errorf("repo: save auction %s: %w - auction %s is locked", a.ID, biddingerrors.ErrInvalidAuction, t.auction.ID)
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE auctions SET
			current_price = $2, status = $3, winner_id = $4, total_bids = $5, version = $6,
			start_time = $7, end_time = $8, reserve_price = $9, updated_at = $10,
			title = $11, description = $12, category_id = $13, starting_price = $14, min_bid_increment = $15
		WHERE id = $1
	`, a.ID, money(a.CurrentPrice), string(a.Status), nullString(a.WinnerID), a.TotalBids, a.Version,
		a.StartTime, a.EndTime, a.ReservePrice, a.UpdatedAt,
		a.Title, a.Description, a.CategoryID, money(a.StartingPrice), money(a.MinBidIncrement))
	if err != nil {
		return fmt.Errorf("repo: save auction %s: %w", a.ID, err)
	}
	t.auction = a
	return nil
}

func (t *pgTx) DeleteAuction(ctx context.Context) ([]string, error) {
	rows, err := t.tx.Query(ctx, `DELETE FROM bids WHERE auction_id = $1 RETURNING id`, t.auction.ID)
	if err != nil {
		return nil, fmt.Errorf("repo: delete bids of auction %s: %w", t.auction.ID, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("repo: delete bids of auction %s: %w", t.auction.ID, err)
	}

	if _, err := t.tx.Exec(ctx, `DELETE FROM auctions WHERE id = $1`, t.auction.ID); err != nil {
		return nil, fmt.Errorf("repo: delete auction %s: %w", t.auction.ID, err)
	}
	return ids, nil
}
