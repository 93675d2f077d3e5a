package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bazaar-mp/project/internal/contracts"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaSQL = []string{`
CREATE TABLE IF NOT EXISTS transport_records (
  msgid text NOT NULL,
  direction text NOT NULL,
  status text NOT NULL,
  action_type text NOT NULL DEFAULT '',
  hash text NOT NULL DEFAULT '',
  version text NOT NULL DEFAULT '',
  from_address text NOT NULL,
  to_address text NOT NULL,
  paid boolean NOT NULL DEFAULT false,
  days_retention integer NOT NULL DEFAULT 0,
  sent_at timestamptz,
  received_at timestamptz,
  expires_at timestamptz,
  inserted_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (msgid, direction)
)`, `
CREATE INDEX IF NOT EXISTS transport_records_hash_idx ON transport_records (hash)`, `
CREATE TABLE IF NOT EXISTS listings (
  hash text PRIMARY KEY,
  seller text NOT NULL,
  market text NOT NULL DEFAULT '',
  doc jsonb NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS markets (
  hash text PRIMARY KEY,
  receive_address text NOT NULL,
  doc jsonb NOT NULL
)`, `
CREATE INDEX IF NOT EXISTS markets_receive_address_idx ON markets (receive_address)`, `
CREATE TABLE IF NOT EXISTS bids (
  hash text PRIMARY KEY,
  action_type text NOT NULL,
  parent text NOT NULL DEFAULT '',
  seq bigserial,
  doc jsonb NOT NULL
)`, `
CREATE INDEX IF NOT EXISTS bids_parent_type_idx ON bids (parent, action_type)`, `
CREATE TABLE IF NOT EXISTS proposals (
  hash text PRIMARY KEY,
  doc jsonb NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS votes (
  proposal_hash text NOT NULL,
  voter text NOT NULL,
  option_hash text NOT NULL,
  generated bigint NOT NULL,
  doc jsonb NOT NULL,
  PRIMARY KEY (proposal_hash, voter)
)`, `
CREATE TABLE IF NOT EXISTS comments (
  hash text PRIMARY KEY,
  doc jsonb NOT NULL
)`,
}

const insertRecordSQL = `
INSERT INTO transport_records (
  msgid, direction, status, action_type, hash, version, from_address, to_address,
  paid, days_retention, sent_at, received_at, expires_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (msgid, direction) DO NOTHING
`

const selectRecordSQL = `
SELECT msgid, direction, status, action_type, hash, version, from_address, to_address,
  paid, days_retention, sent_at, received_at, expires_at
FROM transport_records
WHERE msgid = $1 AND direction = $2
`

const updateRecordStatusSQL = `
UPDATE transport_records
SET status = $3
WHERE msgid = $1 AND direction = $2 AND status <> 'PROCESSED'
`

// refreshed documents keep their content and createdAt; only timing
// metadata follows the newest delivery.
const upsertListingSQL = `
INSERT INTO listings (hash, seller, market, doc)
VALUES ($1, $2, $3, $4)
ON CONFLICT (hash) DO UPDATE
SET doc = listings.doc || jsonb_build_object(
  'msgid', EXCLUDED.doc->'msgid',
  'expiredAt', EXCLUDED.doc->'expiredAt',
  'updatedAt', EXCLUDED.doc->'updatedAt')
RETURNING (xmax = 0)
`

const upsertMarketSQL = `
INSERT INTO markets (hash, receive_address, doc)
VALUES ($1, $2, $3)
ON CONFLICT (hash) DO UPDATE
SET doc = markets.doc || jsonb_build_object(
  'msgid', EXCLUDED.doc->'msgid',
  'expiredAt', EXCLUDED.doc->'expiredAt',
  'updatedAt', EXCLUDED.doc->'updatedAt')
RETURNING (xmax = 0)
`

const upsertProposalSQL = `
INSERT INTO proposals (hash, doc)
VALUES ($1, $2)
ON CONFLICT (hash) DO UPDATE
SET doc = proposals.doc || jsonb_build_object(
  'msgid', EXCLUDED.doc->'msgid',
  'expiredAt', EXCLUDED.doc->'expiredAt')
RETURNING (xmax = 0)
`

const upsertCommentSQL = `
INSERT INTO comments (hash, doc)
VALUES ($1, $2)
ON CONFLICT (hash) DO UPDATE
SET doc = comments.doc || jsonb_build_object(
  'msgid', EXCLUDED.doc->'msgid',
  'expiredAt', EXCLUDED.doc->'expiredAt')
RETURNING (xmax = 0)
`

const insertBidSQL = `
INSERT INTO bids (hash, action_type, parent, doc)
VALUES ($1, $2, $3, $4)
ON CONFLICT (hash) DO NOTHING
`

const upsertVoteSQL = `
INSERT INTO votes (proposal_hash, voter, option_hash, generated, doc)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (proposal_hash, voter) DO UPDATE
SET option_hash = EXCLUDED.option_hash,
    generated = EXCLUDED.generated,
    doc = EXCLUDED.doc
WHERE votes.generated < EXCLUDED.generated
`

const setOrderStatusSQL = `
UPDATE bids
SET doc = jsonb_set(doc, '{orderStatus}', to_jsonb($2::text))
WHERE hash = $1 AND coalesce(doc->>'orderStatus', '') = ANY($3::text[])
`

// Postgres is the pgxpool-backed Store. Entities are kept as JSON documents
// next to the columns the pipeline queries by.
type Postgres struct {
	Pool *pgxpool.Pool
	Now  func() time.Time
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		Pool: pool,
		Now:  func() time.Time { return time.Now().UTC() },
	}
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaSQL {
		if _, err := p.Pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func (p *Postgres) CreateRecord(ctx context.Context, r contracts.TransportRecord) (bool, error) {
	tag, err := p.Pool.Exec(ctx, insertRecordSQL,
		r.MsgID,
		string(r.Direction),
		string(r.Status),
		string(r.Type),
		r.Hash,
		r.Version,
		r.From,
		r.To,
		r.Paid,
		r.DaysRetention,
		nullTime(r.Sent),
		nullTime(r.Received),
		nullTime(r.Expiration),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) FindRecord(ctx context.Context, msgID string, dir contracts.Direction) (contracts.TransportRecord, bool, error) {
	var (
		r                        contracts.TransportRecord
		direction, status, typ   string
		sent, received, expiries *time.Time
	)
	err := p.Pool.QueryRow(ctx, selectRecordSQL, msgID, string(dir)).Scan(
		&r.MsgID, &direction, &status, &typ, &r.Hash, &r.Version, &r.From, &r.To,
		&r.Paid, &r.DaysRetention, &sent, &received, &expiries,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return contracts.TransportRecord{}, false, nil
	}
	if err != nil {
		return contracts.TransportRecord{}, false, err
	}
	r.Direction = contracts.Direction(direction)
	r.Status = contracts.MessageStatus(status)
	r.Type = contracts.ActionType(typ)
	r.Sent, r.Received, r.Expiration = derefTime(sent), derefTime(received), derefTime(expiries)
	return r, true, nil
}

func (p *Postgres) UpdateStatus(ctx context.Context, msgID string, dir contracts.Direction, status contracts.MessageStatus) error {
	tag, err := p.Pool.Exec(ctx, updateRecordStatusSQL, msgID, string(dir), string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	_, found, err := p.FindRecord(ctx, msgID, dir)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("transport record %s/%s: %w", msgID, dir, ErrNotFound)
	}
	return nil
}

func (p *Postgres) upsertDoc(ctx context.Context, sql string, doc any, args ...any) (bool, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return false, err
	}
	var inserted bool
	if err := p.Pool.QueryRow(ctx, sql, append(args, raw)...).Scan(&inserted); err != nil {
		return false, err
	}
	return inserted, nil
}

func findDoc[T any](ctx context.Context, pool *pgxpool.Pool, sql string, args ...any) (T, bool, error) {
	var (
		out T
		raw []byte
	)
	err := pool.QueryRow(ctx, sql, args...).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return out, false, nil
	}
	if err != nil {
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("decode document: %w", err)
	}
	return out, true, nil
}

// updateDoc rewrites one document under a row lock.
func updateDoc[T any](ctx context.Context, pool *pgxpool.Pool, table, hash string, apply func(*T) bool) (bool, error) {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var raw []byte
	err = tx.QueryRow(ctx, "SELECT doc FROM "+table+" WHERE hash = $1 FOR UPDATE", hash).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var doc T
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false, fmt.Errorf("decode document: %w", err)
	}
	if !apply(&doc) {
		return false, nil
	}
	if raw, err = json.Marshal(doc); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, "UPDATE "+table+" SET doc = $2 WHERE hash = $1", hash, raw); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (p *Postgres) SaveListing(ctx context.Context, l Listing) (bool, error) {
	now := p.Now()
	l.CreatedAt, l.UpdatedAt = now, now
	return p.upsertDoc(ctx, upsertListingSQL, l, l.Hash, l.Seller, l.Market)
}

func (p *Postgres) FindListing(ctx context.Context, hash string) (Listing, bool, error) {
	return findDoc[Listing](ctx, p.Pool, "SELECT doc FROM listings WHERE hash = $1", hash)
}

func (p *Postgres) AttachListingImage(ctx context.Context, listingHash string, image contracts.ContentReference) (bool, error) {
	now := p.Now()
	return updateDoc(ctx, p.Pool, "listings", listingHash, func(l *Listing) bool {
		if !attachImage(l.Images, image) {
			return false
		}
		l.UpdatedAt = now
		return true
	})
}

func (p *Postgres) SaveMarket(ctx context.Context, m Market) (bool, error) {
	now := p.Now()
	m.CreatedAt, m.UpdatedAt = now, now
	return p.upsertDoc(ctx, upsertMarketSQL, m, m.Hash, m.ReceiveAddress)
}

func (p *Postgres) FindMarket(ctx context.Context, hash string) (Market, bool, error) {
	return findDoc[Market](ctx, p.Pool, "SELECT doc FROM markets WHERE hash = $1", hash)
}

func (p *Postgres) FindMarketByReceiveAddress(ctx context.Context, addr string) (Market, bool, error) {
	return findDoc[Market](ctx, p.Pool,
		"SELECT doc FROM markets WHERE receive_address = $1 ORDER BY doc->>'createdAt' LIMIT 1", addr)
}

func (p *Postgres) AttachMarketImage(ctx context.Context, marketHash string, image contracts.ContentReference) (bool, error) {
	now := p.Now()
	return updateDoc(ctx, p.Pool, "markets", marketHash, func(m *Market) bool {
		if m.ImageHash == "" || m.ImageHash != image.Hash {
			return false
		}
		img := image
		m.Image = &img
		m.UpdatedAt = now
		return true
	})
}

func (p *Postgres) SaveBid(ctx context.Context, b BidRecord) (bool, error) {
	b.CreatedAt = p.Now()
	raw, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	tag, err := p.Pool.Exec(ctx, insertBidSQL, b.Hash, string(b.Type), b.Parent, raw)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) FindBid(ctx context.Context, hash string) (BidRecord, bool, error) {
	return findDoc[BidRecord](ctx, p.Pool, "SELECT doc FROM bids WHERE hash = $1", hash)
}

func (p *Postgres) FindChildren(ctx context.Context, parent string, t contracts.ActionType) ([]BidRecord, error) {
	rows, err := p.Pool.Query(ctx,
		"SELECT doc FROM bids WHERE parent = $1 AND action_type = $2 ORDER BY seq", parent, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BidRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var b BidRecord
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("decode bid: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *Postgres) SetOrderStatus(ctx context.Context, bidHash string, status contracts.OrderStatus) (bool, error) {
	before := contracts.OrderStatusesBefore(status)
	from := make([]string, len(before))
	for i, s := range before {
		from[i] = string(s)
	}
	tag, err := p.Pool.Exec(ctx, setOrderStatusSQL, bidHash, string(status), from)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	_, found, err := p.FindBid(ctx, bidHash)
	if err != nil {
		return false, err
	}
	if !found {
		return false, fmt.Errorf("bid %s: %w", bidHash, ErrNotFound)
	}
	return false, nil
}

func (p *Postgres) SaveProposal(ctx context.Context, pr Proposal) (bool, error) {
	pr.CreatedAt = p.Now()
	return p.upsertDoc(ctx, upsertProposalSQL, pr, pr.Hash)
}

func (p *Postgres) FindProposal(ctx context.Context, hash string) (Proposal, bool, error) {
	return findDoc[Proposal](ctx, p.Pool, "SELECT doc FROM proposals WHERE hash = $1", hash)
}

func (p *Postgres) SaveVote(ctx context.Context, v Vote) (bool, error) {
	v.CreatedAt = p.Now()
	raw, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	tag, err := p.Pool.Exec(ctx, upsertVoteSQL, v.ProposalHash, v.Voter, v.ProposalOptionHash, v.Generated, raw)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) FindVote(ctx context.Context, proposalHash, voter string) (Vote, bool, error) {
	return findDoc[Vote](ctx, p.Pool,
		"SELECT doc FROM votes WHERE proposal_hash = $1 AND voter = $2", proposalHash, voter)
}

func (p *Postgres) CountVotes(ctx context.Context, proposalHash string) (map[string]int, error) {
	rows, err := p.Pool.Query(ctx,
		"SELECT option_hash, count(*) FROM votes WHERE proposal_hash = $1 GROUP BY option_hash", proposalHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			option string
			n      int64
		)
		if err := rows.Scan(&option, &n); err != nil {
			return nil, err
		}
		out[option] = int(n)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveComment(ctx context.Context, c Comment) (bool, error) {
	c.CreatedAt = p.Now()
	return p.upsertDoc(ctx, upsertCommentSQL, c, c.Hash)
}

func (p *Postgres) FindComment(ctx context.Context, hash string) (Comment, bool, error) {
	return findDoc[Comment](ctx, p.Pool, "SELECT doc FROM comments WHERE hash = $1", hash)
}

var _ Store = (*Postgres)(nil)
