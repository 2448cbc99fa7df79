package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// writerLockKey is the advisory lock every Update holds until commit, so
// writers run one at a time exactly like the in-memory store.
const writerLockKey int64 = 0x4c57_0001

// Postgres persists state in PostgreSQL. Each Update is one database
// transaction; nothing it wrote survives an error.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres constructs a Postgres-backed store.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Update runs fn in a serialized read-write transaction.
func (p *Postgres) Update(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, writerLockKey); err != nil {
		return fmt.Errorf("acquire writer lock: %w", err)
	}
	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// View runs fn in a read-only repeatable-read snapshot.
func (p *Postgres) View(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(&pgTx{tx: tx, readOnly: true}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// PendingEvents returns undelivered outbox events in append order. A
// non-positive limit returns all of them.
func (p *Postgres) PendingEvents(ctx context.Context, limit int) ([]Event, error) {
	query := `SELECT id, kind, source, payload::text, created_at
        FROM outbox WHERE delivered_at IS NULL ORDER BY seq`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e       Event
			source  []byte
			payload string
		)
		if err := rows.Scan(&e.ID, &e.Kind, &source, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Source = common.BytesToAddress(source)
		e.Payload = []byte(payload)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkDelivered stamps the delivery time on the given events.
func (p *Postgres) MarkDelivered(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	_, err := p.db.Exec(ctx, `UPDATE outbox SET delivered_at = $1 WHERE id::text = ANY($2::text[])`, time.Now().UTC(), keys)
	return err
}

type pgTx struct {
	tx       pgx.Tx
	readOnly bool
}

func (t *pgTx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

func parseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("decode amount %q: %w", s, err)
	}
	return v, nil
}

func (t *pgTx) scanAmount(ctx context.Context, query string, args ...any) (*uint256.Int, error) {
	var s string
	if err := t.tx.QueryRow(ctx, query, args...).Scan(&s); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(uint256.Int), nil
		}
		return nil, err
	}
	return parseAmount(s)
}

func (t *pgTx) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var ok bool
	if err := t.tx.QueryRow(ctx, query, args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (t *pgTx) exec(ctx context.Context, query string, args ...any) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, query, args...)
	return err
}

func (t *pgTx) Contract(ctx context.Context, name string) (Contract, bool, error) {
	var (
		c                      Contract
		address, owner, factor []byte
		nonce                  int64
	)
	err := t.tx.QueryRow(ctx, `SELECT name, address, owner, factory, nonce FROM contracts WHERE name = $1`, name).
		Scan(&c.Name, &address, &owner, &factor, &nonce)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, false, nil
		}
		return Contract{}, false, err
	}
	c.Address = common.BytesToAddress(address)
	c.Owner = common.BytesToAddress(owner)
	c.Factory = common.BytesToAddress(factor)
	c.Nonce = uint64(nonce)
	return c, true, nil
}

func (t *pgTx) PutContract(ctx context.Context, c Contract) error {
	return t.exec(ctx, `INSERT INTO contracts (name, address, owner, factory, nonce) VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (name) DO UPDATE SET address = EXCLUDED.address, owner = EXCLUDED.owner,
        factory = EXCLUDED.factory, nonce = EXCLUDED.nonce`,
		c.Name, c.Address.Bytes(), c.Owner.Bytes(), c.Factory.Bytes(), int64(c.Nonce))
}

func (t *pgTx) Token(ctx context.Context, asset common.Address) (Token, bool, error) {
	var (
		tok      Token
		decimals int16
	)
	err := t.tx.QueryRow(ctx, `SELECT symbol, decimals FROM tokens WHERE asset = $1`, asset.Bytes()).Scan(&tok.Symbol, &decimals)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Token{}, false, nil
		}
		return Token{}, false, err
	}
	tok.Asset = asset
	tok.Decimals = uint8(decimals)
	return tok, true, nil
}

func (t *pgTx) PutToken(ctx context.Context, tok Token) error {
	return t.exec(ctx, `INSERT INTO tokens (asset, symbol, decimals) VALUES ($1, $2, $3)
        ON CONFLICT (asset) DO UPDATE SET symbol = EXCLUDED.symbol, decimals = EXCLUDED.decimals`,
		tok.Asset.Bytes(), tok.Symbol, int16(tok.Decimals))
}

func (t *pgTx) Holding(ctx context.Context, holder, asset common.Address) (*uint256.Int, error) {
	return t.scanAmount(ctx, `SELECT amount::text FROM holdings WHERE holder = $1 AND asset = $2`, holder.Bytes(), asset.Bytes())
}

func (t *pgTx) PutHolding(ctx context.Context, holder, asset common.Address, amount *uint256.Int) error {
	return t.exec(ctx, `INSERT INTO holdings (holder, asset, amount) VALUES ($1, $2, $3::text::numeric)
        ON CONFLICT (holder, asset) DO UPDATE SET amount = EXCLUDED.amount`,
		holder.Bytes(), asset.Bytes(), amount.Dec())
}

func (t *pgTx) Allowance(ctx context.Context, owner, spender, asset common.Address) (*uint256.Int, error) {
	return t.scanAmount(ctx, `SELECT amount::text FROM allowances WHERE owner = $1 AND spender = $2 AND asset = $3`,
		owner.Bytes(), spender.Bytes(), asset.Bytes())
}

func (t *pgTx) PutAllowance(ctx context.Context, owner, spender, asset common.Address, amount *uint256.Int) error {
	return t.exec(ctx, `INSERT INTO allowances (owner, spender, asset, amount) VALUES ($1, $2, $3, $4::text::numeric)
        ON CONFLICT (owner, spender, asset) DO UPDATE SET amount = EXCLUDED.amount`,
		owner.Bytes(), spender.Bytes(), asset.Bytes(), amount.Dec())
}

func (t *pgTx) IsAuthorizedCaller(ctx context.Context, caller common.Address) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS (SELECT 1 FROM escrow_callers WHERE caller = $1)`, caller.Bytes())
}

func (t *pgTx) PutAuthorizedCaller(ctx context.Context, caller common.Address) error {
	return t.exec(ctx, `INSERT INTO escrow_callers (caller) VALUES ($1) ON CONFLICT DO NOTHING`, caller.Bytes())
}

func (t *pgTx) IsEscrowWill(ctx context.Context, will common.Address) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS (SELECT 1 FROM escrow_wills WHERE will = $1)`, will.Bytes())
}

func (t *pgTx) PutEscrowWill(ctx context.Context, will common.Address) error {
	return t.exec(ctx, `INSERT INTO escrow_wills (will) VALUES ($1) ON CONFLICT DO NOTHING`, will.Bytes())
}

func (t *pgTx) EscrowAccount(ctx context.Context, will, asset common.Address) (EscrowAccount, bool, error) {
	var (
		owner  []byte
		amount string
	)
	err := t.tx.QueryRow(ctx, `SELECT owner, amount::text FROM escrow_accounts WHERE will = $1 AND asset = $2`,
		will.Bytes(), asset.Bytes()).Scan(&owner, &amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EscrowAccount{Will: will, Asset: asset, Amount: new(uint256.Int)}, false, nil
		}
		return EscrowAccount{}, false, err
	}
	v, err := parseAmount(amount)
	if err != nil {
		return EscrowAccount{}, false, err
	}
	return EscrowAccount{Will: will, Asset: asset, Owner: common.BytesToAddress(owner), Amount: v}, true, nil
}

func (t *pgTx) PutEscrowAccount(ctx context.Context, a EscrowAccount) error {
	return t.exec(ctx, `INSERT INTO escrow_accounts (will, asset, owner, amount) VALUES ($1, $2, $3, $4::text::numeric)
        ON CONFLICT (will, asset) DO UPDATE SET owner = EXCLUDED.owner, amount = EXCLUDED.amount`,
		a.Will.Bytes(), a.Asset.Bytes(), a.Owner.Bytes(), a.Amount.Dec())
}

func (t *pgTx) EscrowTotal(ctx context.Context, asset common.Address) (*uint256.Int, error) {
	return t.scanAmount(ctx, `SELECT COALESCE(SUM(amount), 0)::text FROM escrow_accounts WHERE asset = $1`, asset.Bytes())
}

func (t *pgTx) NativeBalance(ctx context.Context, will common.Address) (*uint256.Int, error) {
	return t.scanAmount(ctx, `SELECT amount::text FROM escrow_native WHERE will = $1`, will.Bytes())
}

func (t *pgTx) PutNativeBalance(ctx context.Context, will common.Address, amount *uint256.Int) error {
	return t.exec(ctx, `INSERT INTO escrow_native (will, amount) VALUES ($1, $2::text::numeric)
        ON CONFLICT (will) DO UPDATE SET amount = EXCLUDED.amount`, will.Bytes(), amount.Dec())
}

func (t *pgTx) IsRegisteredWill(ctx context.Context, will common.Address) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS (SELECT 1 FROM registry_wills WHERE will = $1)`, will.Bytes())
}

func (t *pgTx) PutRegisteredWill(ctx context.Context, will common.Address) error {
	return t.exec(ctx, `INSERT INTO registry_wills (will) VALUES ($1) ON CONFLICT DO NOTHING`, will.Bytes())
}

func (t *pgTx) Will(ctx context.Context, address common.Address) (WillRecord, bool, error) {
	var (
		w                                    WillRecord
		testator, factory, escrow, registry []byte
	)
	err := t.tx.QueryRow(ctx, `SELECT testator, factory, escrow, registry, due_date, initialized, created_at
        FROM wills WHERE address = $1`, address.Bytes()).
		Scan(&testator, &factory, &escrow, &registry, &w.DueDate, &w.Initialized, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WillRecord{}, false, nil
		}
		return WillRecord{}, false, err
	}
	w.Address = address
	w.Testator = common.BytesToAddress(testator)
	w.Factory = common.BytesToAddress(factory)
	w.Escrow = common.BytesToAddress(escrow)
	w.Registry = common.BytesToAddress(registry)
	w.CreatedAt = w.CreatedAt.UTC()
	return w, true, nil
}

func (t *pgTx) PutWill(ctx context.Context, w WillRecord) error {
	return t.exec(ctx, `INSERT INTO wills (address, testator, factory, escrow, registry, due_date, initialized, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (address) DO UPDATE SET testator = EXCLUDED.testator, factory = EXCLUDED.factory,
        escrow = EXCLUDED.escrow, registry = EXCLUDED.registry, due_date = EXCLUDED.due_date,
        initialized = EXCLUDED.initialized`,
		w.Address.Bytes(), w.Testator.Bytes(), w.Factory.Bytes(), w.Escrow.Bytes(), w.Registry.Bytes(),
		w.DueDate, w.Initialized, w.CreatedAt.UTC())
}

func (t *pgTx) WillByTestator(ctx context.Context, testator common.Address) (common.Address, bool, error) {
	var will []byte
	if err := t.tx.QueryRow(ctx, `SELECT will FROM creator_wills WHERE testator = $1`, testator.Bytes()).Scan(&will); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.Address{}, false, nil
		}
		return common.Address{}, false, err
	}
	return common.BytesToAddress(will), true, nil
}

func (t *pgTx) PutTestatorWill(ctx context.Context, testator, will common.Address) error {
	return t.exec(ctx, `INSERT INTO creator_wills (testator, will) VALUES ($1, $2)`, testator.Bytes(), will.Bytes())
}

func scanHeir(row pgx.Row) (HeirAllocation, error) {
	var (
		h       HeirAllocation
		wallet  []byte
		tokens  [][]byte
		amounts []string
	)
	if err := row.Scan(&wallet, &h.Index, &tokens, &amounts, &h.Executed); err != nil {
		return HeirAllocation{}, err
	}
	if len(tokens) != len(amounts) {
		return HeirAllocation{}, fmt.Errorf("heir %x: %d tokens but %d amounts", wallet, len(tokens), len(amounts))
	}
	h.Wallet = common.BytesToAddress(wallet)
	h.Tokens = make([]common.Address, len(tokens))
	h.Amounts = make([]*uint256.Int, len(amounts))
	for i := range tokens {
		h.Tokens[i] = common.BytesToAddress(tokens[i])
		v, err := parseAmount(amounts[i])
		if err != nil {
			return HeirAllocation{}, err
		}
		h.Amounts[i] = v
	}
	return h, nil
}

const heirColumns = `wallet, position, tokens, amounts, executed`

func (t *pgTx) Heir(ctx context.Context, will, wallet common.Address) (HeirAllocation, bool, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+heirColumns+` FROM heirs WHERE will = $1 AND wallet = $2`, will.Bytes(), wallet.Bytes())
	h, err := scanHeir(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return HeirAllocation{}, false, nil
		}
		return HeirAllocation{}, false, err
	}
	return h, true, nil
}

func (t *pgTx) Heirs(ctx context.Context, will common.Address) ([]HeirAllocation, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+heirColumns+` FROM heirs WHERE will = $1 ORDER BY position`, will.Bytes())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HeirAllocation
	for rows.Next() {
		h, err := scanHeir(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertHeir(ctx context.Context, will common.Address, h HeirAllocation) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	tokens := make([][]byte, len(h.Tokens))
	for i, tok := range h.Tokens {
		tokens[i] = tok.Bytes()
	}
	amounts := make([]string, len(h.Amounts))
	for i, a := range h.Amounts {
		amounts[i] = a.Dec()
	}
	var position int
	err := t.tx.QueryRow(ctx, `INSERT INTO heirs (will, wallet, position, tokens, amounts, executed)
        VALUES ($1, $2, (SELECT COUNT(*) FROM heirs WHERE will = $1), $3, $4, $5)
        RETURNING position`, will.Bytes(), h.Wallet.Bytes(), tokens, amounts, h.Executed).Scan(&position)
	if err != nil {
		return 0, err
	}
	return position, nil
}

func (t *pgTx) DeleteHeir(ctx context.Context, will, wallet common.Address) error {
	if err := t.writable(); err != nil {
		return err
	}
	var position int
	err := t.tx.QueryRow(ctx, `DELETE FROM heirs WHERE will = $1 AND wallet = $2 RETURNING position`,
		will.Bytes(), wallet.Bytes()).Scan(&position)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	_, err = t.tx.Exec(ctx, `UPDATE heirs SET position = position - 1 WHERE will = $1 AND position > $2`, will.Bytes(), position)
	return err
}

func (t *pgTx) MarkHeirExecuted(ctx context.Context, will, wallet common.Address) (bool, error) {
	if err := t.writable(); err != nil {
		return false, err
	}
	cmd, err := t.tx.Exec(ctx, `UPDATE heirs SET executed = TRUE WHERE will = $1 AND wallet = $2 AND executed = FALSE`,
		will.Bytes(), wallet.Bytes())
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (t *pgTx) WhitelistEntry(ctx context.Context, asset common.Address) (WhitelistEntry, bool, error) {
	var (
		e        WhitelistEntry
		decimals int16
	)
	err := t.tx.QueryRow(ctx, `SELECT allowed, decimals FROM whitelist WHERE asset = $1`, asset.Bytes()).Scan(&e.Allowed, &decimals)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WhitelistEntry{}, false, nil
		}
		return WhitelistEntry{}, false, err
	}
	e.Asset = asset
	e.Decimals = uint8(decimals)
	return e, true, nil
}

func (t *pgTx) PutWhitelistEntry(ctx context.Context, e WhitelistEntry) error {
	return t.exec(ctx, `INSERT INTO whitelist (asset, allowed, decimals) VALUES ($1, $2, $3)
        ON CONFLICT (asset) DO UPDATE SET allowed = EXCLUDED.allowed, decimals = EXCLUDED.decimals`,
		e.Asset.Bytes(), e.Allowed, int16(e.Decimals))
}

func (t *pgTx) Whitelist(ctx context.Context) ([]WhitelistEntry, error) {
	rows, err := t.tx.Query(ctx, `SELECT asset, allowed, decimals FROM whitelist ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WhitelistEntry
	for rows.Next() {
		var (
			e        WhitelistEntry
			asset    []byte
			decimals int16
		)
		if err := rows.Scan(&asset, &e.Allowed, &decimals); err != nil {
			return nil, err
		}
		e.Asset = common.BytesToAddress(asset)
		e.Decimals = uint8(decimals)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *pgTx) AddInheritance(ctx context.Context, heir, will common.Address) error {
	return t.exec(ctx, `INSERT INTO inheritances (heir, will) VALUES ($1, $2) ON CONFLICT DO NOTHING`, heir.Bytes(), will.Bytes())
}

func (t *pgTx) RemoveInheritance(ctx context.Context, heir, will common.Address) error {
	return t.exec(ctx, `DELETE FROM inheritances WHERE heir = $1 AND will = $2`, heir.Bytes(), will.Bytes())
}

func (t *pgTx) InheritedWills(ctx context.Context, heir common.Address) ([]common.Address, error) {
	rows, err := t.tx.Query(ctx, `SELECT will FROM inheritances WHERE heir = $1 ORDER BY seq`, heir.Bytes())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.Address
	for rows.Next() {
		var will []byte
		if err := rows.Scan(&will); err != nil {
			return nil, err
		}
		out = append(out, common.BytesToAddress(will))
	}
	return out, rows.Err()
}

func (t *pgTx) AppendEvent(ctx context.Context, e Event) error {
	return t.exec(ctx, `INSERT INTO outbox (id, kind, source, payload, created_at) VALUES ($1, $2, $3, $4::text::jsonb, $5)`,
		e.ID, e.Kind, e.Source.Bytes(), string(e.Payload), e.CreatedAt.UTC())
}
