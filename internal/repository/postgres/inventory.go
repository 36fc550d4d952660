package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kirinyoku/tix-nights/internal/domain"
	"github.com/kirinyoku/tix-nights/internal/repository"
)

// InventoryStore keeps inventory records and holds in two tables. A hold's
// store TTL is its expires_at column: expired rows are invisible to reads
// and removed by PurgeExpired.
type InventoryStore struct {
	db    DB
	store *Store
}

var (
	_ repository.InventoryStore = (*InventoryStore)(nil)
	_ repository.Purger         = (*InventoryStore)(nil)
	_ repository.Replacer       = (*InventoryStore)(nil)
)

// With returns a copy of the store bound to db, e.g. a transaction.
func (s *InventoryStore) With(db DB) *InventoryStore {
	cp := *s
	cp.db = db
	return &cp
}

func (s *InventoryStore) GetInventory(ctx context.Context, nightKey string) (domain.InventoryRecord, error) {
	const op = "postgresrepo.InventoryStore.GetInventory"

	var sold domain.Quantities
	err := s.db.QueryRow(ctx,
		`SELECT sold FROM inventory WHERE night_key = $1`,
		nightKey,
	).Scan(&sold)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.InventoryRecord{Sold: domain.Quantities{}}, nil
	}
	if err != nil {
		return domain.InventoryRecord{}, wrapDBErr(op, err)
	}
	if sold == nil {
		sold = domain.Quantities{}
	}

	return domain.InventoryRecord{Sold: sold}, nil
}

func (s *InventoryStore) SetInventory(ctx context.Context, nightKey string, rec domain.InventoryRecord) error {
	const op = "postgresrepo.InventoryStore.SetInventory"

	sold := rec.Sold
	if sold == nil {
		sold = domain.Quantities{}
	}

	if _, err := s.db.Exec(ctx,
		`INSERT INTO inventory (night_key, sold, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (night_key) DO UPDATE
		 SET sold = EXCLUDED.sold, updated_at = now()`,
		nightKey, sold,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// ReplaceInventory overwrites the records of every night in recs inside one
// transaction. Writers are locked out of the inventory table until it
// commits, so no confirmed sale lands between the read and the write.
func (s *InventoryStore) ReplaceInventory(ctx context.Context, recs map[string]domain.InventoryRecord) (map[string]domain.InventoryRecord, error) {
	const op = "postgresrepo.InventoryStore.ReplaceInventory"

	keys := make([]string, 0, len(recs))
	for k := range recs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	prev := make(map[string]domain.InventoryRecord, len(recs))

	err := s.store.RunTx(ctx, nil,
		func(ctx context.Context, tx DB) error {
			if _, err := tx.Exec(ctx, `LOCK TABLE inventory IN SHARE ROW EXCLUSIVE MODE`); err != nil {
				return err
			}

			txs := s.With(tx)
			for _, k := range keys {
				rec, err := txs.GetInventory(ctx, k)
				if err != nil {
					return err
				}
				prev[k] = rec

				if err := txs.SetInventory(ctx, k, recs[k]); err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		if errors.Is(err, repository.ErrUnavailable) || errors.Is(err, repository.ErrCorrupt) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return nil, wrapDBErr(op, err)
	}

	return prev, nil
}

func (s *InventoryStore) GetHold(ctx context.Context, sessionID, nightKey string) (domain.ReservationHold, error) {
	const op = "postgresrepo.InventoryStore.GetHold"

	h := domain.ReservationHold{SessionID: sessionID, NightKey: nightKey}
	err := s.db.QueryRow(ctx,
		`SELECT quantities, created_at
		 FROM reservation_holds
		 WHERE session_id = $1 AND night_key = $2 AND expires_at > now()`,
		sessionID, nightKey,
	).Scan(&h.Quantities, &h.CreatedAt)
	if err != nil {
		return domain.ReservationHold{}, wrapDBErr(op, err)
	}

	return h, nil
}

func (s *InventoryStore) PutHold(ctx context.Context, hold domain.ReservationHold, ttl time.Duration) error {
	const op = "postgresrepo.InventoryStore.PutHold"

	if _, err := s.db.Exec(ctx,
		`INSERT INTO reservation_holds (session_id, night_key, quantities, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, now() + make_interval(secs => $5))
		 ON CONFLICT (session_id, night_key) DO UPDATE
		 SET quantities = EXCLUDED.quantities,
		     created_at = EXCLUDED.created_at,
		     expires_at = EXCLUDED.expires_at`,
		hold.SessionID, hold.NightKey, hold.Quantities, hold.CreatedAt, ttl.Seconds(),
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (s *InventoryStore) DeleteHold(ctx context.Context, sessionID, nightKey string) error {
	const op = "postgresrepo.InventoryStore.DeleteHold"

	if _, err := s.db.Exec(ctx,
		`DELETE FROM reservation_holds WHERE session_id = $1 AND night_key = $2`,
		sessionID, nightKey,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (s *InventoryStore) ListHoldsForNight(ctx context.Context, nightKey string) ([]domain.ReservationHold, error) {
	return s.list(ctx, "postgresrepo.InventoryStore.ListHoldsForNight",
		`WHERE night_key = $1 AND expires_at > now()`, nightKey)
}

func (s *InventoryStore) ListHoldsForSession(ctx context.Context, sessionID string) ([]domain.ReservationHold, error) {
	return s.list(ctx, "postgresrepo.InventoryStore.ListHoldsForSession",
		`WHERE session_id = $1 AND expires_at > now()`, sessionID)
}

func (s *InventoryStore) ListHolds(ctx context.Context) ([]domain.ReservationHold, error) {
	return s.list(ctx, "postgresrepo.InventoryStore.ListHolds", `WHERE expires_at > now()`)
}

// PurgeExpired removes holds past their store TTL.
func (s *InventoryStore) PurgeExpired(ctx context.Context) (int64, error) {
	const op = "postgresrepo.InventoryStore.PurgeExpired"

	tag, err := s.db.Exec(ctx, `DELETE FROM reservation_holds WHERE expires_at <= now()`)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}

func (s *InventoryStore) list(ctx context.Context, op, where string, args ...any) ([]domain.ReservationHold, error) {
	rows, err := s.db.Query(ctx,
		`SELECT session_id, night_key, quantities, created_at
		 FROM reservation_holds `+where+`
		 ORDER BY created_at, session_id`,
		args...,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	holds, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ReservationHold, error) {
		var h domain.ReservationHold
		err := row.Scan(&h.SessionID, &h.NightKey, &h.Quantities, &h.CreatedAt)
		return h, err
	})
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	if holds == nil {
		holds = []domain.ReservationHold{}
	}

	return holds, nil
}
