package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lunalash/studio/libs/db"
	"github.com/lunalash/studio/services/booking-service/internal/model"
)

// validID filters out ids that cannot be uuids so lookups miss instead of erroring.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func validIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			out = append(out, id)
		}
	}
	return out
}

// notFound maps pgx.ErrNoRows to model.ErrNotFound.
func notFound(err error) error {
	if db.IsNoRows(err) {
		return model.ErrNotFound
	}
	return err
}

func affected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// ReadyCheck verifies the schema is migrated, not just that the pool answers.
func ReadyCheck(pool *db.Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := db.ReadyCheck(pool)(ctx); err != nil {
			return err
		}
		var ok bool
		if err := pool.QueryRow(ctx, `SELECT to_regclass('public.appointments') IS NOT NULL`).Scan(&ok); err != nil {
			return err
		}
		if !ok {
			return errors.New("schema not migrated")
		}
		return nil
	}
}
