package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"horoscope/internal/models"
)

// horoscopeColumns is the standard column list for horoscope queries.
const horoscopeColumns = `id, level, description, note, created_at, updated_at`

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HoroscopeReader is the read surface used to pick a random horoscope.
type HoroscopeReader interface {
	CountHoroscopes(ctx context.Context, excludeID int64) (int, error)
	HoroscopeAt(ctx context.Context, offset int, excludeID int64) (models.Horoscope, error)
}

// scanHoroscope scans a row into a Horoscope.
func scanHoroscope(row pgx.Row) (models.Horoscope, error) {
	var h models.Horoscope
	var level int16
	err := row.Scan(&h.ID, &level, &h.Description, &h.Note, &h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Horoscope{}, ErrHoroscopeNotFound
	}
	if err != nil {
		return models.Horoscope{}, err
	}
	h.Level = models.Level(level)
	return h, nil
}

// scanHoroscopes scans multiple rows into a slice of Horoscopes.
func scanHoroscopes(rows pgx.Rows) ([]models.Horoscope, error) {
	defer rows.Close()

	horoscopes := []models.Horoscope{}
	for rows.Next() {
		h, err := scanHoroscope(rows)
		if err != nil {
			return nil, err
		}
		horoscopes = append(horoscopes, h)
	}

	return horoscopes, rows.Err()
}

// Eligibility filter shared by the count and offset queries. An exclude id of
// zero or less excludes nothing.
const eligibleWhere = `WHERE ($1::bigint <= 0 OR id <> $1)`

func countHoroscopes(ctx context.Context, q querier, excludeID int64) (int, error) {
	var count int
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM horoscopes `+eligibleWhere, excludeID).Scan(&count)
	return count, err
}

func horoscopeAt(ctx context.Context, q querier, offset int, excludeID int64) (models.Horoscope, error) {
	if offset < 0 {
		return models.Horoscope{}, ErrHoroscopeNotFound
	}
	query := `SELECT ` + horoscopeColumns + ` FROM horoscopes ` + eligibleWhere + `
		ORDER BY id
		LIMIT 1 OFFSET $2`
	return scanHoroscope(q.QueryRow(ctx, query, excludeID, offset))
}

// CountHoroscopes returns the number of horoscopes, minus excludeID when positive.
func (d *DB) CountHoroscopes(ctx context.Context, excludeID int64) (int, error) {
	return countHoroscopes(ctx, d.Pool, excludeID)
}

// HoroscopeAt returns the horoscope at offset in id order, skipping excludeID.
func (d *DB) HoroscopeAt(ctx context.Context, offset int, excludeID int64) (models.Horoscope, error) {
	return horoscopeAt(ctx, d.Pool, offset, excludeID)
}

// txReader runs the reader queries inside a transaction.
type txReader struct {
	tx pgx.Tx
}

func (r txReader) CountHoroscopes(ctx context.Context, excludeID int64) (int, error) {
	return countHoroscopes(ctx, r.tx, excludeID)
}

func (r txReader) HoroscopeAt(ctx context.Context, offset int, excludeID int64) (models.Horoscope, error) {
	return horoscopeAt(ctx, r.tx, offset, excludeID)
}

// Snapshot runs fn against a read-only REPEATABLE READ transaction so every
// read inside fn sees the same set of rows.
func (d *DB) Snapshot(ctx context.Context, fn func(HoroscopeReader) error) error {
	tx, err := d.Pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(txReader{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetHoroscopeByID retrieves a horoscope by its ID.
func (d *DB) GetHoroscopeByID(ctx context.Context, id int64) (models.Horoscope, error) {
	query := `SELECT ` + horoscopeColumns + ` FROM horoscopes WHERE id = $1`
	return scanHoroscope(d.Pool.QueryRow(ctx, query, id))
}

// ListHoroscopes returns all horoscopes ordered by id. A non-empty search
// matches description or note case-insensitively.
func (d *DB) ListHoroscopes(ctx context.Context, search string) ([]models.Horoscope, error) {
	search = strings.TrimSpace(search)
	query := `
		SELECT ` + horoscopeColumns + `
		FROM horoscopes
		WHERE $1 = '' OR description ILIKE $2 OR note ILIKE $2
		ORDER BY id
	`
	rows, err := d.Pool.Query(ctx, query, search, "%"+escapeLike(search)+"%")
	if err != nil {
		return nil, err
	}
	return scanHoroscopes(rows)
}

// CreateHoroscope inserts a new horoscope. The input must already be validated.
func (d *DB) CreateHoroscope(ctx context.Context, in models.HoroscopeInput) (models.Horoscope, error) {
	query := `
		INSERT INTO horoscopes (level, description, note)
		VALUES ($1, $2, $3)
		RETURNING ` + horoscopeColumns
	return scanHoroscope(d.Pool.QueryRow(ctx, query, in.Level, in.Description, in.Note))
}

// UpdateHoroscope replaces the fields of an existing horoscope.
func (d *DB) UpdateHoroscope(ctx context.Context, id int64, in models.HoroscopeInput) (models.Horoscope, error) {
	query := `
		UPDATE horoscopes
		SET level = $2, description = $3, note = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + horoscopeColumns
	return scanHoroscope(d.Pool.QueryRow(ctx, query, id, in.Level, in.Description, in.Note))
}

// DeleteHoroscope deletes a horoscope by ID.
func (d *DB) DeleteHoroscope(ctx context.Context, id int64) error {
	result, err := d.Pool.Exec(ctx, `DELETE FROM horoscopes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrHoroscopeNotFound
	}
	return nil
}

// CountHoroscopesByLevel returns the number of horoscopes per level.
func (d *DB) CountHoroscopesByLevel(ctx context.Context) (map[models.Level]int, error) {
	rows, err := d.Pool.Query(ctx, `SELECT level, COUNT(*) FROM horoscopes GROUP BY level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.Level]int)
	for rows.Next() {
		var level int16
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, err
		}
		counts[models.Level(level)] = count
	}
	return counts, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike escapes LIKE wildcards so user search text matches literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// HoroscopeStore is the record store surface used by the admin handlers.
type HoroscopeStore interface {
	ListHoroscopes(ctx context.Context, search string) ([]models.Horoscope, error)
	GetHoroscopeByID(ctx context.Context, id int64) (models.Horoscope, error)
	CreateHoroscope(ctx context.Context, in models.HoroscopeInput) (models.Horoscope, error)
	UpdateHoroscope(ctx context.Context, id int64, in models.HoroscopeInput) (models.Horoscope, error)
	DeleteHoroscope(ctx context.Context, id int64) error
}
