package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/matheus3301/roombook/internal/domain"
	"go.uber.org/zap"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// PostgresClient writes directly to the backend's Postgres database.
type PostgresClient struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenPostgres connects to dsn with lib/pq and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresClient, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	c := NewPostgresClient(db, logger)
	if err := c.Ping(ctx); err != nil {
		// The daemon starts offline; the network monitor keeps probing.
		c.logger.Warn("postgres not reachable at startup", zap.Error(err))
	}
	return c, nil
}

// NewPostgresClient wraps an existing database handle.
func NewPostgresClient(db *sql.DB, logger *zap.Logger) *PostgresClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresClient{db: db, logger: logger}
}

// Close releases the connection pool.
func (c *PostgresClient) Close() error {
	return c.db.Close()
}

// Upsert inserts record or updates every supplied column of the row with the same id.
func (c *PostgresClient) Upsert(ctx context.Context, table string, record map[string]any) error {
	query, args, err := upsertQuery(table, record)
	if err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return classifyPostgres(fmt.Errorf("upsert %s: %w", table, err))
	}
	return nil
}

// Delete removes the row with the given id.
func (c *PostgresClient) Delete(ctx context.Context, table, id string) error {
	query, args, err := deleteQuery(table, id)
	if err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return classifyPostgres(fmt.Errorf("delete %s: %w", table, err))
	}
	return nil
}

// ListRooms returns every remote room ordered by name.
func (c *PostgresClient) ListRooms(ctx context.Context) ([]domain.Room, error) {
	query, args, err := psql.Select(columns[domain.TableRooms]...).
		From(domain.TableRooms).
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build rooms query: %v", ErrPermanent, err)
	}
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyPostgres(fmt.Errorf("list rooms: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var rooms []domain.Room
	for rows.Next() {
		var (
			r        domain.Room
			building sql.NullString
			floor    sql.NullString
			features []byte
			status   string
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Capacity, &building, &floor, &features, &status, &r.UpdatedAt); err != nil {
			return nil, classifyPostgres(fmt.Errorf("scan room: %w", err))
		}
		r.Building = building.String
		r.Floor = floor.String
		r.Status = domain.RoomStatus(status)
		if len(features) > 0 {
			if err := json.Unmarshal(features, &r.Features); err != nil {
				return nil, fmt.Errorf("%w: room %s features: %v", ErrPermanent, r.ID, err)
			}
		}
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPostgres(err)
	}
	return rooms, nil
}

// ListBookingsSince returns bookings updated strictly after since, oldest first.
func (c *PostgresClient) ListBookingsSince(ctx context.Context, since time.Time) ([]domain.Booking, error) {
	q := psql.Select(columns[domain.TableBookings]...).
		From(domain.TableBookings).
		OrderBy("updated_at")
	if !since.IsZero() {
		q = q.Where(squirrel.Gt{"updated_at": since.UTC()})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build bookings query: %v", ErrPermanent, err)
	}
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyPostgres(fmt.Errorf("list bookings: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var bookings []domain.Booking
	for rows.Next() {
		var (
			b            domain.Booking
			status       string
			priority     sql.NullString
			recurrenceID sql.NullString
			department   sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.RoomID, &b.UserID, &b.Title, &b.Start, &b.End,
			&status, &priority, &recurrenceID, &department, &b.UpdatedAt); err != nil {
			return nil, classifyPostgres(fmt.Errorf("scan booking: %w", err))
		}
		b.Status = domain.BookingStatus(status)
		if b.Priority, err = domain.ParsePriority(priority.String); err != nil {
			return nil, fmt.Errorf("%w: booking %s: %v", ErrPermanent, b.ID, err)
		}
		b.RecurrenceID = recurrenceID.String
		b.Department = department.String
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPostgres(err)
	}
	return bookings, nil
}

// Ping checks the database connection.
func (c *PostgresClient) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping postgres: %v", ErrTransient, err)
	}
	return nil
}

// upsertQuery builds INSERT ... ON CONFLICT (id) DO UPDATE for the columns
// present in record. Columns are sorted so the statement text is stable.
func upsertQuery(table string, record map[string]any) (string, []any, error) {
	if err := ValidateRecord(table, record); err != nil {
		return "", nil, err
	}
	cols := make([]string, 0, len(record))
	for col := range record {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	values := make([]any, 0, len(cols))
	var sets []string
	for _, col := range cols {
		v, err := columnValue(record[col])
		if err != nil {
			return "", nil, fmt.Errorf("%w: %s.%s: %v", ErrPermanent, table, col, err)
		}
		values = append(values, v)
		if col != "id" {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}

	suffix := "ON CONFLICT (id) DO NOTHING"
	if len(sets) > 0 {
		suffix = "ON CONFLICT (id) DO UPDATE SET " + strings.Join(sets, ", ")
	}
	query, args, err := psql.Insert(table).Columns(cols...).Values(values...).Suffix(suffix).ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("%w: build upsert: %v", ErrPermanent, err)
	}
	return query, args, nil
}

func deleteQuery(table, id string) (string, []any, error) {
	if err := ValidateTable(table); err != nil {
		return "", nil, err
	}
	query, args, err := psql.Delete(table).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("%w: build delete: %v", ErrPermanent, err)
	}
	return query, args, nil
}

// columnValue converts decoded JSON values into driver values.
// Arrays and objects are sent as JSON text for jsonb columns.
func columnValue(v any) (any, error) {
	switch v := v.(type) {
	case []any, map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return v, nil
	}
}

// transientClasses are SQLSTATE classes worth retrying.
var transientClasses = []pq.ErrorClass{
	"08", // connection exception
	"40", // transaction rollback
	"53", // insufficient resources
	"57", // operator intervention
	"58", // system error
}

func classifyPostgres(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if slices.Contains(transientClasses, pqErr.Code.Class()) {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	// Without a server error code the failure happened in transport.
	return fmt.Errorf("%w: %v", ErrTransient, err)
}
