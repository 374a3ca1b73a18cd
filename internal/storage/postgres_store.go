package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/newrelic/go-agent/v3/integrations/nrpq" // registers "nrpostgres"

	"github.com/example/carpool-match/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS commuters (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL DEFAULT '',
	email                TEXT NOT NULL DEFAULT '',
	image                TEXT NOT NULL DEFAULT '',
	bio                  TEXT NOT NULL DEFAULT '',
	preferred_name       TEXT NOT NULL DEFAULT '',
	pronouns             TEXT NOT NULL DEFAULT '',
	role                 TEXT NOT NULL,
	status               TEXT NOT NULL,
	seat_avail           INTEGER NOT NULL DEFAULT 0 CHECK (seat_avail >= 0),
	company_name         TEXT NOT NULL DEFAULT '',
	company_address      TEXT NOT NULL DEFAULT '',
	company_lat          DOUBLE PRECISION NOT NULL DEFAULT 0,
	company_lon          DOUBLE PRECISION NOT NULL DEFAULT 0,
	start_location       TEXT NOT NULL DEFAULT '',
	start_lat            DOUBLE PRECISION NOT NULL DEFAULT 0,
	start_lon            DOUBLE PRECISION NOT NULL DEFAULT 0,
	company_poi_address  TEXT NOT NULL DEFAULT '',
	company_poi_lat      DOUBLE PRECISION NOT NULL DEFAULT 0,
	company_poi_lon      DOUBLE PRECISION NOT NULL DEFAULT 0,
	start_poi_location   TEXT NOT NULL DEFAULT '',
	start_poi_lat        DOUBLE PRECISION NOT NULL DEFAULT 0,
	start_poi_lon        DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_onboarded         BOOLEAN NOT NULL DEFAULT FALSE,
	days_working         TEXT NOT NULL DEFAULT '0,0,0,0,0,0,0',
	start_time           TIMESTAMPTZ,
	end_time             TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS commuters_pool_idx ON commuters (status, is_onboarded);

CREATE TABLE IF NOT EXISTS carpool_groups (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS carpool_group_members (
	group_id    TEXT NOT NULL REFERENCES carpool_groups (id) ON DELETE CASCADE,
	commuter_id TEXT NOT NULL REFERENCES commuters (id) ON DELETE CASCADE,
	PRIMARY KEY (group_id, commuter_id)
);
CREATE INDEX IF NOT EXISTS carpool_group_members_commuter_idx ON carpool_group_members (commuter_id);
`

const selectColumns = `id, name, email, image, bio, preferred_name, pronouns, role, status, seat_avail,
	company_name, company_address, company_lat, company_lon, start_location, start_lat, start_lon,
	company_poi_address, company_poi_lat, company_poi_lon, start_poi_location, start_poi_lat, start_poi_lon,
	is_onboarded, days_working, start_time, end_time, created_at, updated_at`

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the pool. With instrumented set, queries go through
// the New Relic "nrpostgres" driver and are traced when the context carries
// a transaction.
func NewPostgresStore(ctx context.Context, dsn string, instrumented bool) (*PostgresStore, error) {
	driver := "postgres"
	if instrumented {
		driver = "nrpostgres"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

// Groups returns a GroupStore sharing this connection pool.
func (p *PostgresStore) Groups() *PostgresGroupStore { return &PostgresGroupStore{db: p.db} }

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) Get(ctx context.Context, id string) (*models.Commuter, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM commuters WHERE id = $1`, id)
	c, err := scanCommuter(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Pool listings order by byte value so ties rank the same as MemoryStore
// whatever the database locale.
const (
	listPoolQuery = `SELECT ` + selectColumns + ` FROM commuters
		WHERE status = $1 AND is_onboarded ORDER BY id COLLATE "C"`
	listCandidatesQuery = `SELECT ` + selectColumns + ` FROM commuters
		WHERE status = $1 AND is_onboarded AND id <> $2 ORDER BY id COLLATE "C"`
)

func (p *PostgresStore) ListPool(ctx context.Context) ([]models.Commuter, error) {
	return p.query(ctx, listPoolQuery, models.StatusActive)
}

func (p *PostgresStore) ListCandidates(ctx context.Context, subjectID string) ([]models.Commuter, error) {
	return p.query(ctx, listCandidatesQuery, models.StatusActive, subjectID)
}

func (p *PostgresStore) query(ctx context.Context, q string, args ...any) ([]models.Commuter, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Commuter
	for rows.Next() {
		c, err := scanCommuter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Upsert(ctx context.Context, c *models.Commuter) error {
	row := p.db.QueryRowContext(ctx, `INSERT INTO commuters (
		id, name, email, image, bio, preferred_name, pronouns, role, status, seat_avail,
		company_name, company_address, company_lat, company_lon, start_location, start_lat, start_lon,
		company_poi_address, company_poi_lat, company_poi_lon, start_poi_location, start_poi_lat, start_poi_lon,
		is_onboarded, days_working, start_time, end_time)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name, email = EXCLUDED.email, image = EXCLUDED.image, bio = EXCLUDED.bio,
		preferred_name = EXCLUDED.preferred_name, pronouns = EXCLUDED.pronouns,
		role = EXCLUDED.role, status = EXCLUDED.status, seat_avail = EXCLUDED.seat_avail,
		company_name = EXCLUDED.company_name, company_address = EXCLUDED.company_address,
		company_lat = EXCLUDED.company_lat, company_lon = EXCLUDED.company_lon,
		start_location = EXCLUDED.start_location, start_lat = EXCLUDED.start_lat, start_lon = EXCLUDED.start_lon,
		company_poi_address = EXCLUDED.company_poi_address,
		company_poi_lat = EXCLUDED.company_poi_lat, company_poi_lon = EXCLUDED.company_poi_lon,
		start_poi_location = EXCLUDED.start_poi_location,
		start_poi_lat = EXCLUDED.start_poi_lat, start_poi_lon = EXCLUDED.start_poi_lon,
		is_onboarded = EXCLUDED.is_onboarded, days_working = EXCLUDED.days_working,
		start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time,
		updated_at = now()
	RETURNING created_at, updated_at`,
		c.ID, c.Name, c.Email, c.Image, c.Bio, c.PreferredName, c.Pronouns, string(c.Role), string(c.Status), c.SeatAvail,
		c.CompanyName, c.CompanyAddress, c.CompanyCoord.Lat, c.CompanyCoord.Lon, c.StartLocation, c.StartCoord.Lat, c.StartCoord.Lon,
		c.CompanyPOIAddress, c.CompanyPOICoord.Lat, c.CompanyPOICoord.Lon, c.StartPOILocation, c.StartPOICoord.Lat, c.StartPOICoord.Lon,
		c.IsOnboarded, c.DaysWorking, nullTime(c.StartTime), nullTime(c.EndTime))
	return row.Scan(&c.CreatedAt, &c.UpdatedAt)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommuter(s rowScanner) (*models.Commuter, error) {
	var (
		c          models.Commuter
		role       string
		status     string
		start, end sql.NullTime
	)
	err := s.Scan(&c.ID, &c.Name, &c.Email, &c.Image, &c.Bio, &c.PreferredName, &c.Pronouns, &role, &status, &c.SeatAvail,
		&c.CompanyName, &c.CompanyAddress, &c.CompanyCoord.Lat, &c.CompanyCoord.Lon, &c.StartLocation, &c.StartCoord.Lat, &c.StartCoord.Lon,
		&c.CompanyPOIAddress, &c.CompanyPOICoord.Lat, &c.CompanyPOICoord.Lon, &c.StartPOILocation, &c.StartPOICoord.Lat, &c.StartPOICoord.Lon,
		&c.IsOnboarded, &c.DaysWorking, &start, &end, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Role = models.Role(role)
	c.Status = models.Status(status)
	c.StartTime = timeOfDay(start)
	c.EndTime = timeOfDay(end)
	return &c, nil
}

func nullTime(t *models.TimeOfDay) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.Time(), Valid: true}
}

func timeOfDay(t sql.NullTime) *models.TimeOfDay {
	if !t.Valid {
		return nil
	}
	v := models.TimeOfDayFromTime(t.Time)
	return &v
}
