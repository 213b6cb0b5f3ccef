package export

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/golang/glog"
	// registers the "sqlite" driver
	_ "modernc.org/sqlite"

	"github.com/robotalks/iris/pkg/record"
)

const schema = `
CREATE TABLE IF NOT EXISTS telemetry (
	memory      TEXT    NOT NULL,
	address     INTEGER NOT NULL,
	unix_time   INTEGER NOT NULL,
	date        TEXT    NOT NULL,
	uptime_ms   INTEGER NOT NULL,
	pressure    INTEGER,
	altitude    INTEGER,
	vspeed_avg  INTEGER, vspeed_max  INTEGER, vspeed_min  INTEGER,
	temp0       INTEGER, temp1       INTEGER, temp2       INTEGER,
	acc_x_avg   INTEGER, acc_x_max   INTEGER, acc_x_min   INTEGER,
	acc_y_avg   INTEGER, acc_y_max   INTEGER, acc_y_min   INTEGER,
	acc_z_avg   INTEGER, acc_z_max   INTEGER, acc_z_min   INTEGER,
	voltage_avg INTEGER, voltage_max INTEGER, voltage_min INTEGER,
	current_avg INTEGER, current_max INTEGER, current_min INTEGER,
	state       INTEGER NOT NULL,
	sub_state   INTEGER NOT NULL,
	switches    INTEGER NOT NULL,
	errors      INTEGER NOT NULL,
	PRIMARY KEY (memory, address)
);
CREATE TABLE IF NOT EXISTS events (
	memory    TEXT    NOT NULL,
	address   INTEGER NOT NULL,
	unix_time INTEGER NOT NULL,
	date      TEXT    NOT NULL,
	uptime_ms INTEGER NOT NULL,
	state     INTEGER NOT NULL,
	sub_state INTEGER NOT NULL,
	code      INTEGER NOT NULL,
	name      TEXT    NOT NULL,
	payload   BLOB    NOT NULL,
	PRIMARY KEY (memory, address)
);
CREATE INDEX IF NOT EXISTS telemetry_time ON telemetry (unix_time);
CREATE INDEX IF NOT EXISTS events_time ON events (unix_time);
`

const insertTelemetry = `INSERT OR REPLACE INTO telemetry VALUES
	(?,?,?,?,?,?,?, ?,?,?, ?,?,?, ?,?,?, ?,?,?, ?,?,?, ?,?,?, ?,?,?, ?,?,?,?)`

const insertEvent = `INSERT OR REPLACE INTO events VALUES (?,?,?,?,?,?,?,?,?,?)`

// DB is an export database.
type DB struct {
	*sql.DB
}

// OpenDB opens or creates the SQLite database at path and its tables.
func OpenDB(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &DB{DB: db}, nil
}

// nullable maps an unreadable temperature to NULL.
func nullable(v int64) interface{} {
	if v == int64(record.Sentinel) {
		return nil
	}
	return v
}

func statArgs(args []interface{}, s record.Stat) []interface{} {
	return append(args, int64(s.Avg), int64(s.Max), int64(s.Min))
}

func (db *DB) insert(ctx context.Context, query string, n int, args func(int) []interface{}) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// InsertTelemetry stores rows read from memory. Rows already present
// at the same address are replaced.
func (db *DB) InsertTelemetry(ctx context.Context, memory string, rows []TelemetryRow) error {
	err := db.insert(ctx, insertTelemetry, len(rows), func(i int) []interface{} {
		r := &rows[i]
		args := []interface{}{memory, int64(r.Addr), int64(r.UnixTime), record.FormatDate(r.UnixTime), int64(r.UptimeMs)}
		if r.Altitude == int32(record.Sentinel) && r.Pressure == uint32(record.Sentinel) {
			args = append(args, nil, nil)
		} else {
			args = append(args, int64(r.Pressure), int64(r.Altitude))
		}
		args = statArgs(args, r.VerticalSpeed)
		for _, t := range r.Temperatures {
			args = append(args, nullable(int64(t)))
		}
		args = statArgs(args, r.AccX)
		args = statArgs(args, r.AccY)
		args = statArgs(args, r.AccZ)
		args = statArgs(args, r.Voltage)
		args = statArgs(args, r.Current)
		return append(args, int64(r.State), int64(r.SubState), int64(r.Switches), int64(r.Errors))
	})
	if err != nil {
		return fmt.Errorf("insert %s telemetry: %w", memory, err)
	}
	glog.V(1).Infof("%s: %d telemetry rows", memory, len(rows))
	return nil
}

// InsertEvents stores rows read from memory.
func (db *DB) InsertEvents(ctx context.Context, memory string, rows []EventRow) error {
	err := db.insert(ctx, insertEvent, len(rows), func(i int) []interface{} {
		r := &rows[i]
		return []interface{}{
			memory, int64(r.Addr), int64(r.UnixTime), record.FormatDate(r.UnixTime), int64(r.UptimeMs),
			int64(r.State), int64(r.SubState), int64(r.Code), r.Code.String(), r.Payload[:],
		}
	})
	if err != nil {
		return fmt.Errorf("insert %s events: %w", memory, err)
	}
	glog.V(1).Infof("%s: %d event rows", memory, len(rows))
	return nil
}
