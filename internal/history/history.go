package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"makerworld-stats/internal/coordinator"
	"makerworld-stats/internal/snapshot"
	"makerworld-stats/internal/telemetry"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

const report_history_record = "history.record"

// Store keeps one row per published snapshot.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the sqlite database at path, ":memory:"
// is accepted for a throwaway store.
func Open(ctx context.Context, path string) (*Store, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// sqlite only allows one writer, this also keeps :memory: on a single database
	database.SetMaxOpenConns(1)

	_, err = database.ExecContext(ctx, Schema)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullable(c snapshot.Count) sql.NullInt64 {
	return sql.NullInt64{Int64: c.Value, Valid: c.Known}
}

func count(n sql.NullInt64) snapshot.Count {
	if !n.Valid {
		return snapshot.Count{}
	}
	return snapshot.KnownCount(n.Int64)
}

func (s *Store) Record(ctx context.Context, username string, snap snapshot.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`insert into snapshot (
			username, sequence, fetched_at,
			likes, downloads, prints, points, followers, boosts,
			models, payload
		) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		username,
		int64(snap.Sequence),
		snap.FetchedAt.UnixNano(),
		nullable(snap.Stats.Likes),
		nullable(snap.Stats.Downloads),
		nullable(snap.Stats.Prints),
		nullable(snap.Stats.Points),
		nullable(snap.Stats.Followers),
		nullable(snap.Stats.Boosts),
		snap.ModelCount,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

type Entry struct {
	Sequence  uint64
	FetchedAt time.Time
	Stats     snapshot.Stats
	Models    int
	Snapshot  snapshot.Snapshot
}

// Recent returns up to limit entries for username, newest first.
func (s *Store) Recent(ctx context.Context, username string, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`select
			sequence, fetched_at,
			likes, downloads, prints, points, followers, boosts,
			models, payload
		from snapshot
		where username = ?
		order by fetched_at desc, id desc
		limit ?`,
		username,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			sequence  int64
			fetchedAt int64
			likes     sql.NullInt64
			downloads sql.NullInt64
			prints    sql.NullInt64
			points    sql.NullInt64
			followers sql.NullInt64
			boosts    sql.NullInt64
			models    int
			payload   string
		)
		err := rows.Scan(
			&sequence, &fetchedAt,
			&likes, &downloads, &prints, &points, &followers, &boosts,
			&models, &payload,
		)
		if err != nil {
			return nil, err
		}

		var snap snapshot.Snapshot
		err = json.Unmarshal([]byte(payload), &snap)
		if err != nil {
			return nil, fmt.Errorf("decode snapshot %d: %w", sequence, err)
		}

		out = append(out, Entry{
			Sequence:  uint64(sequence),
			FetchedAt: time.Unix(0, fetchedAt).UTC(),
			Stats: snapshot.Stats{
				Likes:     count(likes),
				Downloads: count(downloads),
				Prints:    count(prints),
				Points:    count(points),
				Followers: count(followers),
				Boosts:    count(boosts),
			},
			Models:   models,
			Snapshot: snap,
		})
	}
	return out, rows.Err()
}

// Subscriber records every published snapshot, failures are reported and
// never affect the coordinator.
func (s *Store) Subscriber(ctx context.Context, username string, tel telemetry.API) coordinator.Subscriber {
	tel = telemetry.NewScopedAPI("history", tel)
	return func(update coordinator.Update) {
		if !update.Published {
			return
		}
		err := s.Record(ctx, username, update.Snapshot)
		if err != nil {
			tel.ReportBroken(report_history_record, err)
		}
	}
}
