package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/sdlab1/n-ohlcv/internal/model"
	"github.com/sdlab1/n-ohlcv/internal/store/codec"
)

// ErrInvalidBlock is returned when InsertBlock receives anything other than
// one full, aligned, contiguous block.
var ErrInvalidBlock = errors.New("invalid block")

// Config configures the block store.
type Config struct {
	Path         string // path to the SQLite database file, e.g. "data/ohlcv.db"
	ReadConns    int    // reader pool size (default 4)
	BusyTimeout  time.Duration
	CreateParent bool // create the parent directory of Path
}

// Store is a compressed block store on SQLite used as a key/value table.
// It keeps one writer connection and a separate reader pool, so one ingestion
// writer and any number of query readers can share the file under WAL.
type Store struct {
	writer *sql.DB
	reader *sql.DB
	codec  *codec.Codec
	log    zerolog.Logger

	// OnCommit is called after each committed block (optional).
	OnCommit func(symbol string, candles, storedBytes int, dur time.Duration)
}

// Open opens (or creates) the database and its schema.
func Open(cfg Config, c *codec.Codec, log zerolog.Logger) (*Store, error) {
	if cfg.CreateParent {
		if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite mkdir: %w", err)
			}
		}
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d", cfg.Path, busy.Milliseconds())

	writer, err := sql.Open("sqlite3", dsn+"&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// single writer
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)

	if err := createSchema(writer); err != nil {
		writer.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	reader, err := sql.Open("sqlite3", dsn)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	conns := cfg.ReadConns
	if conns <= 0 {
		conns = 4
	}
	reader.SetMaxOpenConns(conns)
	reader.SetMaxIdleConns(conns)

	log = log.With().Str("component", "sqlite").Logger()
	log.Info().Str("path", cfg.Path).Str("codec", c.Kind().String()).Msg("opened block store")
	return &Store{writer: writer, reader: reader, codec: c, log: log}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value BLOB NOT NULL
		) WITHOUT ROWID;
	`)
	return err
}

// DB returns the writer sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.writer }

// InsertBlock validates, encodes and stores one full block. The block row,
// the last pointer and the first pointer are written in one transaction.
// The last pointer never moves backwards.
func (s *Store) InsertBlock(ctx context.Context, symbol string, blockStart int64, candles []model.Candle) error {
	if err := model.ValidateBlock(blockStart, candles); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidBlock, symbol, err)
	}
	start := time.Now()

	blob, err := s.codec.Encode(candles)
	if err != nil {
		return fmt.Errorf("encode block %s: %w", model.BlockKey(symbol, blockStart), err)
	}
	lastTS := candles[len(candles)-1].OpenTime

	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)`,
		model.BlockKey(symbol, blockStart), blob,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite put block: %w", err)
	}

	curLast, err := readPointer(ctx, tx, model.LastKey(symbol))
	if err != nil {
		tx.Rollback()
		return err
	}
	if lastTS > curLast {
		if err := putPointer(ctx, tx, model.LastKey(symbol), lastTS); err != nil {
			tx.Rollback()
			return err
		}
	}

	curFirst, err := readPointer(ctx, tx, model.FirstKey(symbol))
	if err != nil {
		tx.Rollback()
		return err
	}
	if curFirst == 0 || blockStart < curFirst {
		if err := putPointer(ctx, tx, model.FirstKey(symbol), blockStart); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}

	dur := time.Since(start)
	if s.OnCommit != nil {
		s.OnCommit(symbol, len(candles), len(blob), dur)
	}
	s.log.Debug().
		Str("symbol", symbol).
		Int64("block_start", blockStart).
		Int("bytes", len(blob)).
		Dur("took", dur).
		Msg("committed block")
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// readPointer returns 0 when the key is absent.
func readPointer(ctx context.Context, q queryer, key string) (int64, error) {
	var raw []byte
	err := q.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite read %s: %w", key, err)
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("%w: pointer %s has %d bytes", codec.ErrCorrupt, key, len(raw))
	}
	return int64(binary.BigEndian.Uint64(raw)), nil
}

func putPointer(ctx context.Context, tx *sql.Tx, key string, v int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)`, key, buf[:]); err != nil {
		return fmt.Errorf("sqlite put %s: %w", key, err)
	}
	return nil
}

// Close closes both pools.
func (s *Store) Close() error {
	rerr := s.reader.Close()
	if err := s.writer.Close(); err != nil {
		return err
	}
	return rerr
}
