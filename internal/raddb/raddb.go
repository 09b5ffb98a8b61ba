// Package raddb persists the advertised prefix table and recursive DNS
// server set to disk, so the daemon can resume announcing the same state
// across restarts.
package raddb

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/netip"
	"os"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/google/renameio/v2"
)

// filePerm is the permission mode of the database file.
const filePerm fs.FileMode = 0o640

// snapshot is the on-disk JSON shape of the database: a flat list of
// prefixes plus a flat list of DNS server addresses.
type snapshot struct {
	Prefixes   []prefixRecord `json:"prefixes"`
	DNSServers []netip.Addr   `json:"dns_servers"`
}

// prefixRecord is one persisted prefix entry.
type prefixRecord struct {
	Prefix       netip.Addr    `json:"prefix"`
	PrefixLength uint8         `json:"prefix_length"`
	Preferred    lifetimeJSON  `json:"preferred"`
	Valid        lifetimeJSON  `json:"valid"`
}

// lifetimeJSON is the JSON shape of a persisted lifetime: always stored as a
// duration in seconds from the moment of the snapshot, re-anchored to the
// process's clock on load.
type lifetimeJSON struct {
	Seconds uint32 `json:"seconds"`
}

// PrefixEntry is one entry of a snapshot passed to [Database.Store] or
// returned from [Database.Load].
type PrefixEntry struct {
	Addr      netip.Addr
	Length    uint8
	Preferred time.Duration
	Valid     time.Duration
}

// Database persists [PrefixEntry] and DNS server snapshots to path using
// atomic temp-file-plus-rename writes.
type Database struct {
	logger *slog.Logger
	path   string
}

// New returns a Database backed by path.
func New(logger *slog.Logger, path string) *Database {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}

	return &Database{logger: logger, path: path}
}

// Load reads the database file, returning empty slices if it does not exist.
// A decode failure is logged and treated the same as a missing file, per
// spec.md §6.
func (d *Database) Load(ctx context.Context) (prefixes []PrefixEntry, dns []netip.Addr) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			d.logger.WarnContext(ctx, "reading database", "path", d.path, slogutil.KeyError, err)
		}

		return nil, nil
	}

	var snap snapshot
	if err = json.Unmarshal(data, &snap); err != nil {
		d.logger.ErrorContext(ctx, "decoding database", "path", d.path, slogutil.KeyError, err)

		return nil, nil
	}

	for _, p := range snap.Prefixes {
		prefixes = append(prefixes, PrefixEntry{
			Addr:      p.Prefix,
			Length:    p.PrefixLength,
			Preferred: time.Duration(p.Preferred.Seconds) * time.Second,
			Valid:     time.Duration(p.Valid.Seconds) * time.Second,
		})
	}

	return prefixes, snap.DNSServers
}

// Store writes a fresh snapshot of prefixes and dns to disk, atomically.
func (d *Database) Store(ctx context.Context, prefixes []PrefixEntry, dns []netip.Addr) (err error) {
	snap := snapshot{DNSServers: dns}
	for _, p := range prefixes {
		snap.Prefixes = append(snap.Prefixes, prefixRecord{
			Prefix:       p.Addr,
			PrefixLength: p.Length,
			Preferred:    lifetimeJSON{Seconds: clampSeconds(p.Preferred)},
			Valid:        lifetimeJSON{Seconds: clampSeconds(p.Valid)},
		})
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding database: %w", err)
	}

	f, err := renameio.NewPendingFile(d.path, renameio.WithPermissions(filePerm))
	if err != nil {
		return fmt.Errorf("opening pending database file: %w", err)
	}

	defer func() {
		if err != nil {
			err = errors.WithDeferred(err, f.Cleanup())

			return
		}

		err = errors.WithDeferred(err, f.CloseAtomicallyReplace())
	}()

	_, err = f.Write(data)
	if err != nil {
		return fmt.Errorf("writing database: %w", err)
	}

	return nil
}

// clampSeconds converts d to a whole-second count, never negative.
func clampSeconds(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}

	return uint32(d / time.Second)
}
