package raddb_test

import (
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AdguardTeam/rsadv/internal/raddb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

func TestDatabase_LoadMissingFile(t *testing.T) {
	db := raddb.New(nil, filepath.Join(t.TempDir(), "db.json"))

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	prefixes, dns := db.Load(ctx)
	assert.Empty(t, prefixes)
	assert.Empty(t, dns)
}

func TestDatabase_LoadDecodeFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o640))

	db := raddb.New(nil, path)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	prefixes, dns := db.Load(ctx)
	assert.Empty(t, prefixes)
	assert.Empty(t, dns)
}

func TestDatabase_StoreLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	db := raddb.New(nil, path)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	wantPrefixes := []raddb.PrefixEntry{{
		Addr:      netip.MustParseAddr("2001:db8::"),
		Length:    64,
		Preferred: time.Hour,
		Valid:     24 * time.Hour,
	}}
	wantDNS := []netip.Addr{netip.MustParseAddr("2001:db8::53")}

	require.NoError(t, db.Store(ctx, wantPrefixes, wantDNS))

	gotPrefixes, gotDNS := db.Load(ctx)
	require.Len(t, gotPrefixes, 1)
	assert.Equal(t, wantPrefixes[0].Addr, gotPrefixes[0].Addr)
	assert.Equal(t, wantPrefixes[0].Length, gotPrefixes[0].Length)
	assert.Equal(t, wantPrefixes[0].Preferred, gotPrefixes[0].Preferred)
	assert.Equal(t, wantPrefixes[0].Valid, gotPrefixes[0].Valid)
	assert.Equal(t, wantDNS, gotDNS)
}

func TestDatabase_StoreOverwritesPreviousSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	db := raddb.New(nil, path)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	first := []raddb.PrefixEntry{{Addr: netip.MustParseAddr("2001:db8::"), Length: 64, Valid: time.Hour}}
	require.NoError(t, db.Store(ctx, first, nil))

	require.NoError(t, db.Store(ctx, nil, nil))

	gotPrefixes, gotDNS := db.Load(ctx)
	assert.Empty(t, gotPrefixes)
	assert.Empty(t, gotDNS)
}
