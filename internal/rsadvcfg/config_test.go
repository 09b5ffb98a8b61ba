package rsadvcfg_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AdguardTeam/rsadv/internal/rsadvcfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
interface: eth0
control_socket: /run/rsadv.sock
db: /var/lib/rsadv/db.json
mtu: 1500
min_rtr_adv_interval: 200
max_rtr_adv_interval: 600
announce_on_exit: true
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rsadv.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testYAML), 0o640))

	conf, err := rsadvcfg.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "eth0", conf.Interface)
	assert.Equal(t, "/run/rsadv.sock", conf.ControlSocket)
	assert.Equal(t, "/var/lib/rsadv/db.json", conf.DBPath)
	assert.EqualValues(t, 1500, conf.MTU)
	assert.True(t, conf.AnnounceOnExit)
	assert.Equal(t, 200*time.Second, conf.MinInterval())
	assert.Equal(t, 600*time.Second, conf.MaxInterval())
}

func TestLoad_missingFile(t *testing.T) {
	_, err := rsadvcfg.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		conf    *rsadvcfg.Config
		wantErr bool
	}{{
		name: "valid",
		conf: &rsadvcfg.Config{
			Interface:     "eth0",
			ControlSocket: "/run/rsadv.sock",
			DBPath:        "/var/lib/rsadv/db.json",
		},
		wantErr: false,
	}, {
		name:    "nil",
		conf:    nil,
		wantErr: true,
	}, {
		name: "empty_interface",
		conf: &rsadvcfg.Config{
			ControlSocket: "/run/rsadv.sock",
			DBPath:        "/var/lib/rsadv/db.json",
		},
		wantErr: true,
	}, {
		name: "empty_control_socket",
		conf: &rsadvcfg.Config{
			Interface: "eth0",
			DBPath:    "/var/lib/rsadv/db.json",
		},
		wantErr: true,
	}, {
		name: "empty_db",
		conf: &rsadvcfg.Config{
			Interface:     "eth0",
			ControlSocket: "/run/rsadv.sock",
		},
		wantErr: true,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.conf.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_defaultMinInterval(t *testing.T) {
	conf := &rsadvcfg.Config{MaxRtrAdvInterval: 600}

	assert.Equal(t, time.Duration(0), conf.MinInterval())
	assert.Equal(t, 600*time.Second, conf.MaxInterval())
}
