package influx

import (
	"path/filepath"
	"testing"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateWriters_Idempotent(t *testing.T) {
	m := NewManager(zerolog.Nop(), filepath.Join(t.TempDir(), "backup.lp.gz"))
	m.Client = influxdb2.NewClient("http://localhost:0", "")
	defer m.Client.Close()

	m.CreateWriters()
	require.Len(t, m.Writers, len(DefaultBucketNames))
	first := m.Writers[BucketDiagnostics]

	// A repeated call must keep the existing writers instead of replacing
	// them with fresh ones (and fresh drain goroutines).
	m.CreateWriters()
	assert.Len(t, m.Writers, len(DefaultBucketNames))
	assert.Same(t, first, m.Writers[BucketDiagnostics])
}
