package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeperReleasesExpiredHolds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, store, pid := setup(t, "SN1")
	m.TTL = -time.Minute // holds are born expired

	_, err := m.BindCartLine(ctx, pid, 1)
	require.NoError(t, err)

	sw := &Sweeper{Ledger: store, Interval: 10 * time.Millisecond}
	sw.Start(ctx)

	assert.Eventually(t, func() bool {
		avail, err := store.ListAvailable(ctx, pid)
		return err == nil && len(avail) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
