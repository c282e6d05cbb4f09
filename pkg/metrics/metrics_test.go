package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CommandCountersIncrement(t *testing.T) {
	m := New()
	m.CommandProcessed("sender")
	m.CommandProcessed("sender")
	m.CommandFailed("receiver")

	require.Equal(t, float64(2), testutil.ToFloat64(m.commandsProcessed.WithLabelValues("sender")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.commandsFailed.WithLabelValues("receiver")))
}

func TestRegistry_ChannelsOpenGaugeReflectsLastSet(t *testing.T) {
	m := New()
	m.SetChannelsOpen(3)
	require.Equal(t, float64(3), testutil.ToFloat64(m.channelsOpen))
	m.SetChannelsOpen(1)
	require.Equal(t, float64(1), testutil.ToFloat64(m.channelsOpen))
}

func TestRegistry_PeerDeliveryOutcomesAreLabeled(t *testing.T) {
	m := New()
	m.PeerDeliverySucceeded()
	m.PeerDeliveryFailed()
	m.PeerDeliveryFailed()

	require.Equal(t, float64(1), testutil.ToFloat64(m.peerDeliveries.WithLabelValues("success")))
	require.Equal(t, float64(2), testutil.ToFloat64(m.peerDeliveries.WithLabelValues("failure")))
}
