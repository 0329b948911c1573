package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_KeepsConcreteType(t *testing.T) {
	data, err := EncodeEvent(AuctionClosed{AuctionID: 7, FinalBid: &Bid{AuctionID: 7, Bidder: "b2", Amount: 115}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"End"`)

	ev, err := DecodeEvent(data)
	require.NoError(t, err)
	closed, ok := ev.(AuctionClosed)
	require.True(t, ok, "decoded %T", ev)
	require.NotNil(t, closed.FinalBid)
	assert.Equal(t, "b2", closed.FinalBid.Bidder)
	assert.Equal(t, int64(115), closed.FinalBid.Amount)
}

func TestEnvelope_ClosedWithoutBid(t *testing.T) {
	data, err := EncodeEvent(AuctionClosed{AuctionID: 3})
	require.NoError(t, err)

	ev, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Nil(t, ev.(AuctionClosed).FinalBid)
}

func TestDecodeEvent_UnknownKind(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"kind":"Reset","payload":{}}`))
	require.Error(t, err)

	_, err = ParseEventKind("Reset")
	require.Error(t, err)

	k, err := ParseEventKind("DeleteAuction")
	require.NoError(t, err)
	assert.Equal(t, KindAuctionDeleted, k)
}
