package session

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-ctaphid/ctaphid/pkg/ctaphid"
	"github.com/go-ctaphid/ctaphid/pkg/hidlink"
	"github.com/go-ctaphid/ctaphid/pkg/sessionopts"
)

func queueFrame(m *hidlink.MockLink, f *ctaphid.Frame) {
	buf := ctaphid.EncodeFrame(f)
	m.Enqueue(buf[1:])
}

func initResponsePayload(nonce []byte, cid uint32, caps byte) []byte {
	data := make([]byte, ctaphid.InitCapacity)
	copy(data[:8], nonce)
	data[8] = byte(cid >> 24)
	data[9] = byte(cid >> 16)
	data[10] = byte(cid >> 8)
	data[11] = byte(cid)
	data[12] = 2
	data[16] = caps
	return data
}

func queueInitResponse(m *hidlink.MockLink, nonce []byte, cid uint32, caps byte) {
	queueFrame(m, &ctaphid.Frame{
		CID:  ctaphid.BroadcastCID,
		Type: 0x80 | byte(ctaphid.CommandInit),
		BCNT: 17,
		Data: initResponsePayload(nonce, cid, caps),
	})
}

func newInitializedSession(t *testing.T, link *hidlink.MockLink, nonce []byte, cid uint32, caps byte) *Session {
	t.Helper()
	queueInitResponse(link, nonce, cid, caps)
	s := New(link, sessionopts.WithNonceSource(bytes.NewReader(nonce)))
	require.NoError(t, s.Init())
	return s
}

func TestSession_InitAdoptsChannelAndCapabilities(t *testing.T) {
	link := &hidlink.MockLink{}
	nonce := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	s := newInitializedSession(t, link, nonce, 0xDEADBEEF, 0x05)

	caps := s.Capabilities()
	assert.True(t, caps.Wink)
	assert.True(t, caps.CBOR)
	assert.True(t, caps.Msg)
}

func TestSession_WinkSuccess(t *testing.T) {
	link := &hidlink.MockLink{}
	nonce := []byte{1, 1, 1, 1, 1, 1, 1, 1}
	s := newInitializedSession(t, link, nonce, 0x01020304, 0x01)

	queueFrame(link, &ctaphid.Frame{
		CID:  ctaphid.ChannelID(0x01020304),
		Type: 0x80 | byte(ctaphid.CommandWink),
		BCNT: 0,
	})

	require.NoError(t, s.Wink())
}

func TestSession_WinkCapabilityMismatchDoesNotFail(t *testing.T) {
	link := &hidlink.MockLink{}
	nonce := []byte{2, 2, 2, 2, 2, 2, 2, 2}
	// Capability byte 0x00: device did not declare WINK support.
	s := newInitializedSession(t, link, nonce, 0x01020304, 0x00)

	queueFrame(link, &ctaphid.Frame{
		CID:  ctaphid.ChannelID(0x01020304),
		Type: 0x80 | byte(ctaphid.CommandWink),
		BCNT: 0,
	})

	// WINK responds successfully even though the device never declared
	// the capability; Session should log the mismatch but not fail.
	require.NoError(t, s.Wink())
}

func TestSession_ExchangeCBOR_SingleUpNeededKeepalive(t *testing.T) {
	link := &hidlink.MockLink{}
	nonce := []byte{3, 3, 3, 3, 3, 3, 3, 3}
	s := newInitializedSession(t, link, nonce, 0xAABBCCDD, 0x05)

	prompts := 0
	s.SetPrompt(func(string) { prompts++ })

	queueFrame(link, &ctaphid.Frame{
		CID:  ctaphid.ChannelID(0xAABBCCDD),
		Type: 0x80 | byte(ctaphid.CommandKeepalive),
		BCNT: 1,
		Data: []byte{byte(ctaphid.KeepaliveUpNeeded)},
	})
	queueFrame(link, &ctaphid.Frame{
		CID:  ctaphid.ChannelID(0xAABBCCDD),
		Type: 0x80 | byte(ctaphid.CommandCBOR),
		BCNT: 4,
		Data: []byte{byte(ctaphid.StatusOK), 0x81, 0x18, 0x2A},
	})

	status, payload, err := s.ExchangeCBOR(context.Background(), 0x01, []byte{0xA1}, true)
	require.NoError(t, err)
	assert.Equal(t, ctaphid.StatusOK, status)
	assert.Equal(t, []byte{0x81, 0x18, 0x2A}, payload)
	assert.Equal(t, 1, prompts)
}

func TestSession_ExchangeCBOR_VendorStatusSurfacesOther(t *testing.T) {
	link := &hidlink.MockLink{}
	nonce := []byte{4, 4, 4, 4, 4, 4, 4, 4}
	s := newInitializedSession(t, link, nonce, 0x10203040, 0x05)

	queueFrame(link, &ctaphid.Frame{
		CID:  ctaphid.ChannelID(0x10203040),
		Type: 0x80 | byte(ctaphid.CommandCBOR),
		BCNT: 1,
		Data: []byte{0xF2},
	})

	status, payload, err := s.ExchangeCBOR(context.Background(), 0x01, nil, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ctaphid.ErrOther)
	assert.Equal(t, ctaphid.StatusCode(0xF2), status)
	assert.Nil(t, payload)
}

func TestSession_ExchangeCBOR_KnownErrorStatus(t *testing.T) {
	link := &hidlink.MockLink{}
	nonce := []byte{5, 5, 5, 5, 5, 5, 5, 5}
	s := newInitializedSession(t, link, nonce, 0x0A0B0C0D, 0x05)

	queueFrame(link, &ctaphid.Frame{
		CID:  ctaphid.ChannelID(0x0A0B0C0D),
		Type: 0x80 | byte(ctaphid.CommandCBOR),
		BCNT: 1,
		Data: []byte{byte(ctaphid.StatusErrPinInvalid)},
	})

	_, _, err := s.ExchangeCBOR(context.Background(), 0x01, nil, false)
	require.Error(t, err)

	var ctapErr *ctaphid.CTAPError
	require.ErrorAs(t, err, &ctapErr)
	assert.Equal(t, ctaphid.StatusErrPinInvalid, ctapErr.StatusCode)
}

func TestSession_ExchangeCBOR_RejectsOversizedPayload(t *testing.T) {
	link := &hidlink.MockLink{}
	nonce := []byte{6, 6, 6, 6, 6, 6, 6, 6}
	s := newInitializedSession(t, link, nonce, 0x0, 0x05)

	_, _, err := s.ExchangeCBOR(context.Background(), 0x01, make([]byte, ctaphid.MaxPayload), false)
	require.ErrorIs(t, err, ctaphid.ErrInvalidLength)
}

func TestSession_CloseIsIdempotentAndClosesLink(t *testing.T) {
	link := &hidlink.MockLink{}
	nonce := []byte{7, 7, 7, 7, 7, 7, 7, 7}
	s := newInitializedSession(t, link, nonce, 0x1, 0x01)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, link.Closed)
}

func TestSession_ReportIncludesCapabilitySummary(t *testing.T) {
	link := &hidlink.MockLink{}
	nonce := []byte{8, 8, 8, 8, 8, 8, 8, 8}
	s := newInitializedSession(t, link, nonce, 0x1, 0x05)

	report := s.Report()
	assert.Contains(t, report, "CBOR capability was set")
	assert.Contains(t, report, "MSG capability was set")
}

func TestSession_ExchangeCBOR_TimesOutWithoutResponse(t *testing.T) {
	link := &hidlink.MockLink{}
	nonce := []byte{9, 9, 9, 9, 9, 9, 9, 9}
	s := New(link, sessionopts.WithNonceSource(bytes.NewReader(nonce)), sessionopts.WithCommandTimeout(50*time.Millisecond))
	queueInitResponse(link, nonce, 0x99, 0x05)
	require.NoError(t, s.Init())

	_, _, err := s.ExchangeCBOR(context.Background(), 0x01, nil, false)
	require.ErrorIs(t, err, ctaphid.ErrTimeout)
}
