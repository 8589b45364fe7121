package tracker

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/nexusdex/arbengine/internal/relay"
	"github.com/nexusdex/arbengine/internal/rpcclient"
	"github.com/nexusdex/arbengine/internal/types"
	"github.com/nexusdex/arbengine/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChain struct {
	rpcclient.Client
	receipts    []*ethtypes.Receipt
	blockNumber uint64
	call        int
}

func (s *stubChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	if s.call >= len(s.receipts) {
		return nil, nil
	}
	r := s.receipts[s.call]
	s.call++
	return r, nil
}

func (s *stubChain) BlockNumber(ctx context.Context) (uint64, error) {
	return s.blockNumber, nil
}

func successReceipt(block uint64) *ethtypes.Receipt {
	return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(int64(block))}
}

func failedReceipt(block uint64) *ethtypes.Receipt {
	return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusFailed, BlockNumber: big.NewInt(int64(block))}
}

func TestTrackTransactionSucceedsOnFirstReceipt(t *testing.T) {
	chain := &stubChain{receipts: []*ethtypes.Receipt{successReceipt(100)}}
	tr := New(Config{PollInterval: time.Millisecond, MaxAttempts: 5}, chain, nil, logger.New("test"))

	receipt, status, err := tr.TrackTransaction(context.Background(), "exec-1", common.Hash{1})
	require.NoError(t, err)
	assert.Equal(t, types.StatusSucceeded, status)
	assert.NotNil(t, receipt)
	assert.Equal(t, 0, tr.Len())
}

func TestTrackTransactionMarksRevertedOnFailedStatus(t *testing.T) {
	chain := &stubChain{receipts: []*ethtypes.Receipt{failedReceipt(100)}}
	tr := New(Config{PollInterval: time.Millisecond, MaxAttempts: 5}, chain, nil, logger.New("test"))

	_, status, err := tr.TrackTransaction(context.Background(), "exec-2", common.Hash{2})
	require.NoError(t, err)
	assert.Equal(t, types.StatusReverted, status)
}

func TestTrackTransactionTimesOutAfterMaxAttempts(t *testing.T) {
	chain := &stubChain{receipts: nil}
	tr := New(Config{PollInterval: time.Millisecond, MaxAttempts: 2}, chain, nil, logger.New("test"))

	_, status, err := tr.TrackTransaction(context.Background(), "exec-3", common.Hash{3})
	require.Error(t, err)
	assert.Equal(t, types.StatusTimeout, status)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrTimeout, kind)
}

func TestDetectReorgFlagsBlockNumberRegression(t *testing.T) {
	// A receipt first seen at block 105 and then at block 100 is a reorg;
	// a later block (106) is not.
	chain := &stubChain{receipts: []*ethtypes.Receipt{
		successReceipt(105),
		successReceipt(100),
		successReceipt(106),
	}}
	tr := New(Config{PollInterval: time.Millisecond, MaxAttempts: 5}, chain, nil, logger.New("test"))

	// TrackTransaction returns on the first successful receipt, so it
	// never reaches the reorg branch with these receipts; detectReorg is
	// called directly against a persistent entry instead.
	entry := &monitoredTx{}
	assert.False(t, tr.detectReorg(entry, 105))
	assert.True(t, tr.detectReorg(entry, 100))
	assert.False(t, tr.detectReorg(entry, 106))
}

func TestTrackBundleResolvesIncludedTransaction(t *testing.T) {
	txHash := common.Hash{7}.Hex()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			ID     int    `json:"id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		var result interface{} = true
		if req.Method == "flashbots_getBundleStats" {
			result = map[string]interface{}{"isIncluded": true, "transactionHash": txHash}
		}
		resultBytes, _ := json.Marshal(result)
		resp := map[string]interface{}{"result": json.RawMessage(resultBytes), "id": req.ID}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	relayClient := relay.New(relay.Config{URL: srv.URL, MaxRetries: 1}, key, logger.New("test"))

	chain := &stubChain{blockNumber: 200, receipts: []*ethtypes.Receipt{successReceipt(200)}}
	tr := New(Config{PollInterval: time.Millisecond, MaxWaitBlocks: 3}, chain, relayClient, logger.New("test"))

	receipt, status, err := tr.TrackBundle(context.Background(), "exec-4", "0xbundle", 199)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSucceeded, status)
	assert.NotNil(t, receipt)
}

func TestTrackBundleWithoutRelayIsFatal(t *testing.T) {
	tr := New(DefaultConfig(), nil, nil, logger.New("test"))
	_, status, err := tr.TrackBundle(context.Background(), "exec-5", "0xbundle", 1)
	require.Error(t, err)
	assert.Equal(t, types.StatusFailed, status)
}

func TestLenTracksInFlightEntries(t *testing.T) {
	tr := New(DefaultConfig(), &stubChain{}, nil, logger.New("test"))
	tr.put("a", &monitoredTx{executionID: "a"})
	assert.Equal(t, 1, tr.Len())
	tr.remove("a")
	assert.Equal(t, 0, tr.Len())
}
