package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/nexusdex/arbengine/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T, handler func(method string) interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		result := handler(req.Method)
		resultBytes, _ := json.Marshal(result)
		resp := rpcResponse{Result: resultBytes, ID: req.ID}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func testClient(t *testing.T, url string) *Client {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	cfg := Config{URL: url, MaxRetries: 1}
	return New(cfg, key, logger.New("test"))
}

func TestSimulateBundleParsesResult(t *testing.T) {
	srv := testServer(t, func(method string) interface{} {
		assert.Equal(t, "eth_callBundle", method)
		return SimulationResult{Success: true, GasUsed: 100000, EthSentToCoinbase: "0x1"}
	})
	defer srv.Close()

	c := testClient(t, srv.URL)
	result, err := c.SimulateBundle(context.Background(), Bundle{SignedTxs: [][]byte{{1, 2, 3}}, TargetBlock: 100})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, uint64(100000), result.GasUsed)
}

func TestSubmitBundleReturnsHash(t *testing.T) {
	srv := testServer(t, func(method string) interface{} {
		assert.Equal(t, "eth_sendBundle", method)
		return "0xabc123"
	})
	defer srv.Close()

	c := testClient(t, srv.URL)
	hash, err := c.SubmitBundle(context.Background(), Bundle{SignedTxs: [][]byte{{1}}, TargetBlock: 100})
	require.NoError(t, err)
	assert.Equal(t, "0xabc123", hash)
}

func TestGetBundleStatsReportsInclusion(t *testing.T) {
	txHash := "0xdeadbeef"
	blockNum := uint64(101)
	srv := testServer(t, func(method string) interface{} {
		assert.Equal(t, "flashbots_getBundleStats", method)
		return BundleStats{BundleHash: "0xabc123", IsIncluded: true, BlockNumber: &blockNum, TransactionHash: &txHash}
	})
	defer srv.Close()

	c := testClient(t, srv.URL)
	stats, err := c.GetBundleStats(context.Background(), "0xabc123", 101)
	require.NoError(t, err)
	assert.True(t, stats.IsIncluded)
	assert.Equal(t, txHash, *stats.TransactionHash)
}

func TestSignProducesAddressPrefixedSignature(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	c := New(Config{}, key, logger.New("test"))
	sig, err := c.sign([]byte(`{"method":"eth_callBundle"}`))
	require.NoError(t, err)
	assert.Contains(t, sig, ":")
	assert.Contains(t, sig, c.signerAddr)
}
