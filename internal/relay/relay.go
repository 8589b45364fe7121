// Package relay implements a Flashbots-style private-relay client: bundle
// simulation, submission, and stats polling over JSON-RPC, authenticated
// via an X-Flashbots-Signature header carrying a personal_sign (EIP-191)
// signature over keccak256 of the request body.
package relay

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/nexusdex/arbengine/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Bundle is an ordered, atomic group of signed transactions targeting a
// specific block.
type Bundle struct {
	SignedTxs         [][]byte
	TargetBlock       uint64
	MinTimestamp      *int64
	MaxTimestamp      *int64
	RevertingTxHashes []string
}

// SimulationResult is the relay's eth_callBundle response.
type SimulationResult struct {
	Success           bool              `json:"success"`
	Error             string            `json:"error,omitempty"`
	GasUsed           uint64            `json:"gasUsed"`
	EffectiveGasPrice string            `json:"effectiveGasPrice"`
	EthSentToCoinbase string            `json:"ethSentToCoinbase"`
	StateChanges      map[string]string `json:"stateChanges,omitempty"`
}

// BundleStats is the relay's flashbots_getBundleStats response.
type BundleStats struct {
	BundleHash      string  `json:"bundleHash"`
	IsIncluded      bool    `json:"isIncluded"`
	BlockNumber     *uint64 `json:"blockNumber,omitempty"`
	TransactionHash *string `json:"transactionHash,omitempty"`
	GasUsed         *uint64 `json:"gasUsed,omitempty"`
	GasPrice        *string `json:"gasPrice,omitempty"`
}

type rpcRequest struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
	ID     int         `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	ID int `json:"id"`
}

// Config carries the Relay group from pkg/config.
type Config struct {
	URL                string
	AuthKeyHex         string
	RequestTimeout     time.Duration
	MaxRetries         int
	RetryDelay         time.Duration
	RateLimitPerSecond float64
	RateLimitBurst     int
	BlocksIntoFuture   int
}

// Client talks to the private relay: bundle simulation, submission and
// stats retrieval, with a signed auth header distinct from the trading
// wallet key.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logger.Logger
	limiter    *rate.Limiter
	authKey    *ecdsa.PrivateKey
	signerAddr string
	nextID     int
}

// New constructs a relay Client. authKey is the dedicated relay
// authentication key; never the trading wallet key.
func New(cfg Config, authKey *ecdsa.PrivateKey, log *logger.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = "https://relay.flashbots.net"
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	limit := cfg.RateLimitPerSecond
	if limit <= 0 {
		limit = 5
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 5
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		log:        log.Named("relay-client"),
		limiter:    rate.NewLimiter(rate.Limit(limit), burst),
		authKey:    authKey,
	}
	if authKey != nil {
		c.signerAddr = crypto.PubkeyToAddress(authKey.PublicKey).Hex()
	}
	return c
}

// SimulateBundle issues eth_callBundle against the bundle's target block.
func (c *Client) SimulateBundle(ctx context.Context, bundle Bundle) (*SimulationResult, error) {
	params := map[string]interface{}{
		"txs":              encodeTxs(bundle.SignedTxs),
		"blockNumber":      fmt.Sprintf("0x%x", bundle.TargetBlock),
		"stateBlockNumber": "latest",
		"timestamp":        time.Now().Unix(),
	}
	resp, err := c.call(ctx, "eth_callBundle", params)
	if err != nil {
		return nil, fmt.Errorf("relay: simulate bundle: %w", err)
	}
	var result SimulationResult
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, fmt.Errorf("relay: decode simulation result: %w", err)
		}
	}
	return &result, nil
}

// SubmitBundle issues eth_sendBundle and returns the bundle hash.
func (c *Client) SubmitBundle(ctx context.Context, bundle Bundle) (string, error) {
	params := map[string]interface{}{
		"txs":         encodeTxs(bundle.SignedTxs),
		"blockNumber": fmt.Sprintf("0x%x", bundle.TargetBlock),
	}
	if bundle.MinTimestamp != nil {
		params["minTimestamp"] = *bundle.MinTimestamp
	}
	if bundle.MaxTimestamp != nil {
		params["maxTimestamp"] = *bundle.MaxTimestamp
	}
	if len(bundle.RevertingTxHashes) > 0 {
		params["revertingTxHashes"] = bundle.RevertingTxHashes
	}

	resp, err := c.call(ctx, "eth_sendBundle", params)
	if err != nil {
		return "", fmt.Errorf("relay: submit bundle: %w", err)
	}
	var hash string
	if err := json.Unmarshal(resp.Result, &hash); err != nil {
		return "", fmt.Errorf("relay: decode bundle hash: %w", err)
	}
	return hash, nil
}

// GetBundleStats issues flashbots_getBundleStats for inclusion tracking.
func (c *Client) GetBundleStats(ctx context.Context, bundleHash string, blockNumber uint64) (*BundleStats, error) {
	params := map[string]interface{}{
		"bundleHash":  bundleHash,
		"blockNumber": fmt.Sprintf("0x%x", blockNumber),
	}
	resp, err := c.call(ctx, "flashbots_getBundleStats", params)
	if err != nil {
		return nil, fmt.Errorf("relay: get bundle stats: %w", err)
	}
	var stats BundleStats
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &stats); err != nil {
			return nil, fmt.Errorf("relay: decode bundle stats: %w", err)
		}
	}
	return &stats, nil
}

func encodeTxs(signed [][]byte) []string {
	out := make([]string, len(signed))
	for i, tx := range signed {
		out[i] = hexutil.Encode(tx)
	}
	return out
}

// call performs one JSON-RPC request with bounded retries; the rate
// limiter gates every outbound attempt.
func (c *Client) call(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	c.nextID++
	req := rpcRequest{Method: method, Params: params, ID: c.nextID}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.cfg.RetryDelay):
			case <-reqCtx.Done():
				return nil, reqCtx.Err()
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if sig, sigErr := c.sign(body); sigErr == nil {
			httpReq.Header.Set("X-Flashbots-Signature", sig)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("http request failed: %w", err)
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("relay returned http %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("decode response: %w", err)
			continue
		}
		if rpcResp.Error != nil {
			lastErr = fmt.Errorf("relay error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
			continue
		}

		c.log.Debug("relay request succeeded", zap.String("method", method), zap.Int("attempt", attempt+1))
		return &rpcResp, nil
	}
	return nil, fmt.Errorf("relay: all %d attempts failed, last error: %w", c.cfg.MaxRetries, lastErr)
}

// sign computes the "X-Flashbots-Signature: {signer_addr}:{sig}" header:
// sig is the personal_sign (EIP-191) signature over keccak256(json_body).
// Relays recover the signer from the "\x19Ethereum Signed Message:\n32"
// prefixed digest, not a bare signature over the hash.
func (c *Client) sign(body []byte) (string, error) {
	if c.authKey == nil {
		return "", fmt.Errorf("relay: no authentication key configured")
	}
	hash := crypto.Keccak256(body)
	sig, err := crypto.Sign(accounts.TextHash(hash), c.authKey)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return fmt.Sprintf("%s:%s", c.signerAddr, hexutil.Encode(sig)), nil
}
