package system

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/nexusdex/arbengine/internal/discovery"
	"github.com/nexusdex/arbengine/internal/eventbus"
	"github.com/nexusdex/arbengine/internal/execution"
	"github.com/nexusdex/arbengine/internal/market"
	"github.com/nexusdex/arbengine/internal/rpcclient"
	"github.com/nexusdex/arbengine/internal/strategy"
	"github.com/nexusdex/arbengine/internal/types"
	"github.com/nexusdex/arbengine/internal/validation"
	"github.com/nexusdex/arbengine/pkg/config"
	"github.com/nexusdex/arbengine/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePriceSource struct{}

func (fakePriceSource) Snapshot(ctx context.Context) (types.MarketCondition, error) {
	return types.MarketCondition{
		GasPriceWei: big.NewInt(20e9),
		Prices:      map[common.Address]decimal.Decimal{},
	}, nil
}

func tok(addr byte) types.Token {
	var a common.Address
	a[19] = addr
	return types.Token{Address: a, Symbol: "TOK", Decimals: 18}
}

type oneShotDetector struct{ fired bool }

func (d *oneShotDetector) ID() string { return "one-shot" }
func (d *oneShotDetector) Detect(ctx context.Context, pools []types.PoolInfo, market types.MarketCondition, params discovery.Params) ([]*types.Opportunity, error) {
	if d.fired {
		return nil, nil
	}
	d.fired = true
	a, b := tok(1), tok(2)
	pool := types.PoolInfo{PoolAddress: common.Address{9}, VenueID: "v1", Tokens: [2]types.Token{a, b}, Kind: types.PoolConstantProduct}
	route := types.Route{Steps: []types.TradeStep{{Pool: pool, TokenIn: a, TokenOut: b, ExpectedOutWei: big.NewInt(1100)}}}
	opp := types.NewOpportunity(types.StrategyCrossVenue, route, big.NewInt(1000), big.NewInt(1100), big.NewInt(100))
	opp.GasPriceWei = big.NewInt(20e9)
	opp.Confidence = decimal.NewFromFloat(0.9)
	return []*types.Opportunity{opp}, nil
}

type fakePoolRegistry struct{}

func (fakePoolRegistry) Pools(ctx context.Context) ([]types.PoolInfo, error) { return nil, nil }

type fakeLiquidity struct{}

func (fakeLiquidity) LiquidityUSD(ctx context.Context, pool types.PoolInfo) (decimal.Decimal, error) {
	return decimal.NewFromInt(50_000), nil
}

type fakeEncoder struct{}

func (fakeEncoder) EncodeSwap(step types.TradeStep, minOutWei *big.Int, deadline int64) (common.Address, []byte, error) {
	return step.Pool.PoolAddress, []byte{0xbe, 0xef}, nil
}

func (fakeEncoder) EncodeFlashLoanEntry(provider common.Address, req types.FlashLoanRequest) ([]byte, error) {
	return []byte{0xbe, 0xef}, nil
}

func (fakeEncoder) EncodeFlashLoanRepayment(provider common.Address, req types.FlashLoanRequest, fees []*big.Int) ([]byte, error) {
	return []byte{0xbe, 0xef}, nil
}

type fakeSigner struct{}

func (fakeSigner) SignTransaction(ctx context.Context, tx rpcclient.Transaction, nonce uint64) ([]byte, common.Hash, error) {
	return []byte{0x01}, common.Hash{byte(nonce) + 1}, nil
}

type fakeChain struct{}

func (fakeChain) BlockNumber(ctx context.Context) (uint64, error) { return 100, nil }
func (fakeChain) ChainID(ctx context.Context) (uint64, error)     { return 1, nil }
func (fakeChain) GasPrice(ctx context.Context) (*big.Int, error)  { return big.NewInt(20e9), nil }
func (fakeChain) BaseFee(ctx context.Context) (*big.Int, error)   { return big.NewInt(15e9), nil }
func (fakeChain) PriorityFee(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1e9), nil
}
func (fakeChain) EstimateGas(ctx context.Context, tx rpcclient.Transaction) (uint64, error) {
	return 100_000, nil
}
func (fakeChain) SendTransaction(ctx context.Context, signed []byte) (common.Hash, error) {
	return common.Hash{1}, nil
}
func (fakeChain) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	return common.Hash{1}, nil
}
func (fakeChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(101)}, nil
}
func (fakeChain) WaitForReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(101)}, nil
}
func (fakeChain) Call(ctx context.Context, tx rpcclient.Transaction) ([]byte, error) { return nil, nil }
func (fakeChain) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return big.NewInt(1e18), nil
}
func (fakeChain) ERC20Balance(ctx context.Context, token, addr common.Address) (*big.Int, error) {
	return big.NewInt(1e18), nil
}

type fakeBalances struct{}

func (fakeBalances) Balance(ctx context.Context, token types.Token) (*big.Int, error) {
	return big.NewInt(1e18), nil
}

type fakeLogParser struct{}

func (fakeLogParser) ActualOutputWei(receipt *ethtypes.Receipt, outputToken types.Token) (*big.Int, error) {
	return big.NewInt(1100), nil
}

func TestTickExecutesDiscoveredOpportunity(t *testing.T) {
	log := logger.New("test")
	cfg := config.Default()
	cfg.Execution.AutoExecute = true
	cfg.Discovery.MinProfitWei = "0"

	mkt := market.New(fakePriceSource{}, log)
	detector := &oneShotDetector{}
	disc := discovery.New(discovery.DefaultConfig(), fakePoolRegistry{}, log, detector)
	val := validation.New(validation.DefaultConfig(), fakeLiquidity{}, log)
	chain := fakeChain{}
	exec := execution.New(execution.DefaultConfig(), chain, nil, fakeEncoder{}, fakeSigner{}, fakeBalances{}, nil, fakeLogParser{}, common.Address{1}, log)
	pub := eventbus.NewMockPublisher(log)

	eng := New(cfg, Deps{
		Market:      mkt,
		Discovery:   disc,
		Validation:  val,
		Execution:   exec,
		Chain:       chain,
		Publisher:   pub,
		StrategyCfg: strategy.DefaultConfig(),
	}, log)

	eng.tick(context.Background())

	require.Len(t, pub.Opportunities, 1)
	require.Len(t, pub.Executions, 1)
	assert.Equal(t, string(types.StatusSucceeded), pub.Executions[0].Status)

	cached, ok := eng.Opportunity(pub.Opportunities[0].ID)
	require.True(t, ok)
	assert.Equal(t, pub.Opportunities[0].ID, cached.ID)

	result, ok := eng.LastResult(pub.Executions[0].OpportunityID)
	require.True(t, ok)
	assert.Equal(t, types.StatusSucceeded, result.Status)
}

func TestTickSkipsExecutionWhenAutoExecuteDisabled(t *testing.T) {
	log := logger.New("test")
	cfg := config.Default()
	cfg.Execution.AutoExecute = false

	mkt := market.New(fakePriceSource{}, log)
	detector := &oneShotDetector{}
	disc := discovery.New(discovery.DefaultConfig(), fakePoolRegistry{}, log, detector)
	val := validation.New(validation.DefaultConfig(), fakeLiquidity{}, log)
	pub := eventbus.NewMockPublisher(log)

	eng := New(cfg, Deps{
		Market:     mkt,
		Discovery:  disc,
		Validation: val,
		Publisher:  pub,
	}, log)

	eng.tick(context.Background())

	require.Len(t, pub.Opportunities, 1)
	assert.Len(t, pub.Executions, 0)
}

func TestStartStopLifecycle(t *testing.T) {
	log := logger.New("test")
	cfg := config.Default()
	cfg.Discovery.IntervalSeconds = 0 // clamps to 10s default inside Start

	mkt := market.New(fakePriceSource{}, log)
	disc := discovery.New(discovery.DefaultConfig(), fakePoolRegistry{}, log, &oneShotDetector{})
	val := validation.New(validation.DefaultConfig(), fakeLiquidity{}, log)

	eng := New(cfg, Deps{Market: mkt, Discovery: disc, Validation: val}, log)

	require.NoError(t, eng.Start(context.Background()))
	time.Sleep(10 * time.Millisecond)
	eng.Stop()
}
