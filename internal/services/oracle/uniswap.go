package oracle

import (
	"context"
	"math/big"
	"strings"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// minimal UniswapV2-compatible pair ABI, getReserves only
const pairABIJSON = `[{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"name":"_reserve0","type":"uint112"},{"name":"_reserve1","type":"uint112"},{"name":"_blockTimestampLast","type":"uint32"}],"payable":false,"stateMutability":"view","type":"function"}]`

var (
	pairABI     abi.ABI
	pairABIOnce sync.Once
	pairABIErr  error
)

func loadPairABI() (abi.ABI, error) {
	pairABIOnce.Do(func() {
		pairABI, pairABIErr = abi.JSON(strings.NewReader(pairABIJSON))
	})
	return pairABI, pairABIErr
}

// ContractCaller is the subset of ethclient.Client the pool reader needs.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// UniswapPool reads reserves of a UniswapV2-compatible pair contract.
type UniswapPool struct {
	client        ContractCaller
	pair          common.Address
	assetIsToken0 bool
	assetExp      int32
	quoteExp      int32
}

// NewUniswapPool creates a reader for the given pair address. assetIsToken0
// tells which side of the pair holds the managed asset; decimals convert raw
// reserves to token units.
func NewUniswapPool(client ContractCaller, pair common.Address, assetIsToken0 bool, assetDecimals, quoteDecimals int32) (*UniswapPool, error) {
	if client == nil {
		return nil, errors.New("contract caller is required")
	}
	if _, err := loadPairABI(); err != nil {
		return nil, errors.Wrap(err, "parse pair ABI")
	}
	return &UniswapPool{
		client:        client,
		pair:          pair,
		assetIsToken0: assetIsToken0,
		assetExp:      -assetDecimals,
		quoteExp:      -quoteDecimals,
	}, nil
}

// Reserves calls getReserves on the pair contract.
func (p *UniswapPool) Reserves(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	pairABI, err := loadPairABI()
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	data, err := pairABI.Pack("getReserves")
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrap(err, "pack getReserves call")
	}

	raw, err := p.client.CallContract(ctx, ethereum.CallMsg{To: &p.pair, Data: data}, nil)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrapf(err, "call getReserves on %s", p.pair.Hex())
	}

	out, err := pairABI.Unpack("getReserves", raw)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrap(err, "unpack getReserves result")
	}
	if len(out) < 2 {
		return decimal.Zero, decimal.Zero, errors.Errorf("unexpected getReserves result arity: %d", len(out))
	}

	reserve0, ok0 := out[0].(*big.Int)
	reserve1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return decimal.Zero, decimal.Zero, errors.New("unexpected getReserves result types")
	}

	if p.assetIsToken0 {
		return decimal.NewFromBigInt(reserve0, p.assetExp), decimal.NewFromBigInt(reserve1, p.quoteExp), nil
	}
	return decimal.NewFromBigInt(reserve1, p.assetExp), decimal.NewFromBigInt(reserve0, p.quoteExp), nil
}
