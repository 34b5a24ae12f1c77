package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const ethDecimals = 18

// dustMin filters out residual balances that only clutter reports.
var dustMin = decimal.New(1, -6)

// balanceOf(address) selector
var erc20BalanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

// Token describes an ERC-20 contract tracked for an account.
type Token struct {
	Contract string `yaml:"contract"`
	Decimals int32  `yaml:"decimals"`
}

// EthereumProvider reads native and ERC-20 balances of one address over
// JSON-RPC. Balances across tokens mapping to the same asset key are
// summed.
type EthereumProvider struct {
	client  *ethclient.Client
	address common.Address
	tokens  map[string]Token
}

// NewEthereumProvider dials the RPC endpoint and tracks the given address.
// tokens maps asset keys (e.g. "usdc") to their contracts.
func NewEthereumProvider(rpcURL, address string, tokens map[string]Token) (*EthereumProvider, error) {
	if !common.IsHexAddress(address) {
		return nil, errors.Errorf("invalid ethereum address %q", address)
	}
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, errors.Wrap(err, "dial ethereum rpc")
	}
	return &EthereumProvider{
		client:  client,
		address: common.HexToAddress(address),
		tokens:  tokens,
	}, nil
}

func (p *EthereumProvider) Name() string { return "ethereum-rpc" }

// FetchBalances reads the native balance plus every tracked token balance
// at the latest block. Dust positions are dropped.
func (p *EthereumProvider) FetchBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)

	wei, err := p.client.BalanceAt(ctx, p.address, nil)
	if err != nil {
		return nil, errors.Wrap(err, "fetch native balance")
	}
	native := decimal.NewFromBigInt(wei, -ethDecimals)
	if native.GreaterThan(dustMin) {
		out["eth"] = native
	}

	for asset, token := range p.tokens {
		raw, err := p.tokenBalance(ctx, token.Contract)
		if err != nil {
			return nil, errors.Wrapf(err, "fetch %s balance", asset)
		}
		amount := decimal.NewFromBigInt(raw, -token.Decimals)
		if amount.LessThanOrEqual(dustMin) {
			continue
		}
		out[asset] = out[asset].Add(amount)
	}
	return out, nil
}

// tokenBalance calls balanceOf(address) on an ERC-20 contract.
func (p *EthereumProvider) tokenBalance(ctx context.Context, contract string) (*big.Int, error) {
	if !common.IsHexAddress(contract) {
		return nil, errors.Errorf("invalid token contract %q", contract)
	}
	target := common.HexToAddress(contract)

	data := make([]byte, 0, 4+32)
	data = append(data, erc20BalanceOfSelector...)
	data = append(data, common.LeftPadBytes(p.address.Bytes(), 32)...)

	result, err := p.client.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(result), nil
}

// Close releases the RPC connection.
func (p *EthereumProvider) Close() {
	p.client.Close()
}
