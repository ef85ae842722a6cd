package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// aggregatorABI is the read surface of a Chainlink-compatible aggregator.
const aggregatorABI = `[
	{"inputs":[],"name":"latestRoundData","outputs":[
		{"internalType":"uint80","name":"roundId","type":"uint80"},
		{"internalType":"int256","name":"answer","type":"int256"},
		{"internalType":"uint256","name":"startedAt","type":"uint256"},
		{"internalType":"uint256","name":"updatedAt","type":"uint256"},
		{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],
		"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],
		"stateMutability":"view","type":"function"}
]`

// ChainlinkFeed reads a Chainlink-style aggregator over an EVM RPC endpoint
// and normalizes the answer to 8-decimal USD.
type ChainlinkFeed struct {
	client      *ethclient.Client
	parsedABI   abi.ABI
	aggregators map[string]common.Address // assetID -> aggregator
	decimals    map[string]uint8          // assetID -> answer decimals
}

// NewChainlinkFeed dials the RPC endpoint and resolves answer decimals for
// each configured aggregator.
func NewChainlinkFeed(ctx context.Context, rpcURL string, aggregators map[string]string) (*ChainlinkFeed, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC %s: %w", rpcURL, err)
	}

	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse aggregator ABI: %w", err)
	}

	feed := &ChainlinkFeed{
		client:      client,
		parsedABI:   parsed,
		aggregators: make(map[string]common.Address, len(aggregators)),
		decimals:    make(map[string]uint8, len(aggregators)),
	}

	for assetID, addr := range aggregators {
		feed.aggregators[assetID] = common.HexToAddress(addr)
		dec, err := feed.readDecimals(ctx, feed.aggregators[assetID])
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"asset":      assetID,
				"aggregator": addr,
			}).Warnf("failed to read aggregator decimals, assuming 8: %v", err)
			dec = 8
		}
		feed.decimals[assetID] = dec
	}

	return feed, nil
}

// GetPrice implements PriceFeed: latestRoundData answer rescaled to 8 decimals.
func (f *ChainlinkFeed) GetPrice(ctx context.Context, assetID string) (*big.Int, time.Time, error) {
	aggregator, ok := f.aggregators[assetID]
	if !ok {
		return nil, time.Time{}, fmt.Errorf("%w: %s", ErrNoFeed, assetID)
	}

	data, err := f.parsedABI.Pack("latestRoundData")
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to pack latestRoundData: %w", err)
	}

	raw, err := f.client.CallContract(ctx, ethereum.CallMsg{To: &aggregator, Data: data}, nil)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("aggregator call failed for %s: %w", assetID, err)
	}

	out, err := f.parsedABI.Unpack("latestRoundData", raw)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to unpack latestRoundData: %w", err)
	}

	answer := out[1].(*big.Int)
	updatedAt := out[3].(*big.Int)
	if answer.Sign() <= 0 {
		return nil, time.Time{}, fmt.Errorf("%w: %s answer=%s", ErrBadPrice, assetID, answer)
	}

	price := rescale(answer, f.decimals[assetID], PriceDecimals)
	return price, time.Unix(updatedAt.Int64(), 0), nil
}

func (f *ChainlinkFeed) readDecimals(ctx context.Context, aggregator common.Address) (uint8, error) {
	data, err := f.parsedABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	raw, err := f.client.CallContract(ctx, ethereum.CallMsg{To: &aggregator, Data: data}, nil)
	if err != nil {
		return 0, err
	}
	out, err := f.parsedABI.Unpack("decimals", raw)
	if err != nil {
		return 0, err
	}
	return out[0].(uint8), nil
}

// rescale converts a price between fixed-point scales.
func rescale(price *big.Int, from, to uint8) *big.Int {
	out := new(big.Int).Set(price)
	switch {
	case from < to:
		out.Mul(out, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(to-from)), nil))
	case from > to:
		out.Div(out, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(from-to)), nil))
	}
	return out
}
