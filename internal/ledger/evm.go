package ledger

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

// deskABI is the read surface of the on-chain desk contract.
const deskABI = `[
  {
    "name": "getOffer",
    "type": "function",
    "stateMutability": "view",
    "inputs": [{"name": "offerId", "type": "uint256"}],
    "outputs": [
      {"name": "exists", "type": "bool"},
      {"name": "approved", "type": "bool"},
      {"name": "paid", "type": "bool"},
      {"name": "fulfilled", "type": "bool"},
      {"name": "cancelled", "type": "bool"},
      {"name": "emergencyRefunded", "type": "bool"},
      {"name": "amountPaid", "type": "uint256"},
      {"name": "unlockTime", "type": "uint64"}
    ]
  }
]`

// EVMLedger reads offer state from a desk contract over JSON-RPC. Endpoints
// are tried in order; the first responsive one serves the call.
type EVMLedger struct {
	chain     string
	contract  common.Address
	endpoints []string
	parsedABI abi.ABI

	clients []*ethclient.Client
}

// NewEVMLedger dials the configured RPC endpoints. Endpoints that fail to
// dial are logged and skipped; at least one must succeed.
func NewEVMLedger(ctx context.Context, chain, contract string, endpoints []string) (*EVMLedger, error) {
	parsed, err := abi.JSON(strings.NewReader(deskABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse desk ABI: %w", err)
	}

	l := &EVMLedger{
		chain:     chain,
		contract:  common.HexToAddress(contract),
		endpoints: endpoints,
		parsedABI: parsed,
	}
	for _, endpoint := range endpoints {
		client, err := ethclient.DialContext(ctx, endpoint)
		if err != nil {
			logrus.WithError(err).WithField("endpoint", endpoint).Warn("failed to dial RPC endpoint, skipping")
			continue
		}
		l.clients = append(l.clients, client)
	}
	if len(l.clients) == 0 {
		return nil, fmt.Errorf("%w: no RPC endpoint reachable for chain %s", ErrUnreachable, chain)
	}
	return l, nil
}

func (l *EVMLedger) Chain() string { return l.chain }

// GetOfferState calls getOffer on the desk contract.
func (l *EVMLedger) GetOfferState(ctx context.Context, offerID uint64) (*OfferState, error) {
	input, err := l.parsedABI.Pack("getOffer", new(big.Int).SetUint64(offerID))
	if err != nil {
		return nil, fmt.Errorf("failed to pack getOffer call: %w", err)
	}
	msg := ethereum.CallMsg{To: &l.contract, Data: input}

	var lastErr error
	for _, client := range l.clients {
		output, err := client.CallContract(ctx, msg, nil)
		if err != nil {
			lastErr = err
			continue
		}
		head, err := client.BlockNumber(ctx)
		if err != nil {
			head = 0
		}
		return l.decodeOffer(offerID, output, head)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnreachable, lastErr)
}

func (l *EVMLedger) decodeOffer(offerID uint64, output []byte, block uint64) (*OfferState, error) {
	values, err := l.parsedABI.Unpack("getOffer", output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getOffer result: %w", err)
	}
	exists, ok := values[0].(bool)
	if !ok || !exists {
		return nil, fmt.Errorf("%w: %d on %s", ErrOfferUnknown, offerID, l.chain)
	}

	state := &OfferState{
		OfferID:           offerID,
		Approved:          values[1].(bool),
		Paid:              values[2].(bool),
		Fulfilled:         values[3].(bool),
		Cancelled:         values[4].(bool),
		EmergencyRefunded: values[5].(bool),
		AmountPaid:        values[6].(*big.Int),
		BlockNumber:       block,
	}
	if unlock, ok := values[7].(uint64); ok && unlock > 0 {
		state.UnlockTime = time.Unix(int64(unlock), 0).UTC()
	}
	return state, nil
}

// Ping checks that at least one endpoint answers a head query.
func (l *EVMLedger) Ping(ctx context.Context) error {
	var lastErr error
	for _, client := range l.clients {
		if _, err := client.BlockNumber(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, lastErr)
}
