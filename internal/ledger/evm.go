package ledger

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/tdeu/truthmarket/internal/domain"
)

// settlementABI describes the settlement contract surface the engine uses.
// Market and dispute identifiers are bytes32; share and collateral amounts
// are uint64 in collateral base units.
const settlementABI = `[
	{"type":"function","name":"createMarket","stateMutability":"nonpayable","inputs":[{"name":"question","type":"string"},{"name":"expiresAt","type":"uint64"},{"name":"feeRateBps","type":"uint16"}],"outputs":[]},
	{"type":"function","name":"openMarket","stateMutability":"nonpayable","inputs":[{"name":"id","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"getMarket","stateMutability":"view","inputs":[{"name":"id","type":"bytes32"}],"outputs":[{"name":"question","type":"string"},{"name":"creator","type":"address"},{"name":"collateral","type":"address"},{"name":"feeRateBps","type":"uint16"},{"name":"status","type":"uint8"},{"name":"createdAt","type":"uint64"},{"name":"expiresAt","type":"uint64"}]},
	{"type":"function","name":"listMarkets","stateMutability":"view","inputs":[{"name":"status","type":"uint8"}],"outputs":[{"name":"ids","type":"bytes32[]"}]},
	{"type":"function","name":"getReserves","stateMutability":"view","inputs":[{"name":"id","type":"bytes32"}],"outputs":[{"name":"yesShares","type":"uint64"},{"name":"noShares","type":"uint64"},{"name":"reserve","type":"uint64"}]},
	{"type":"function","name":"getPosition","stateMutability":"view","inputs":[{"name":"id","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[{"name":"yesShares","type":"uint64"},{"name":"noShares","type":"uint64"}]},
	{"type":"function","name":"buy","stateMutability":"nonpayable","inputs":[{"name":"id","type":"bytes32"},{"name":"account","type":"address"},{"name":"side","type":"uint8"},{"name":"shares","type":"uint64"},{"name":"maxCost","type":"uint64"}],"outputs":[]},
	{"type":"function","name":"sell","stateMutability":"nonpayable","inputs":[{"name":"id","type":"bytes32"},{"name":"account","type":"address"},{"name":"side","type":"uint8"},{"name":"shares","type":"uint64"},{"name":"minProceeds","type":"uint64"}],"outputs":[]},
	{"type":"function","name":"transferPosition","stateMutability":"nonpayable","inputs":[{"name":"id","type":"bytes32"},{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"side","type":"uint8"},{"name":"shares","type":"uint64"}],"outputs":[]},
	{"type":"function","name":"preliminaryResolve","stateMutability":"nonpayable","inputs":[{"name":"id","type":"bytes32"},{"name":"outcome","type":"uint8"}],"outputs":[]},
	{"type":"function","name":"getResolution","stateMutability":"view","inputs":[{"name":"id","type":"bytes32"}],"outputs":[{"name":"outcome","type":"uint8"},{"name":"resolvedAt","type":"uint64"}]},
	{"type":"function","name":"submitDispute","stateMutability":"nonpayable","inputs":[{"name":"id","type":"bytes32"},{"name":"account","type":"address"},{"name":"claimed","type":"uint8"},{"name":"bond","type":"uint64"},{"name":"evidenceHash","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"getDispute","stateMutability":"view","inputs":[{"name":"disputeId","type":"bytes32"}],"outputs":[{"name":"marketId","type":"bytes32"},{"name":"disputer","type":"address"},{"name":"bond","type":"uint64"},{"name":"claimed","type":"uint8"},{"name":"status","type":"uint8"},{"name":"createdAt","type":"uint64"},{"name":"resolvedAt","type":"uint64"}]},
	{"type":"function","name":"listDisputes","stateMutability":"view","inputs":[{"name":"id","type":"bytes32"}],"outputs":[{"name":"ids","type":"bytes32[]"}]},
	{"type":"function","name":"resolveDispute","stateMutability":"nonpayable","inputs":[{"name":"disputeId","type":"bytes32"},{"name":"accepted","type":"bool"}],"outputs":[]},
	{"type":"function","name":"finalResolve","stateMutability":"nonpayable","inputs":[{"name":"id","type":"bytes32"},{"name":"outcome","type":"uint8"}],"outputs":[]},
	{"type":"function","name":"cancelMarket","stateMutability":"nonpayable","inputs":[{"name":"id","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"redeem","stateMutability":"nonpayable","inputs":[{"name":"id","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[]},
	{"type":"event","name":"MarketCreated","inputs":[{"name":"marketId","type":"bytes32","indexed":true}],"anonymous":false},
	{"type":"event","name":"SharesPurchased","inputs":[{"name":"marketId","type":"bytes32","indexed":true},{"name":"account","type":"address","indexed":true},{"name":"side","type":"uint8","indexed":false},{"name":"shares","type":"uint64","indexed":false},{"name":"cost","type":"uint64","indexed":false}],"anonymous":false},
	{"type":"event","name":"SharesSold","inputs":[{"name":"marketId","type":"bytes32","indexed":true},{"name":"account","type":"address","indexed":true},{"name":"side","type":"uint8","indexed":false},{"name":"shares","type":"uint64","indexed":false},{"name":"proceeds","type":"uint64","indexed":false}],"anonymous":false},
	{"type":"event","name":"DisputeSubmitted","inputs":[{"name":"disputeId","type":"bytes32","indexed":true},{"name":"marketId","type":"bytes32","indexed":true},{"name":"bond","type":"uint64","indexed":false}],"anonymous":false},
	{"type":"event","name":"Redeemed","inputs":[{"name":"marketId","type":"bytes32","indexed":true},{"name":"account","type":"address","indexed":true},{"name":"amount","type":"uint64","indexed":false}],"anonymous":false}
]`

// EVMConfig holds settlement client parameters.
type EVMConfig struct {
	RPCURL          string
	ContractAddress string
	ChainID         int64
	GasLimit        uint64
	CallTimeout     time.Duration
}

// EVMClient implements domain.Ledger against the settlement contract over an
// EVM-compatible JSON-RPC endpoint (e.g. the Hedera relay). All mutating
// calls are signed with the operator key and waited to inclusion so the
// caller observes the all-or-nothing result.
type EVMClient struct {
	eth      *ethclient.Client
	abi      abi.ABI
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	gasLimit uint64
	timeout  time.Duration
	logger   *slog.Logger

	// nonceMu serializes nonce assignment across concurrent transactions.
	nonceMu sync.Mutex
}

// DialEVM connects to the RPC endpoint and verifies the chain ID matches the
// configuration before returning a usable client.
func DialEVM(ctx context.Context, cfg EVMConfig, key *ecdsa.PrivateKey, logger *slog.Logger) (*EVMClient, error) {
	parsed, err := abi.JSON(strings.NewReader(settlementABI))
	if err != nil {
		return nil, fmt.Errorf("ledger: parse settlement ABI: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("ledger: dial %s: %w", cfg.RPCURL, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("ledger: read chain id: %w", err)
	}
	if chainID.Int64() != cfg.ChainID {
		eth.Close()
		return nil, fmt.Errorf("ledger: chain id mismatch: endpoint reports %d, config expects %d", chainID.Int64(), cfg.ChainID)
	}

	return &EVMClient{
		eth:      eth,
		abi:      parsed,
		contract: common.HexToAddress(cfg.ContractAddress),
		key:      key,
		from:     ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
		gasLimit: cfg.GasLimit,
		timeout:  cfg.CallTimeout,
		logger:   logger.With(slog.String("component", "ledger")),
	}, nil
}

// Close releases the underlying RPC connection.
func (c *EVMClient) Close() {
	c.eth.Close()
}

// idToBytes32 decodes a 64-char hex identifier into a bytes32 value.
func idToBytes32(id string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(id, "0x"))
	if err != nil || len(raw) != 32 {
		return out, fmt.Errorf("ledger: malformed identifier %q", id)
	}
	copy(out[:], raw)
	return out, nil
}

func bytes32ToID(b [32]byte) string {
	return hex.EncodeToString(b[:])
}

// mapRevert translates contract revert reasons back into the engine's error
// taxonomy so callers can apply the documented propagation policy.
func mapRevert(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "invalid transition"):
		return fmt.Errorf("%v: %w", err, domain.ErrInvalidTransition)
	case strings.Contains(msg, "already resolved"):
		return fmt.Errorf("%v: %w", err, domain.ErrAlreadyResolved)
	case strings.Contains(msg, "not disputable"):
		return fmt.Errorf("%v: %w", err, domain.ErrNotDisputable)
	case strings.Contains(msg, "slippage"):
		return fmt.Errorf("%v: %w", err, domain.ErrSlippageExceeded)
	case strings.Contains(msg, "insufficient bond"):
		return fmt.Errorf("%v: %w", err, domain.ErrInsufficientBond)
	case strings.Contains(msg, "insufficient shares"):
		return fmt.Errorf("%v: %w", err, domain.ErrInsufficientShares)
	case strings.Contains(msg, "unknown market"), strings.Contains(msg, "unknown dispute"):
		return fmt.Errorf("%v: %w", err, domain.ErrNotFound)
	default:
		return err
	}
}

// call performs a read-only contract call and unpacks the outputs.
func (c *EVMClient) call(ctx context.Context, method string, args ...any) ([]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: pack %s: %w", method, err)
	}

	output, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &c.contract,
		Data: input,
	}, nil)
	if err != nil {
		return nil, mapRevert(fmt.Errorf("ledger: call %s: %w", method, err))
	}

	values, err := c.abi.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("ledger: unpack %s: %w", method, err)
	}
	return values, nil
}

// transact signs, submits, and waits for a state-changing call, returning
// the mined receipt. A receipt with failed status is surfaced through
// mapRevert so guard errors keep their taxonomy.
func (c *EVMClient) transact(ctx context.Context, method string, args ...any) (*types.Receipt, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: pack %s: %w", method, err)
	}

	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	nonce, err := c.eth.PendingNonceAt(callCtx, c.from)
	if err != nil {
		return nil, fmt.Errorf("ledger: nonce for %s: %w", method, err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(callCtx)
	if err != nil {
		return nil, fmt.Errorf("ledger: gas price for %s: %w", method, err)
	}

	tx := types.NewTransaction(nonce, c.contract, big.NewInt(0), c.gasLimit, gasPrice, input)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("ledger: sign %s: %w", method, err)
	}

	if err := c.eth.SendTransaction(callCtx, signed); err != nil {
		return nil, mapRevert(fmt.Errorf("ledger: send %s: %w", method, err))
	}

	receipt, err := bind.WaitMined(ctx, c.eth, signed)
	if err != nil {
		return nil, fmt.Errorf("ledger: wait %s tx %s: %w", method, signed.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		reason := c.revertReason(ctx, signed, receipt.BlockNumber)
		return nil, mapRevert(fmt.Errorf("ledger: %s reverted in tx %s: %s", method, signed.Hash().Hex(), reason))
	}

	c.logger.DebugContext(ctx, "ledger transaction mined",
		slog.String("method", method),
		slog.String("tx", signed.Hash().Hex()),
		slog.Uint64("gas_used", receipt.GasUsed),
	)
	return receipt, nil
}

// revertReason replays a failed transaction as a call to recover the revert
// string. Best effort: some endpoints do not return reasons.
func (c *EVMClient) revertReason(ctx context.Context, tx *types.Transaction, block *big.Int) string {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		From: c.from,
		To:   tx.To(),
		Data: tx.Data(),
	}, block)
	if err != nil {
		return err.Error()
	}
	return "unknown revert reason"
}

// eventData finds the first log emitted by the named event and unpacks its
// non-indexed fields into out.
func (c *EVMClient) eventData(receipt *types.Receipt, event string, out any) ([]common.Hash, error) {
	ev, ok := c.abi.Events[event]
	if !ok {
		return nil, fmt.Errorf("ledger: unknown event %s", event)
	}
	for _, lg := range receipt.Logs {
		if lg.Address != c.contract || len(lg.Topics) == 0 || lg.Topics[0] != ev.ID {
			continue
		}
		if out != nil {
			if err := c.abi.UnpackIntoInterface(out, event, lg.Data); err != nil {
				return nil, fmt.Errorf("ledger: unpack %s log: %w", event, err)
			}
		}
		return lg.Topics[1:], nil
	}
	return nil, fmt.Errorf("ledger: no %s event in receipt", event)
}

// --- domain.Ledger implementation ---

// CreateMarket provisions a market and its AMM pool in one transaction. The
// identifier is content-derived, so the client computes it the same way the
// contract does and verifies it against the emitted event.
func (c *EVMClient) CreateMarket(ctx context.Context, question string, expiresAt time.Time, feeRateBps int64) (string, error) {
	receipt, err := c.transact(ctx, "createMarket", question, uint64(expiresAt.UTC().Unix()), uint16(feeRateBps))
	if err != nil {
		return "", err
	}
	topics, err := c.eventData(receipt, "MarketCreated", nil)
	if err != nil {
		return "", err
	}
	if len(topics) < 1 {
		return "", errors.New("ledger: MarketCreated event missing market id")
	}
	return bytes32ToID(topics[0]), nil
}

// Open moves a Submitted market into trading.
func (c *EVMClient) Open(ctx context.Context, marketID string) error {
	id, err := idToBytes32(marketID)
	if err != nil {
		return err
	}
	_, err = c.transact(ctx, "openMarket", id)
	return err
}

// Market reads a market record from the contract.
func (c *EVMClient) Market(ctx context.Context, marketID string) (domain.Market, error) {
	id, err := idToBytes32(marketID)
	if err != nil {
		return domain.Market{}, err
	}
	values, err := c.call(ctx, "getMarket", id)
	if err != nil {
		return domain.Market{}, err
	}

	return domain.Market{
		ID:              marketID,
		Question:        values[0].(string),
		Creator:         values[1].(common.Address).Hex(),
		CollateralToken: values[2].(common.Address).Hex(),
		FeeRateBps:      int64(values[3].(uint16)),
		Status:          domain.MarketStatus(values[4].(uint8)),
		CreatedAt:       time.Unix(int64(values[5].(uint64)), 0).UTC(),
		ExpiresAt:       time.Unix(int64(values[6].(uint64)), 0).UTC(),
	}, nil
}

// ListMarkets returns all markets currently in the given status.
func (c *EVMClient) ListMarkets(ctx context.Context, status domain.MarketStatus) ([]domain.Market, error) {
	values, err := c.call(ctx, "listMarkets", uint8(status))
	if err != nil {
		return nil, err
	}
	ids := values[0].([][32]byte)

	markets := make([]domain.Market, 0, len(ids))
	for _, raw := range ids {
		m, err := c.Market(ctx, bytes32ToID(raw))
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, nil
}

// Reserves reads the AMM pool state for a market.
func (c *EVMClient) Reserves(ctx context.Context, marketID string) (domain.ShareReserves, error) {
	id, err := idToBytes32(marketID)
	if err != nil {
		return domain.ShareReserves{}, err
	}
	values, err := c.call(ctx, "getReserves", id)
	if err != nil {
		return domain.ShareReserves{}, err
	}
	return domain.ShareReserves{
		MarketID:  marketID,
		YesShares: int64(values[0].(uint64)),
		NoShares:  int64(values[1].(uint64)),
		Reserve:   int64(values[2].(uint64)),
	}, nil
}

// Position reads an account's holdings in a market.
func (c *EVMClient) Position(ctx context.Context, marketID, account string) (domain.Position, error) {
	id, err := idToBytes32(marketID)
	if err != nil {
		return domain.Position{}, err
	}
	values, err := c.call(ctx, "getPosition", id, common.HexToAddress(account))
	if err != nil {
		return domain.Position{}, err
	}
	return domain.Position{
		MarketID:  marketID,
		Account:   account,
		YesShares: int64(values[0].(uint64)),
		NoShares:  int64(values[1].(uint64)),
	}, nil
}

// Buy executes a purchase, returning the collateral actually paid as
// reported by the SharesPurchased event.
func (c *EVMClient) Buy(ctx context.Context, marketID, account string, side domain.Side, shares, maxCost int64) (int64, error) {
	id, err := idToBytes32(marketID)
	if err != nil {
		return 0, err
	}
	receipt, err := c.transact(ctx, "buy", id, common.HexToAddress(account), uint8(side), uint64(shares), uint64(maxCost))
	if err != nil {
		return 0, err
	}

	var ev struct {
		Side   uint8
		Shares uint64
		Cost   uint64
	}
	if _, err := c.eventData(receipt, "SharesPurchased", &ev); err != nil {
		return 0, err
	}
	return int64(ev.Cost), nil
}

// Sell executes a sale, returning the collateral paid out.
func (c *EVMClient) Sell(ctx context.Context, marketID, account string, side domain.Side, shares, minProceeds int64) (int64, error) {
	id, err := idToBytes32(marketID)
	if err != nil {
		return 0, err
	}
	receipt, err := c.transact(ctx, "sell", id, common.HexToAddress(account), uint8(side), uint64(shares), uint64(minProceeds))
	if err != nil {
		return 0, err
	}

	var ev struct {
		Side     uint8
		Shares   uint64
		Proceeds uint64
	}
	if _, err := c.eventData(receipt, "SharesSold", &ev); err != nil {
		return 0, err
	}
	return int64(ev.Proceeds), nil
}

// TransferPosition moves share ownership between accounts.
func (c *EVMClient) TransferPosition(ctx context.Context, marketID, from, to string, side domain.Side, shares int64) error {
	id, err := idToBytes32(marketID)
	if err != nil {
		return err
	}
	_, err = c.transact(ctx, "transferPosition", id, common.HexToAddress(from), common.HexToAddress(to), uint8(side), uint64(shares))
	return err
}

// PreliminaryResolve moves an expired Open market to PendingResolution.
func (c *EVMClient) PreliminaryResolve(ctx context.Context, marketID string, outcome domain.Outcome) error {
	id, err := idToBytes32(marketID)
	if err != nil {
		return err
	}
	_, err = c.transact(ctx, "preliminaryResolve", id, uint8(outcome))
	return err
}

// Resolution reads the recorded outcome and the time it was set. A zero
// resolvedAt means no resolution step has happened yet.
func (c *EVMClient) Resolution(ctx context.Context, marketID string) (domain.Outcome, time.Time, error) {
	id, err := idToBytes32(marketID)
	if err != nil {
		return domain.OutcomeUnset, time.Time{}, err
	}
	values, err := c.call(ctx, "getResolution", id)
	if err != nil {
		return domain.OutcomeUnset, time.Time{}, err
	}
	at := int64(values[1].(uint64))
	if at == 0 {
		return domain.OutcomeUnset, time.Time{}, domain.ErrNotFound
	}
	return domain.Outcome(values[0].(uint8)), time.Unix(at, 0).UTC(), nil
}

// SubmitDispute escrows the bond and creates the dispute in one transaction.
// The dispute id is read back from the DisputeSubmitted event.
func (c *EVMClient) SubmitDispute(ctx context.Context, marketID, account string, claimed domain.Outcome, bond int64, evidenceHash string) (string, error) {
	id, err := idToBytes32(marketID)
	if err != nil {
		return "", err
	}
	evHash, err := idToBytes32(evidenceHash)
	if err != nil {
		return "", err
	}

	receipt, err := c.transact(ctx, "submitDispute", id, common.HexToAddress(account), uint8(claimed), uint64(bond), evHash)
	if err != nil {
		return "", err
	}
	topics, err := c.eventData(receipt, "DisputeSubmitted", nil)
	if err != nil {
		return "", err
	}
	if len(topics) < 1 {
		return "", errors.New("ledger: DisputeSubmitted event missing dispute id")
	}
	return bytes32ToID(topics[0]), nil
}

// disputeStatusFromChain maps the contract's numeric dispute status.
func disputeStatusFromChain(v uint8) domain.DisputeStatus {
	switch v {
	case 1:
		return domain.DisputeAccepted
	case 2:
		return domain.DisputeRejected
	case 3:
		return domain.DisputeExpired
	default:
		return domain.DisputeActive
	}
}

// Dispute reads a dispute record. Evidence text lives only in the secondary
// store; the chain carries its hash.
func (c *EVMClient) Dispute(ctx context.Context, disputeID string) (domain.Dispute, error) {
	id, err := idToBytes32(disputeID)
	if err != nil {
		return domain.Dispute{}, err
	}
	values, err := c.call(ctx, "getDispute", id)
	if err != nil {
		return domain.Dispute{}, err
	}

	d := domain.Dispute{
		ID:             disputeID,
		MarketID:       bytes32ToID(values[0].([32]byte)),
		Disputer:       values[1].(common.Address).Hex(),
		Bond:           int64(values[2].(uint64)),
		ClaimedOutcome: domain.Outcome(values[3].(uint8)),
		Status:         disputeStatusFromChain(values[4].(uint8)),
		CreatedAt:      time.Unix(int64(values[5].(uint64)), 0).UTC(),
	}
	if resolved := int64(values[6].(uint64)); resolved > 0 {
		t := time.Unix(resolved, 0).UTC()
		d.ResolvedAt = &t
	}
	return d, nil
}

// ListDisputes returns all disputes against a market.
func (c *EVMClient) ListDisputes(ctx context.Context, marketID string) ([]domain.Dispute, error) {
	id, err := idToBytes32(marketID)
	if err != nil {
		return nil, err
	}
	values, err := c.call(ctx, "listDisputes", id)
	if err != nil {
		return nil, err
	}
	ids := values[0].([][32]byte)

	disputes := make([]domain.Dispute, 0, len(ids))
	for _, raw := range ids {
		d, err := c.Dispute(ctx, bytes32ToID(raw))
		if err != nil {
			return nil, err
		}
		disputes = append(disputes, d)
	}
	return disputes, nil
}

// ResolveDispute releases the bond exactly once; the contract rejects a
// second resolution with an "already resolved" revert.
func (c *EVMClient) ResolveDispute(ctx context.Context, disputeID string, accepted bool) error {
	id, err := idToBytes32(disputeID)
	if err != nil {
		return err
	}
	_, err = c.transact(ctx, "resolveDispute", id, accepted)
	return err
}

// FinalResolve seals the market outcome and unlocks redemption.
func (c *EVMClient) FinalResolve(ctx context.Context, marketID string, outcome domain.Outcome) error {
	id, err := idToBytes32(marketID)
	if err != nil {
		return err
	}
	_, err = c.transact(ctx, "finalResolve", id, uint8(outcome))
	return err
}

// Cancel voids a Submitted or Open market.
func (c *EVMClient) Cancel(ctx context.Context, marketID string) error {
	id, err := idToBytes32(marketID)
	if err != nil {
		return err
	}
	_, err = c.transact(ctx, "cancelMarket", id)
	return err
}

// Redeem pays out the account's position, returning the amount from the
// Redeemed event. The contract zeroes the position in the same transaction,
// so repeated calls pay zero.
func (c *EVMClient) Redeem(ctx context.Context, marketID, account string) (int64, error) {
	id, err := idToBytes32(marketID)
	if err != nil {
		return 0, err
	}
	receipt, err := c.transact(ctx, "redeem", id, common.HexToAddress(account))
	if err != nil {
		return 0, err
	}

	var ev struct {
		Amount uint64
	}
	if _, err := c.eventData(receipt, "Redeemed", &ev); err != nil {
		return 0, err
	}
	return int64(ev.Amount), nil
}

// Compile-time interface check.
var _ domain.Ledger = (*EVMClient)(nil)
