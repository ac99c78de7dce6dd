package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/gas-keeper/business/blockchain/domain"
	"github.com/fd1az/gas-keeper/internal/apperror"
	"github.com/fd1az/gas-keeper/internal/cache"
	"github.com/fd1az/gas-keeper/internal/circuitbreaker"
	"github.com/fd1az/gas-keeper/internal/logger"
	"github.com/fd1az/gas-keeper/internal/ratelimit"
)

// paymasterABI covers the two entry points the keeper uses.
const paymasterABI = `[
	{"name":"getGasPrice","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"setGasPrice","type":"function","stateMutability":"nonpayable","inputs":[{"name":"newPrice","type":"uint256"}],"outputs":[]}
]`

// ChainClientConfig holds configuration for the paymaster chain client.
type ChainClientConfig struct {
	RPCURL          string
	ContractAddress common.Address
	OwnerPrivateKey string // hex, no 0x prefix required
	GasLimit        uint64
	RequestsPerMin  int
	CacheTTL        time.Duration
}

// DefaultChainClientConfig returns sensible defaults.
func DefaultChainClientConfig(rpcURL string, contract common.Address, ownerKey string) ChainClientConfig {
	return ChainClientConfig{
		RPCURL:          rpcURL,
		ContractAddress: contract,
		OwnerPrivateKey: ownerKey,
		GasLimit:        120_000,
		RequestsPerMin:  300,
		CacheTTL:        30 * time.Second,
	}
}

// chainMetrics holds OTEL metric instruments for the chain client.
type chainMetrics struct {
	contractReads metric.Int64Counter
	txsSubmitted  metric.Int64Counter
	statusChecks  metric.Int64Counter
	callLatency   metric.Float64Histogram
}

// ChainClient reads and writes the paymaster contract's stored gas price.
// Contract reads are cached per block so repeated evaluation within the
// same cycle never hits the node twice.
type ChainClient struct {
	config ChainClientConfig
	logger logger.LoggerInterface

	client   *ethclient.Client
	clientMu sync.RWMutex

	contractABI abi.ABI
	ownerKey    *ecdsa.PrivateKey
	ownerAddr   common.Address
	chainID     *big.Int
	chainIDMu   sync.Mutex

	priceCache *cache.Cache[uint64, *big.Int]
	breaker    *circuitbreaker.CircuitBreaker[[]byte]
	limiter    *ratelimit.Limiter

	tracer  trace.Tracer
	metrics *chainMetrics
}

// NewChainClient creates a chain client for the paymaster contract.
func NewChainClient(cfg ChainClientConfig, log logger.LoggerInterface) (*ChainClient, error) {
	parsed, err := abi.JSON(strings.NewReader(paymasterABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}

	keyHex := strings.TrimPrefix(cfg.OwnerPrivateKey, "0x")
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err),
			apperror.WithContext("invalid owner private key"))
	}

	c := &ChainClient{
		config:      cfg,
		logger:      log,
		contractABI: parsed,
		ownerKey:    key,
		ownerAddr:   crypto.PubkeyToAddress(key.PublicKey),
		priceCache:  cache.New[uint64, *big.Int](time.Minute),
		breaker:     circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig("paymaster-call")),
		limiter:     ratelimit.New(cfg.RequestsPerMin),
		tracer:      otel.Tracer(tracerName),
	}

	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return c, nil
}

func (c *ChainClient) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	c.metrics = &chainMetrics{}

	c.metrics.contractReads, err = meter.Int64Counter(
		"gaskeeper_contract_reads_total",
		metric.WithDescription("Total paymaster getGasPrice calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	c.metrics.txsSubmitted, err = meter.Int64Counter(
		"gaskeeper_txs_submitted_total",
		metric.WithDescription("Total setGasPrice transactions broadcast"),
		metric.WithUnit("{tx}"),
	)
	if err != nil {
		return err
	}

	c.metrics.statusChecks, err = meter.Int64Counter(
		"gaskeeper_tx_status_checks_total",
		metric.WithDescription("Total transaction status queries"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return err
	}

	c.metrics.callLatency, err = meter.Float64Histogram(
		"gaskeeper_chain_call_duration_seconds",
		metric.WithDescription("Latency of chain RPC calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Connect dials the RPC endpoint and resolves the chain ID.
func (c *ChainClient) Connect(ctx context.Context) error {
	client, err := ethclient.DialContext(ctx, c.config.RPCURL)
	if err != nil {
		return apperror.New(apperror.CodeEthereumConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("dial %s", c.config.RPCURL)))
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return apperror.New(apperror.CodeEthereumRPCError,
			apperror.WithCause(err),
			apperror.WithContext("failed to resolve chain id"))
	}

	c.clientMu.Lock()
	c.client = client
	c.clientMu.Unlock()

	c.chainIDMu.Lock()
	c.chainID = chainID
	c.chainIDMu.Unlock()

	c.logger.Info(ctx, "chain client connected",
		"chain_id", chainID.String(),
		"contract", c.config.ContractAddress.Hex(),
		"owner", c.ownerAddr.Hex())

	return nil
}

func (c *ChainClient) getClient() (*ethclient.Client, error) {
	c.clientMu.RLock()
	defer c.clientMu.RUnlock()
	if c.client == nil {
		return nil, apperror.New(apperror.CodeEthereumConnectionFailed,
			apperror.WithContext("chain client not connected"))
	}
	return c.client, nil
}

// ContractPrice reads the gas price stored in the paymaster contract.
// Results are cached per block number.
func (c *ChainClient) ContractPrice(ctx context.Context, blockNumber uint64) (*big.Int, error) {
	ctx, span := c.tracer.Start(ctx, "chain.contract_price",
		trace.WithAttributes(attribute.Int64("block", int64(blockNumber))),
	)
	defer span.End()

	if cached, ok := c.priceCache.Get(ctx, blockNumber); ok {
		span.AddEvent("cache_hit")
		return new(big.Int).Set(cached), nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperror.New(apperror.CodeRateLimitExceeded,
			apperror.WithCause(err))
	}

	client, err := c.getClient()
	if err != nil {
		return nil, err
	}

	input, err := c.contractABI.Pack("getGasPrice")
	if err != nil {
		return nil, apperror.New(apperror.CodeInternalError,
			apperror.WithCause(err),
			apperror.WithContext("pack getGasPrice"))
	}

	start := time.Now()
	output, err := c.breaker.Execute(func() ([]byte, error) {
		return client.CallContract(ctx, ethereum.CallMsg{
			To:   &c.config.ContractAddress,
			Data: input,
		}, nil)
	})
	c.metrics.callLatency.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("call", "getGasPrice")))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "call failed")
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext("getGasPrice call failed"))
	}

	results, err := c.contractABI.Unpack("getGasPrice", output)
	if err != nil || len(results) != 1 {
		span.RecordError(err)
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext("unexpected getGasPrice output"))
	}

	price, ok := results[0].(*big.Int)
	if !ok {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("getGasPrice returned non-uint256"))
	}

	c.priceCache.Set(ctx, blockNumber, new(big.Int).Set(price), c.config.CacheTTL)
	c.metrics.contractReads.Add(ctx, 1)
	span.SetStatus(codes.Ok, "read")

	c.logger.Debug(ctx, "contract price read",
		"block", blockNumber,
		"price_gwei", domain.WeiToGwei(price).String())

	return price, nil
}

// SubmitPriceUpdate signs and broadcasts a setGasPrice transaction.
func (c *ChainClient) SubmitPriceUpdate(ctx context.Context, newPrice *big.Int) (common.Hash, error) {
	ctx, span := c.tracer.Start(ctx, "chain.submit_price_update",
		trace.WithAttributes(attribute.String("new_price", newPrice.String())),
	)
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		return common.Hash{}, apperror.New(apperror.CodeRateLimitExceeded,
			apperror.WithCause(err))
	}

	client, err := c.getClient()
	if err != nil {
		return common.Hash{}, err
	}

	input, err := c.contractABI.Pack("setGasPrice", newPrice)
	if err != nil {
		return common.Hash{}, apperror.New(apperror.CodeInternalError,
			apperror.WithCause(err),
			apperror.WithContext("pack setGasPrice"))
	}

	nonce, err := client.PendingNonceAt(ctx, c.ownerAddr)
	if err != nil {
		span.RecordError(err)
		return common.Hash{}, apperror.New(apperror.CodeSubmitFailed,
			apperror.WithCause(err),
			apperror.WithContext("failed to fetch nonce"))
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		span.RecordError(err)
		return common.Hash{}, apperror.New(apperror.CodeSubmitFailed,
			apperror.WithCause(err),
			apperror.WithContext("failed to fetch fee estimate"))
	}

	tx := types.NewTransaction(nonce, c.config.ContractAddress, big.NewInt(0),
		c.config.GasLimit, gasPrice, input)

	c.chainIDMu.Lock()
	chainID := c.chainID
	c.chainIDMu.Unlock()

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), c.ownerKey)
	if err != nil {
		span.RecordError(err)
		return common.Hash{}, apperror.New(apperror.CodeSigningFailed,
			apperror.WithCause(err))
	}

	start := time.Now()
	err = client.SendTransaction(ctx, signed)
	c.metrics.callLatency.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("call", "setGasPrice")))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "broadcast failed")
		return common.Hash{}, apperror.New(apperror.CodeSubmitFailed,
			apperror.WithCause(err),
			apperror.WithContext("setGasPrice broadcast failed"))
	}

	hash := signed.Hash()
	c.metrics.txsSubmitted.Add(ctx, 1)
	span.SetAttributes(attribute.String("tx_hash", hash.Hex()))
	span.SetStatus(codes.Ok, "submitted")

	c.logger.Info(ctx, "price update submitted",
		"tx_hash", hash.Hex(),
		"new_price_gwei", domain.WeiToGwei(newPrice).String(),
		"nonce", nonce)

	return hash, nil
}

// TxStatus queries the status of a previously submitted transaction.
func (c *ChainClient) TxStatus(ctx context.Context, txHash common.Hash) (domain.TxStatus, error) {
	ctx, span := c.tracer.Start(ctx, "chain.tx_status",
		trace.WithAttributes(attribute.String("tx_hash", txHash.Hex())),
	)
	defer span.End()

	client, err := c.getClient()
	if err != nil {
		return "", err
	}

	c.metrics.statusChecks.Add(ctx, 1)

	receipt, err := client.TransactionReceipt(ctx, txHash)
	if err == nil {
		if receipt.Status == types.ReceiptStatusSuccessful {
			span.SetStatus(codes.Ok, "confirmed")
			return domain.TxConfirmed, nil
		}
		span.SetStatus(codes.Ok, "reverted")
		return domain.TxFailed, nil
	}
	if !errors.Is(err, ethereum.NotFound) {
		span.RecordError(err)
		return "", apperror.New(apperror.CodeTxStatusFailed,
			apperror.WithCause(err),
			apperror.WithContext("receipt lookup failed"))
	}

	// No receipt yet. Distinguish "still in the mempool" from "gone".
	_, isPending, err := client.TransactionByHash(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			span.SetStatus(codes.Ok, "not_found")
			return domain.TxNotFound, nil
		}
		span.RecordError(err)
		return "", apperror.New(apperror.CodeTxStatusFailed,
			apperror.WithCause(err),
			apperror.WithContext("tx lookup failed"))
	}

	if isPending {
		return domain.TxPending, nil
	}

	// Known but not pending and no receipt: mined but receipt lagging.
	return domain.TxPending, nil
}

// OwnerAddress returns the keeper's signing address.
func (c *ChainClient) OwnerAddress() common.Address {
	return c.ownerAddr
}

// Close releases the underlying client and cache.
func (c *ChainClient) Close() error {
	c.priceCache.Close()

	c.clientMu.Lock()
	defer c.clientMu.Unlock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	return nil
}
