package ethereum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/gas-keeper/business/blockchain/domain"
	"github.com/fd1az/gas-keeper/internal/apperror"
	"github.com/fd1az/gas-keeper/internal/logger"
	"github.com/fd1az/gas-keeper/internal/wsconn"
)

// rpcRequest is a JSON-RPC 2.0 request frame.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// rpcMessage is any inbound JSON-RPC frame: a response (ID set) or a
// subscription notification (Method set).
type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Params  *rpcSubParams   `json:"params,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcSubParams struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// wsHeader is the newHeads notification payload with hex-encoded fields.
type wsHeader struct {
	Number     *hexutil.Big   `json:"number"`
	Hash       common.Hash    `json:"hash"`
	ParentHash common.Hash    `json:"parentHash"`
	Timestamp  hexutil.Uint64 `json:"timestamp"`
	GasLimit   hexutil.Uint64 `json:"gasLimit"`
	GasUsed    hexutil.Uint64 `json:"gasUsed"`
	BaseFee    *hexutil.Big   `json:"baseFeePerGas"`
}

// WSFeed implements BlockSubscriber over a raw JSON-RPC WebSocket using
// eth_subscribe("newHeads"). It is the lighter alternative to Subscriber
// for nodes where the full client is not needed.
type WSFeed struct {
	conn   *wsconn.Client
	logger logger.LoggerInterface

	subID     atomic.Value // string
	nextReqID atomic.Uint64
	pending   map[uint64]chan *rpcMessage
	pendingMu sync.Mutex

	lastBlock atomic.Uint64
	blocks    chan *domain.Block
	closed    atomic.Bool

	tracer         trace.Tracer
	blocksReceived metric.Int64Counter
}

// NewWSFeed creates a raw WebSocket block feed.
func NewWSFeed(wsURL string, log logger.LoggerInterface) (*WSFeed, error) {
	cfg := wsconn.DefaultConfig(wsURL, "eth-newheads")
	conn, err := wsconn.New(cfg)
	if err != nil {
		return nil, err
	}

	f := &WSFeed{
		conn:    conn,
		logger:  log,
		pending: make(map[uint64]chan *rpcMessage),
		blocks:  make(chan *domain.Block, 16),
		tracer:  otel.Tracer(tracerName),
	}

	meter := otel.Meter(meterName)
	f.blocksReceived, err = meter.Int64Counter(
		"gaskeeper_ws_blocks_received_total",
		metric.WithDescription("Block headers received over the raw WS feed"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return nil, err
	}

	conn.OnMessage(f.handleMessage)
	conn.OnReconnect(f.resubscribe)

	return f, nil
}

// Subscribe connects, issues eth_subscribe("newHeads") and returns the
// block channel.
func (f *WSFeed) Subscribe(ctx context.Context) (<-chan *domain.Block, error) {
	ctx, span := f.tracer.Start(ctx, "ws_feed.subscribe")
	defer span.End()

	if f.closed.Load() {
		return nil, errors.New("ws feed is closed")
	}

	if err := f.conn.Connect(ctx); err != nil {
		span.RecordError(err)
		return nil, apperror.New(apperror.CodeWebSocketConnectionError,
			apperror.WithCause(err),
			apperror.WithContext("failed to connect block feed"))
	}

	if err := f.resubscribe(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}

	return f.blocks, nil
}

// resubscribe issues eth_subscribe("newHeads"). Also used after reconnects.
func (f *WSFeed) resubscribe(ctx context.Context) error {
	resp, err := f.call(ctx, "eth_subscribe", []any{"newHeads"})
	if err != nil {
		return apperror.New(apperror.CodeEthereumSubscribeFailed,
			apperror.WithCause(err),
			apperror.WithContext("eth_subscribe newHeads failed"))
	}

	var id string
	if err := json.Unmarshal(resp, &id); err != nil {
		return apperror.New(apperror.CodeEthereumSubscribeFailed,
			apperror.WithCause(err),
			apperror.WithContext("unexpected eth_subscribe result"))
	}

	f.subID.Store(id)
	f.logger.Info(ctx, "subscribed to new heads", "subscription", id)
	return nil
}

// call performs a JSON-RPC request and waits for the matching response.
func (f *WSFeed) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	id := f.nextReqID.Add(1)
	ch := make(chan *rpcMessage, 1)

	f.pendingMu.Lock()
	f.pending[id] = ch
	f.pendingMu.Unlock()

	defer func() {
		f.pendingMu.Lock()
		delete(f.pending, id)
		f.pendingMu.Unlock()
	}()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := f.conn.SendJSON(ctx, req); err != nil {
		return nil, err
	}

	timeout := time.NewTimer(15 * time.Second)
	defer timeout.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout.C:
		return nil, fmt.Errorf("%s: response timeout", method)
	case msg := <-ch:
		if msg.Error != nil {
			return nil, msg.Error
		}
		return msg.Result, nil
	}
}

// handleMessage routes inbound frames to pending calls or the block channel.
func (f *WSFeed) handleMessage(ctx context.Context, data []byte) {
	var msg rpcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		f.logger.Warn(ctx, "unparseable ws frame", "error", err)
		return
	}

	if msg.ID != nil {
		f.pendingMu.Lock()
		ch, ok := f.pending[*msg.ID]
		f.pendingMu.Unlock()
		if ok {
			ch <- &msg
		}
		return
	}

	if msg.Method != "eth_subscription" && msg.Method != "starknet_subscriptionNewHeads" {
		return
	}
	if msg.Params == nil {
		return
	}

	var header wsHeader
	if err := json.Unmarshal(msg.Params.Result, &header); err != nil {
		f.logger.Warn(ctx, "unparseable block header", "error", err)
		return
	}
	if header.Number == nil {
		return
	}

	block := &domain.Block{
		Number:     header.Number.ToInt().Uint64(),
		Hash:       header.Hash,
		ParentHash: header.ParentHash,
		Timestamp:  time.Unix(int64(header.Timestamp), 0),
		GasLimit:   uint64(header.GasLimit),
		GasUsed:    uint64(header.GasUsed),
	}
	if header.BaseFee != nil {
		block.BaseFee = header.BaseFee.ToInt()
	}

	f.lastBlock.Store(block.Number)

	select {
	case f.blocks <- block:
		f.blocksReceived.Add(ctx, 1)
		f.logger.Debug(ctx, "block received", "number", block.Number)
	default:
		f.logger.Warn(ctx, "block dropped, buffer full", "number", block.Number)
	}
}

// LatestBlock fetches the latest header via eth_getBlockByNumber.
func (f *WSFeed) LatestBlock(ctx context.Context) (*domain.Block, error) {
	ctx, span := f.tracer.Start(ctx, "ws_feed.latest_block")
	defer span.End()

	resp, err := f.call(ctx, "eth_getBlockByNumber", []any{"latest", false})
	if err != nil {
		span.RecordError(err)
		return nil, apperror.New(apperror.CodeBlockNotFound,
			apperror.WithCause(err),
			apperror.WithContext("eth_getBlockByNumber failed"))
	}

	var header wsHeader
	if err := json.Unmarshal(resp, &header); err != nil {
		span.RecordError(err)
		return nil, apperror.New(apperror.CodeBlockNotFound,
			apperror.WithCause(err),
			apperror.WithContext("unexpected block payload"))
	}
	if header.Number == nil {
		return nil, apperror.New(apperror.CodeBlockNotFound,
			apperror.WithContext("node returned empty block"))
	}

	block := &domain.Block{
		Number:     header.Number.ToInt().Uint64(),
		Hash:       header.Hash,
		ParentHash: header.ParentHash,
		Timestamp:  time.Unix(int64(header.Timestamp), 0),
		GasLimit:   uint64(header.GasLimit),
		GasUsed:    uint64(header.GasUsed),
	}
	if header.BaseFee != nil {
		block.BaseFee = header.BaseFee.ToInt()
	}

	return block, nil
}

// State maps the underlying connection state to the domain state.
func (f *WSFeed) State() domain.ConnectionState {
	switch f.conn.State() {
	case wsconn.StateConnecting:
		return domain.StateConnecting
	case wsconn.StateConnected:
		return domain.StateConnected
	case wsconn.StateReconnecting:
		return domain.StateReconnecting
	default:
		return domain.StateDisconnected
	}
}

// Status returns detailed connection status.
func (f *WSFeed) Status() domain.ConnectionStatus {
	return domain.ConnectionStatus{
		State:      f.State(),
		LastBlock:  f.lastBlock.Load(),
		LastUpdate: time.Now(),
		Reconnects: f.conn.Reconnects(),
	}
}

// Close closes the feed and the underlying connection.
func (f *WSFeed) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := f.conn.Close()
	close(f.blocks)
	return err
}
