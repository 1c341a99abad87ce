package ledger

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"wisefido-sos/internal/errs"
	"wisefido-sos/internal/metrics"
	"wisefido-sos/internal/models"

	"github.com/ethereum/go-ethereum/params"
	"go.uber.org/zap"
)

// State 连接状态
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

// 用户可见的失败信息
const (
	msgInsufficientBalance = "Balance insuficiente. Necesitas ETH de Sepolia para enviar transacciones."
	msgInsufficientFunds   = "Balance insuficiente. Necesitas ETH de Sepolia testnet."
	msgNetworkError        = "Error de conexión a la red. Verifica tu internet."
	msgConnectFailed       = "No se pudo conectar al blockchain"
)

// Connection Initialize 返回的连接状态
type Connection struct {
	State       State     `json:"state"`
	Wallet      string    `json:"wallet,omitempty"`
	NetworkID   uint64    `json:"networkId,omitempty"`
	ConnectedAt time.Time `json:"connectedAt,omitempty"`
	Error       string    `json:"error,omitempty"`

	credential [32]byte
}

// Balance 钱包余额
type Balance struct {
	Wei       string  `json:"wei"`
	Eth       float64 `json:"eth"`
	Formatted string  `json:"formatted"`
}

// ConnectionStatus 链路状态
type ConnectionStatus struct {
	Connected   bool   `json:"connected"`
	NetworkID   uint64 `json:"networkId,omitempty"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	Wallet      string `json:"wallet,omitempty"`
	Balance     string `json:"balance,omitempty"`
	Message     string `json:"message"`
}

// Options 账本客户端配置
type Options struct {
	DefaultCredential string
	MinBalanceEth     float64
	ExplorerTxURL     string
	SubmitTimeout     time.Duration
}

// Client 链上告警账本客户端
// 状态: uninitialized → ready / failed；Cleanup 回到 uninitialized
type Client struct {
	backend Backend
	opts    Options
	minWei  *big.Int
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu      sync.Mutex
	conn    Connection
	session Session
}

// NewClient 创建账本客户端
func NewClient(backend Backend, opts Options, m *metrics.Metrics, logger *zap.Logger) *Client {
	return &Client{
		backend: backend,
		opts:    opts,
		minWei:  EthToWei(opts.MinBalanceEth),
		metrics: m,
		logger:  logger,
		conn:    Connection{State: StateUninitialized},
	}
}

// EthToWei ETH 转 wei
func EthToWei(eth float64) *big.Int {
	f := new(big.Float).Mul(big.NewFloat(eth), new(big.Float).SetInt(big.NewInt(params.Ether)))
	wei, _ := f.Int(nil)
	return wei
}

// WeiToEth wei 转 ETH
func WeiToEth(wei *big.Int) float64 {
	f := new(big.Float).Quo(new(big.Float).SetInt(wei), new(big.Float).SetInt(big.NewInt(params.Ether)))
	eth, _ := f.Float64()
	return eth
}

// ExplorerURL 交易浏览器地址
func (c *Client) ExplorerURL(txHash string) string {
	return c.opts.ExplorerTxURL + txHash
}

// Connection 当前连接状态
func (c *Client) Connection() Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Initialize 用钱包凭据建立会话；凭据为空时使用默认凭据
// 已用同一凭据就绪时直接返回当前连接
func (c *Client) Initialize(ctx context.Context, credential string) (Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.initializeLocked(ctx, credential)
	return c.conn, err
}

func (c *Client) initializeLocked(ctx context.Context, credential string) (Session, error) {
	if credential == "" {
		credential = c.opts.DefaultCredential
	}
	if credential == "" {
		c.conn = Connection{State: StateFailed, Error: "wallet credential is required"}
		return nil, errs.New(errs.KindLedgerSubmission, "wallet credential is required")
	}

	hash := sha256.Sum256([]byte(credential))
	if c.conn.State == StateReady && c.session != nil && c.conn.credential == hash {
		return c.session, nil
	}

	if c.session != nil {
		c.session.Close()
		c.session = nil
	}

	session, err := c.backend.Connect(ctx, credential)
	if err != nil {
		c.conn = Connection{State: StateFailed, Error: err.Error()}
		c.logger.Error("Failed to initialize ledger client", zap.Error(err))
		return nil, errs.Wrap(errs.KindLedgerSubmission, err, "failed to connect to ledger")
	}

	networkID, err := session.NetworkID(ctx)
	if err != nil {
		session.Close()
		c.conn = Connection{State: StateFailed, Error: err.Error()}
		c.logger.Error("Failed to get ledger network id", zap.Error(err))
		return nil, errs.Wrap(errs.KindLedgerSubmission, err, "failed to connect to ledger")
	}

	c.session = session
	c.conn = Connection{
		State:       StateReady,
		Wallet:      session.Address(),
		NetworkID:   networkID,
		ConnectedAt: time.Now().UTC(),
		credential:  hash,
	}
	c.logger.Info("Ledger client initialized",
		zap.String("wallet", c.conn.Wallet),
		zap.Uint64("network_id", networkID),
	)
	return session, nil
}

// SubmitAlert 提交一条告警上链，阻塞到打包或失败
// 从不返回 error：所有失败都折叠进 LedgerResult
func (c *Client) SubmitAlert(ctx context.Context, credential, userName string, latitude, longitude float64) models.LedgerResult {
	if c.opts.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.SubmitTimeout)
		defer cancel()
	}

	c.mu.Lock()
	session, err := c.initializeLocked(ctx, credential)
	c.mu.Unlock()
	if err != nil {
		c.metrics.RecordLedgerSubmission("failed")
		return failure(errs.KindLedgerSubmission, msgConnectFailed)
	}

	balance, err := session.Balance(ctx)
	if err != nil {
		c.metrics.RecordLedgerSubmission("failed")
		c.logger.Warn("Failed to read wallet balance", zap.Error(err))
		return c.mapFailure(err)
	}
	if balance.Cmp(c.minWei) < 0 {
		c.metrics.RecordLedgerSubmission("insufficient_funds")
		c.logger.Warn("Wallet balance below minimum",
			zap.String("balance_wei", balance.String()),
			zap.String("min_wei", c.minWei.String()),
		)
		return failure(errs.KindInsufficientFunds, msgInsufficientBalance)
	}

	lat, lon := models.CoordinateString(latitude), models.CoordinateString(longitude)
	receipt, err := session.SendAlert(ctx, userName, lat, lon)
	if err != nil {
		c.metrics.RecordLedgerSubmission("failed")
		c.logger.Error("Failed to submit alert to ledger", zap.Error(err))
		return c.mapFailure(err)
	}

	c.metrics.RecordLedgerSubmission("success")
	c.logger.Info("Alert recorded on ledger",
		zap.String("tx_hash", receipt.TxHash),
		zap.Uint64("block_number", receipt.BlockNumber),
		zap.Uint64("gas_used", receipt.GasUsed),
	)
	return models.LedgerResult{
		Success:         true,
		TransactionHash: receipt.TxHash,
		BlockNumber:     receipt.BlockNumber,
		GasUsed:         receipt.GasUsed,
		ExplorerURL:     c.ExplorerURL(receipt.TxHash),
	}
}

func (c *Client) mapFailure(err error) models.LedgerResult {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return failure(errs.KindInsufficientFunds, msgInsufficientFunds)
	case errors.Is(err, context.DeadlineExceeded):
		return failure(errs.KindTimeout, "ledger submission timed out")
	case strings.Contains(msg, "network"):
		return failure(errs.KindLedgerSubmission, msgNetworkError)
	}
	return failure(errs.KindLedgerSubmission, msg)
}

func failure(kind errs.Kind, msg string) models.LedgerResult {
	return models.LedgerResult{Success: false, Error: msg, ErrorKind: string(kind)}
}

// readSession 读操作使用的会话；未初始化时用默认凭据初始化
func (c *Client) readSession(ctx context.Context) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn.State == StateReady && c.session != nil {
		return c.session, nil
	}
	return c.initializeLocked(ctx, "")
}

// GetTotalAlerts 合约中的告警总数
func (c *Client) GetTotalAlerts(ctx context.Context) (uint64, error) {
	session, err := c.readSession(ctx)
	if err != nil {
		return 0, err
	}
	total, err := session.TotalAlerts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get total alerts: %w", err)
	}
	return total, nil
}

// GetAlert 按序号读取告警
func (c *Client) GetAlert(ctx context.Context, index uint64) (*AlertRecord, error) {
	session, err := c.readSession(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := session.GetAlert(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert %d: %w", index, err)
	}
	return rec, nil
}

// Alerts 按序号读取告警（公共数组访问器）
func (c *Client) Alerts(ctx context.Context, index uint64) (*AlertRecord, error) {
	session, err := c.readSession(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := session.Alerts(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("failed to read alerts[%d]: %w", index, err)
	}
	return rec, nil
}

// Balance 钱包余额
func (c *Client) Balance(ctx context.Context) (Balance, error) {
	session, err := c.readSession(ctx)
	if err != nil {
		return Balance{Wei: "0", Formatted: "0.000000 ETH"}, err
	}
	return balanceOf(ctx, session)
}

func balanceOf(ctx context.Context, session Session) (Balance, error) {
	wei, err := session.Balance(ctx)
	if err != nil {
		return Balance{Wei: "0", Formatted: "0.000000 ETH"}, fmt.Errorf("failed to get balance: %w", err)
	}
	eth := WeiToEth(wei)
	return Balance{
		Wei:       wei.String(),
		Eth:       eth,
		Formatted: fmt.Sprintf("%.6f ETH", eth),
	}, nil
}

// GetConnectionStatus 查询节点连通性、网络、区块高度和余额
func (c *Client) GetConnectionStatus(ctx context.Context) ConnectionStatus {
	c.mu.Lock()
	session := c.session
	ready := c.conn.State == StateReady
	c.mu.Unlock()

	if !ready || session == nil {
		return ConnectionStatus{Connected: false, Message: "ledger client not initialized"}
	}

	listening, err := session.Listening(ctx)
	if err != nil {
		return ConnectionStatus{Connected: false, Message: "connection error: " + err.Error()}
	}
	networkID, err := session.NetworkID(ctx)
	if err != nil {
		return ConnectionStatus{Connected: false, Message: "connection error: " + err.Error()}
	}
	block, err := session.BlockNumber(ctx)
	if err != nil {
		return ConnectionStatus{Connected: false, Message: "connection error: " + err.Error()}
	}
	bal, _ := balanceOf(ctx, session)

	status := ConnectionStatus{
		Connected:   listening,
		NetworkID:   networkID,
		BlockNumber: block,
		Wallet:      session.Address(),
		Balance:     bal.Formatted,
		Message:     "disconnected",
	}
	if listening {
		status.Message = fmt.Sprintf("connected to network %d", networkID)
	}
	return status
}

// Cleanup 关闭会话，回到 uninitialized
func (c *Client) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		c.session.Close()
		c.session = nil
	}
	c.conn = Connection{State: StateUninitialized}
	c.logger.Info("Ledger client cleaned up")
}
