package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// EthBackend 基于 go-ethereum 的链上访问
type EthBackend struct {
	rpcURL   string
	contract common.Address
	gasLimit uint64
	parsed   abi.ABI
	logger   *zap.Logger
}

// NewEthBackend 创建以太坊后端
func NewEthBackend(rpcURL, contractAddress string, gasLimit uint64, logger *zap.Logger) (*EthBackend, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("ledger rpc url is required")
	}
	if !common.IsHexAddress(contractAddress) {
		return nil, fmt.Errorf("invalid contract address: %q", contractAddress)
	}
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract abi: %w", err)
	}
	return &EthBackend{
		rpcURL:   rpcURL,
		contract: common.HexToAddress(contractAddress),
		gasLimit: gasLimit,
		parsed:   parsed,
		logger:   logger,
	}, nil
}

// Connect 解析私钥并连接 RPC 节点
func (b *EthBackend) Connect(ctx context.Context, credential string) (Session, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(credential), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid wallet private key: %w", err)
	}

	client, err := ethclient.DialContext(ctx, b.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial network: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain id from network: %w", err)
	}

	s := &ethSession{
		client:   client,
		contract: bind.NewBoundContract(b.contract, b.parsed, client, client, client),
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
		gasLimit: b.gasLimit,
	}

	b.logger.Info("Ledger wallet connected",
		zap.String("wallet", s.address.Hex()),
		zap.String("chain_id", chainID.String()),
	)
	return s, nil
}

type ethSession struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	key      *ecdsa.PrivateKey
	address  common.Address
	chainID  *big.Int
	gasLimit uint64
}

func (s *ethSession) Address() string { return s.address.Hex() }

func (s *ethSession) NetworkID(ctx context.Context) (uint64, error) {
	id, err := s.client.NetworkID(ctx)
	if err != nil {
		return 0, err
	}
	return id.Uint64(), nil
}

func (s *ethSession) BlockNumber(ctx context.Context) (uint64, error) {
	return s.client.BlockNumber(ctx)
}

func (s *ethSession) Listening(ctx context.Context) (bool, error) {
	var listening bool
	if err := s.client.Client().CallContext(ctx, &listening, "net_listening"); err != nil {
		return false, err
	}
	return listening, nil
}

func (s *ethSession) Balance(ctx context.Context) (*big.Int, error) {
	return s.client.BalanceAt(ctx, s.address, nil)
}

func (s *ethSession) SendAlert(ctx context.Context, userName, latitude, longitude string) (*Receipt, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, s.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx
	opts.GasLimit = s.gasLimit

	tx, err := s.contract.Transact(opts, "sendAlert", userName, latitude, longitude)
	if err != nil {
		return nil, err
	}

	receipt, err := bind.WaitMined(ctx, s.client, tx)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for transaction %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}

	return &Receipt{
		TxHash:      tx.Hash().Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

func (s *ethSession) TotalAlerts(ctx context.Context) (uint64, error) {
	var out []interface{}
	if err := s.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getTotalAlerts"); err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("unexpected getTotalAlerts output length %d", len(out))
	}
	total := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return total.Uint64(), nil
}

func (s *ethSession) GetAlert(ctx context.Context, index uint64) (*AlertRecord, error) {
	return s.readAlert(ctx, "getAlert", index)
}

func (s *ethSession) Alerts(ctx context.Context, index uint64) (*AlertRecord, error) {
	return s.readAlert(ctx, "alerts", index)
}

func (s *ethSession) readAlert(ctx context.Context, method string, index uint64) (*AlertRecord, error) {
	var out []interface{}
	if err := s.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, new(big.Int).SetUint64(index)); err != nil {
		return nil, err
	}
	if len(out) != 5 {
		return nil, fmt.Errorf("unexpected %s output length %d", method, len(out))
	}

	sender := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	ts := *abi.ConvertType(out[4], new(*big.Int)).(**big.Int)
	return &AlertRecord{
		Index:     index,
		Sender:    sender.Hex(),
		UserName:  *abi.ConvertType(out[1], new(string)).(*string),
		Latitude:  *abi.ConvertType(out[2], new(string)).(*string),
		Longitude: *abi.ConvertType(out[3], new(string)).(*string),
		Timestamp: ts.Uint64(),
	}, nil
}

func (s *ethSession) Close() {
	s.client.Close()
}
