package ledger

import (
	"context"
	"math/big"
)

// contractABI 告警合约接口：sendAlert / alerts / getAlert / getTotalAlerts 和 AlertSent 事件
const contractABI = `[
	{"anonymous":false,"inputs":[
		{"indexed":true,"internalType":"address","name":"sender","type":"address"},
		{"indexed":false,"internalType":"string","name":"userName","type":"string"},
		{"indexed":false,"internalType":"string","name":"latitude","type":"string"},
		{"indexed":false,"internalType":"string","name":"longitude","type":"string"},
		{"indexed":false,"internalType":"uint256","name":"timestamp","type":"uint256"}
	],"name":"AlertSent","type":"event"},
	{"inputs":[
		{"internalType":"string","name":"userName","type":"string"},
		{"internalType":"string","name":"latitude","type":"string"},
		{"internalType":"string","name":"longitude","type":"string"}
	],"name":"sendAlert","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"","type":"uint256"}],"name":"alerts","outputs":[
		{"internalType":"address","name":"sender","type":"address"},
		{"internalType":"string","name":"userName","type":"string"},
		{"internalType":"string","name":"latitude","type":"string"},
		{"internalType":"string","name":"longitude","type":"string"},
		{"internalType":"uint256","name":"timestamp","type":"uint256"}
	],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"index","type":"uint256"}],"name":"getAlert","outputs":[
		{"internalType":"address","name":"","type":"address"},
		{"internalType":"string","name":"","type":"string"},
		{"internalType":"string","name":"","type":"string"},
		{"internalType":"string","name":"","type":"string"},
		{"internalType":"uint256","name":"","type":"uint256"}
	],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"getTotalAlerts","outputs":[
		{"internalType":"uint256","name":"","type":"uint256"}
	],"stateMutability":"view","type":"function"}
]`

// Receipt 已上链交易的回执
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
}

// AlertRecord 合约中保存的一条告警
type AlertRecord struct {
	Index     uint64 `json:"index"`
	Sender    string `json:"sender"`
	UserName  string `json:"userName"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
	Timestamp uint64 `json:"timestamp"`
}

// Backend 建立链上会话
type Backend interface {
	Connect(ctx context.Context, credential string) (Session, error)
}

// Session 一个钱包凭据对应的链上会话
type Session interface {
	Address() string
	NetworkID(ctx context.Context) (uint64, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Listening(ctx context.Context) (bool, error)
	Balance(ctx context.Context) (*big.Int, error)
	// SendAlert 发送交易并阻塞到打包或失败
	SendAlert(ctx context.Context, userName, latitude, longitude string) (*Receipt, error)
	TotalAlerts(ctx context.Context) (uint64, error)
	GetAlert(ctx context.Context, index uint64) (*AlertRecord, error)
	Alerts(ctx context.Context, index uint64) (*AlertRecord, error)
	Close()
}
