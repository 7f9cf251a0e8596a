package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"wallet-custody-service/internal/domain"
	"wallet-custody-service/internal/monitoring"
)

const (
	etherDecimals     = 18
	transferGasLimit  = 21000
	explorerBodyLimit = 4 << 20
)

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// knownChainIDs はネットワーク名からチェーンIDへの対応。
var knownChainIDs = map[string]int64{
	"mainnet": 1,
	"sepolia": 11155111,
	"holesky": 17000,
}

// ethRPC はEthereumClientが利用するJSON-RPCの操作。*ethclient.Client が満たす。
type ethRPC interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// EthereumOptions はEthereumClientの設定。
type EthereumOptions struct {
	Network     string
	ExplorerURL string
	ExplorerKey string
	HTTPClient  *http.Client
}

// EthereumClient はEthereumノードとEtherscan互換エクスプローラへのアクセスを提供する。
type EthereumClient struct {
	rpc  ethRPC
	http *http.Client
	opts EthereumOptions

	chainIDMu sync.Mutex
	chainID   *big.Int
}

// DialEthereum はJSON-RPCエンドポイントに接続する。
func DialEthereum(ctx context.Context, rpcURL string, opts EthereumOptions) (*EthereumClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dialing ethereum rpc: %w", err)
	}
	return newEthereumClient(client, opts), nil
}

func newEthereumClient(rpc ethRPC, opts EthereumOptions) *EthereumClient {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &EthereumClient{
		rpc:  rpc,
		http: opts.HTTPClient,
		opts: opts,
	}
}

// Close はRPC接続を閉じる。
func (c *EthereumClient) Close() {
	if closer, ok := c.rpc.(interface{ Close() }); ok {
		closer.Close()
	}
}

// GenerateKeyPair はsecp256k1の鍵ペアを生成する。
func (c *EthereumClient) GenerateKeyPair(ctx context.Context) (*domain.KeyPair, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating secp256k1 key: %w", err)
	}
	return &domain.KeyPair{
		Address:    ethcrypto.PubkeyToAddress(key.PublicKey).Hex(),
		PrivateKey: ethcrypto.FromECDSA(key),
	}, nil
}

// IsValidAddress は0x付き40桁16進のアドレス形式かを判定する。
func (c *EthereumClient) IsValidAddress(address string) bool {
	return addressPattern.MatchString(address) && common.IsHexAddress(address)
}

// GetBalance は最新ブロック時点の残高をether単位の10進文字列で返す。
func (c *EthereumClient) GetBalance(ctx context.Context, address string) (balance string, err error) {
	start := time.Now()
	defer func() { monitoring.ObserveChainCall("get_balance", start, err) }()

	if !c.IsValidAddress(address) {
		return "", domain.ErrInvalidAddress
	}
	wei, err := c.rpc.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return "", fmt.Errorf("fetching balance: %w", err)
	}
	return FormatEther(wei), nil
}

// SubmitTransfer は署名済みのレガシートランザクションを送信する。
func (c *EthereumClient) SubmitTransfer(ctx context.Context, privateKey []byte, toAddress string, amount decimal.Decimal) (result *domain.TransferResult, err error) {
	start := time.Now()
	defer func() { monitoring.ObserveChainCall("submit_transfer", start, err) }()

	if !c.IsValidAddress(toAddress) {
		return nil, domain.ErrInvalidAddress
	}
	value, err := ParseEther(amount)
	if err != nil {
		return nil, err
	}

	// ToECDSAが作るbig.Intの複製はゼロ化できないため、関数内にとどめ参照を残さない
	key, err := ethcrypto.ToECDSA(privateKey)
	if err != nil {
		return nil, fmt.Errorf("loading private key: %w", err)
	}
	from := ethcrypto.PubkeyToAddress(key.PublicKey)
	to := common.HexToAddress(toAddress)

	chainID, err := c.resolveChainID(ctx)
	if err != nil {
		return nil, err
	}
	nonce, err := c.rpc.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("fetching nonce: %w", err)
	}
	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      transferGasLimit,
		To:       &to,
		Value:    value,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}
	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("sending transaction: %w", err)
	}

	return &domain.TransferResult{
		Hash:  signed.Hash().Hex(),
		From:  from.Hex(),
		To:    to.Hex(),
		Value: FormatEther(signed.Value()),
	}, nil
}

// resolveChainID は署名に使うチェーンIDを返す。取得に成功した値のみキャッシュする。
func (c *EthereumClient) resolveChainID(ctx context.Context) (*big.Int, error) {
	c.chainIDMu.Lock()
	defer c.chainIDMu.Unlock()

	if c.chainID == nil {
		id, err := c.rpc.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching chain id: %w", err)
		}
		c.chainID = id
	}
	return new(big.Int).Set(c.chainID), nil
}

// explorerResponse はEtherscan互換APIの応答。エラー時のresultは文字列になる。
type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type explorerTx struct {
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	TimeStamp       string `json:"timeStamp"`
	TxReceiptStatus string `json:"txreceipt_status"`
}

// errExplorerRejected はエクスプローラがリクエストを拒否したことを表す。再試行しない。
var errExplorerRejected = errors.New("explorer rejected request")

// GetHistory はアドレスの取引を新しい順に最大limit件返す。
func (c *EthereumClient) GetHistory(ctx context.Context, address string, limit int) (records []*domain.TransferRecord, err error) {
	start := time.Now()
	defer func() { monitoring.ObserveChainCall("get_history", start, err) }()

	if !c.IsValidAddress(address) {
		return nil, domain.ErrInvalidAddress
	}

	reqURL, err := c.historyURL(address, limit)
	if err != nil {
		return nil, err
	}

	return retry.DoWithData(
		func() ([]*domain.TransferRecord, error) {
			return c.fetchHistory(ctx, reqURL)
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, errExplorerRejected)
		}),
	)
}

func (c *EthereumClient) historyURL(address string, limit int) (string, error) {
	u, err := url.Parse(c.opts.ExplorerURL)
	if err != nil {
		return "", fmt.Errorf("parsing explorer url: %w", err)
	}
	q := u.Query()
	if id, ok := knownChainIDs[c.opts.Network]; ok {
		q.Set("chainid", strconv.FormatInt(id, 10))
	}
	q.Set("module", "account")
	q.Set("action", "txlist")
	q.Set("address", address)
	q.Set("startblock", "0")
	q.Set("endblock", "99999999")
	q.Set("page", "1")
	q.Set("offset", strconv.Itoa(limit))
	q.Set("sort", "desc")
	if c.opts.ExplorerKey != "" {
		q.Set("apikey", c.opts.ExplorerKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *EthereumClient) fetchHistory(ctx context.Context, reqURL string) ([]*domain.TransferRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explorer request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, explorerBodyLimit))
	if err != nil {
		return nil, fmt.Errorf("reading explorer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer returned status %d", resp.StatusCode)
	}

	var parsed explorerResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", errExplorerRejected, err)
	}
	if parsed.Status != "1" {
		if strings.HasPrefix(parsed.Message, "No transactions found") {
			return []*domain.TransferRecord{}, nil
		}
		var reason string
		_ = json.Unmarshal(parsed.Result, &reason)
		return nil, fmt.Errorf("%w: %s %s", errExplorerRejected, parsed.Message, reason)
	}

	var txs []explorerTx
	if err := json.Unmarshal(parsed.Result, &txs); err != nil {
		return nil, fmt.Errorf("%w: malformed result: %v", errExplorerRejected, err)
	}

	records := make([]*domain.TransferRecord, 0, len(txs))
	for _, tx := range txs {
		record, err := toTransferRecord(tx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errExplorerRejected, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func toTransferRecord(tx explorerTx) (*domain.TransferRecord, error) {
	wei, ok := new(big.Int).SetString(tx.Value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid value %q for %s", tx.Value, tx.Hash)
	}
	seconds, err := strconv.ParseInt(tx.TimeStamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q for %s", tx.TimeStamp, tx.Hash)
	}
	status := domain.TransferStatusFailed
	if tx.TxReceiptStatus == "1" {
		status = domain.TransferStatusSuccess
	}
	return &domain.TransferRecord{
		Hash:      tx.Hash,
		From:      tx.From,
		To:        tx.To,
		Value:     FormatEther(wei),
		Timestamp: time.Unix(seconds, 0).UTC(),
		Status:    status,
	}, nil
}

// FormatEther はwei単位の値をether単位の10進文字列に変換する。
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -etherDecimals).String()
}

// ParseEther はether単位の金額をweiに変換する。18桁を超える小数は扱えない。
func ParseEther(amount decimal.Decimal) (*big.Int, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	wei := amount.Shift(etherDecimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("%w: more than %d decimal places", domain.ErrInvalidAmount, etherDecimals)
	}
	return wei.BigInt(), nil
}
