package ton

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/remittance/backend/internal/remittance"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tlb"
	tonapi "github.com/xssnick/tonutils-go/ton"
	"go.uber.org/zap"
)

const (
	mainnetConfigURL = "https://ton.org/global.config.json"
	testnetConfigURL = "https://ton.org/testnet-global.config.json"

	txBatchSize = 100
)

// ConnectOptions selects the lite servers. With Host and Key set a single
// server is used, otherwise the public config of Network.
type ConnectOptions struct {
	Network string // mainnet/testnet
	Host    string
	Port    int
	Key     string
}

func (o ConnectOptions) IsMainnet() bool {
	return strings.EqualFold(o.Network, "mainnet")
}

// Connect opens a lite client pool and wraps it with retries.
func Connect(ctx context.Context, opts ConnectOptions, log *zap.Logger) (tonapi.APIClientWrapped, error) {
	client := liteclient.NewConnectionPool()

	if opts.Host != "" && opts.Key != "" {
		addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
		log.Info("connecting to lite server", zap.String("addr", addr))
		if err := client.AddConnection(ctx, addr, opts.Key); err != nil {
			return nil, fmt.Errorf("connect to lite server %s: %w", addr, err)
		}
	} else {
		configURL := testnetConfigURL
		if opts.IsMainnet() {
			configURL = mainnetConfigURL
		}
		log.Info("connecting via global config", zap.String("url", configURL), zap.String("network", opts.Network))
		if err := client.AddConnectionsFromConfigUrl(ctx, configURL); err != nil {
			return nil, fmt.Errorf("connect via config %s: %w", configURL, err)
		}
	}

	proofPolicy := tonapi.ProofCheckPolicyFast
	if opts.IsMainnet() {
		proofPolicy = tonapi.ProofCheckPolicySecure
	}

	return tonapi.NewAPIClient(client, proofPolicy).WithRetry(), nil
}

// Chain is the read side of the network used by the indexer and by proof
// verification.
type Chain struct {
	api     tonapi.APIClientWrapped
	testnet bool
}

func NewChain(api tonapi.APIClientWrapped, testnet bool) *Chain {
	return &Chain{api: api, testnet: testnet}
}

func (c *Chain) API() tonapi.APIClientWrapped {
	return c.api
}

// Account returns the current state of addr, or nil if it was never active.
func (c *Chain) Account(ctx context.Context, addr *address.Address) (*tlb.Account, error) {
	block, err := c.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("get master block: %w", err)
	}
	account, err := c.api.GetAccount(ctx, block, addr)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if account == nil || !account.IsActive || account.LastTxLT == 0 {
		return nil, nil
	}
	return account, nil
}

// TransactionsSince returns the transactions of account with LT > cursorLT,
// oldest first. ListTransactions pages backwards from the latest one.
func (c *Chain) TransactionsSince(ctx context.Context, addr *address.Address, account *tlb.Account, cursorLT uint64) ([]*tlb.Transaction, error) {
	var all []*tlb.Transaction

	lt := account.LastTxLT
	hash := account.LastTxHash

	for {
		txs, err := c.api.ListTransactions(ctx, addr, uint32(txBatchSize), lt, hash)
		if err != nil {
			if errors.Is(err, tonapi.ErrNoTransactionsWereFound) {
				break
			}
			return nil, fmt.Errorf("list transactions (lt=%d): %w", lt, err)
		}
		if len(txs) == 0 {
			break
		}

		reachedCursor := false
		for _, tx := range txs {
			if tx.LT <= cursorLT {
				reachedCursor = true
				continue
			}
			all = append(all, tx)
		}

		if reachedCursor || len(txs) < txBatchSize {
			break
		}

		oldest := txs[0]
		if oldest.PrevTxLT == 0 {
			break
		}
		lt = oldest.PrevTxLT
		hash = oldest.PrevTxHash
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].LT < all[j].LT
	})
	return all, nil
}

// PublicKey asks the wallet contract at addr for its key. Wallets that are
// not deployed yet have no key on chain.
func (c *Chain) PublicKey(ctx context.Context, addr remittance.Address) ([]byte, error) {
	block, err := c.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("get master block: %w", err)
	}
	res, err := c.api.RunGetMethod(ctx, block, ToTON(addr, c.testnet), "get_public_key")
	if err != nil {
		return nil, fmt.Errorf("get_public_key: %w", err)
	}
	key, err := res.Int(0)
	if err != nil {
		return nil, fmt.Errorf("get_public_key result: %w", err)
	}
	return keyBytes(key)
}

func keyBytes(key *big.Int) ([]byte, error) {
	if key.Sign() < 0 || key.BitLen() > 256 {
		return nil, fmt.Errorf("public key out of range")
	}
	return key.FillBytes(make([]byte, 32)), nil
}
