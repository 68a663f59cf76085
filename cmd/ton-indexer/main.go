package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/remittance/backend/internal/config"
	"github.com/remittance/backend/internal/db"
	"github.com/remittance/backend/internal/events"
	"github.com/remittance/backend/internal/remittance"
	"github.com/remittance/backend/internal/repositories"
	"github.com/remittance/backend/internal/services"
	"github.com/remittance/backend/internal/ton"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"go.uber.org/zap"
)

const (
	redisCursorLT  = "ton-indexer:cursor:lt"
	redisProcessed = "ton-indexer:tx:"
	processedTTL   = 7 * 24 * time.Hour
	pollInterval   = 5 * time.Second

	markerPending = "pending"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if err := cfg.Validate(log); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.StoreDriver != config.StoreDriverPostgres {
		log.Fatal("ton-indexer shares the ledger with the API and needs STORE_DRIVER=postgres")
	}
	if cfg.TONHotWalletAddress == "" {
		log.Fatal("TON_HOT_WALLET_ADDRESS is required")
	}
	if cfg.TONWalletSeed == "" {
		log.Fatal("TON_WALLET_SEED is required to refund rejected deposits")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hotAddr, err := address.ParseAddr(cfg.TONHotWalletAddress)
	if err != nil {
		log.Fatal("invalid TON_HOT_WALLET_ADDRESS", zap.String("addr", cfg.TONHotWalletAddress), zap.Error(err))
	}
	owner, err := ton.ParseAddress(cfg.OwnerAddress)
	if err != nil {
		log.Fatal("invalid OWNER_ADDRESS", zap.Error(err))
	}

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	opts := ton.ConnectOptions{Network: cfg.TONNetwork, Host: cfg.LiteServerHost, Port: cfg.LiteServerPort, Key: cfg.LiteServerKey}
	api, err := ton.Connect(ctx, opts, log)
	if err != nil {
		log.Fatal("failed to connect to TON network", zap.Error(err))
	}
	chain := ton.NewChain(api, !opts.IsMainnet())

	hot, err := ton.NewHotWallet(api, cfg.TONWalletSeed, !opts.IsMainnet(), log)
	if err != nil {
		log.Fatal("failed to open hot wallet", zap.Error(err))
	}
	if !hot.Address().Equals(hotAddr) {
		log.Warn("TON_WALLET_SEED does not open TON_HOT_WALLET_ADDRESS",
			zap.String("seed_wallet", hot.Address().String()),
			zap.String("configured", hotAddr.String()),
		)
	}

	// Ledger (the API normally initialises it first; Init keeps stored state)
	ledger := remittance.New(repositories.NewPaymentRepo(pool), hot, remittance.WithMaxExtension(cfg.MaxExpiryExtension))
	fee := remittance.FeeConfig{Amount: cfg.FeeAmountNano, ThresholdRatio: cfg.FeeThresholdRatio}
	if _, err := ledger.Init(ctx, owner, fee, cfg.LedgerRunning); err != nil {
		log.Fatal("failed to initialise ledger", zap.Error(err))
	}

	publisher := events.NewRedisPublisher(rdb, log)
	remittanceService := services.NewRemittanceService(ledger, repositories.NewAuditRepo(pool), publisher, cfg, log)
	deposits := services.NewDepositService(remittanceService, hot, publisher, cfg, log)

	log.Info("TON indexer started",
		zap.String("hot_wallet", hotAddr.String()),
		zap.String("network", cfg.TONNetwork),
		zap.String("comment_prefix", cfg.DepositCommentPrefix),
	)

	initCursor(ctx, chain, hotAddr, rdb, log)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			if err := pollAndProcess(ctx, chain, hotAddr, deposits, rdb, log); err != nil {
				log.Error("poll cycle failed", zap.Error(err))
			}
		case <-sigCh:
			log.Info("shutting down TON indexer")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// initCursor sets the initial cursor position on first run.
// On first run, it stores the current account LastTxLT so that only
// NEW transactions (arriving after startup) are processed.
func initCursor(ctx context.Context, chain *ton.Chain, addr *address.Address, rdb *redis.Client, log *zap.Logger) {
	existing, _ := rdb.Get(ctx, redisCursorLT).Result()
	if existing != "" {
		log.Info("resuming from saved cursor", zap.String("lt", existing))
		return
	}

	account, err := chain.Account(ctx, addr)
	if err != nil {
		log.Warn("failed to get account for cursor init", zap.Error(err))
		saveCursor(ctx, rdb, 0)
		return
	}
	if account == nil {
		log.Info("hot wallet not active yet, starting from LT=0")
		saveCursor(ctx, rdb, 0)
		return
	}

	saveCursor(ctx, rdb, account.LastTxLT)
	log.Info("cursor initialized at current account state (skipping historical transactions)",
		zap.Uint64("lt", account.LastTxLT),
	)
}

func loadCursorLT(ctx context.Context, rdb *redis.Client) uint64 {
	val, err := rdb.Get(ctx, redisCursorLT).Result()
	if err != nil || val == "" {
		return 0
	}
	lt, _ := strconv.ParseUint(val, 10, 64)
	return lt
}

func saveCursor(ctx context.Context, rdb *redis.Client, lt uint64) {
	rdb.Set(ctx, redisCursorLT, strconv.FormatUint(lt, 10), 0)
}

// pollAndProcess handles every transaction after the cursor in LT order.
// The cursor advances past a transaction only once it is handled, so an
// infrastructure failure is retried on the next tick.
func pollAndProcess(
	ctx context.Context,
	chain *ton.Chain,
	addr *address.Address,
	deposits *services.DepositService,
	rdb *redis.Client,
	log *zap.Logger,
) error {
	cursorLT := loadCursorLT(ctx, rdb)

	account, err := chain.Account(ctx, addr)
	if err != nil {
		return err
	}
	if account == nil || account.LastTxLT <= cursorLT {
		return nil
	}

	txs, err := chain.TransactionsSince(ctx, addr, account, cursorLT)
	if err != nil {
		return fmt.Errorf("fetch transactions: %w", err)
	}
	if len(txs) > 0 {
		log.Info("found new transactions", zap.Int("count", len(txs)))
	}

	for _, tx := range txs {
		if err := processIncomingTx(ctx, tx, deposits, rdb, log); err != nil {
			return fmt.Errorf("process lt=%d: %w", tx.LT, err)
		}
		saveCursor(ctx, rdb, tx.LT)
	}
	return nil
}

// processIncomingTx hands one incoming transfer to the deposit service.
// The Redis marker is claimed before the ledger is touched; a marker still
// "pending" means a previous run died mid-way and the transfer is left for
// an operator instead of being deposited or refunded twice.
func processIncomingTx(
	ctx context.Context,
	tx *tlb.Transaction,
	deposits *services.DepositService,
	rdb *redis.Client,
	log *zap.Logger,
) error {
	if tx.IO.In == nil {
		return nil
	}
	inMsg, ok := tx.IO.In.Msg.(*tlb.InternalMessage)
	if !ok || inMsg == nil || inMsg.Bounced {
		return nil
	}
	if inMsg.Amount.Nano().Sign() <= 0 {
		return nil
	}

	txKey := fmt.Sprintf("%s%d", redisProcessed, tx.LT)
	claimed, err := rdb.SetNX(ctx, txKey, markerPending, processedTTL).Result()
	if err != nil {
		return fmt.Errorf("claim tx marker: %w", err)
	}
	if !claimed {
		if v, _ := rdb.Get(ctx, txKey).Result(); v == markerPending {
			log.Error("transfer left pending by a previous run, needs manual review",
				zap.Uint64("lt", tx.LT),
				zap.String("from", inMsg.SrcAddr.String()),
				zap.String("amount", inMsg.Amount.String()),
			)
		}
		return nil
	}

	from, err := ton.FromTON(inMsg.SrcAddr)
	if err != nil {
		log.Warn("transfer from unsupported address", zap.Uint64("lt", tx.LT), zap.Error(err))
		rdb.Set(ctx, txKey, services.OutcomeIgnored, processedTTL)
		return nil
	}

	comment := ton.ExtractComment(inMsg)
	log.Info("incoming transfer",
		zap.Uint64("lt", tx.LT),
		zap.String("from", inMsg.SrcAddr.String()),
		zap.String("amount", inMsg.Amount.String()),
		zap.String("comment", comment),
	)

	outcome, err := deposits.HandleTransfer(ctx, services.Transfer{
		LT:      tx.LT,
		From:    from,
		Amount:  inMsg.Amount.Nano(),
		Comment: comment,
	})
	if err != nil {
		// отпускаем маркер, следующий проход повторит
		rdb.Del(ctx, txKey)
		return err
	}

	rdb.Set(ctx, txKey, outcome, processedTTL)
	return nil
}
