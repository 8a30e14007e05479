package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"dutch-auction-engine/api"
	"dutch-auction-engine/chain"
	"dutch-auction-engine/config"
	"dutch-auction-engine/core"
	"dutch-auction-engine/core/model"
	"dutch-auction-engine/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.SetupLogging(); err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		logrus.Fatalf("Failed to open store: %v", err)
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := core.NewMetrics(registry)

	engine, balances := loadEngine(cfg, db)
	engine.Subscribe(metrics.Observe)
	engine.Subscribe(func(r *model.Receipt) {
		if err := db.Apply(r); err != nil {
			metrics.ObservePersistFailure()
			logrus.Errorf("persist %s by %s: %v", r.Operation, r.Caller.Hex(), err)
		}
	})

	var bc *chain.BlockchainClient
	if cfg.Mode == config.ModeIndexer || cfg.Clock == config.ClockChain {
		if bc, err = chain.NewBlockchainClient(cfg.Chain.URL); err != nil {
			logrus.Fatalf("Failed to create client: %v", err)
		}
		defer bc.Close()
	}

	var clock core.Clock = core.SystemClock{}
	if cfg.Clock == config.ClockChain {
		clock = bc
	}
	opts := []api.Option{
		api.WithMetrics(metrics),
		api.WithPrometheus(registry),
		api.WithNonceStore(db),
		api.WithHistory(db),
	}
	if cfg.Mode == config.ModeIndexer {
		opts = append(opts, api.WithReadOnly())
	}
	server := api.NewServer(engine, balances, core.NewMonotonicClock(clock), opts...)

	var wg sync.WaitGroup

	if cfg.Mode == config.ModeIndexer {
		latest, inscriptions, err := db.Checkpoint()
		if err != nil {
			logrus.Fatalf("Failed to read checkpoint: %v", err)
		}
		if latest < cfg.Chain.StartBlock {
			latest = cfg.Chain.StartBlock
		}
		indexer := core.NewIndexer(engine, latest, inscriptions, metrics)
		indexer.OnRecord(func(op *model.AuctionOp) {
			if err := db.SaveOp(op); err != nil {
				logrus.Errorf("SaveOp %d err: %v", op.Number, err)
			}
		})

		wg.Add(1)
		go startChainFetcher(ctx, bc, indexer, db, cfg.Chain.PollInterval, &wg)
	}

	if err := server.Run(ctx, cfg.HTTP.Addr); err != nil {
		logrus.Errorf("http server: %v", err)
		stop()
	}

	wg.Wait()
}

func loadEngine(cfg *config.Config, db *store.Store) (*core.Engine, *core.Balances) {
	opts := []core.Option{
		core.WithAddress(cfg.Engine.Address),
		core.WithDefaultDuration(cfg.Engine.DefaultDuration),
	}

	snapshot, ok, err := db.Load()
	if err != nil {
		logrus.Fatalf("Failed to load ledger: %v", err)
	}
	if !ok {
		if err := db.Init(cfg.Owner); err != nil {
			logrus.Fatalf("Failed to init store: %v", err)
		}
		balances := core.NewBalances()
		return core.NewEngine(cfg.Owner, balances, opts...), balances
	}
	if snapshot.Owner != cfg.Owner {
		logrus.Warnf("configured owner %s ignored, ledger is owned by %s", cfg.Owner.Hex(), snapshot.Owner.Hex())
	}
	balances := core.RestoreBalances(snapshot.Balances)
	return core.Restore(snapshot, balances, opts...), balances
}

func getBlockInfo(ctx context.Context, bc *chain.BlockchainClient, bcNumber uint64) (*model.ChainBlock, error) {
	if blockInfo, err := bc.GetBlock(ctx, int64(bcNumber)); err != nil {
		logrus.Errorf("GetBlock %d err: %v", bcNumber, err)
		return nil, err
	} else {
		if receipts, err := bc.GetBlockReceipts(ctx, blockInfo); err != nil {
			logrus.Errorf("GetBlockReceipt %d err: %v", bcNumber, err)
			return nil, err
		} else {
			return chain.ConvertBlockToChainBlock(blockInfo, receipts), nil
		}
	}
}

func startChainFetcher(ctx context.Context, bc *chain.BlockchainClient, indexer *core.Indexer, db *store.Store, interval time.Duration, wg *sync.WaitGroup) {
	defer wg.Done()

	sleep := func(d time.Duration) bool {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}

	for ctx.Err() == nil {
		bcNumber, err := bc.GetLatestBlockNumber(ctx)
		if err != nil {
			logrus.Errorf("GetLatestBlockNumber err: %v", err)
			if !sleep(interval) {
				return
			}
			continue
		}
		logrus.Infof("lastDBNumber: %d, latestChainNumber: %d", indexer.LatestBlockNumber, bcNumber)
		if indexer.LatestBlockNumber >= uint64(bcNumber) {
			if !sleep(interval) {
				return
			}
			continue
		}

		for i := indexer.LatestBlockNumber + 1; i <= uint64(bcNumber) && ctx.Err() == nil; i++ {
			bcinfo, err := getBlockInfo(ctx, bc, i)
			if err != nil {
				logrus.Errorf("GetBlock %d err: %v", i, err)
				sleep(time.Second)
				break
			}
			logrus.Infof("HandleNewBlock %d, trx %d, receipts %d", i, len(bcinfo.Txs), len(bcinfo.Receipts))
			if err := indexer.HandleNewBlock(bcinfo); err != nil {
				logrus.Errorf("HandleNewBlock %d err: %v", i, err)
				sleep(time.Second)
				break
			}
			block, inscriptions := indexer.Checkpoint()
			if err := db.SaveCheckpoint(block, inscriptions); err != nil {
				logrus.Errorf("SaveCheckpoint %d err: %v", block, err)
			}
			logrus.Infof("HandleNewBlock %d success", i)
		}
	}
}
