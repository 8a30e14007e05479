// Package store mirrors the engine's committed state into a SQL database
// through gorm, so a restarted process can rebuild its ledger.
package store

import (
	"errors"
	"fmt"

	"dutch-auction-engine/core/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const stateRowID = 1

var (
	ErrUnknownDriver = errors.New("unknown database driver")
	ErrCorrupt       = errors.New("stored ledger is corrupt")
)

type AuctionRow struct {
	Seq          uint64 `gorm:"primaryKey;autoIncrement:false"`
	Seller       string `gorm:"index:idx_seller"`
	StartPrice   string
	FinalPrice   string
	DiscountRate string
	StartAt      uint64
	EndAt        uint64 `gorm:"index:idx_end_at"`
	Item         string
	Stopped      bool
}

type StateRow struct {
	ID           uint `gorm:"primaryKey"`
	Owner        string
	Treasury     string
	Block        uint64 // last block handled by the indexer
	Inscriptions uint64 // inscriptions numbered so far
}

type BalanceRow struct {
	Address string `gorm:"primaryKey"`
	Amount  string
}

// NonceRow is the last signed-request nonce accepted from Address.
type NonceRow struct {
	Address string `gorm:"primaryKey"`
	Nonce   uint64
}

type LogRow struct {
	ID        uint   `gorm:"primaryKey"`
	Operation string `gorm:"index:idx_log_oper"`
	Topic     string `gorm:"index:idx_topic"`
	Address   string
	Data      []byte
	Caller    string `gorm:"index:idx_caller"`
	Seq       uint64
	Timestamp uint64
}

type Store struct {
	db *gorm.DB
}

// Open connects to driver ("sqlite" or "postgres") and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// one connection keeps in-memory databases shared and serialises writers
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&AuctionRow{}, &StateRow{}, &BalanceRow{}, &LogRow{}, &NonceRow{}, &model.AuctionOp{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Init records the owner of a fresh ledger. It is a no-op when state exists.
func (s *Store) Init(owner common.Address) error {
	row := StateRow{ID: stateRowID, Owner: owner.Hex(), Treasury: "0"}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

// Apply persists one committed operation in a single transaction.
func (s *Store) Apply(r *model.Receipt) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if r.Auction != nil {
			row := auctionRow(r.Index, r.Auction)
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
				return fmt.Errorf("save auction %d: %w", r.Index, err)
			}
		}

		res := tx.Model(&StateRow{}).Where("id = ?", stateRowID).Update("treasury", r.Treasury.Dec())
		if res.Error != nil {
			return fmt.Errorf("save treasury: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: state row missing", ErrCorrupt)
		}

		for _, p := range r.Payouts {
			if err := addBalance(tx, p.To, p.Amount); err != nil {
				return err
			}
		}

		for _, l := range r.Logs {
			row := LogRow{
				Operation: string(r.Operation),
				Address:   l.Address.Hex(),
				Data:      l.Data,
				Caller:    r.Caller.Hex(),
				Seq:       r.Index,
				Timestamp: r.Timestamp,
			}
			if len(l.Topics) > 0 {
				row.Topic = l.Topics[0].Hex()
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("save log: %w", err)
			}
		}
		return nil
	})
}

// AdvanceNonce stores nonce as the last one accepted from caller, unless a
// nonce at least as high is already stored. It reports whether it did.
func (s *Store) AdvanceNonce(caller common.Address, nonce uint64) (bool, error) {
	if nonce == 0 {
		return false, nil
	}
	row := NonceRow{Address: caller.Hex(), Nonce: nonce}
	res := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"nonce"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "nonce_rows.nonce < excluded.nonce"},
		}},
	}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("advance nonce %s: %w", caller.Hex(), res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SaveOp records an indexed inscription outcome.
func (s *Store) SaveOp(op *model.AuctionOp) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "number"}},
		UpdateAll: true,
	}).Create(op).Error
}

// SaveCheckpoint records how far the indexer got.
func (s *Store) SaveCheckpoint(block, inscriptions uint64) error {
	return s.db.Model(&StateRow{}).Where("id = ?", stateRowID).Updates(map[string]interface{}{
		"block":        block,
		"inscriptions": inscriptions,
	}).Error
}

// Checkpoint returns the last saved indexer position, zeros when none.
func (s *Store) Checkpoint() (block, inscriptions uint64, err error) {
	var state StateRow
	if err := s.db.First(&state, stateRowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	return state.Block, state.Inscriptions, nil
}

func (s *Store) Ops(from string) ([]*model.AuctionOp, error) {
	var ops []*model.AuctionOp
	q := s.db.Order("number")
	if from != "" {
		q = q.Where("\"from\" = ?", from)
	}
	if err := q.Find(&ops).Error; err != nil {
		return nil, err
	}
	return ops, nil
}

// Logs returns the persisted logs with the given topic, oldest first.
func (s *Store) Logs(topic common.Hash) ([]LogRow, error) {
	var rows []LogRow
	if err := s.db.Where("topic = ?", topic.Hex()).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Load reads the persisted ledger. ok is false when nothing was stored yet.
func (s *Store) Load() (snapshot *model.Snapshot, ok bool, err error) {
	var state StateRow
	if err := s.db.First(&state, stateRowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	snapshot = &model.Snapshot{
		Owner:    common.HexToAddress(state.Owner),
		Balances: make(map[common.Address]*uint256.Int),
	}
	if snapshot.Treasury, err = parseAmount(state.Treasury); err != nil {
		return nil, false, err
	}

	var rows []AuctionRow
	if err := s.db.Order("seq").Find(&rows).Error; err != nil {
		return nil, false, err
	}
	for i, row := range rows {
		if row.Seq != uint64(i) {
			return nil, false, fmt.Errorf("%w: auction %d stored at position %d", ErrCorrupt, row.Seq, i)
		}
		a, err := row.auction()
		if err != nil {
			return nil, false, err
		}
		snapshot.Auctions = append(snapshot.Auctions, a)
	}

	var balances []BalanceRow
	if err := s.db.Find(&balances).Error; err != nil {
		return nil, false, err
	}
	for _, row := range balances {
		amount, err := parseAmount(row.Amount)
		if err != nil {
			return nil, false, err
		}
		snapshot.Balances[common.HexToAddress(row.Address)] = amount
	}

	logrus.Infof("store loaded: %d auctions, %d balances", len(snapshot.Auctions), len(snapshot.Balances))
	return snapshot, true, nil
}

func addBalance(tx *gorm.DB, owner common.Address, amount *uint256.Int) error {
	var row BalanceRow
	err := tx.First(&row, "address = ?", owner.Hex()).Error
	balance := new(uint256.Int)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row.Address = owner.Hex()
	case err != nil:
		return fmt.Errorf("read balance %s: %w", owner.Hex(), err)
	default:
		if balance, err = parseAmount(row.Amount); err != nil {
			return err
		}
	}
	next, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return fmt.Errorf("%w: balance overflow for %s", ErrCorrupt, owner.Hex())
	}
	row.Amount = next.Dec()
	if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("save balance %s: %w", owner.Hex(), err)
	}
	return nil
}

func auctionRow(seq uint64, a *model.Auction) AuctionRow {
	return AuctionRow{
		Seq:          seq,
		Seller:       a.Seller.Hex(),
		StartPrice:   a.StartPrice.Dec(),
		FinalPrice:   a.FinalPrice.Dec(),
		DiscountRate: a.DiscountRate.Dec(),
		StartAt:      a.StartAt,
		EndAt:        a.EndAt,
		Item:         a.Item,
		Stopped:      a.Stopped,
	}
}

func (row AuctionRow) auction() (*model.Auction, error) {
	a := &model.Auction{
		Seller:  common.HexToAddress(row.Seller),
		StartAt: row.StartAt,
		EndAt:   row.EndAt,
		Item:    row.Item,
		Stopped: row.Stopped,
	}
	var err error
	if a.StartPrice, err = parseAmount(row.StartPrice); err != nil {
		return nil, err
	}
	if a.FinalPrice, err = parseAmount(row.FinalPrice); err != nil {
		return nil, err
	}
	if a.DiscountRate, err = parseAmount(row.DiscountRate); err != nil {
		return nil, err
	}
	return a, nil
}

func parseAmount(s string) (*uint256.Int, error) {
	amount, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q: %v", ErrCorrupt, s, err)
	}
	return amount, nil
}
