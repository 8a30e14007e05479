package model

var (
	AuctionProtocolName = "dutch-auction"
)

type Inscription struct {
	Hash        string
	Number      uint64 `gorm:"index:idx_number,unique"`
	From        string `gorm:"index:idx_from"`
	To          string `gorm:"index:idx_to"`
	Value       string
	Block       uint64 `gorm:"index:idx_blk"`
	Idx         uint32
	Timestamp   uint64
	ContentType string
	Content     string
}

// AuctionOp is the indexed outcome of one protocol inscription.
type AuctionOp struct {
	Number       uint64    `gorm:"index:idx_op_number,unique"` // global inscription Number
	Hash         string    `gorm:"index:idx_op_hash"`
	Operation    Operation `gorm:"index:idx_op_oper"`
	From         string    `gorm:"index:idx_op_from"`
	AuctionIndex uint64
	Value        string
	Price        string
	Block        uint64
	Timestamp    uint64
	Valid        ValidCode
}
