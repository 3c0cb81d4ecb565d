package esplora

// txoStats is the chain_stats / mempool_stats object of /api/address/{a}.
type txoStats struct {
	FundedTxoCount uint64 `json:"funded_txo_count"`
	FundedTxoSum   uint64 `json:"funded_txo_sum"`
	SpentTxoCount  uint64 `json:"spent_txo_count"`
	SpentTxoSum    uint64 `json:"spent_txo_sum"`
	TxCount        uint64 `json:"tx_count"`
}

type addressResponse struct {
	Address      string   `json:"address"`
	ChainStats   txoStats `json:"chain_stats"`
	MempoolStats txoStats `json:"mempool_stats"`
}

type statusResponse struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight int64  `json:"block_height"`
	BlockHash   string `json:"block_hash"`
	BlockTime   int64  `json:"block_time"`
}

type utxoResponse struct {
	TxID   string         `json:"txid"`
	Vout   uint32         `json:"vout"`
	Value  uint64         `json:"value"`
	Status statusResponse `json:"status"`
}

type txOutput struct {
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
	Value               uint64 `json:"value"`
}

type txResponse struct {
	TxID   string         `json:"txid"`
	Vout   []txOutput     `json:"vout"`
	Status statusResponse `json:"status"`
}

type outspendResponse struct {
	Spent bool   `json:"spent"`
	TxID  string `json:"txid,omitempty"`
}

// recommendedFees is the mempool.space /api/v1/fees/recommended body.
type recommendedFees struct {
	FastestFee  float64 `json:"fastestFee"`
	HalfHourFee float64 `json:"halfHourFee"`
	HourFee     float64 `json:"hourFee"`
	EconomyFee  float64 `json:"economyFee"`
	MinimumFee  float64 `json:"minimumFee"`
}
