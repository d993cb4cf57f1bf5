// Package chainrpc is a typed JSON-RPC client for the chain node and its
// cell indexer (spec §4.A / §6.1). It knows nothing about spores, clusters,
// or decoders — it only speaks the node's wire protocol.
package chainrpc

import "encoding/json"

// HashType distinguishes the two CKB script hash-type discriminants.
type HashType string

const (
	HashTypeData  HashType = "data"
	HashTypeType  HashType = "type"
	HashTypeData1 HashType = "data1"
)

// Hex32 is a 0x-prefixed, lowercase hex encoding of a 32-byte hash
// (code_hash, tx_hash, type_id args, cluster_id, ...).
type Hex32 string

// HexBytes is a 0x-prefixed hex encoding of an arbitrary-length byte
// string (cell data, lock/type args, witness payloads).
type HexBytes string

// Script is a CKB lock or type script.
type Script struct {
	CodeHash Hex32    `json:"code_hash"`
	HashType HashType `json:"hash_type"`
	Args     HexBytes `json:"args"`
}

// OutPoint identifies a cell by the transaction that created it and its
// output index within that transaction.
type OutPoint struct {
	TxHash Hex32  `json:"tx_hash"`
	Index  string `json:"index"` // hex-encoded uint32, per CKB RPC convention
}

// CellOutput is the structural part of a cell: its capacity and the
// scripts that govern it.
type CellOutput struct {
	Capacity string  `json:"capacity"`
	Lock     Script  `json:"lock"`
	Type     *Script `json:"type,omitempty"`
}

// CellData is the raw data blob held by a cell, as returned by
// get_live_cell with with_data=true.
type CellData struct {
	Content HexBytes `json:"content"`
	Hash    Hex32    `json:"hash"`
}

// CellInfo bundles a cell's output and (optionally) its data, as returned
// inside CellWithStatus.Cell.
type CellInfo struct {
	Output CellOutput `json:"output"`
	Data   *CellData  `json:"data,omitempty"`
}

// CellWithStatus is the result of get_live_cell.
type CellWithStatus struct {
	Cell   *CellInfo `json:"cell"`
	Status string    `json:"status"` // "live", "unknown", ...
}

// Live reports whether the queried cell exists and is live.
func (c *CellWithStatus) Live() bool {
	return c != nil && c.Status == "live" && c.Cell != nil
}

// ScriptRole discriminates whether a SearchKey filters on a cell's lock
// script or its type script.
type ScriptRole string

const (
	ScriptRoleLock ScriptRole = "lock"
	ScriptRoleType ScriptRole = "type"
)

// SearchKeyFilter narrows an indexer search beyond the primary script.
type SearchKeyFilter struct {
	Script              *Script    `json:"script,omitempty"`
	OutputDataLenRange  [2]string  `json:"output_data_len_range,omitempty"`
	OutputCapacityRange [2]string  `json:"output_capacity_range,omitempty"`
}

// SearchKey is the indexer query object shared by get_cells and
// get_transactions.
type SearchKey struct {
	Script     Script           `json:"script"`
	ScriptType ScriptRole       `json:"script_type"`
	Filter     *SearchKeyFilter `json:"filter,omitempty"`
}

// IndexerCell is one row of a get_cells response.
type IndexerCell struct {
	OutPoint    OutPoint   `json:"out_point"`
	Output      CellOutput `json:"output"`
	OutputData  HexBytes   `json:"output_data"`
	BlockNumber string     `json:"block_number"`
}

// IndexerTx is one row of a get_transactions response.
type IndexerTx struct {
	TxHash      Hex32  `json:"tx_hash"`
	BlockNumber string `json:"block_number"`
	IoType      string `json:"io_type"`
	IoIndex     string `json:"io_index"`
}

// Paginated wraps any indexer list response with its cursor.
type Paginated[T any] struct {
	Objects    []T    `json:"objects"`
	LastCursor string `json:"last_cursor"`
}

// Transaction is the subset of a full CKB transaction returned by
// GetTransaction: its hash, outputs and outputs data. Decoder deployments
// pinned by (tx_hash, out_index) are resolved through GetLiveCell, not
// through this type.
type Transaction struct {
	Hash    Hex32             `json:"hash"`
	Outputs []CellOutput      `json:"outputs"`
	Data    []HexBytes        `json:"outputs_data"`
	Extra   json.RawMessage   `json:"-"`
}

// TransactionWithStatus is the result of get_transaction.
type TransactionWithStatus struct {
	Transaction *Transaction `json:"transaction"`
	TxStatus    struct {
		Status string `json:"status"`
	} `json:"tx_status"`
}
