package blockchain

import (
	"errors"
	"fmt"
	"obsidian-core/wire"
	"sync"
	"time"
)

const (
	// MaxMempoolSize is the maximum number of transactions in the mempool
	MaxMempoolSize = 10000
)

// ErrMissingInputs is returned by AddTransaction when a transaction spends
// an outpoint that is neither in the supplied UTXO set nor an output of a
// transaction already in the mempool. Callers should
// route the transaction to a blockchain.orphanage.Orphanage rather than
// treating this as a validation failure.
var ErrMissingInputs = errors.New("transaction references unknown inputs")

// TxDesc represents a transaction in the mempool
type TxDesc struct {
	Tx       *wire.MsgTx
	Added    time.Time
	Height   int32
	Fee      int64
	FeePerKB int64
}

// Mempool represents the transaction memory pool
type Mempool struct {
	mu sync.RWMutex

	// Pool of transactions
	pool map[wire.Hash]*TxDesc

	// Index of spent outpoints to the mempool transaction spending them
	outpoints map[wire.OutPoint]wire.Hash

	// Maximum size
	maxSize int
}

// NewMempool creates a new mempool
func NewMempool() *Mempool {
	return &Mempool{
		pool:      make(map[wire.Hash]*TxDesc),
		outpoints: make(map[wire.OutPoint]wire.Hash),
		maxSize:   MaxMempoolSize,
	}
}

// AddTransaction adds a transaction to the mempool. utxoSet may be nil, in
// which case input availability is not checked.
func (m *Mempool) AddTransaction(tx *wire.MsgTx, height int32, fee int64, utxoSet *UTXOSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check if mempool is full
	if len(m.pool) >= m.maxSize {
		return fmt.Errorf("mempool is full")
	}

	txHash := tx.TxHash()

	// Check if transaction already exists
	if _, exists := m.pool[txHash]; exists {
		return fmt.Errorf("transaction already in mempool")
	}

	if utxoSet != nil {
		for _, txIn := range tx.TxIn {
			prev := txIn.PreviousOutPoint
			if parent, ok := m.pool[prev.Hash]; ok && int(prev.Index) < len(parent.Tx.TxOut) {
				continue
			}
			if _, err := utxoSet.GetUTXO(txIn.PreviousOutPoint.Hash, txIn.PreviousOutPoint.Index); err != nil {
				return ErrMissingInputs
			}
		}
	}

	// Create transaction descriptor
	txDesc := &TxDesc{
		Tx:       tx,
		Added:    time.Now(),
		Height:   height,
		Fee:      fee,
		FeePerKB: calculateFeePerKB(tx, fee),
	}

	// Add to pool
	m.pool[txHash] = txDesc

	// Index outpoints
	for _, txIn := range tx.TxIn {
		m.outpoints[txIn.PreviousOutPoint] = txHash
	}

	return nil
}

// RemoveTransaction removes a transaction from the mempool
func (m *Mempool) RemoveTransaction(txHash wire.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txDesc, exists := m.pool[txHash]
	if !exists {
		return
	}

	// Remove outpoint indexes
	for _, txIn := range txDesc.Tx.TxIn {
		delete(m.outpoints, txIn.PreviousOutPoint)
	}

	// Remove from pool
	delete(m.pool, txHash)
}

// GetTransaction retrieves a transaction from the mempool
func (m *Mempool) GetTransaction(txHash wire.Hash) (*wire.MsgTx, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txDesc, exists := m.pool[txHash]
	if !exists {
		return nil, fmt.Errorf("transaction not found in mempool")
	}

	return txDesc.Tx, nil
}

// HasTransaction checks if a transaction exists in the mempool
func (m *Mempool) HasTransaction(txHash wire.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.pool[txHash]
	return exists
}

// GetTransactions returns all transactions in the mempool
func (m *Mempool) GetTransactions() []*wire.MsgTx {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txs := make([]*wire.MsgTx, 0, len(m.pool))
	for _, txDesc := range m.pool {
		txs = append(txs, txDesc.Tx)
	}

	return txs
}

// GetTransactionsByPriority returns transactions sorted by fee priority
func (m *Mempool) GetTransactionsByPriority(limit int) []*wire.MsgTx {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Create slice of transaction descriptors
	txDescs := make([]*TxDesc, 0, len(m.pool))
	for _, txDesc := range m.pool {
		txDescs = append(txDescs, txDesc)
	}

	// Sort by fee per KB (descending)
	for i := 0; i < len(txDescs)-1; i++ {
		for j := i + 1; j < len(txDescs); j++ {
			if txDescs[i].FeePerKB < txDescs[j].FeePerKB {
				txDescs[i], txDescs[j] = txDescs[j], txDescs[i]
			}
		}
	}

	// Return top N transactions
	count := limit
	if count > len(txDescs) {
		count = len(txDescs)
	}

	txs := make([]*wire.MsgTx, count)
	for i := 0; i < count; i++ {
		txs[i] = txDescs[i].Tx
	}

	return txs
}

// IsSpent checks if an outpoint is spent by a transaction in the mempool
func (m *Mempool) IsSpent(outpoint wire.OutPoint) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.outpoints[outpoint]
	return exists
}

// RemoveDoubleSpends removes transactions that spend the same inputs
func (m *Mempool) RemoveDoubleSpends(tx *wire.MsgTx) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, txIn := range tx.TxIn {
		if conflictHash, exists := m.outpoints[txIn.PreviousOutPoint]; exists {
			m.removeTransactionLocked(conflictHash)
		}
	}
}

// removeTransactionLocked removes a transaction without acquiring the lock
func (m *Mempool) removeTransactionLocked(txHash wire.Hash) {
	txDesc, exists := m.pool[txHash]
	if !exists {
		return
	}

	// Remove outpoint indexes
	for _, txIn := range txDesc.Tx.TxIn {
		delete(m.outpoints, txIn.PreviousOutPoint)
	}

	// Remove from pool
	delete(m.pool, txHash)
}

// Count returns the number of transactions in the mempool
func (m *Mempool) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.pool)
}

// Reset clears the mempool
func (m *Mempool) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pool = make(map[wire.Hash]*TxDesc)
	m.outpoints = make(map[wire.OutPoint]wire.Hash)
}

// Helper functions

func calculateFeePerKB(tx *wire.MsgTx, fee int64) int64 {
	size := estimateTxSize(tx)
	if size == 0 {
		return 0
	}

	return (fee * 1000) / int64(size)
}

// estimateTxSize derives a vsize-like figure from the transaction's weight,
// mirroring the base*3+total weight formula used by wire.MsgTx.Weight.
func estimateTxSize(tx *wire.MsgTx) int {
	weight := tx.Weight()
	if weight == 0 {
		return 0
	}
	return int((weight + 3) / 4)
}
