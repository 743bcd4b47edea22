// Package orphanage holds validly formed but currently un-processable
// transactions received from peers, so they can be re-evaluated the moment
// their missing parent(s) appear. A transaction becomes an orphan when one
// or more of the outputs it spends are not yet known to the node's mempool
// or chain; rather than discard it and force the peer to rebroadcast, the
// node parks it here.
//
// This is the Go port of Bitcoin Core's TxOrphanage (net/txorphanage.h/cpp),
// adapted to obsidian-core's MsgTx/OutPoint/Hash vocabulary.
package orphanage

import (
	"reflect"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"obsidian-core/wire"
)

const (
	// MaxStandardTxWeight is the network-consensus maximum weight of a
	// standard (relay-eligible) transaction. Larger orphans are rejected
	// outright to bound the pool's worst-case memory under adversarial
	// input.
	MaxStandardTxWeight = 400_000

	// OrphanTxExpireTime is how long, in seconds, an orphan is kept before
	// it becomes eligible for expiry.
	OrphanTxExpireTime = 1200

	// OrphanTxExpireInterval is the minimum time, in seconds, between
	// expiration sweeps. It batches the linear scan so its cost is
	// amortized over a 5-minute window rather than paid on every call.
	OrphanTxExpireInterval = 300
)

// PeerID identifies the peer that relayed an orphan. It is opaque to this
// package — peer connection lifecycle and networking live in the network
// package.
type PeerID int64

// OrphanTx is one stored orphan transaction.
type OrphanTx struct {
	Tx       *wire.MsgTx
	FromPeer PeerID
	ExpireAt int64

	listPos int // back-pointer into Orphanage.list, for O(1) erase
}

// ChildFromPeer pairs an orphan transaction with the peer that relayed it.
type ChildFromPeer struct {
	Tx   *wire.MsgTx
	Peer PeerID
}

// Orphanage is the orphan transaction pool. All methods are safe for
// concurrent use; a single coarse mutex guards every index, matching the
// network-thread/validation-thread concurrency model it's built for.
type Orphanage struct {
	mu sync.Mutex

	orphans   map[wire.Txid]*OrphanTx
	list      []*OrphanTx
	byWtxid   map[wire.Wtxid]*OrphanTx
	byPrevout map[wire.OutPoint]map[*OrphanTx]struct{}
	workSets  map[PeerID]map[wire.Txid]struct{}

	nextSweep int64

	expireTime     int64 // seconds; defaults to OrphanTxExpireTime
	expireInterval int64 // seconds; defaults to OrphanTxExpireInterval

	clock Clock
	log   *logrus.Entry
	stats *metrics
}

// Option configures an Orphanage at construction time.
type Option func(*Orphanage)

// WithLogger overrides the default logrus entry used for operation logging.
func WithLogger(log *logrus.Entry) Option {
	return func(o *Orphanage) { o.log = log }
}

// WithRegisterer registers the orphanage's Prometheus metrics with reg. If
// omitted, metrics are created but never exposed.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *Orphanage) { o.stats = newMetrics(reg) }
}

// WithExpiry overrides how long an orphan lives before it's swept
// (expireSeconds) and the minimum spacing between amortized sweeps
// (sweepIntervalSeconds). Either may be passed as 0 to keep the default.
func WithExpiry(expireSeconds, sweepIntervalSeconds int64) Option {
	return func(o *Orphanage) {
		if expireSeconds > 0 {
			o.expireTime = expireSeconds
		}
		if sweepIntervalSeconds > 0 {
			o.expireInterval = sweepIntervalSeconds
		}
	}
}

// New creates an empty Orphanage. clock supplies the current time; a fresh
// instance always sweeps on its first LimitOrphans call, since nextSweep
// starts at zero.
func New(clock Clock, opts ...Option) *Orphanage {
	o := &Orphanage{
		orphans:        make(map[wire.Txid]*OrphanTx),
		byWtxid:        make(map[wire.Wtxid]*OrphanTx),
		byPrevout:      make(map[wire.OutPoint]map[*OrphanTx]struct{}),
		workSets:       make(map[PeerID]map[wire.Txid]struct{}),
		clock:          clock,
		expireTime:     OrphanTxExpireTime,
		expireInterval: OrphanTxExpireInterval,
		log:            logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.stats == nil {
		o.stats = newMetrics(nil)
	}
	return o
}

// AddTx stores tx as an orphan relayed by peer. It returns false without any
// side effect if tx is already stored, or if tx's weight exceeds
// MaxStandardTxWeight (a large-orphan memory-exhaustion guard: the pool can
// never hold more than maxOrphans*MaxStandardTxWeight weight units). The
// caller is responsible for having already determined that tx's parents are
// actually missing — this pool does not check that itself.
func (o *Orphanage) AddTx(tx *wire.MsgTx, peer PeerID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	txid := tx.TxID()
	if _, exists := o.orphans[txid]; exists {
		o.stats.rejected.Inc()
		return false
	}

	weight := tx.Weight()
	if weight > MaxStandardTxWeight {
		o.log.WithFields(logrus.Fields{
			"txid":   txid.String(),
			"wtxid":  tx.WTxID().String(),
			"weight": weight,
		}).Debug("ignoring large orphan tx")
		o.stats.rejected.Inc()
		return false
	}

	entry := &OrphanTx{
		Tx:       tx,
		FromPeer: peer,
		ExpireAt: o.clock.Now() + o.expireTime,
		listPos:  len(o.list),
	}
	o.orphans[txid] = entry
	o.list = append(o.list, entry)
	o.byWtxid[tx.WTxID()] = entry
	for _, outpoint := range tx.Inputs() {
		set, ok := o.byPrevout[outpoint]
		if !ok {
			set = make(map[*OrphanTx]struct{})
			o.byPrevout[outpoint] = set
		}
		set[entry] = struct{}{}
	}

	o.stats.added.Inc()
	o.stats.size.Set(float64(len(o.orphans)))
	o.log.WithFields(logrus.Fields{
		"txid":      txid.String(),
		"wtxid":     tx.WTxID().String(),
		"peer":      peer,
		"pool_size": len(o.orphans),
		"prevouts":  len(o.byPrevout),
	}).Debug("stored orphan tx")
	return true
}

// EraseTx removes the orphan with the given txid, returning 1 if it was
// present, 0 otherwise.
func (o *Orphanage) EraseTx(txid wire.Txid) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.eraseTxLocked(txid)
}

// eraseTxLocked requires o.mu to already be held. It removes the entry from
// every index and keeps o.list dense via swap-with-back.
func (o *Orphanage) eraseTxLocked(txid wire.Txid) int {
	entry, ok := o.orphans[txid]
	if !ok {
		return 0
	}

	for _, outpoint := range entry.Tx.Inputs() {
		set, ok := o.byPrevout[outpoint]
		if !ok {
			continue
		}
		delete(set, entry)
		if len(set) == 0 {
			delete(o.byPrevout, outpoint)
		}
	}

	oldPos := entry.listPos
	if oldPos < 0 || oldPos >= len(o.list) || o.list[oldPos] != entry {
		panic("orphanage: list_pos invariant violated")
	}
	lastIdx := len(o.list) - 1
	if oldPos != lastIdx {
		last := o.list[lastIdx]
		o.list[oldPos] = last
		last.listPos = oldPos
	}
	o.list = o.list[:lastIdx]

	delete(o.byWtxid, entry.Tx.WTxID())
	delete(o.orphans, txid)

	o.stats.size.Set(float64(len(o.orphans)))
	o.log.WithFields(logrus.Fields{
		"txid":  txid.String(),
		"wtxid": entry.Tx.WTxID().String(),
	}).Debug("removed orphan tx")
	return 1
}

// EraseForPeer removes peer's work set and every orphan it relayed.
func (o *Orphanage) EraseForPeer(peer PeerID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.workSets, peer)

	erased := 0
	for txid, entry := range o.orphans {
		if entry.FromPeer == peer {
			erased += o.eraseTxLocked(txid)
		}
	}
	if erased > 0 {
		o.log.WithFields(logrus.Fields{"peer": peer, "count": erased}).Info("erased orphan tx from peer")
	}
}

// EraseForBlock removes every orphan that spends an input also spent by a
// transaction in block — whether because the orphan is now confirmed (or
// confirmable via package relay) or because it double-spends and can never
// confirm on this chain. The pool does not distinguish the two cases; both
// are safe to remove.
func (o *Orphanage) EraseForBlock(block *wire.MsgBlock) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var toErase []wire.Txid
	for _, tx := range block.Transactions {
		for _, outpoint := range tx.Inputs() {
			set, ok := o.byPrevout[outpoint]
			if !ok {
				continue
			}
			for entry := range set {
				toErase = append(toErase, entry.Tx.TxID())
			}
		}
	}

	if len(toErase) == 0 {
		return
	}
	erased := 0
	for _, txid := range toErase {
		erased += o.eraseTxLocked(txid)
	}
	if erased > 0 {
		o.log.WithFields(logrus.Fields{"count": erased}).Info("erased orphan tx included or conflicted by block")
	}
}

// LimitOrphans first sweeps out expired entries (amortized: only when the
// instance's nextSweep deadline has passed), then evicts uniformly random
// orphans until at most maxOrphans remain. Eviction is uniform at random,
// not fee- or size-based, so an attacker cannot craft cheap orphans that
// preferentially displace valuable ones.
func (o *Orphanage) LimitOrphans(maxOrphans int, rng Rng) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clock.Now()
	if o.nextSweep <= now {
		erased := 0
		minExpireAt := now + o.expireTime - o.expireInterval
		for txid, entry := range o.orphans {
			if entry.ExpireAt <= now {
				erased += o.eraseTxLocked(txid)
				continue
			}
			if entry.ExpireAt < minExpireAt {
				minExpireAt = entry.ExpireAt
			}
		}
		o.nextSweep = minExpireAt + o.expireInterval
		if erased > 0 {
			o.stats.expired.Add(float64(erased))
			o.log.WithFields(logrus.Fields{"count": erased}).Info("erased orphan tx due to expiration")
		}
	}

	evicted := 0
	for len(o.orphans) > maxOrphans {
		k := rng.Uniform(len(o.list))
		evicted += o.eraseTxLocked(o.list[k].Tx.TxID())
	}
	if evicted > 0 {
		o.stats.evicted.Add(float64(evicted))
		o.log.WithFields(logrus.Fields{"count": evicted}).Info("orphanage overflow, removed tx")
	}
}

// AddChildrenToWorkSet moves every stored orphan that spends one of tx's
// outputs into its source peer's work set, so it will be offered for
// reconsideration by GetTxToReconsider. Call this once tx (orphan or not)
// becomes known to the mempool or chain.
func (o *Orphanage) AddChildrenToWorkSet(tx *wire.MsgTx) {
	o.mu.Lock()
	defer o.mu.Unlock()

	txid := tx.TxID()
	for i := 0; i < tx.OutputCount(); i++ {
		outpoint := wire.OutPoint{Hash: wire.Hash(txid), Index: uint32(i)}
		set, ok := o.byPrevout[outpoint]
		if !ok {
			continue
		}
		for entry := range set {
			workSet, ok := o.workSets[entry.FromPeer]
			if !ok {
				workSet = make(map[wire.Txid]struct{})
				o.workSets[entry.FromPeer] = workSet
			}
			childTxid := entry.Tx.TxID()
			workSet[childTxid] = struct{}{}
			o.log.WithFields(logrus.Fields{
				"txid":  txid.String(),
				"wtxid": tx.WTxID().String(),
				"peer":  entry.FromPeer,
			}).Debug("added tx to peer workset")
		}
	}
}

// GetTxToReconsider pops txids from peer's work set, discarding any that no
// longer resolve to a stored orphan (it may have been erased since being
// enqueued), until it finds one that does or the work set is empty. Exactly
// one txid is removed per successful return; the returned transaction is
// not removed from the pool — the caller decides that after re-validation.
func (o *Orphanage) GetTxToReconsider(peer PeerID) (*wire.MsgTx, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	workSet, ok := o.workSets[peer]
	if !ok {
		return nil, false
	}
	for txid := range workSet {
		delete(workSet, txid)
		if entry, ok := o.orphans[txid]; ok {
			return entry.Tx, true
		}
	}
	return nil, false
}

// HaveTxToReconsider reports whether peer has a non-empty work set. It may
// return true spuriously if the set holds only stale ids — callers should
// treat GetTxToReconsider's return as the authoritative signal.
func (o *Orphanage) HaveTxToReconsider(peer PeerID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	workSet, ok := o.workSets[peer]
	return ok && len(workSet) > 0
}

// HaveTx reports whether gtxid (tagged as a Txid or Wtxid) identifies a
// stored orphan.
func (o *Orphanage) HaveTx(gtxid wire.GenTxid) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gtxid.IsWtxid() {
		_, ok := o.byWtxid[gtxid.Wtxid()]
		return ok
	}
	_, ok := o.orphans[gtxid.Txid()]
	return ok
}

// GetChildrenFromSamePeer returns every stored orphan spending one of
// parent's outputs that was relayed by peer, most-recently-inserted first
// (ties broken by an unspecified but call-deterministic order).
func (o *Orphanage) GetChildrenFromSamePeer(parent *wire.MsgTx, peer PeerID) []*wire.MsgTx {
	o.mu.Lock()
	defer o.mu.Unlock()

	entries := o.childEntriesLocked(parent, func(fromPeer PeerID) bool { return fromPeer == peer })

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ExpireAt != entries[j].ExpireAt {
			return entries[i].ExpireAt > entries[j].ExpireAt
		}
		// Tie-break on handle identity. Deterministic within this call;
		// not guaranteed stable across calls, since pointer addresses can
		// change between garbage collections.
		return reflect.ValueOf(entries[i]).Pointer() < reflect.ValueOf(entries[j]).Pointer()
	})

	txs := make([]*wire.MsgTx, len(entries))
	for i, entry := range entries {
		txs[i] = entry.Tx
	}
	return txs
}

// GetChildrenFromDifferentPeer returns every stored orphan spending one of
// parent's outputs that was relayed by a peer other than peer, paired with
// its source peer. Order is unspecified.
func (o *Orphanage) GetChildrenFromDifferentPeer(parent *wire.MsgTx, peer PeerID) []ChildFromPeer {
	o.mu.Lock()
	defer o.mu.Unlock()

	entries := o.childEntriesLocked(parent, func(fromPeer PeerID) bool { return fromPeer != peer })

	children := make([]ChildFromPeer, len(entries))
	for i, entry := range entries {
		children[i] = ChildFromPeer{Tx: entry.Tx, Peer: entry.FromPeer}
	}
	return children
}

// childEntriesLocked requires o.mu to already be held. It scans the prevout
// index across every output of parent, collecting deduplicated entries
// whose FromPeer satisfies keep.
func (o *Orphanage) childEntriesLocked(parent *wire.MsgTx, keep func(PeerID) bool) []*OrphanTx {
	parentTxid := parent.TxID()
	seen := make(map[*OrphanTx]struct{})
	var entries []*OrphanTx
	for i := 0; i < parent.OutputCount(); i++ {
		outpoint := wire.OutPoint{Hash: wire.Hash(parentTxid), Index: uint32(i)}
		set, ok := o.byPrevout[outpoint]
		if !ok {
			continue
		}
		for entry := range set {
			if !keep(entry.FromPeer) {
				continue
			}
			if _, dup := seen[entry]; dup {
				continue
			}
			seen[entry] = struct{}{}
			entries = append(entries, entry)
		}
	}
	return entries
}

// Size returns the number of orphans currently stored.
func (o *Orphanage) Size() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.orphans)
}
