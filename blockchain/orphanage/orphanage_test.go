package orphanage

import (
	"testing"

	"obsidian-core/wire"
)

type fakeClock struct{ now int64 }

func (c *fakeClock) Now() int64 { return c.now }

// sequenceRng replays a fixed sequence of raw draws, reduced mod n. Used to
// pin down which entry LimitOrphans evicts in deterministic tests.
type sequenceRng struct {
	values []int
	i      int
}

func (r *sequenceRng) Uniform(n int) int {
	if n <= 0 {
		return 0
	}
	v := r.values[r.i%len(r.values)]
	r.i++
	return v % n
}

func outpointHash(seed byte) wire.Hash {
	var h wire.Hash
	h[0] = seed
	h[1] = seed >> 1
	return h
}

// makeOrphanTx builds a single-input, single-output transaction spending
// (outpointHash(prevSeed), prevIndex). scriptLen pads the input's
// SignatureScript so callers can control Weight(); uniqueByte distinguishes
// otherwise-identical transactions so each gets its own txid.
func makeOrphanTx(prevSeed byte, prevIndex uint32, scriptLen int, uniqueByte byte) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	script := make([]byte, scriptLen)
	if scriptLen > 0 {
		script[0] = uniqueByte
	}
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: outpointHash(prevSeed), Index: prevIndex},
		SignatureScript:  script,
		Sequence:         0xffffffff,
	})
	tx.AddTxOut(&wire.TxOut{Value: 1000, PkScript: []byte{0x76, 0xa9, uniqueByte}})
	return tx
}

func makeParentTx(seed byte, numOutputs int) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: outpointHash(seed ^ 0xff), Index: 0},
		SignatureScript:  []byte{seed},
		Sequence:         0xffffffff,
	})
	for i := 0; i < numOutputs; i++ {
		tx.AddTxOut(&wire.TxOut{Value: int64(1000 + i), PkScript: []byte{0x51}})
	}
	return tx
}

// checkInvariants verifies every invariant in spec.md §3/§8 against o's
// internal state. Call after every mutating operation in a test.
func checkInvariants(t *testing.T, o *Orphanage) {
	t.Helper()

	if len(o.list) != len(o.orphans) {
		t.Fatalf("invariant violated: len(list)=%d != len(orphans)=%d", len(o.list), len(o.orphans))
	}
	for i, entry := range o.list {
		if entry.listPos != i {
			t.Fatalf("invariant violated: list[%d].listPos=%d", i, entry.listPos)
		}
	}

	if len(o.byWtxid) != len(o.orphans) {
		t.Fatalf("invariant violated: len(byWtxid)=%d != len(orphans)=%d", len(o.byWtxid), len(o.orphans))
	}

	for txid, entry := range o.orphans {
		if entry.Tx.TxID() != txid {
			t.Fatalf("invariant violated: orphans[%v].Tx.TxID() != key", txid)
		}
		if _, ok := o.byWtxid[entry.Tx.WTxID()]; !ok {
			t.Fatalf("invariant violated: %v missing from byWtxid", txid)
		}
		if entry.Tx.Weight() > MaxStandardTxWeight {
			t.Fatalf("invariant violated: %v weight %d exceeds max", txid, entry.Tx.Weight())
		}
		for _, outpoint := range entry.Tx.Inputs() {
			set, ok := o.byPrevout[outpoint]
			if !ok {
				t.Fatalf("invariant violated: prevout %v missing from byPrevout", outpoint)
			}
			if _, ok := set[entry]; !ok {
				t.Fatalf("invariant violated: %v not indexed under its own prevout %v", txid, outpoint)
			}
		}
	}

	for outpoint, set := range o.byPrevout {
		if len(set) == 0 {
			t.Fatalf("invariant violated: empty prevout bucket at %v", outpoint)
		}
		for entry := range set {
			if o.orphans[entry.Tx.TxID()] != entry {
				t.Fatalf("invariant violated: byPrevout[%v] points outside orphans", outpoint)
			}
		}
	}
}

func newTestOrphanage(now int64) (*Orphanage, *fakeClock) {
	clock := &fakeClock{now: now}
	return New(clock), clock
}

func TestAddTxLargeOrphanRejected(t *testing.T) {
	o, _ := newTestOrphanage(0)
	bigTx := makeOrphanTx(1, 0, MaxStandardTxWeight, 0xaa) // base size alone already exceeds the cap

	if o.AddTx(bigTx, 7) {
		t.Fatal("expected AddTx to reject an oversized orphan")
	}
	if o.Size() != 0 {
		t.Fatalf("expected Size()==0 after rejection, got %d", o.Size())
	}
	checkInvariants(t, o)
}

func TestAddTxEraseTxBasic(t *testing.T) {
	o, _ := newTestOrphanage(0)
	a := makeOrphanTx(0x10, 0, 16, 0x01)

	if !o.AddTx(a, 7) {
		t.Fatal("expected AddTx to accept a")
	}
	checkInvariants(t, o)

	if o.Size() != 1 {
		t.Fatalf("expected Size()==1, got %d", o.Size())
	}
	if !o.HaveTx(wire.NewGenTxidFromTxid(a.TxID())) {
		t.Fatal("expected HaveTx(txid) to be true")
	}
	if o.EraseTx(a.TxID()) != 1 {
		t.Fatal("expected EraseTx to report 1 removed")
	}
	checkInvariants(t, o)
	if o.Size() != 0 {
		t.Fatalf("expected Size()==0 after erase, got %d", o.Size())
	}
	if o.HaveTx(wire.NewGenTxidFromTxid(a.TxID())) {
		t.Fatal("expected HaveTx(txid) to be false after erase")
	}
}

func TestAddTxDuplicateRejected(t *testing.T) {
	o, _ := newTestOrphanage(0)
	tx := makeOrphanTx(0x20, 0, 16, 0x02)

	if !o.AddTx(tx, 1) {
		t.Fatal("expected first AddTx to succeed")
	}
	if o.AddTx(tx, 2) {
		t.Fatal("expected second AddTx of the same tx to return false")
	}
	if o.Size() != 1 {
		t.Fatalf("expected Size()==1 after duplicate rejection, got %d", o.Size())
	}
}

func TestChildrenToWorkSet(t *testing.T) {
	o, _ := newTestOrphanage(0)
	parent := makeParentTx(0x30, 1)
	child := makeOrphanTx(0, 0, 16, 0x03)
	child.TxIn[0].PreviousOutPoint = wire.OutPoint{Hash: wire.Hash(parent.TxID()), Index: 0}

	if !o.AddTx(child, 3) {
		t.Fatal("expected AddTx to accept child")
	}
	checkInvariants(t, o)

	o.AddChildrenToWorkSet(parent)

	if !o.HaveTxToReconsider(3) {
		t.Fatal("expected peer 3 to have a tx to reconsider")
	}
	got, ok := o.GetTxToReconsider(3)
	if !ok {
		t.Fatal("expected GetTxToReconsider to return the child")
	}
	if got.TxID() != child.TxID() {
		t.Fatal("expected GetTxToReconsider to return the specific child orphan")
	}
	if _, ok := o.GetTxToReconsider(3); ok {
		t.Fatal("expected a second GetTxToReconsider call to return none")
	}
}

func TestEraseForBlock(t *testing.T) {
	o, _ := newTestOrphanage(0)
	prev := outpointHash(0x40)
	orphan := makeOrphanTx(0x40, 0, 16, 0x04)
	if !o.AddTx(orphan, 1) {
		t.Fatal("expected AddTx to succeed")
	}

	block := wire.NewMsgBlock(&wire.BlockHeader{})
	conflicting := wire.NewMsgTx(wire.TxVersion)
	conflicting.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: prev, Index: 0}})
	conflicting.AddTxOut(&wire.TxOut{Value: 1, PkScript: []byte{0x51}})
	block.AddTransaction(conflicting)

	o.EraseForBlock(block)
	checkInvariants(t, o)

	if o.HaveTx(wire.NewGenTxidFromTxid(orphan.TxID())) {
		t.Fatal("expected orphan spending the same input as a block tx to be erased")
	}
}

func TestEraseForPeer(t *testing.T) {
	o, _ := newTestOrphanage(0)
	a := makeOrphanTx(0x50, 0, 16, 0x05)
	b := makeOrphanTx(0x51, 0, 16, 0x06)

	o.AddTx(a, 9)
	o.AddTx(b, 10)
	o.AddChildrenToWorkSet(makeParentTx(0x99, 0)) // no-op, just exercising the path

	o.EraseForPeer(9)
	checkInvariants(t, o)

	if o.HaveTx(wire.NewGenTxidFromTxid(a.TxID())) {
		t.Fatal("expected peer 9's orphan to be erased")
	}
	if !o.HaveTx(wire.NewGenTxidFromTxid(b.TxID())) {
		t.Fatal("expected peer 10's orphan to survive")
	}
	if o.HaveTxToReconsider(9) {
		t.Fatal("expected peer 9's work set to be gone")
	}
}

func TestLimitOrphansExpiration(t *testing.T) {
	o, clock := newTestOrphanage(0)
	e := makeOrphanTx(0x60, 0, 16, 0x07)
	o.AddTx(e, 1)

	clock.now = OrphanTxExpireTime + 1
	o.LimitOrphans(100, DefaultRng)
	checkInvariants(t, o)

	if o.Size() != 0 {
		t.Fatalf("expected expired orphan to be removed, Size()=%d", o.Size())
	}
}

func TestLimitOrphansRandomCap(t *testing.T) {
	o, _ := newTestOrphanage(0)
	for i := 0; i < 101; i++ {
		tx := makeOrphanTx(byte(i), 0, 16, byte(i))
		if !o.AddTx(tx, PeerID(i)) {
			t.Fatalf("expected orphan %d to be accepted", i)
		}
	}
	if o.Size() != 101 {
		t.Fatalf("expected Size()==101 before limiting, got %d", o.Size())
	}

	o.LimitOrphans(100, &sequenceRng{values: []int{0}})
	checkInvariants(t, o)

	if o.Size() != 100 {
		t.Fatalf("expected Size()==100 after LimitOrphans, got %d", o.Size())
	}
}

func TestGetChildrenFromSamePeerOrdersByRecency(t *testing.T) {
	o, clock := newTestOrphanage(0)
	parent := makeParentTx(0x70, 1)

	older := makeOrphanTx(0, 0, 16, 0x11)
	older.TxIn[0].PreviousOutPoint = wire.OutPoint{Hash: wire.Hash(parent.TxID()), Index: 0}
	o.AddTx(older, 4)

	clock.now = 100
	newer := makeOrphanTx(0, 0, 16, 0x12)
	newer.TxIn[0].PreviousOutPoint = wire.OutPoint{Hash: wire.Hash(parent.TxID()), Index: 0}
	o.AddTx(newer, 4)

	others := makeOrphanTx(0, 0, 16, 0x13)
	others.TxIn[0].PreviousOutPoint = wire.OutPoint{Hash: wire.Hash(parent.TxID()), Index: 0}
	o.AddTx(others, 5)

	children := o.GetChildrenFromSamePeer(parent, 4)
	if len(children) != 2 {
		t.Fatalf("expected 2 children from peer 4, got %d", len(children))
	}
	if children[0].TxID() != newer.TxID() {
		t.Fatal("expected the more-recently-inserted orphan first")
	}
	if children[1].TxID() != older.TxID() {
		t.Fatal("expected the older orphan second")
	}
}

func TestGetChildrenFromDifferentPeer(t *testing.T) {
	o, _ := newTestOrphanage(0)
	parent := makeParentTx(0x80, 1)

	mine := makeOrphanTx(0, 0, 16, 0x21)
	mine.TxIn[0].PreviousOutPoint = wire.OutPoint{Hash: wire.Hash(parent.TxID()), Index: 0}
	o.AddTx(mine, 4)

	other := makeOrphanTx(0, 0, 16, 0x22)
	other.TxIn[0].PreviousOutPoint = wire.OutPoint{Hash: wire.Hash(parent.TxID()), Index: 0}
	o.AddTx(other, 5)

	children := o.GetChildrenFromDifferentPeer(parent, 4)
	if len(children) != 1 {
		t.Fatalf("expected 1 child from a different peer, got %d", len(children))
	}
	if children[0].Tx.TxID() != other.TxID() || children[0].Peer != 5 {
		t.Fatal("expected the peer-5 orphan with its source peer attached")
	}
}

func TestGetTxToReconsiderToleratesStaleIDs(t *testing.T) {
	o, _ := newTestOrphanage(0)
	parent := makeParentTx(0x90, 1)
	child := makeOrphanTx(0, 0, 16, 0x31)
	child.TxIn[0].PreviousOutPoint = wire.OutPoint{Hash: wire.Hash(parent.TxID()), Index: 0}

	o.AddTx(child, 6)
	o.AddChildrenToWorkSet(parent)

	o.EraseTx(child.TxID()) // orphan erased after being enqueued, before drain

	if _, ok := o.GetTxToReconsider(6); ok {
		t.Fatal("expected a stale work-set entry to be discarded, not returned")
	}
}
