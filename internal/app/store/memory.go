package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bazaar-mp/project/internal/contracts"
)

type recordKey struct {
	msgID string
	dir   contracts.Direction
}

type voteKey struct {
	proposal string
	voter    string
}

// Memory is a mutex-guarded Store for tests and single-process nodes.
type Memory struct {
	Now func() time.Time

	mu        sync.RWMutex
	records   map[recordKey]contracts.TransportRecord
	listings  map[string]Listing
	markets   map[string]Market
	bids      map[string]BidRecord
	bidOrder  []string
	proposals map[string]Proposal
	votes     map[voteKey]Vote
	comments  map[string]Comment
}

func NewMemory() *Memory {
	return &Memory{
		Now:       func() time.Time { return time.Now().UTC() },
		records:   map[recordKey]contracts.TransportRecord{},
		listings:  map[string]Listing{},
		markets:   map[string]Market{},
		bids:      map[string]BidRecord{},
		proposals: map[string]Proposal{},
		votes:     map[voteKey]Vote{},
		comments:  map[string]Comment{},
	}
}

func (m *Memory) CreateRecord(_ context.Context, r contracts.TransportRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := recordKey{r.MsgID, r.Direction}
	if _, ok := m.records[k]; ok {
		return false, nil
	}
	m.records[k] = r
	return true, nil
}

func (m *Memory) FindRecord(_ context.Context, msgID string, dir contracts.Direction) (contracts.TransportRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[recordKey{msgID, dir}]
	return r, ok, nil
}

func (m *Memory) UpdateStatus(_ context.Context, msgID string, dir contracts.Direction, status contracts.MessageStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := recordKey{msgID, dir}
	r, ok := m.records[k]
	if !ok {
		return fmt.Errorf("transport record %s/%s: %w", msgID, dir, ErrNotFound)
	}
	if r.Status.Final() {
		return nil
	}
	r.Status = status
	m.records[k] = r
	return nil
}

func (m *Memory) SaveListing(_ context.Context, l Listing) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	if existing, ok := m.listings[l.Hash]; ok {
		existing.MsgID = l.MsgID
		existing.ExpiredAt = l.ExpiredAt
		existing.UpdatedAt = now
		m.listings[l.Hash] = existing
		return false, nil
	}
	l.CreatedAt, l.UpdatedAt = now, now
	m.listings[l.Hash] = l
	return true, nil
}

func (m *Memory) FindListing(_ context.Context, hash string) (Listing, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[hash]
	return l, ok, nil
}

func (m *Memory) AttachListingImage(_ context.Context, listingHash string, image contracts.ContentReference) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[listingHash]
	if !ok {
		return false, nil
	}
	images := append([]contracts.ContentReference(nil), l.Images...)
	if !attachImage(images, image) {
		return false, nil
	}
	l.Images = images
	l.UpdatedAt = m.Now()
	m.listings[listingHash] = l
	return true, nil
}

func (m *Memory) SaveMarket(_ context.Context, mk Market) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	if existing, ok := m.markets[mk.Hash]; ok {
		existing.MsgID = mk.MsgID
		existing.ExpiredAt = mk.ExpiredAt
		existing.UpdatedAt = now
		m.markets[mk.Hash] = existing
		return false, nil
	}
	mk.CreatedAt, mk.UpdatedAt = now, now
	m.markets[mk.Hash] = mk
	return true, nil
}

func (m *Memory) FindMarket(_ context.Context, hash string) (Market, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mk, ok := m.markets[hash]
	return mk, ok, nil
}

func (m *Memory) FindMarketByReceiveAddress(_ context.Context, addr string) (Market, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		found Market
		ok    bool
	)
	for _, mk := range m.markets {
		if mk.ReceiveAddress == addr && (!ok || mk.CreatedAt.Before(found.CreatedAt)) {
			found, ok = mk, true
		}
	}
	return found, ok, nil
}

func (m *Memory) AttachMarketImage(_ context.Context, marketHash string, image contracts.ContentReference) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mk, ok := m.markets[marketHash]
	if !ok || mk.ImageHash == "" || mk.ImageHash != image.Hash {
		return false, nil
	}
	img := image
	mk.Image = &img
	mk.UpdatedAt = m.Now()
	m.markets[marketHash] = mk
	return true, nil
}

func (m *Memory) SaveBid(_ context.Context, b BidRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bids[b.Hash]; ok {
		return false, nil
	}
	b.CreatedAt = m.Now()
	m.bids[b.Hash] = b
	m.bidOrder = append(m.bidOrder, b.Hash)
	return true, nil
}

func (m *Memory) FindBid(_ context.Context, hash string) (BidRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bids[hash]
	return b, ok, nil
}

func (m *Memory) FindChildren(_ context.Context, parent string, t contracts.ActionType) ([]BidRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []BidRecord
	for _, h := range m.bidOrder {
		b := m.bids[h]
		if b.Parent == parent && b.Type == t {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *Memory) SetOrderStatus(_ context.Context, bidHash string, status contracts.OrderStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bids[bidHash]
	if !ok {
		return false, fmt.Errorf("bid %s: %w", bidHash, ErrNotFound)
	}
	if !b.OrderStatus.Advances(status) {
		return false, nil
	}
	b.OrderStatus = status
	m.bids[bidHash] = b
	return true, nil
}

func (m *Memory) SaveProposal(_ context.Context, p Proposal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.proposals[p.Hash]; ok {
		existing.MsgID = p.MsgID
		existing.ExpiredAt = p.ExpiredAt
		m.proposals[p.Hash] = existing
		return false, nil
	}
	p.CreatedAt = m.Now()
	m.proposals[p.Hash] = p
	return true, nil
}

func (m *Memory) FindProposal(_ context.Context, hash string) (Proposal, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.proposals[hash]
	return p, ok, nil
}

func (m *Memory) SaveVote(_ context.Context, v Vote) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := voteKey{v.ProposalHash, v.Voter}
	if existing, ok := m.votes[k]; ok && existing.Generated >= v.Generated {
		return false, nil
	}
	v.CreatedAt = m.Now()
	m.votes[k] = v
	return true, nil
}

func (m *Memory) FindVote(_ context.Context, proposalHash, voter string) (Vote, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.votes[voteKey{proposalHash, voter}]
	return v, ok, nil
}

func (m *Memory) CountVotes(_ context.Context, proposalHash string) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[string]int{}
	for k, v := range m.votes {
		if k.proposal == proposalHash {
			out[v.ProposalOptionHash]++
		}
	}
	return out, nil
}

func (m *Memory) SaveComment(_ context.Context, c Comment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.comments[c.Hash]; ok {
		existing.MsgID = c.MsgID
		existing.ExpiredAt = c.ExpiredAt
		m.comments[c.Hash] = existing
		return false, nil
	}
	c.CreatedAt = m.Now()
	m.comments[c.Hash] = c
	return true, nil
}

func (m *Memory) FindComment(_ context.Context, hash string) (Comment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.comments[hash]
	return c, ok, nil
}

// Records returns every transport record, ordered by message id.
func (m *Memory) Records() []contracts.TransportRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]contracts.TransportRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MsgID == out[j].MsgID {
			return out[i].Direction < out[j].Direction
		}
		return out[i].MsgID < out[j].MsgID
	})
	return out
}

var _ Store = (*Memory)(nil)
