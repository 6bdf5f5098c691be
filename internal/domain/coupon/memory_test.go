package coupon

import (
	"context"
	"sync"
	"time"
)

// memCoupons is an in-memory Repository for tests. Methods are safe for
// concurrent use so counter semantics can be exercised under contention.
type memCoupons struct {
	mu   sync.Mutex
	byID map[string]*Coupon

	markExpiredErr error
	findErr        error
}

func newMemCoupons(coupons ...*Coupon) *memCoupons {
	m := &memCoupons{byID: make(map[string]*Coupon)}
	for _, c := range coupons {
		cp := *c
		m.byID[c.ID] = &cp
	}
	return m
}

func (m *memCoupons) FindByCode(_ context.Context, code string) (*Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, c := range m.byID {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memCoupons) GetByID(_ context.Context, id string) (*Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCoupons) MarkExpired(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markExpiredErr != nil {
		return m.markExpiredErr
	}
	c, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = StatusExpired
	c.UpdatedAt = at
	return nil
}

func (m *memCoupons) IncrementUsage(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	c.UsageCount++
	c.UpdatedAt = at
	return nil
}

func (m *memCoupons) Insert(_ context.Context, c *Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.byID[c.ID] = &cp
	return nil
}

func (m *memCoupons) get(id string) Coupon {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.byID[id]
}

// memUsages is an in-memory UsageRepository for tests.
type memUsages struct {
	mu   sync.Mutex
	rows []*Usage

	insertErr error
	countErr  error
}

func (m *memUsages) Insert(_ context.Context, u *Usage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	cp := *u
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memUsages) CountByUserAndCoupon(_ context.Context, userID, couponID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	n := 0
	for _, u := range m.rows {
		if u.UserID == userID && u.CouponID == couponID {
			n++
		}
	}
	return n, nil
}

func (m *memUsages) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}
