// Package memory 内存版 Store，用于测试。
// 事务通过整体加锁和快照回滚实现。
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"orderflow/internal/model"
	"orderflow/internal/orderflow"
)

// Event 已写入的 outbox 事件
type Event struct {
	AggregateID int
	RoutingKey  string
	Payload     json.RawMessage
}

type data struct {
	orders        map[int]model.Order
	milestones    map[int]model.Milestone
	qualityChecks map[int]model.QualityCheck
	timeTracking  map[int]model.TimeTracking
	statusUpdates []model.StatusUpdate
	events        []Event
	adminUsers    map[string]model.AdminUser
	nextID        int
}

func newData() *data {
	return &data{
		orders:        make(map[int]model.Order),
		milestones:    make(map[int]model.Milestone),
		qualityChecks: make(map[int]model.QualityCheck),
		timeTracking:  make(map[int]model.TimeTracking),
		adminUsers:    make(map[string]model.AdminUser),
	}
}

func (d *data) clone() *data {
	c := &data{
		orders:        make(map[int]model.Order, len(d.orders)),
		milestones:    make(map[int]model.Milestone, len(d.milestones)),
		qualityChecks: make(map[int]model.QualityCheck, len(d.qualityChecks)),
		timeTracking:  make(map[int]model.TimeTracking, len(d.timeTracking)),
		statusUpdates: append([]model.StatusUpdate(nil), d.statusUpdates...),
		events:        append([]Event(nil), d.events...),
		adminUsers:    make(map[string]model.AdminUser, len(d.adminUsers)),
		nextID:        d.nextID,
	}
	for k, v := range d.orders {
		c.orders[k] = v
	}
	for k, v := range d.milestones {
		c.milestones[k] = v
	}
	for k, v := range d.qualityChecks {
		c.qualityChecks[k] = v
	}
	for k, v := range d.timeTracking {
		c.timeTracking[k] = v
	}
	for k, v := range d.adminUsers {
		c.adminUsers[k] = v
	}
	return c
}

func (d *data) id() int {
	d.nextID++
	return d.nextID
}

// Store 并发安全的内存 Store
type Store struct {
	mu sync.Mutex
	d  *data
}

var _ orderflow.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{d: newData()}
}

// WithinTx 事务期间独占整个 Store，fn 返回错误时恢复快照
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repo orderflow.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	if err := fn(ctx, &txRepo{d: s.d}); err != nil {
		s.d = snapshot
		return err
	}
	return nil
}

// Events 已写入的 outbox 事件（测试用）
func (s *Store) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.d.events...)
}

// PutAdminUser 写入管理员账号
func (s *Store) PutAdminUser(u model.AdminUser) model.AdminUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.d.id()
	}
	s.d.adminUsers[u.Email] = u
	return u
}

// FindAdminByEmail 未找到时返回 nil, nil
func (s *Store) FindAdminByEmail(_ context.Context, email string) (*model.AdminUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.d.adminUsers[email]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) locked(fn func(r *txRepo) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&txRepo{d: s.d})
}

func (s *Store) CreateOrder(ctx context.Context, o *model.Order) error {
	return s.locked(func(r *txRepo) error { return r.CreateOrder(ctx, o) })
}

func (s *Store) GetOrder(ctx context.Context, id int) (o *model.Order, err error) {
	err = s.locked(func(r *txRepo) error { o, err = r.GetOrder(ctx, id); return err })
	return o, err
}

func (s *Store) LockOrder(ctx context.Context, id int) (o *model.Order, err error) {
	return s.GetOrder(ctx, id)
}

func (s *Store) ListOrders(ctx context.Context, filter orderflow.OrderFilter) (out []model.Order, err error) {
	err = s.locked(func(r *txRepo) error { out, err = r.ListOrders(ctx, filter); return err })
	return out, err
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id int, status model.OrderStatus, progress int, at time.Time) error {
	return s.locked(func(r *txRepo) error { return r.UpdateOrderStatus(ctx, id, status, progress, at) })
}

func (s *Store) UpdateCurrentMilestone(ctx context.Context, id int, label string, at time.Time) error {
	return s.locked(func(r *txRepo) error { return r.UpdateCurrentMilestone(ctx, id, label, at) })
}

func (s *Store) InsertMilestones(ctx context.Context, milestones []*model.Milestone) error {
	return s.locked(func(r *txRepo) error { return r.InsertMilestones(ctx, milestones) })
}

func (s *Store) ListMilestones(ctx context.Context, orderID int) (out []model.Milestone, err error) {
	err = s.locked(func(r *txRepo) error { out, err = r.ListMilestones(ctx, orderID); return err })
	return out, err
}

func (s *Store) UpdateMilestoneStatus(ctx context.Context, id int, status model.MilestoneStatus, actualDate *time.Time, notes string) error {
	return s.locked(func(r *txRepo) error { return r.UpdateMilestoneStatus(ctx, id, status, actualDate, notes) })
}

func (s *Store) ListOverdueMilestones(ctx context.Context, now time.Time, limit int) (out []model.OverdueMilestone, err error) {
	err = s.locked(func(r *txRepo) error { out, err = r.ListOverdueMilestones(ctx, now, limit); return err })
	return out, err
}

func (s *Store) InsertQualityCheck(ctx context.Context, qc *model.QualityCheck) error {
	return s.locked(func(r *txRepo) error { return r.InsertQualityCheck(ctx, qc) })
}

func (s *Store) GetQualityCheck(ctx context.Context, id int) (qc *model.QualityCheck, err error) {
	err = s.locked(func(r *txRepo) error { qc, err = r.GetQualityCheck(ctx, id); return err })
	return qc, err
}

func (s *Store) UpdateQualityCheckResult(ctx context.Context, qc *model.QualityCheck) error {
	return s.locked(func(r *txRepo) error { return r.UpdateQualityCheckResult(ctx, qc) })
}

func (s *Store) ListQualityChecks(ctx context.Context, orderID int) (out []model.QualityCheck, err error) {
	err = s.locked(func(r *txRepo) error { out, err = r.ListQualityChecks(ctx, orderID); return err })
	return out, err
}

func (s *Store) GetOpenTimeTracking(ctx context.Context, orderID int) (t *model.TimeTracking, err error) {
	err = s.locked(func(r *txRepo) error { t, err = r.GetOpenTimeTracking(ctx, orderID); return err })
	return t, err
}

func (s *Store) InsertTimeTracking(ctx context.Context, t *model.TimeTracking) error {
	return s.locked(func(r *txRepo) error { return r.InsertTimeTracking(ctx, t) })
}

func (s *Store) CloseTimeTracking(ctx context.Context, id int, endedAt time.Time, minutes int) error {
	return s.locked(func(r *txRepo) error { return r.CloseTimeTracking(ctx, id, endedAt, minutes) })
}

func (s *Store) ListTimeTracking(ctx context.Context, orderID int) (out []model.TimeTracking, err error) {
	err = s.locked(func(r *txRepo) error { out, err = r.ListTimeTracking(ctx, orderID); return err })
	return out, err
}

func (s *Store) InsertStatusUpdate(ctx context.Context, u *model.StatusUpdate) error {
	return s.locked(func(r *txRepo) error { return r.InsertStatusUpdate(ctx, u) })
}

func (s *Store) ListStatusUpdates(ctx context.Context, orderID int, limit int) (out []model.StatusUpdate, err error) {
	err = s.locked(func(r *txRepo) error { out, err = r.ListStatusUpdates(ctx, orderID, limit); return err })
	return out, err
}

func (s *Store) AppendEvent(ctx context.Context, aggregateID int, routingKey string, payload any) error {
	return s.locked(func(r *txRepo) error { return r.AppendEvent(ctx, aggregateID, routingKey, payload) })
}

// txRepo 直接操作 data，调用方负责加锁
type txRepo struct {
	d *data
}

func (r *txRepo) CreateOrder(_ context.Context, o *model.Order) error {
	o.ID = r.d.id()
	r.d.orders[o.ID] = *o
	return nil
}

func (r *txRepo) GetOrder(_ context.Context, id int) (*model.Order, error) {
	o, ok := r.d.orders[id]
	if !ok {
		return nil, orderflow.ErrOrderNotFound
	}
	return &o, nil
}

func (r *txRepo) LockOrder(ctx context.Context, id int) (*model.Order, error) {
	return r.GetOrder(ctx, id)
}

func (r *txRepo) ListOrders(_ context.Context, filter orderflow.OrderFilter) ([]model.Order, error) {
	var out []model.Order
	for _, o := range r.d.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.ClientID != 0 && o.ClientID != filter.ClientID {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *txRepo) UpdateOrderStatus(_ context.Context, id int, status model.OrderStatus, progress int, at time.Time) error {
	o, ok := r.d.orders[id]
	if !ok {
		return orderflow.ErrOrderNotFound
	}
	o.Status = status
	o.Progress = progress
	o.UpdatedAt = at
	r.d.orders[id] = o
	return nil
}

func (r *txRepo) UpdateCurrentMilestone(_ context.Context, id int, label string, at time.Time) error {
	o, ok := r.d.orders[id]
	if !ok {
		return orderflow.ErrOrderNotFound
	}
	o.CurrentMilestone = label
	o.UpdatedAt = at
	r.d.orders[id] = o
	return nil
}

func (r *txRepo) InsertMilestones(_ context.Context, milestones []*model.Milestone) error {
	for _, m := range milestones {
		for _, existing := range r.d.milestones {
			if existing.OrderID == m.OrderID && existing.Sequence == m.Sequence {
				return fmt.Errorf("milestone sequence %d already exists for order %d", m.Sequence, m.OrderID)
			}
		}
		m.ID = r.d.id()
		r.d.milestones[m.ID] = *m
	}
	return nil
}

func (r *txRepo) ListMilestones(_ context.Context, orderID int) ([]model.Milestone, error) {
	var out []model.Milestone
	for _, m := range r.d.milestones {
		if m.OrderID == orderID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (r *txRepo) UpdateMilestoneStatus(_ context.Context, id int, status model.MilestoneStatus, actualDate *time.Time, notes string) error {
	m, ok := r.d.milestones[id]
	if !ok {
		return fmt.Errorf("milestone %d not found", id)
	}
	m.Status = status
	if actualDate != nil {
		at := *actualDate
		m.ActualDate = &at
		m.UpdatedAt = at
	}
	m.Notes = notes
	r.d.milestones[id] = m
	return nil
}

func (r *txRepo) ListOverdueMilestones(_ context.Context, now time.Time, limit int) ([]model.OverdueMilestone, error) {
	var out []model.OverdueMilestone
	for _, m := range r.d.milestones {
		if m.Status == model.MilestoneStatusCompleted || !m.PlannedDate.Before(now) {
			continue
		}
		o := r.d.orders[m.OrderID]
		if o.Status == model.OrderStatusCancelled || o.Status == model.OrderStatusDelivered {
			continue
		}
		out = append(out, model.OverdueMilestone{
			MilestoneID: m.ID,
			OrderID:     m.OrderID,
			Type:        m.Type,
			Title:       m.Title,
			PlannedDate: m.PlannedDate,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PlannedDate.Equal(out[j].PlannedDate) {
			return out[i].MilestoneID < out[j].MilestoneID
		}
		return out[i].PlannedDate.Before(out[j].PlannedDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *txRepo) InsertQualityCheck(_ context.Context, qc *model.QualityCheck) error {
	if _, ok := r.d.orders[qc.OrderID]; !ok {
		return orderflow.ErrOrderNotFound
	}
	qc.ID = r.d.id()
	r.d.qualityChecks[qc.ID] = *qc
	return nil
}

func (r *txRepo) GetQualityCheck(_ context.Context, id int) (*model.QualityCheck, error) {
	qc, ok := r.d.qualityChecks[id]
	if !ok {
		return nil, orderflow.ErrQualityCheckNotFound
	}
	return &qc, nil
}

func (r *txRepo) UpdateQualityCheckResult(_ context.Context, qc *model.QualityCheck) error {
	if _, ok := r.d.qualityChecks[qc.ID]; !ok {
		return orderflow.ErrQualityCheckNotFound
	}
	r.d.qualityChecks[qc.ID] = *qc
	return nil
}

func (r *txRepo) ListQualityChecks(_ context.Context, orderID int) ([]model.QualityCheck, error) {
	var out []model.QualityCheck
	for _, qc := range r.d.qualityChecks {
		if qc.OrderID == orderID {
			out = append(out, qc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *txRepo) GetOpenTimeTracking(_ context.Context, orderID int) (*model.TimeTracking, error) {
	for _, t := range r.d.timeTracking {
		if t.OrderID == orderID && t.Open() {
			return &t, nil
		}
	}
	return nil, nil
}

func (r *txRepo) InsertTimeTracking(_ context.Context, t *model.TimeTracking) error {
	for _, existing := range r.d.timeTracking {
		if existing.OrderID == t.OrderID && existing.Open() {
			return fmt.Errorf("order %d already has an open time tracking record", t.OrderID)
		}
	}
	t.ID = r.d.id()
	r.d.timeTracking[t.ID] = *t
	return nil
}

func (r *txRepo) CloseTimeTracking(_ context.Context, id int, endedAt time.Time, minutes int) error {
	t, ok := r.d.timeTracking[id]
	if !ok {
		return fmt.Errorf("time tracking %d not found", id)
	}
	t.EndedAt = &endedAt
	t.DurationMinutes = &minutes
	r.d.timeTracking[id] = t
	return nil
}

func (r *txRepo) ListTimeTracking(_ context.Context, orderID int) ([]model.TimeTracking, error) {
	var out []model.TimeTracking
	for _, t := range r.d.timeTracking {
		if t.OrderID == orderID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *txRepo) InsertStatusUpdate(_ context.Context, u *model.StatusUpdate) error {
	u.ID = r.d.id()
	r.d.statusUpdates = append(r.d.statusUpdates, *u)
	return nil
}

func (r *txRepo) ListStatusUpdates(_ context.Context, orderID int, limit int) ([]model.StatusUpdate, error) {
	var out []model.StatusUpdate
	for i := len(r.d.statusUpdates) - 1; i >= 0; i-- {
		u := r.d.statusUpdates[i]
		if u.OrderID != orderID {
			continue
		}
		out = append(out, u)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *txRepo) AppendEvent(_ context.Context, aggregateID int, routingKey string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	r.d.events = append(r.d.events, Event{AggregateID: aggregateID, RoutingKey: routingKey, Payload: raw})
	return nil
}
