package memory

import (
	"context"
	"sort"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
)

type sequenceRepo struct {
	store *Store
	inTx  bool
}

func (r *sequenceRepo) Claim(ctx context.Context, name string) (int64, int, error) {
	if !r.inTx {
		r.store.mu.Lock()
		defer r.store.mu.Unlock()
	}
	seq, ok := r.store.data.sequences[name]
	if !ok {
		return 0, 0, repository.ErrNotFound
	}
	value := seq.Next
	seq.Next += seq.Increment
	return value, seq.Padding, nil
}

type departmentRepo struct {
	store *Store
	inTx  bool
}

func (r *departmentRepo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *departmentRepo) rlock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.RLock()
	return r.store.mu.RUnlock
}

func (r *departmentRepo) Create(ctx context.Context, dept *domain.Department) error {
	defer r.lock()()
	v := *dept
	r.store.data.departments[dept.ID] = &v
	return nil
}

func (r *departmentRepo) Update(ctx context.Context, dept *domain.Department) error {
	defer r.lock()()
	if _, ok := r.store.data.departments[dept.ID]; !ok {
		return repository.ErrNotFound
	}
	v := *dept
	r.store.data.departments[dept.ID] = &v
	return nil
}

func (r *departmentRepo) GetByID(ctx context.Context, id string) (*domain.Department, error) {
	defer r.rlock()()
	dept, ok := r.store.data.departments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	v := *dept
	return &v, nil
}

func (r *departmentRepo) ListActive(ctx context.Context) ([]domain.Department, error) {
	defer r.rlock()()
	var result []domain.Department
	for _, dept := range r.store.data.departments {
		if dept.IsActive {
			result = append(result, *dept)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

type teamRepo struct {
	store *Store
	inTx  bool
}

func (r *teamRepo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *teamRepo) rlock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.RLock()
	return r.store.mu.RUnlock
}

func (r *teamRepo) Create(ctx context.Context, team *domain.Team) error {
	defer r.lock()()
	v := *team
	r.store.data.teams[team.ID] = &v
	return nil
}

func (r *teamRepo) Update(ctx context.Context, team *domain.Team) error {
	defer r.lock()()
	if _, ok := r.store.data.teams[team.ID]; !ok {
		return repository.ErrNotFound
	}
	v := *team
	r.store.data.teams[team.ID] = &v
	return nil
}

func (r *teamRepo) GetByID(ctx context.Context, id string) (*domain.Team, error) {
	defer r.rlock()()
	team, ok := r.store.data.teams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	v := *team
	return &v, nil
}

func (r *teamRepo) ListActiveByDepartment(ctx context.Context, departmentID string) ([]domain.Team, error) {
	defer r.rlock()()
	var result []domain.Team
	for _, team := range r.store.data.teams {
		if team.IsActive && team.DepartmentID == departmentID {
			result = append(result, *team)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

type staffRepo struct {
	store *Store
	inTx  bool
}

func (r *staffRepo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *staffRepo) rlock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.RLock()
	return r.store.mu.RUnlock
}

func (r *staffRepo) Create(ctx context.Context, staff *domain.StaffMember) error {
	defer r.lock()()
	v := *staff
	r.store.data.staff[staff.ID] = &v
	return nil
}

func (r *staffRepo) Update(ctx context.Context, staff *domain.StaffMember) error {
	defer r.lock()()
	if _, ok := r.store.data.staff[staff.ID]; !ok {
		return repository.ErrNotFound
	}
	v := *staff
	r.store.data.staff[staff.ID] = &v
	return nil
}

func (r *staffRepo) GetByID(ctx context.Context, id string) (*domain.StaffMember, error) {
	defer r.rlock()()
	staff, ok := r.store.data.staff[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	v := *staff
	return &v, nil
}

func (r *staffRepo) List(ctx context.Context, filter repository.StaffFilter) ([]domain.StaffMember, error) {
	defer r.rlock()()
	var result []domain.StaffMember
	for _, staff := range r.store.data.staff {
		if filter.Role != nil && staff.Role != *filter.Role {
			continue
		}
		if filter.TeamID != nil && (staff.TeamID == nil || *staff.TeamID != *filter.TeamID) {
			continue
		}
		if filter.DepartmentID != nil && (staff.DepartmentID == nil || *staff.DepartmentID != *filter.DepartmentID) {
			continue
		}
		if filter.Active != nil && staff.Active != *filter.Active {
			continue
		}
		if filter.OnVacation != nil && staff.OnVacation != *filter.OnVacation {
			continue
		}
		result = append(result, *staff)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

type topicRepo struct {
	store *Store
	inTx  bool
}

func (r *topicRepo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *topicRepo) rlock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.RLock()
	return r.store.mu.RUnlock
}

func (r *topicRepo) Create(ctx context.Context, topic *domain.Topic) error {
	defer r.lock()()
	v := *topic
	r.store.data.topics[topic.ID] = &v
	return nil
}

func (r *topicRepo) GetByID(ctx context.Context, id string) (*domain.Topic, error) {
	defer r.rlock()()
	topic, ok := r.store.data.topics[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	v := *topic
	return &v, nil
}

func (r *topicRepo) ListActive(ctx context.Context) ([]domain.Topic, error) {
	defer r.rlock()()
	var result []domain.Topic
	for _, topic := range r.store.data.topics {
		if topic.Active {
			result = append(result, *topic)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

type slaRepo struct {
	store *Store
	inTx  bool
}

func (r *slaRepo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *slaRepo) rlock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.RLock()
	return r.store.mu.RUnlock
}

func (r *slaRepo) Create(ctx context.Context, policy *domain.SLAPolicy) error {
	defer r.lock()()
	v := *policy
	r.store.data.slas[policy.ID] = &v
	return nil
}

func (r *slaRepo) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	defer r.rlock()()
	policy, ok := r.store.data.slas[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	v := *policy
	return &v, nil
}

func (r *slaRepo) ListActive(ctx context.Context) ([]domain.SLAPolicy, error) {
	defer r.rlock()()
	var result []domain.SLAPolicy
	for _, policy := range r.store.data.slas {
		if policy.Active {
			result = append(result, *policy)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}
