package mockserver

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"inpass/internal/domain"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrLoginTaken = errors.New("login already taken")
)

// User is an account on the mock backend.
type User struct {
	ID           string
	Login        string
	FullName     string
	GroupID      string
	PasswordHash string
	CreatedAt    time.Time
}

// StoredAbsence pairs a request with its creation instant so list
// sorting has something to order by.
type StoredAbsence struct {
	domain.AbsenceRequest
	CreatedAt time.Time
}

// Store is the mock backend's persistence contract.
type Store interface {
	CreateUser(ctx context.Context, user User) error
	UserByLogin(ctx context.Context, login string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)

	CreateAbsence(ctx context.Context, a StoredAbsence) error
	UpdateAbsence(ctx context.Context, a StoredAbsence) error
	AbsenceByID(ctx context.Context, id string) (StoredAbsence, error)
	ListAbsences(ctx context.Context, userID string, params domain.ListParams) ([]StoredAbsence, error)
}

type memoryStore struct {
	mu       sync.Mutex
	users    map[string]User
	byLogin  map[string]string
	absences map[string]StoredAbsence
}

// NewMemoryStore backs the mock server without any external service.
func NewMemoryStore() Store {
	return &memoryStore{
		users:    make(map[string]User),
		byLogin:  make(map[string]string),
		absences: make(map[string]StoredAbsence),
	}
}

func (s *memoryStore) CreateUser(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(user.Login)
	if _, ok := s.byLogin[key]; ok {
		return ErrLoginTaken
	}
	s.users[user.ID] = user
	s.byLogin[key] = user.ID
	return nil
}

func (s *memoryStore) UserByLogin(_ context.Context, login string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byLogin[strings.ToLower(login)]
	if !ok {
		return User{}, ErrNotFound
	}
	return s.users[id], nil
}

func (s *memoryStore) UserByID(_ context.Context, id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (s *memoryStore) CreateAbsence(_ context.Context, a StoredAbsence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.absences[a.ID] = a
	return nil
}

func (s *memoryStore) UpdateAbsence(_ context.Context, a StoredAbsence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.absences[a.ID]; !ok {
		return ErrNotFound
	}
	s.absences[a.ID] = a
	return nil
}

func (s *memoryStore) AbsenceByID(_ context.Context, id string) (StoredAbsence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.absences[id]
	if !ok {
		return StoredAbsence{}, ErrNotFound
	}
	return a, nil
}

func (s *memoryStore) ListAbsences(_ context.Context, userID string, params domain.ListParams) ([]StoredAbsence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []StoredAbsence
	for _, a := range s.absences {
		if a.UserID != userID {
			continue
		}
		if params.Status != "" && a.Status != params.Status {
			continue
		}
		matched = append(matched, a)
	}

	asc := params.Sorting == domain.SortCreateAsc
	sort.Slice(matched, func(i, j int) bool {
		if asc {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	return paginate(matched, params.Page, params.Size), nil
}

// paginate slices one page out of the full match set. Pages are
// 1-based; an out-of-range page yields an empty, valid result.
func paginate(items []StoredAbsence, page, size int) []StoredAbsence {
	if size <= 0 {
		size = 10
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * size
	if start >= len(items) {
		return []StoredAbsence{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
