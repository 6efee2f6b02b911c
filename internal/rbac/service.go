package rbac

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the role/permission matrix.
type Repository interface {
	PermissionsForRole(ctx context.Context, role string) ([]string, error)
	ListGrants(ctx context.Context) ([]Grant, error)
}

// PGRepository reads role_permissions from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// PermissionsForRole lists permission names granted to role.
func (r *PGRepository) PermissionsForRole(ctx context.Context, role string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT permission FROM role_permissions WHERE role = $1 ORDER BY permission`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// ListGrants returns the full matrix.
func (r *PGRepository) ListGrants(ctx context.Context) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `SELECT role, permission FROM role_permissions ORDER BY role, permission`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.Role, &g.Permission); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

type cachedPerms struct {
	perms   []string
	expires time.Time
}

// Service resolves effective permissions, caching per role for a short TTL.
type Service struct {
	repo Repository
	ttl  time.Duration
	now  func() time.Time

	mu    sync.Mutex
	cache map[string]cachedPerms
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, ttl: time.Minute, now: time.Now, cache: make(map[string]cachedPerms)}
}

// EffectivePermissions returns the permissions granted to role.
func (s *Service) EffectivePermissions(ctx context.Context, role string) ([]string, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("rbac: service not initialised")
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return nil, nil
	}
	s.mu.Lock()
	entry, ok := s.cache[role]
	s.mu.Unlock()
	if ok && s.now().Before(entry.expires) {
		return entry.perms, nil
	}
	perms, err := s.repo.PermissionsForRole(ctx, role)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[role] = cachedPerms{perms: perms, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return perms, nil
}

// ListGrants exposes the permission matrix.
func (s *Service) ListGrants(ctx context.Context) ([]Grant, error) {
	return s.repo.ListGrants(ctx)
}
