package authz

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/aussiebroadwan/shield/internal/auth/store"
)

// Repository provides the membership tables. store.Store satisfies it.
type Repository interface {
	Groups() store.Memberships
	Permissions() store.Memberships
}

// Authorizer hands out per-user Subjects.
type Authorizer struct {
	cfg  Config
	repo Repository
}

func New(cfg Config, repo Repository) *Authorizer {
	return &Authorizer{cfg: cfg, repo: repo}
}

// Config returns the loaded authorization universe.
func (a *Authorizer) Config() Config { return a.cfg }

// For returns a Subject for userID. Memberships are loaded on first use and
// cached for the Subject's lifetime, so build one per request.
func (a *Authorizer) For(userID string) *Subject {
	return &Subject{a: a, userID: userID}
}

// Subject answers authorization questions for one user.
type Subject struct {
	a      *Authorizer
	userID string

	mu     sync.Mutex
	groups map[string]struct{}
	perms  map[string]struct{}
}

func (s *Subject) UserID() string { return s.userID }

func (s *Subject) loadGroups(ctx context.Context) error {
	if s.groups != nil {
		return nil
	}
	names, err := s.a.repo.Groups().List(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("load groups: %w", err)
	}
	s.groups = toSet(names)
	return nil
}

func (s *Subject) loadPermissions(ctx context.Context) error {
	if s.perms != nil {
		return nil
	}
	names, err := s.a.repo.Permissions().List(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("load permissions: %w", err)
	}
	s.perms = toSet(names)
	return nil
}

// Can reports whether the user holds permission directly or through one of
// their groups.
func (s *Subject) Can(ctx context.Context, permission string) (bool, error) {
	permission = normalizeName(permission)
	if !strings.Contains(permission, ".") {
		return false, fmt.Errorf("%w: %q", ErrInvalidPermission, permission)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadPermissions(ctx); err != nil {
		return false, err
	}
	if _, ok := s.perms[permission]; ok {
		return true, nil
	}

	if err := s.loadGroups(ctx); err != nil {
		return false, err
	}
	for group := range s.groups {
		if s.a.cfg.groupGrants(group, permission) {
			return true, nil
		}
	}
	return false, nil
}

// InGroup reports whether the user belongs to any of groups.
func (s *Subject) InGroup(ctx context.Context, groups ...string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadGroups(ctx); err != nil {
		return false, err
	}
	for _, g := range groups {
		if _, ok := s.groups[normalizeName(g)]; ok {
			return true, nil
		}
	}
	return false, nil
}

// HasPermission checks direct grants only, ignoring groups.
func (s *Subject) HasPermission(ctx context.Context, permission string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadPermissions(ctx); err != nil {
		return false, err
	}
	_, ok := s.perms[normalizeName(permission)]
	return ok, nil
}

func (s *Subject) Groups(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadGroups(ctx); err != nil {
		return nil, err
	}
	return sortedKeys(s.groups), nil
}

func (s *Subject) Permissions(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadPermissions(ctx); err != nil {
		return nil, err
	}
	return sortedKeys(s.perms), nil
}

func (s *Subject) AddGroup(ctx context.Context, groups ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.validate(groups, s.a.cfg.hasGroup, ErrUnknownGroup)
	if err != nil {
		return err
	}
	if err := s.loadGroups(ctx); err != nil {
		return err
	}
	return addMissing(ctx, s.a.repo.Groups(), s.userID, s.groups, names)
}

func (s *Subject) RemoveGroup(ctx context.Context, groups ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.validate(groups, s.a.cfg.hasGroup, ErrUnknownGroup)
	if err != nil {
		return err
	}
	if err := s.loadGroups(ctx); err != nil {
		return err
	}
	return removePresent(ctx, s.a.repo.Groups(), s.userID, s.groups, names)
}

// SyncGroups makes the user's groups exactly groups.
func (s *Subject) SyncGroups(ctx context.Context, groups ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.validate(groups, s.a.cfg.hasGroup, ErrUnknownGroup)
	if err != nil {
		return err
	}
	if err := s.loadGroups(ctx); err != nil {
		return err
	}
	return syncSet(ctx, s.a.repo.Groups(), s.userID, s.groups, names)
}

func (s *Subject) AddPermission(ctx context.Context, perms ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.validate(perms, s.a.cfg.hasPermission, ErrUnknownPermission)
	if err != nil {
		return err
	}
	if err := s.loadPermissions(ctx); err != nil {
		return err
	}
	return addMissing(ctx, s.a.repo.Permissions(), s.userID, s.perms, names)
}

func (s *Subject) RemovePermission(ctx context.Context, perms ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.validate(perms, s.a.cfg.hasPermission, ErrUnknownPermission)
	if err != nil {
		return err
	}
	if err := s.loadPermissions(ctx); err != nil {
		return err
	}
	return removePresent(ctx, s.a.repo.Permissions(), s.userID, s.perms, names)
}

func (s *Subject) SyncPermissions(ctx context.Context, perms ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.validate(perms, s.a.cfg.hasPermission, ErrUnknownPermission)
	if err != nil {
		return err
	}
	if err := s.loadPermissions(ctx); err != nil {
		return err
	}
	return syncSet(ctx, s.a.repo.Permissions(), s.userID, s.perms, names)
}

func (s *Subject) validate(names []string, known func(string) bool, unknown error) ([]string, error) {
	out := normalizeAll(names)
	for _, n := range out {
		if !known(n) {
			return nil, fmt.Errorf("%w: %q", unknown, n)
		}
	}
	return out, nil
}

// addMissing writes only the names not already in current.
func addMissing(ctx context.Context, m store.Memberships, userID string, current map[string]struct{}, names []string) error {
	var missing []string
	for _, n := range names {
		if _, ok := current[n]; !ok && !slices.Contains(missing, n) {
			missing = append(missing, n)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if err := m.Add(ctx, userID, missing...); err != nil {
		return err
	}
	for _, n := range missing {
		current[n] = struct{}{}
	}
	return nil
}

// removePresent deletes only the names currently held.
func removePresent(ctx context.Context, m store.Memberships, userID string, current map[string]struct{}, names []string) error {
	var present []string
	for _, n := range names {
		if _, ok := current[n]; ok && !slices.Contains(present, n) {
			present = append(present, n)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := m.Remove(ctx, userID, present...); err != nil {
		return err
	}
	for _, n := range present {
		delete(current, n)
	}
	return nil
}

func syncSet(ctx context.Context, m store.Memberships, userID string, current map[string]struct{}, want []string) error {
	wantSet := toSet(want)
	var stale []string
	for n := range current {
		if _, ok := wantSet[n]; !ok {
			stale = append(stale, n)
		}
	}
	sort.Strings(stale)
	if err := removePresent(ctx, m, userID, current, stale); err != nil {
		return err
	}
	return addMissing(ctx, m, userID, current, want)
}

func normalizeAll(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, normalizeName(n))
	}
	return out
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[normalizeName(n)] = struct{}{}
	}
	return set
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
