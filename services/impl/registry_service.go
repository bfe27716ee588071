package impl

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ragdock/models"
	"github.com/ragdock/services"
	"gorm.io/gorm"
)

// registrySnapshot is an immutable view of the active catalog. Readers
// grab the current pointer and never see a partially built index.
type registrySnapshot struct {
	documents     map[string]*models.Document
	owners        map[string]*models.Owner
	ownersByDomain map[string]*models.Owner
	byOwner       map[string][]*models.Document
	builtAt       time.Time
}

func emptySnapshot() *registrySnapshot {
	return &registrySnapshot{
		documents:      map[string]*models.Document{},
		owners:         map[string]*models.Owner{},
		ownersByDomain: map[string]*models.Owner{},
		byOwner:        map[string][]*models.Document{},
	}
}

// buildSnapshot indexes the loaded rows. Documents are hydrated with
// their owner pointer here so downstream consumers (chunk limits, model
// forcing) see owner defaults without extra lookups.
func buildSnapshot(owners []models.Owner, documents []models.Document) *registrySnapshot {
	snap := emptySnapshot()
	snap.builtAt = time.Now()

	for i := range owners {
		o := &owners[i]
		snap.owners[o.Slug] = o
		if o.CustomDomain != nil && *o.CustomDomain != "" {
			snap.ownersByDomain[strings.ToLower(*o.CustomDomain)] = o
		}
	}

	for i := range documents {
		d := &documents[i]
		if d.OwnerSlug != nil {
			d.Owner = snap.owners[*d.OwnerSlug]
			snap.byOwner[*d.OwnerSlug] = append(snap.byOwner[*d.OwnerSlug], d)
		}
		snap.documents[d.Slug] = d
	}

	return snap
}

type registryServiceImpl struct {
	db            *gorm.DB
	snapshot      atomic.Pointer[registrySnapshot]
	refreshPeriod time.Duration

	refreshMu sync.Mutex // serializes rebuilds; lookups never take it

	subMu       sync.Mutex
	subscribers []func()

	failureCount  atomic.Int64
	lastRefreshed atomic.Pointer[time.Time]
}

func NewRegistryService(db *gorm.DB, refreshPeriod time.Duration) services.RegistryService {
	s := &registryServiceImpl{
		db:            db,
		refreshPeriod: refreshPeriod,
	}
	s.snapshot.Store(emptySnapshot())
	return s
}

func (s *registryServiceImpl) Start(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil {
		log.Printf("[REGISTRY] Initial refresh failed: %v", err)
	}

	go func() {
		ticker := time.NewTicker(s.refreshPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Refresh(ctx); err != nil {
					log.Printf("[REGISTRY] Periodic refresh failed: %v", err)
				}
			}
		}
	}()
}

func (s *registryServiceImpl) Refresh(ctx context.Context) error {
	// One rebuild at a time; a caller arriving mid-rebuild waits and
	// then rebuilds again, which is harmless and keeps semantics simple
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	var owners []models.Owner
	if err := s.db.WithContext(ctx).Find(&owners).Error; err != nil {
		s.failureCount.Add(1)
		return fmt.Errorf("failed to load owners: %w", err)
	}

	var documents []models.Document
	if err := s.db.WithContext(ctx).Where("active = ?", true).Find(&documents).Error; err != nil {
		s.failureCount.Add(1)
		return fmt.Errorf("failed to load documents: %w", err)
	}

	snap := buildSnapshot(owners, documents)

	s.snapshot.Store(snap)
	s.failureCount.Store(0)
	now := snap.builtAt
	s.lastRefreshed.Store(&now)

	log.Printf("[REGISTRY] Refreshed: %d documents, %d owners", len(documents), len(owners))

	s.notifySubscribers()
	return nil
}

func (s *registryServiceImpl) notifySubscribers() {
	s.subMu.Lock()
	subs := make([]func(), len(s.subscribers))
	copy(subs, s.subscribers)
	s.subMu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

func (s *registryServiceImpl) Subscribe(fn func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *registryServiceImpl) Document(slug string) (*models.Document, bool) {
	doc, ok := s.snapshot.Load().documents[slug]
	return doc, ok
}

func (s *registryServiceImpl) Owner(slug string) (*models.Owner, bool) {
	owner, ok := s.snapshot.Load().owners[slug]
	return owner, ok
}

func (s *registryServiceImpl) OwnerByDomain(domain string) (*models.Owner, bool) {
	owner, ok := s.snapshot.Load().ownersByDomain[strings.ToLower(domain)]
	return owner, ok
}

func (s *registryServiceImpl) DocumentsByOwner(ownerSlug string) []*models.Document {
	return s.snapshot.Load().byOwner[ownerSlug]
}

func (s *registryServiceImpl) DocumentCount() int {
	return len(s.snapshot.Load().documents)
}

func (s *registryServiceImpl) LastRefreshed() time.Time {
	if t := s.lastRefreshed.Load(); t != nil {
		return *t
	}
	return time.Time{}
}

func (s *registryServiceImpl) FailureCount() int {
	return int(s.failureCount.Load())
}
