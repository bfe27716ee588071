package impl

import (
	"strings"
	"testing"
	"time"

	"github.com/ragdock/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(docs []*models.Document, owners []*models.Owner) *registryServiceImpl {
	s := &registryServiceImpl{}

	snap := emptySnapshot()
	snap.builtAt = time.Now()
	for _, o := range owners {
		snap.owners[o.Slug] = o
		if o.CustomDomain != nil && *o.CustomDomain != "" {
			snap.ownersByDomain[strings.ToLower(*o.CustomDomain)] = o
		}
	}
	for _, d := range docs {
		snap.documents[d.Slug] = d
		if d.OwnerSlug != nil {
			snap.byOwner[*d.OwnerSlug] = append(snap.byOwner[*d.OwnerSlug], d)
		}
	}
	s.snapshot.Store(snap)
	return s
}

func TestRegistryLookups(t *testing.T) {
	acme := &models.Owner{Slug: "acme", Name: "Acme", CustomDomain: strPtr("Docs.Acme.Com")}
	docs := []*models.Document{
		{Slug: "handbook", OwnerSlug: strPtr("acme"), Active: true},
		{Slug: "faq", OwnerSlug: strPtr("acme"), Active: true},
		{Slug: "standalone", Active: true},
	}

	s := newTestRegistry(docs, []*models.Owner{acme})

	doc, ok := s.Document("handbook")
	require.True(t, ok)
	assert.Equal(t, "handbook", doc.Slug)

	_, ok = s.Document("missing")
	assert.False(t, ok)

	owner, ok := s.Owner("acme")
	require.True(t, ok)
	assert.Equal(t, "Acme", owner.Name)

	// Domain matching ignores case on both sides
	owner, ok = s.OwnerByDomain("docs.acme.com")
	require.True(t, ok)
	assert.Equal(t, "acme", owner.Slug)
	_, ok = s.OwnerByDomain("DOCS.ACME.COM")
	assert.True(t, ok)
	_, ok = s.OwnerByDomain("other.example.com")
	assert.False(t, ok)

	byOwner := s.DocumentsByOwner("acme")
	assert.Len(t, byOwner, 2)
	assert.Empty(t, s.DocumentsByOwner("globex"))
}

func TestBuildSnapshotHydratesDocumentOwners(t *testing.T) {
	owners := []models.Owner{
		{Slug: "acme", Name: "Acme", DefaultChunkLimit: intPtr(30)},
	}
	documents := []models.Document{
		{Slug: "handbook", OwnerSlug: strPtr("acme"), Active: true},
		{Slug: "standalone", Active: true},
	}

	snap := buildSnapshot(owners, documents)

	doc := snap.documents["handbook"]
	require.NotNil(t, doc.Owner)
	assert.Equal(t, "acme", doc.Owner.Slug)
	assert.Nil(t, snap.documents["standalone"].Owner)

	// The owner default must flow through to chunk-limit resolution
	svc := &retrievalServiceImpl{systemChunkLimit: 50}
	assert.Equal(t, 30, svc.resolveChunkLimit([]*models.Document{doc}))
}

func TestRegistryDocumentCount(t *testing.T) {
	s := newTestRegistry([]*models.Document{
		{Slug: "a", Active: true},
		{Slug: "b", Active: true},
	}, nil)
	assert.Equal(t, 2, s.DocumentCount())

	empty := &registryServiceImpl{}
	empty.snapshot.Store(emptySnapshot())
	assert.Equal(t, 0, empty.DocumentCount())
}

func TestRegistryEmptyBeforeFirstRefresh(t *testing.T) {
	s := &registryServiceImpl{}
	s.snapshot.Store(emptySnapshot())

	_, ok := s.Document("anything")
	assert.False(t, ok)
	assert.True(t, s.LastRefreshed().IsZero())
	assert.Equal(t, 0, s.FailureCount())
}

func TestRegistrySubscribersRunOnNotify(t *testing.T) {
	s := &registryServiceImpl{}
	s.snapshot.Store(emptySnapshot())

	calls := 0
	s.Subscribe(func() { calls++ })
	s.Subscribe(func() { calls += 10 })

	s.notifySubscribers()
	assert.Equal(t, 11, calls)

	s.notifySubscribers()
	assert.Equal(t, 22, calls)
}
