package repository

import (
	"testing"

	"TG_group_guardian/internal/model"

	"github.com/stretchr/testify/assert"
)

func newCacheRepository() *Repository {
	return &Repository{
		inviteCache: make(map[int64]*model.Invitation),
		inviteGen:   make(map[int64]uint64),
	}
}

func TestInviteCacheReadThrough(t *testing.T) {
	r := newCacheRepository()
	inv := &model.Invitation{Code: "AB12CD34EF56", MemberID: 42, TotalInvited: 3}

	assert.Nil(t, r.cachedInvitation(42))

	r.cacheInvitation(inv, r.invitationGen(42))
	assert.Equal(t, inv, r.cachedInvitation(42))

	r.evictInvitation(42)
	assert.Nil(t, r.cachedInvitation(42))
}

func TestInviteCacheStaleStoreDropped(t *testing.T) {
	// a reader loads the row, a counter mutation commits and evicts, then
	// the reader tries to cache its now-stale copy
	r := newCacheRepository()
	stale := &model.Invitation{Code: "AB12CD34EF56", MemberID: 42, TotalInvited: 3}

	gen := r.invitationGen(42)
	r.evictInvitation(42)
	r.cacheInvitation(stale, gen)

	assert.Nil(t, r.cachedInvitation(42))

	fresh := &model.Invitation{Code: "AB12CD34EF56", MemberID: 42, TotalInvited: 4}
	r.cacheInvitation(fresh, r.invitationGen(42))
	assert.Equal(t, fresh, r.cachedInvitation(42))
}
