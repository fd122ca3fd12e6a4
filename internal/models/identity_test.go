package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestIdentity_DisplayNameAndInitial(t *testing.T) {
	var none *Identity
	assert.Equal(t, PlaceholderName, none.DisplayName())
	assert.Equal(t, "U", none.Initial())

	incomplete := &Identity{ID: "u1", Email: "ana@uni.pe"}
	assert.False(t, incomplete.Complete())
	assert.Equal(t, "Usuario", incomplete.DisplayName())

	complete := &Identity{ID: "u1", Nickname: strPtr("ñandú_azul")}
	assert.True(t, complete.Complete())
	assert.Equal(t, "ñandú_azul", complete.DisplayName())
	assert.Equal(t, "Ñ", complete.Initial())
}

func TestIdentity_CloneIsDeep(t *testing.T) {
	orig := &Identity{ID: "u1", Nickname: strPtr("zorro")}
	c := orig.Clone()
	*c.Nickname = "gato"
	assert.Equal(t, "zorro", *orig.Nickname)
}

func TestIdentity_WithProfile(t *testing.T) {
	id := Identity{ID: "u1", Email: "ana@uni.pe", Role: "student"}
	merged := id.WithProfile(Profile{Nickname: strPtr("condor"), Status: "active"})

	assert.Equal(t, "condor", *merged.Nickname)
	assert.Equal(t, "student", merged.Role)
	assert.Equal(t, "active", merged.Status)
	assert.Nil(t, id.Nickname)
}

func TestProvisionalIdentity_CarriesCachedProfileForSameUser(t *testing.T) {
	cached := &Identity{ID: "u1", Email: "old@uni.pe", Nickname: strPtr("condor"), Role: "moderator", Status: "active"}

	same := ProvisionalIdentity(AuthUser{ID: "u1", Email: "ana@uni.pe"}, cached)
	assert.Equal(t, "ana@uni.pe", same.Email)
	assert.Equal(t, "condor", *same.Nickname)
	assert.Equal(t, "moderator", same.Role)

	other := ProvisionalIdentity(AuthUser{ID: "u2", Email: "luis@uni.pe"}, cached)
	assert.Nil(t, other.Nickname)
	assert.Empty(t, other.Role)
}

func TestSession_ExpiresWithin(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := &Session{AccessToken: "t", ExpiresAt: now.Add(90 * time.Second).Unix(), User: AuthUser{ID: "u1"}}

	assert.True(t, s.Valid())
	assert.False(t, s.ExpiresWithin(time.Minute, now))
	assert.True(t, s.ExpiresWithin(2*time.Minute, now))
	assert.False(t, (&Session{}).ExpiresWithin(time.Hour, now))
}
