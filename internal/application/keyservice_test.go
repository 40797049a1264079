package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/relayhub/internal/domain/model"
	"github.com/ericfisherdev/relayhub/internal/domain/port/driven"
)

func newKeyService(store *memKeyStore, hub *stubHub) *KeyService {
	return NewKeyService(store, hub, discardLogger())
}

func TestKeyService_CreateRegularProducesPair(t *testing.T) {
	store := newMemKeyStore()
	svc := newKeyService(store, &stubHub{})
	admin := store.seed(model.KeyKindAdmin, "", true)

	result, err := svc.Create(context.Background(), adminView(admin.ID), model.KeyKindRegular, "staging", "", "", "")
	require.NoError(t, err)

	require.NotNil(t, result.Paired)
	assert.Equal(t, model.KeyKindRegular, result.Created.Key.Kind)
	assert.Equal(t, model.KeyKindServer, result.Paired.Key.Kind)
	assert.Equal(t, result.Created.Key.ID, result.Paired.Key.RegularKeyID)
	assert.NotEmpty(t, result.Created.RawKey)
	assert.NotEmpty(t, result.Paired.RawKey)
}

func TestKeyService_CreateValidation(t *testing.T) {
	store := newMemKeyStore()
	svc := newKeyService(store, &stubHub{})
	admin := store.seed(model.KeyKindAdmin, "", true)

	_, err := svc.Create(context.Background(), adminView(admin.ID), model.KeyKindAdmin, "", "", "", "")
	assert.ErrorIs(t, err, driven.ErrValidation)

	_, err = svc.Create(context.Background(), adminView(admin.ID), model.KeyKind("root"), "x", "", "", "")
	assert.ErrorIs(t, err, driven.ErrValidation)
}

func TestKeyService_CreateServerKeyRequiresExistingOwner(t *testing.T) {
	store := newMemKeyStore()
	svc := newKeyService(store, &stubHub{})
	admin := store.seed(model.KeyKindAdmin, "", true)

	_, err := svc.Create(context.Background(), adminView(admin.ID), model.KeyKindServer, "orphan", "", "", "reg-missing")
	assert.ErrorIs(t, err, driven.ErrNotFound)

	regular := store.seed(model.KeyKindRegular, "", true)
	result, err := svc.Create(context.Background(), adminView(admin.ID), model.KeyKindServer, "linked", "", "", regular.ID)
	require.NoError(t, err)
	assert.Nil(t, result.Paired)
	assert.Equal(t, regular.ID, result.Created.Key.RegularKeyID)
}

func TestKeyService_CreateForbiddenForNonAdmin(t *testing.T) {
	store := newMemKeyStore()
	svc := newKeyService(store, &stubHub{})
	regular := store.seed(model.KeyKindRegular, "", true)

	_, err := svc.Create(context.Background(), regularView(regular.ID), model.KeyKindRegular, "x", "", "", "")
	assert.ErrorIs(t, err, driven.ErrUnauthorized)

	_, err = svc.Create(context.Background(), nil, model.KeyKindRegular, "x", "", "", "")
	assert.ErrorIs(t, err, driven.ErrUnauthenticated)
}

func TestKeyService_ListServerKeysScoping(t *testing.T) {
	store := newMemKeyStore()
	svc := newKeyService(store, &stubHub{})
	admin := store.seed(model.KeyKindAdmin, "", true)
	regular := store.seed(model.KeyKindRegular, "", true)
	owned := store.seed(model.KeyKindServer, regular.ID, true)
	foreign := store.seed(model.KeyKindServer, "reg-other", true)

	all, err := svc.ListServerKeys(context.Background(), adminView(admin.ID))
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := svc.ListServerKeys(context.Background(), regularView(regular.ID))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, owned.ID, mine[0].ID)

	_, err = svc.ListServerKeys(context.Background(), serverView(foreign.ID, "reg-other"))
	assert.ErrorIs(t, err, driven.ErrUnauthorized)
}

func TestKeyService_SetActiveLastAdminGuard(t *testing.T) {
	store := newMemKeyStore()
	svc := newKeyService(store, &stubHub{})
	only := store.seed(model.KeyKindAdmin, "", true)

	// A panel session is an admin actor with a synthetic ID, so the
	// self-modification guard does not apply.
	err := svc.SetActive(context.Background(), adminView("panel-session"), only.ID, false)
	assert.ErrorIs(t, err, driven.ErrLastAdmin)

	second := store.seed(model.KeyKindAdmin, "", true)
	err = svc.SetActive(context.Background(), adminView("panel-session"), only.ID, false)
	require.NoError(t, err)

	got, _ := store.GetByID(context.Background(), only.ID)
	assert.False(t, got.IsActive)

	// Deactivating the now-sole admin is rejected again.
	err = svc.SetActive(context.Background(), adminView("panel-session"), second.ID, false)
	assert.ErrorIs(t, err, driven.ErrLastAdmin)
}

func TestKeyService_SetActiveSelfGuard(t *testing.T) {
	store := newMemKeyStore()
	svc := newKeyService(store, &stubHub{})
	first := store.seed(model.KeyKindAdmin, "", true)
	store.seed(model.KeyKindAdmin, "", true)

	err := svc.SetActive(context.Background(), adminView(first.ID), first.ID, false)
	assert.ErrorIs(t, err, driven.ErrSelfModification)

	// Reactivation of one's own key is allowed.
	require.NoError(t, svc.SetActive(context.Background(), adminView(first.ID), first.ID, true))
}

func TestKeyService_SetActiveNotFound(t *testing.T) {
	store := newMemKeyStore()
	svc := newKeyService(store, &stubHub{})
	admin := store.seed(model.KeyKindAdmin, "", true)

	err := svc.SetActive(context.Background(), adminView(admin.ID), "nope", false)
	assert.ErrorIs(t, err, driven.ErrNotFound)
}

func TestKeyService_DeleteOwnedServerKey(t *testing.T) {
	store := newMemKeyStore()
	svc := newKeyService(store, &stubHub{})
	regular := store.seed(model.KeyKindRegular, "", true)
	owned := store.seed(model.KeyKindServer, regular.ID, true)
	foreign := store.seed(model.KeyKindServer, "reg-other", true)

	require.NoError(t, svc.Delete(context.Background(), regularView(regular.ID), owned.ID))
	assert.Contains(t, store.deleted, owned.ID)

	err := svc.Delete(context.Background(), regularView(regular.ID), foreign.ID)
	assert.ErrorIs(t, err, driven.ErrUnauthorized)
}

func TestKeyService_Health(t *testing.T) {
	store := newMemKeyStore()
	hub := &stubHub{connections: 3}
	svc := newKeyService(store, hub)
	store.seed(model.KeyKindAdmin, "", true)
	store.seed(model.KeyKindRegular, "", true)
	store.seed(model.KeyKindServer, "key-02", true)
	store.seed(model.KeyKindServer, "key-02", false)

	snap, err := svc.Health(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, snap.KeysTotal)
	assert.Equal(t, 1, snap.AdminActive)
	assert.Equal(t, 1, snap.RegularActive)
	assert.Equal(t, 1, snap.ServerActive)
	assert.Equal(t, 3, snap.LiveConnections)
}
