package auth

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestReconciler(users *memUsers, policy PolicyConfig, role string) *Reconciler {
	return newReconciler(users, fakeAuthn{}, fakeSystem, NewAccessPolicy(policy), role, zap.NewNop(), noEnrich)
}

func TestReconcileCreatesAccount(t *testing.T) {
	ctx := context.Background()
	users := newMemUsers()
	sess := newMemSession()
	r := newTestReconciler(users, PolicyConfig{DomainWhitelist: []string{"x.com"}}, "")

	acct, err := r.Reconcile(ctx, sess, Identity{Email: "a@x.com", EmailVerified: true, DisplayName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "id-a@x.com", acct.ID)

	require.Len(t, users.created, 1)
	created := users.created[0]
	assert.Equal(t, "a@x.com", created.Email)
	assert.Equal(t, "Ada", created.Name)
	assert.Equal(t, DefaultRole, created.Role)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), created.Password)

	loggedIn, _, _ := sess.Get(ctx, sessionUserKey)
	assert.Equal(t, acct.ID, loggedIn)
}

func TestReconcileUsesConfiguredRole(t *testing.T) {
	users := newMemUsers()
	r := newTestReconciler(users, PolicyConfig{AllowEveryone: true}, "editor")

	_, err := r.Reconcile(context.Background(), newMemSession(), Identity{Email: "a@x.com", EmailVerified: true})
	require.NoError(t, err)
	require.Len(t, users.created, 1)
	assert.Equal(t, "editor", users.created[0].Role)
}

func TestReconcilePasswordsAreUnique(t *testing.T) {
	users := newMemUsers()
	r := newTestReconciler(users, PolicyConfig{AllowEveryone: true}, "")
	ctx := context.Background()

	for _, email := range []string{"a@x.com", "b@x.com"} {
		_, err := r.Reconcile(ctx, newMemSession(), Identity{Email: email, EmailVerified: true})
		require.NoError(t, err)
	}
	require.Len(t, users.created, 2)
	assert.NotEqual(t, users.created[0].Password, users.created[1].Password)
}

func TestReconcileExistingAccount(t *testing.T) {
	users := newMemUsers(Account{ID: "7", Email: "a@x.com", Role: "editor"})
	sess := newMemSession()
	r := newTestReconciler(users, PolicyConfig{OnlyExistingUsers: true}, "")

	acct, err := r.Reconcile(context.Background(), sess, Identity{Email: "a@x.com", EmailVerified: true})
	require.NoError(t, err)
	assert.Equal(t, "7", acct.ID)
	assert.Empty(t, users.created)
}

func TestReconcilePolicyRejection(t *testing.T) {
	users := newMemUsers()
	sess := newMemSession()
	r := newTestReconciler(users, PolicyConfig{OnlyExistingUsers: true}, "")

	_, err := r.Reconcile(context.Background(), sess, Identity{Email: "a@x.com", EmailVerified: true})
	require.ErrorIs(t, err, ErrUnknownUser)
	assert.Empty(t, users.created)
	assert.False(t, sess.has(sessionUserKey))
}

func TestReconcileRequiresSystemContext(t *testing.T) {
	users := newMemUsers()
	plain := SystemFunc(func(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) })
	r := newReconciler(users, fakeAuthn{}, plain, NewAccessPolicy(PolicyConfig{AllowEveryone: true}), "", zap.NewNop(), noEnrich)

	_, err := r.Reconcile(context.Background(), newMemSession(), Identity{Email: "a@x.com", EmailVerified: true})
	require.ErrorIs(t, err, ErrAccountUnavailable)
	assert.ErrorIs(t, err, errNotSystem)
}

func TestReconcileCreationRace(t *testing.T) {
	users := newMemUsers()
	users.beforeCreate = func(acct NewAccount) error {
		// Another request creates the same account first.
		users.mu.Lock()
		users.accounts[acct.Email] = &Account{ID: "winner", Email: acct.Email, Role: "admin"}
		users.mu.Unlock()
		return nil
	}
	sess := newMemSession()
	r := newTestReconciler(users, PolicyConfig{AllowEveryone: true}, "")

	acct, err := r.Reconcile(context.Background(), sess, Identity{Email: "a@x.com", EmailVerified: true})
	require.NoError(t, err)
	assert.Equal(t, "winner", acct.ID)

	loggedIn, _, _ := sess.Get(context.Background(), sessionUserKey)
	assert.Equal(t, "winner", loggedIn)
}

func TestReconcileStoreFailure(t *testing.T) {
	users := newMemUsers()
	users.findErr = errors.New("connection refused")
	r := newTestReconciler(users, PolicyConfig{AllowEveryone: true}, "")

	_, err := r.Reconcile(context.Background(), newMemSession(), Identity{Email: "a@x.com", EmailVerified: true})
	require.ErrorIs(t, err, ErrAccountUnavailable)
	assert.False(t, KindOf(err).UserCaused())
}
