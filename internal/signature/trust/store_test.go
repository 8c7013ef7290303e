package trust_test

import (
	"context"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/nfse-abrasf/internal/signature/trust"
)

func TestNewTrustStore(t *testing.T) {
	store := trust.NewTrustStore()
	require.NotNil(t, store.Roots())
	assert.Zero(t, store.Len())
	assert.False(t, store.IsSoftFail())

	soft := trust.NewTrustStore(trust.WithSoftFail(), trust.WithOCSPTimeout(5*time.Second))
	assert.True(t, soft.IsSoftFail())
}

func TestLoadTrustStore(t *testing.T) {
	ca1 := newTestCA(t, "AC Raiz Teste")
	ca2 := newTestCA(t, "AC Intermediaria Teste")

	dir := t.TempDir()
	path := filepath.Join(dir, "roots.pem")
	require.NoError(t, os.WriteFile(path, append(certToPEM(ca1.cert), certToPEM(ca2.cert)...), 0o600))

	t.Run("reads every certificate", func(t *testing.T) {
		store, err := trust.LoadTrustStore(path)
		require.NoError(t, err)
		assert.Equal(t, 2, store.Len())
		assert.Len(t, store.RootCerts(), 2)
	})

	t.Run("empty path gives empty store", func(t *testing.T) {
		store, err := trust.LoadTrustStore("")
		require.NoError(t, err)
		assert.Zero(t, store.Len())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := trust.LoadTrustStore(filepath.Join(dir, "absent.pem"))
		assert.Error(t, err)
	})

	t.Run("file without certificates", func(t *testing.T) {
		junk := filepath.Join(dir, "junk.pem")
		require.NoError(t, os.WriteFile(junk, []byte("not a certificate"), 0o600))
		_, err := trust.LoadTrustStore(junk)
		assert.Error(t, err)
	})
}

func TestTrustStore_VerifyChain(t *testing.T) {
	ca := newTestCA(t, "AC Raiz Teste")
	leaf := ca.issue(t, "PRESTADORA LTDA", 2, "")

	t.Run("trusted root", func(t *testing.T) {
		store := trust.NewTrustStore()
		store.AddCertificate(ca.cert)

		chain, err := store.VerifyChain(leaf, nil)
		require.NoError(t, err)
		assert.Len(t, chain, 2)
	})

	t.Run("untrusted root", func(t *testing.T) {
		store := trust.NewTrustStore()
		_, err := store.VerifyChain(leaf, []*x509.Certificate{ca.cert})
		assert.Error(t, err)
	})

	t.Run("outside validity window", func(t *testing.T) {
		store := trust.NewTrustStore(trust.WithClock(func() time.Time { return time.Now().Add(48 * time.Hour) }))
		store.AddCertificate(ca.cert)
		_, err := store.VerifyChain(leaf, nil)
		assert.Error(t, err)
	})

	t.Run("nil certificate", func(t *testing.T) {
		_, err := trust.NewTrustStore().VerifyChain(nil, nil)
		assert.Error(t, err)
	})
}

func TestTrustStore_CheckRevocation_NoResponder(t *testing.T) {
	ca := newTestCA(t, "AC Raiz Teste")
	leaf := ca.issue(t, "PRESTADORA LTDA", 2, "")

	notRevoked, err := trust.NewTrustStore().CheckRevocation(context.Background(), leaf, ca.cert)
	require.NoError(t, err)
	assert.True(t, notRevoked)

	_, err = trust.NewTrustStore().CheckRevocation(context.Background(), leaf, nil)
	assert.Error(t, err)
}
