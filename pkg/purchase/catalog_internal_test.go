package purchase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeIdentifiers(t *testing.T) {
	got := normalizeIdentifiers([]string{" pro ", "", "coins", "pro", "  "})
	assert.Equal(t, []string{"pro", "coins"}, got)
	assert.Empty(t, normalizeIdentifiers(nil))
}

func TestMatchRequested(t *testing.T) {
	pro := ProductDescriptor{Identifier: "pro", Kind: KindAutoRenewable}
	coins := ProductDescriptor{Identifier: "coins", Kind: KindConsumable}

	t.Run("reorders to request order", func(t *testing.T) {
		got, err := matchRequested([]string{"pro", "coins"}, []ProductDescriptor{coins, pro})
		require.NoError(t, err)
		assert.Equal(t, []ProductDescriptor{pro, coins}, got)
	})

	t.Run("missing identifier", func(t *testing.T) {
		_, err := matchRequested([]string{"pro", "coins"}, []ProductDescriptor{pro})
		assert.ErrorIs(t, err, ErrUnknownProducts)
		assert.Contains(t, err.Error(), "coins")
	})

	t.Run("unexpected identifier", func(t *testing.T) {
		_, err := matchRequested([]string{"pro"}, []ProductDescriptor{pro, coins})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected identifier")
	})

	t.Run("empty identifier", func(t *testing.T) {
		_, err := matchRequested([]string{"pro"}, []ProductDescriptor{{}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty identifier")
	})

	t.Run("duplicate identifier", func(t *testing.T) {
		_, err := matchRequested([]string{"pro"}, []ProductDescriptor{pro, pro})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate identifier")
	})
}

func TestOutcomeResult(t *testing.T) {
	assert.Equal(t, Result{Code: ResultSuccess, Payload: "cmVjZWlwdA=="}, OutcomeResult(Success{Receipt: []byte("receipt")}))
	assert.Equal(t, Result{Code: ResultPending, Payload: "https://pay"}, OutcomeResult(PendingAuthorization{ApprovalURL: "https://pay"}))
	assert.Equal(t, Result{Code: ResultCancelled}, OutcomeResult(UserCancelled{}))
	assert.Equal(t, Result{Code: ResultNoSuchProduct, Message: "no such product: x"}, OutcomeResult(NoSuchProduct{Identifier: "x"}))
	assert.Equal(t, Result{Code: ResultFailure, Message: "failed verification"}, OutcomeResult(Failure{Message: "failed verification"}))
	assert.Equal(t, Result{Code: ResultSuccess}, ErrorResult(nil))
}
