package bridge_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/keyfort/provider-bridge/internal/bridge"
	"github.com/keyfort/provider-bridge/internal/broker"
	"github.com/keyfort/provider-bridge/internal/eip1193"
	"github.com/keyfort/provider-bridge/internal/mocks"
	"github.com/keyfort/provider-bridge/internal/permissions"
)

const (
	testOrigin  = "https://app.test"
	testAddress = "0x0000000000000000000000000000000000000000"
	testChainID = "1"
)

var sendTransactionParams = json.RawMessage(fmt.Sprintf(
	`[{"from":%q,"to":"0x1111111111111111111111111111111111111111","gasPrice":"0xf4240","data":"test"}]`,
	testAddress,
))

func enablingPermission() permissions.PermissionRequest {
	return permissions.PermissionRequest{
		Key:            permissions.PermissionKey(testOrigin, testAddress, testChainID),
		Origin:         testOrigin,
		FaviconURL:     "https://app.test/favicon.png",
		Title:          "Test",
		State:          permissions.StateAllow,
		AccountAddress: testAddress,
		ChainID:        testChainID,
	}
}

func newService(t *testing.T, prompter broker.Prompter) (*bridge.Service, *mocks.MockBackend, *permissions.MemoryStore) {
	t.Helper()

	store := permissions.NewMemoryStore()
	signer := mocks.NewMockBackendForTest(t)
	if prompter == nil {
		prompter = broker.PrompterFunc(func(context.Context, permissions.PermissionRequest) (broker.Decision, error) {
			return broker.DecisionDismissed, nil
		})
	}
	brk := broker.New(store, prompter, zap.NewNop())
	return bridge.NewService(store, brk, signer, zap.NewNop()), signer, store
}

func TestEthAccounts_ReturnsAccountOwnedByClient(t *testing.T) {
	svc, _, _ := newService(t, nil)

	result, rpcErr := svc.RouteContentScriptRPCRequest(
		context.Background(), enablingPermission(), bridge.MethodEthAccounts, nil, testOrigin)

	require.Nil(t, rpcErr)
	assert.Equal(t, []string{testAddress}, result)
}

func TestEthAccounts_DeniedOriginGetsEmptyResultNotError(t *testing.T) {
	svc, _, _ := newService(t, nil)

	perm := enablingPermission()
	perm.State = permissions.StateDeny

	result, rpcErr := svc.RouteContentScriptRPCRequest(
		context.Background(), perm, bridge.MethodEthAccounts, nil, testOrigin)

	require.Nil(t, rpcErr)
	assert.Equal(t, []string{}, result)
}

func TestEthSendTransaction_CallsSignerWithPermission(t *testing.T) {
	svc, signer, _ := newService(t, nil)

	signer.EXPECT().
		RouteSafeRequest(gomock.Any(), bridge.MethodEthSendTransaction, gomock.Any(), testOrigin).
		Return(json.RawMessage(`"0xtxhash"`), nil).
		Times(1)

	result, rpcErr := svc.RouteContentScriptRPCRequest(
		context.Background(), enablingPermission(), bridge.MethodEthSendTransaction, sendTransactionParams, testOrigin)

	require.Nil(t, rpcErr)
	assert.Equal(t, json.RawMessage(`"0xtxhash"`), result)
}

func TestEthSendTransaction_DeniedPermissionNeverReachesSigner(t *testing.T) {
	svc, signer, _ := newService(t, nil)

	signer.EXPECT().
		RouteSafeRequest(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Times(0)

	perm := enablingPermission()
	perm.State = permissions.StateDeny

	result, rpcErr := svc.RouteContentScriptRPCRequest(
		context.Background(), perm, bridge.MethodEthSendTransaction, sendTransactionParams, testOrigin)

	assert.Nil(t, result)
	assert.Same(t, eip1193.ErrUnauthorized, rpcErr)
}

func TestEthSendTransaction_PermissionForOtherOriginDoesNotAuthorize(t *testing.T) {
	svc, signer, _ := newService(t, nil)

	signer.EXPECT().
		RouteSafeRequest(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Times(0)

	_, rpcErr := svc.RouteContentScriptRPCRequest(
		context.Background(), enablingPermission(), bridge.MethodEthSendTransaction, sendTransactionParams, "https://evil.test")

	assert.Same(t, eip1193.ErrUnauthorized, rpcErr)
}

func TestProviderRPCErrorPassesThroughVerbatim(t *testing.T) {
	svc, signer, _ := newService(t, nil)

	signer.EXPECT().
		RouteSafeRequest(gomock.Any(), bridge.MethodEthSendTransaction, gomock.Any(), testOrigin).
		Return(nil, eip1193.ErrDisconnected).
		Times(1)

	_, rpcErr := svc.RouteContentScriptRPCRequest(
		context.Background(), enablingPermission(), bridge.MethodEthSendTransaction, sendTransactionParams, testOrigin)

	assert.Same(t, eip1193.ErrDisconnected, rpcErr)
}

type bodyCarrierError struct {
	body []byte
}

func (e *bodyCarrierError) Error() string        { return "signer responded with status 502" }
func (e *bodyCarrierError) ResponseBody() []byte { return e.body }

func TestCustomErrorMessageInBody(t *testing.T) {
	svc, signer, _ := newService(t, nil)

	signer.EXPECT().
		RouteSafeRequest(gomock.Any(), bridge.MethodEthSendTransaction, gomock.Any(), testOrigin).
		Return(nil, &bodyCarrierError{body: []byte(`{"error":{"message":"Custom error"}}`)}).
		Times(1)

	_, rpcErr := svc.RouteContentScriptRPCRequest(
		context.Background(), enablingPermission(), bridge.MethodEthSendTransaction, sendTransactionParams, testOrigin)

	assert.Equal(t, &eip1193.Error{Code: 4001, Message: "Custom error"}, rpcErr)
}

func TestCustomErrorMessageNestedInWrapChain(t *testing.T) {
	svc, signer, _ := newService(t, nil)

	nested := fmt.Errorf("routing signer call: %w",
		&bodyCarrierError{body: []byte(`{"error":{"message":"Custom error"}}`)})
	signer.EXPECT().
		RouteSafeRequest(gomock.Any(), bridge.MethodEthSendTransaction, gomock.Any(), testOrigin).
		Return(nil, nested).
		Times(1)

	_, rpcErr := svc.RouteContentScriptRPCRequest(
		context.Background(), enablingPermission(), bridge.MethodEthSendTransaction, sendTransactionParams, testOrigin)

	assert.Equal(t, &eip1193.Error{Code: 4001, Message: "Custom error"}, rpcErr)
}

func TestUnknownMethodIsRejectedLocally(t *testing.T) {
	svc, signer, _ := newService(t, nil)

	signer.EXPECT().
		RouteSafeRequest(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Times(0)

	_, rpcErr := svc.RouteContentScriptRPCRequest(
		context.Background(), enablingPermission(), "wallet_watchAsset", nil, testOrigin)

	assert.Same(t, eip1193.ErrUnsupportedMethod, rpcErr)
}

func TestAuthorizedCallsAreNotCachedAcrossCalls(t *testing.T) {
	svc, signer, _ := newService(t, nil)

	signer.EXPECT().
		RouteSafeRequest(gomock.Any(), bridge.MethodEthSendTransaction, gomock.Any(), testOrigin).
		Return(json.RawMessage(`"0xtxhash"`), nil).
		Times(2)

	for i := 0; i < 2; i++ {
		_, rpcErr := svc.RouteContentScriptRPCRequest(
			context.Background(), enablingPermission(), bridge.MethodEthSendTransaction, sendTransactionParams, testOrigin)
		require.Nil(t, rpcErr)
	}
}

func TestEthChainIDAndNetVersion(t *testing.T) {
	svc, _, _ := newService(t, nil)

	result, rpcErr := svc.RouteContentScriptRPCRequest(
		context.Background(), enablingPermission(), bridge.MethodEthChainID, nil, testOrigin)
	require.Nil(t, rpcErr)
	assert.Equal(t, "0x1", result)

	result, rpcErr = svc.RouteContentScriptRPCRequest(
		context.Background(), enablingPermission(), bridge.MethodNetVersion, nil, testOrigin)
	require.Nil(t, rpcErr)
	assert.Equal(t, "1", result)
}

func TestEthRequestAccounts_AllowGrantsAndReturnsAccount(t *testing.T) {
	svc, _, store := newService(t, broker.PrompterFunc(
		func(context.Context, permissions.PermissionRequest) (broker.Decision, error) {
			return broker.DecisionAllow, nil
		}))

	perm := enablingPermission()
	perm.State = permissions.StateRequest

	result, rpcErr := svc.RouteContentScriptRPCRequest(
		context.Background(), perm, bridge.MethodEthRequestAccounts, nil, testOrigin)

	require.Nil(t, rpcErr)
	assert.Equal(t, []string{testAddress}, result)

	stored, err := store.Get(context.Background(), perm.Key)
	require.NoError(t, err)
	assert.Equal(t, permissions.StateAllow, stored.State)
}

func TestEthRequestAccounts_DenyReturnsUnauthorized(t *testing.T) {
	svc, _, _ := newService(t, broker.PrompterFunc(
		func(context.Context, permissions.PermissionRequest) (broker.Decision, error) {
			return broker.DecisionDeny, nil
		}))

	perm := enablingPermission()
	perm.State = permissions.StateRequest

	result, rpcErr := svc.RouteContentScriptRPCRequest(
		context.Background(), perm, bridge.MethodEthRequestAccounts, nil, testOrigin)

	assert.Nil(t, result)
	assert.Same(t, eip1193.ErrUnauthorized, rpcErr)
}

func TestRoute_NoStoredRecordIsUnauthorized(t *testing.T) {
	svc, signer, _ := newService(t, nil)

	signer.EXPECT().
		RouteSafeRequest(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Times(0)

	_, rpcErr := svc.Route(context.Background(),
		bridge.MethodEthSendTransaction, sendTransactionParams, testOrigin, testAddress, testChainID)

	assert.Same(t, eip1193.ErrUnauthorized, rpcErr)
}

func TestRoute_EndToEnd(t *testing.T) {
	svc, signer, store := newService(t, nil)

	// Persisted allow: eth_accounts exposes exactly the granted account.
	require.NoError(t, store.Put(context.Background(), enablingPermission()))

	result, rpcErr := svc.Route(context.Background(),
		bridge.MethodEthAccounts, nil, testOrigin, testAddress, testChainID)
	require.Nil(t, rpcErr)
	assert.Equal(t, []string{"0x0000000000000000000000000000000000000000"}, result)

	// Flipped to deny: transaction submission is unauthorized and the
	// signer is never called.
	denied := enablingPermission()
	denied.State = permissions.StateDeny
	require.NoError(t, store.Put(context.Background(), denied))

	signer.EXPECT().
		RouteSafeRequest(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Times(0)

	_, rpcErr = svc.Route(context.Background(),
		bridge.MethodEthSendTransaction, sendTransactionParams, testOrigin, testAddress, testChainID)
	assert.Same(t, eip1193.ErrUnauthorized, rpcErr)
}

func TestConcurrentFirstTimeOriginsGetDistinctRecords(t *testing.T) {
	var mu sync.Mutex
	var active, maxActive int
	prompter := broker.PrompterFunc(func(ctx context.Context, _ permissions.PermissionRequest) (broker.Decision, error) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return broker.DecisionAllow, nil
	})
	svc, _, store := newService(t, prompter)

	origins := []string{"https://app.test", "https://other.test"}
	var wg sync.WaitGroup
	for _, origin := range origins {
		wg.Add(1)
		go func(origin string) {
			defer wg.Done()

			perm := enablingPermission()
			perm.Origin = origin
			perm.Key = permissions.PermissionKey(origin, testAddress, testChainID)
			perm.State = permissions.StateRequest

			result, rpcErr := svc.RouteContentScriptRPCRequest(
				context.Background(), perm, bridge.MethodEthRequestAccounts, nil, origin)
			assert.Nil(t, rpcErr)
			assert.Equal(t, []string{testAddress}, result)
		}(origin)
	}
	wg.Wait()

	for _, origin := range origins {
		rec, err := store.Get(context.Background(), permissions.PermissionKey(origin, testAddress, testChainID))
		require.NoError(t, err)
		assert.Equal(t, origin, rec.Origin)
		assert.Equal(t, permissions.StateAllow, rec.State)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxActive, "only one prompt window may be active at any instant")
}
