package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kuri/domain/entities"
	"kuri/domain/interfaces"
	"kuri/domain/services"
	"kuri/domain/testhelpers"
	"kuri/infrastructure"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testAdmin      = "admin-1"
	testInitiator  = "deployer-1"
	testSubscriber = "oracle-1"
)

// newRouter wires a real service around the given pool with in-memory ports
func newRouter(t *testing.T, pool *entities.Pool, randomness interfaces.RandomnessPort) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	authz := infrastructure.NewStaticAuthorizer(
		[]string{testAdmin}, []string{testInitiator}, testSubscriber)
	funds := infrastructure.NewInMemoryFundsLedger()
	svc := services.NewPoolService(pool, authz, funds, randomness, nil, infrastructure.NewNoopEventPublisher())

	router := gin.New()
	NewHTTPHandler(svc).RegisterRoutes(router)
	return router
}

// newActivePool builds a pool whose schedule sits in the past, so the current
// wall clock lands inside interval 1 with both deposits and the raffle due
func newActivePool(t *testing.T, count int) *entities.Pool {
	t.Helper()
	cycleStart := time.Now().UTC().Add(-11 * 24 * time.Hour)
	created := cycleStart.Add(-2 * time.Hour)

	pool, err := entities.NewPool("creator-1", int64(count)*1000, count, entities.IntervalTypeWeekly, time.Hour, created)
	require.NoError(t, err)
	for i := 1; i <= count; i++ {
		identity := fmt.Sprintf("member-%d", i)
		_, err := pool.RequestMembership(identity, created)
		require.NoError(t, err)
		_, err = pool.AcceptRequest(identity, created)
		require.NoError(t, err)
	}
	launched, err := pool.Initialize(cycleStart)
	require.NoError(t, err)
	require.True(t, launched)
	return pool
}

func doJSON(t *testing.T, router *gin.Engine, method, path, principal string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if principal != "" {
		req.Header.Set("X-Principal", principal)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHTTPHandler_Membership(t *testing.T) {
	created := time.Now().UTC()
	pool, err := entities.NewPool("creator-1", 3000, 3, entities.IntervalTypeWeekly, 14*24*time.Hour, created)
	require.NoError(t, err)
	router := newRouter(t, pool, nil)

	t.Run("request is accepted", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/pool/membership", "", gin.H{"identity": "member-1"})
		assert.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("missing identity is a bad request", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/pool/membership", "", gin.H{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("accept requires the admin capability", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/pool/membership/member-1/accept", "", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("accept assigns an index", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/pool/membership/member-1/accept", testAdmin, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Identity string `json:"identity"`
			Index    int    `json:"index"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "member-1", resp.Identity)
		assert.Equal(t, 1, resp.Index)
	})

	t.Run("accepting an unknown applicant is not found", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/pool/membership/stranger/accept", testAdmin, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("reject declines an applicant", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/pool/membership", "", gin.H{"identity": "member-2"})
		require.Equal(t, http.StatusAccepted, w.Code)

		w = doJSON(t, router, http.MethodPost, "/pool/membership/member-2/reject", testAdmin, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("initialize before the deadline is too early", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/pool/initialize", testInitiator, nil)
		assert.Equal(t, http.StatusTooEarly, w.Code)
	})
}

func TestHTTPHandler_FlagUser(t *testing.T) {
	t.Run("during the first deposit window", func(t *testing.T) {
		// schedule anchored just past launch, so the current interval is 0
		cycleStart := time.Now().UTC().Add(-time.Hour)
		created := cycleStart.Add(-2 * time.Hour)
		pool, err := entities.NewPool("creator-1", 3000, 3, entities.IntervalTypeWeekly, time.Hour, created)
		require.NoError(t, err)
		for i := 1; i <= 3; i++ {
			identity := fmt.Sprintf("member-%d", i)
			_, err := pool.RequestMembership(identity, created)
			require.NoError(t, err)
			_, err = pool.AcceptRequest(identity, created)
			require.NoError(t, err)
		}
		launched, err := pool.Initialize(cycleStart)
		require.NoError(t, err)
		require.True(t, launched)
		router := newRouter(t, pool, nil)

		w := doJSON(t, router, http.MethodPost, "/pool/membership/member-2/flag", "", gin.H{"interval_index": 0})
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = doJSON(t, router, http.MethodPost, "/pool/membership/member-2/flag", testAdmin, gin.H{})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = doJSON(t, router, http.MethodPost, "/pool/membership/member-2/flag", testAdmin, gin.H{"interval_index": 0})
		assert.Equal(t, http.StatusOK, w.Code)

		w = doJSON(t, router, http.MethodGet, "/pool", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var view struct {
			ActiveIndices []int `json:"active_indices"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
		assert.NotContains(t, view.ActiveIndices, 2)
		assert.Len(t, view.ActiveIndices, 2)

		w = doJSON(t, router, http.MethodPost, "/pool/membership/member-2/flag", testAdmin, gin.H{"interval_index": 0})
		assert.Equal(t, http.StatusConflict, w.Code)

		w = doJSON(t, router, http.MethodPost, "/pool/membership/member-3/flag", testAdmin, gin.H{"interval_index": 5})
		assert.Equal(t, http.StatusTooEarly, w.Code)
	})

	t.Run("a paid interval cannot be flagged", func(t *testing.T) {
		pool := newActivePool(t, 2)
		router := newRouter(t, pool, nil)

		w := doJSON(t, router, http.MethodPost, "/pool/deposits", "", gin.H{"identity": "member-1"})
		require.Equal(t, http.StatusOK, w.Code)

		w = doJSON(t, router, http.MethodPost, "/pool/membership/member-1/flag", testAdmin, gin.H{"interval_index": 1})
		assert.Equal(t, http.StatusConflict, w.Code)

		w = doJSON(t, router, http.MethodPost, "/pool/membership/member-2/flag", testAdmin, gin.H{"interval_index": 1})
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestHTTPHandler_SettlementFlow(t *testing.T) {
	pool := newActivePool(t, 2)
	randomness := new(testhelpers.MockRandomnessPort)
	router := newRouter(t, pool, randomness)

	t.Run("snapshot reflects the active pool", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/pool", "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var view struct {
			State         string `json:"state"`
			AcceptedCount int    `json:"accepted_count"`
			DepositShare  int64  `json:"deposit_share"`
			ActiveIndices []int  `json:"active_indices"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
		assert.Equal(t, "active", view.State)
		assert.Equal(t, 2, view.AcceptedCount)
		assert.Equal(t, int64(1000), view.DepositShare)
		assert.Equal(t, []int{1, 2}, view.ActiveIndices)
	})

	t.Run("membership is closed once active", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/pool/membership", "", gin.H{"identity": "latecomer"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("deposits settle and duplicates conflict", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/pool/deposits", "", gin.H{"identity": "member-1"})
		assert.Equal(t, http.StatusOK, w.Code)
		w = doJSON(t, router, http.MethodPost, "/pool/deposits", "", gin.H{"identity": "member-1"})
		assert.Equal(t, http.StatusConflict, w.Code)
		w = doJSON(t, router, http.MethodPost, "/pool/deposits", "", gin.H{"identity": "member-2"})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("payment lookups", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/pool/payments/member-1/1", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Paid bool `json:"paid"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Paid)

		w = doJSON(t, router, http.MethodGet, "/pool/payments/member-1/2", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Paid)

		w = doJSON(t, router, http.MethodGet, "/pool/payments/stranger/1", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	token := uuid.New()

	t.Run("raffle request needs the admin capability", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/pool/raffles", "", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("raffle request returns the correlation token", func(t *testing.T) {
		randomness.On("Request", mock.Anything).Return(token, nil)

		w := doJSON(t, router, http.MethodPost, "/pool/raffles", testAdmin, nil)
		require.Equal(t, http.StatusAccepted, w.Code)

		var resp struct {
			CorrelationToken uuid.UUID `json:"correlation_token"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, token, resp.CorrelationToken)
	})

	t.Run("delivery needs the subscriber capability", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/pool/raffles/deliveries", testAdmin, gin.H{
			"correlation_token": token.String(),
			"values":            []uint64{0},
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("delivery for an unknown token is not found", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/pool/raffles/deliveries", testSubscriber, gin.H{
			"correlation_token": uuid.New().String(),
			"values":            []uint64{0},
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("delivery settles the raffle", func(t *testing.T) {
		// 0 mod 2 selects position 0, holding index 1
		w := doJSON(t, router, http.MethodPost, "/pool/raffles/deliveries", testSubscriber, gin.H{
			"correlation_token": token.String(),
			"values":            []uint64{0},
		})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("only the winner can claim", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/pool/claims", "", gin.H{
			"identity":       "member-2",
			"interval_index": 1,
		})
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = doJSON(t, router, http.MethodPost, "/pool/claims", "", gin.H{
			"identity":       "member-1",
			"interval_index": 1,
		})
		assert.Equal(t, http.StatusOK, w.Code)

		w = doJSON(t, router, http.MethodPost, "/pool/claims", "", gin.H{
			"identity":       "member-1",
			"interval_index": 1,
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("withdrawal before completion conflicts", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/pool/withdrawals", testAdmin, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("snapshot records the winner", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/pool", "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var view struct {
			ActiveIndices []int `json:"active_indices"`
			Winners       []struct {
				IntervalIndex int  `json:"interval_index"`
				WinnerIndex   int  `json:"winner_index"`
				Claimed       bool `json:"claimed"`
			} `json:"winners"`
			PendingRaffles int `json:"pending_raffles"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
		assert.Equal(t, []int{2}, view.ActiveIndices)
		require.Len(t, view.Winners, 1)
		assert.Equal(t, 1, view.Winners[0].IntervalIndex)
		assert.Equal(t, 1, view.Winners[0].WinnerIndex)
		assert.True(t, view.Winners[0].Claimed)
		assert.Zero(t, view.PendingRaffles)
	})
}
