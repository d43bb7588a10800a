package adjudicator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena/internal/domain/fight"
)

func TestReview_DisabledPromotesProvisional(t *testing.T) {
	c := NewClient(Config{})
	require.False(t, c.Enabled())

	winner := uuid.New()
	verdict, err := c.Review(context.Background(), uuid.New(), &winner, false)
	require.NoError(t, err)

	assert.Equal(t, fight.StatusFinished, verdict.FinalStatus)
	assert.True(t, verdict.Fallback)
	require.NotNil(t, verdict.WinnerID)
	assert.Equal(t, winner, *verdict.WinnerID)
	assert.False(t, verdict.IsDraw)
}

func TestReview_ConfirmsProvisionalResult(t *testing.T) {
	fightID := uuid.New()
	winner := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/fights/review", r.URL.Path)

		var req struct {
			FightID  string  `json:"fightId"`
			WinnerID *string `json:"winnerId"`
			IsDraw   bool    `json:"isDraw"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, fightID.String(), req.FightID)
		require.NotNil(t, req.WinnerID)
		assert.Equal(t, winner.String(), *req.WinnerID)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"finalStatus": "FINISHED",
			"winnerId":    winner.String(),
			"isDraw":      false,
		})
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL})
	require.True(t, c.Enabled())

	verdict, err := c.Review(context.Background(), fightID, &winner, false)
	require.NoError(t, err)

	assert.Equal(t, fight.StatusFinished, verdict.FinalStatus)
	assert.False(t, verdict.Fallback)
	require.NotNil(t, verdict.WinnerID)
	assert.Equal(t, winner, *verdict.WinnerID)
	assert.Greater(t, verdict.Latency, time.Duration(0))
}

func TestReview_OverturnsWinner(t *testing.T) {
	provisional := uuid.New()
	overturned := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"finalStatus": "FINISHED",
			"winnerId":    overturned.String(),
			"isDraw":      false,
		})
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL})

	verdict, err := c.Review(context.Background(), uuid.New(), &provisional, false)
	require.NoError(t, err)

	require.NotNil(t, verdict.WinnerID)
	assert.Equal(t, overturned, *verdict.WinnerID)
}

func TestReview_NoContestClearsWinner(t *testing.T) {
	winner := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"finalStatus": "NO_CONTEST",
			"winnerId":    winner.String(),
			"isDraw":      true,
		})
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL})

	verdict, err := c.Review(context.Background(), uuid.New(), &winner, false)
	require.NoError(t, err)

	assert.Equal(t, fight.StatusNoContest, verdict.FinalStatus)
	assert.Nil(t, verdict.WinnerID)
	assert.False(t, verdict.IsDraw)
}

func TestReview_ServerErrorFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	winner := uuid.New()
	c := NewClient(Config{BaseURL: server.URL})

	verdict, err := c.Review(context.Background(), uuid.New(), &winner, false)
	require.NoError(t, err)

	assert.True(t, verdict.Fallback)
	assert.Equal(t, fight.StatusFinished, verdict.FinalStatus)
	require.NotNil(t, verdict.WinnerID)
	assert.Equal(t, winner, *verdict.WinnerID)
}

func TestReview_UnreachableFallsBack(t *testing.T) {
	winner := uuid.New()
	c := NewClient(Config{
		BaseURL:        "http://127.0.0.1:1", // nothing listens here
		RequestTimeout: 200 * time.Millisecond,
	})

	verdict, err := c.Review(context.Background(), uuid.New(), &winner, true)
	require.NoError(t, err)

	assert.True(t, verdict.Fallback)
	assert.True(t, verdict.IsDraw)
}

func TestReview_GarbageResponseFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL})

	verdict, err := c.Review(context.Background(), uuid.New(), nil, true)
	require.NoError(t, err)

	assert.True(t, verdict.Fallback)
	assert.True(t, verdict.IsDraw)
	assert.Nil(t, verdict.WinnerID)
}

func TestReview_CancelledContextPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Review(ctx, uuid.New(), nil, false)
	require.Error(t, err)
}
