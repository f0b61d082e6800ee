package handlers

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"kuri/domain/entities"
	"kuri/domain/interfaces"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// principalHeader carries the caller identity on privileged operations
const principalHeader = "X-Principal"

// HTTPHandler exposes the pool settlement operations as a JSON API
type HTTPHandler struct {
	service interfaces.PoolService
}

// NewHTTPHandler creates a new HTTPHandler
func NewHTTPHandler(service interfaces.PoolService) *HTTPHandler {
	return &HTTPHandler{service: service}
}

// RegisterRoutes registers all the application routes
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/pool", h.GetPool)
	router.POST("/pool/membership", h.RequestMembership)
	router.POST("/pool/membership/:identity/accept", h.AcceptRequest)
	router.POST("/pool/membership/:identity/reject", h.RejectRequest)
	router.POST("/pool/membership/:identity/flag", h.FlagUser)
	router.POST("/pool/initialize", h.Initialize)
	router.POST("/pool/deposits", h.Deposit)
	router.GET("/pool/payments/:identity/:interval", h.HasPaid)
	router.POST("/pool/raffles", h.RequestRaffle)
	router.POST("/pool/raffles/deliveries", h.DeliverRandomness)
	router.POST("/pool/claims", h.Claim)
	router.POST("/pool/withdrawals", h.Withdraw)
}

// GetPool returns a read-only snapshot of the pool
func (h *HTTPHandler) GetPool(c *gin.Context) {
	c.JSON(http.StatusOK, newPoolView(h.service.Pool()))
}

// RequestMembership handles a membership application
func (h *HTTPHandler) RequestMembership(c *gin.Context) {
	var req struct {
		Identity string `json:"identity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.RequestMembership(c.Request.Context(), req.Identity); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"identity": req.Identity})
}

// AcceptRequest admits an applicant
func (h *HTTPHandler) AcceptRequest(c *gin.Context) {
	record, err := h.service.AcceptRequest(c.Request.Context(), c.GetHeader(principalHeader), c.Param("identity"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"identity": record.Identity,
		"index":    record.Index,
	})
}

// RejectRequest declines an applicant
func (h *HTTPHandler) RejectRequest(c *gin.Context) {
	identity := c.Param("identity")
	if err := h.service.RejectRequest(c.Request.Context(), c.GetHeader(principalHeader), identity); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"identity": identity})
}

// FlagUser retires a participant for an unpaid interval
func (h *HTTPHandler) FlagUser(c *gin.Context) {
	// interval 0 is flaggable during the first deposit window, so the field
	// binds through a pointer rather than a required int
	var req struct {
		IntervalIndex *int `json:"interval_index" binding:"required,gte=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity := c.Param("identity")
	if err := h.service.FlagUser(c.Request.Context(), c.GetHeader(principalHeader), identity, *req.IntervalIndex); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"identity":       identity,
		"interval_index": *req.IntervalIndex,
	})
}

// Initialize attempts the launch transition
func (h *HTTPHandler) Initialize(c *gin.Context) {
	launched, err := h.service.Initialize(c.Request.Context(), c.GetHeader(principalHeader))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"launched": launched,
		"state":    h.service.Pool().State,
	})
}

// Deposit collects the caller's installment for the current interval
func (h *HTTPHandler) Deposit(c *gin.Context) {
	var req struct {
		Identity string `json:"identity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.Deposit(c.Request.Context(), req.Identity); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"identity": req.Identity})
}

// HasPaid reports whether an identity paid a given interval
func (h *HTTPHandler) HasPaid(c *gin.Context) {
	interval, err := strconv.Atoi(c.Param("interval"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid interval index"})
		return
	}

	identity := c.Param("identity")
	paid, err := h.service.HasPaid(c.Request.Context(), identity, interval)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"identity":       identity,
		"interval_index": interval,
		"paid":           paid,
	})
}

// RequestRaffle issues a randomness request for the next winner draw
func (h *HTTPHandler) RequestRaffle(c *gin.Context) {
	token, err := h.service.RequestRaffle(c.Request.Context(), c.GetHeader(principalHeader))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"correlation_token": token})
}

// DeliverRandomness settles a pending raffle with delivered random values
func (h *HTTPHandler) DeliverRandomness(c *gin.Context) {
	var req struct {
		CorrelationToken string   `json:"correlation_token" binding:"required"`
		Values           []uint64 `json:"values" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := uuid.Parse(req.CorrelationToken)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid correlation token"})
		return
	}

	if err := h.service.DeliverRandomness(c.Request.Context(), c.GetHeader(principalHeader), token, req.Values); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"correlation_token": token})
}

// Claim pays a won interval out to the caller
func (h *HTTPHandler) Claim(c *gin.Context) {
	var req struct {
		Identity      string `json:"identity" binding:"required"`
		IntervalIndex int    `json:"interval_index" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.Claim(c.Request.Context(), req.Identity, req.IntervalIndex); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"identity":       req.Identity,
		"interval_index": req.IntervalIndex,
		"state":          h.service.Pool().State,
	})
}

// Withdraw sweeps the residual custody balance after completion
func (h *HTTPHandler) Withdraw(c *gin.Context) {
	amount, err := h.service.Withdraw(c.Request.Context(), c.GetHeader(principalHeader))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"amount": amount})
}

// respondError maps domain error kinds onto HTTP statuses
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch entities.KindOf(err) {
	case entities.ErrorKindAuthorization:
		status = http.StatusForbidden
	case entities.ErrorKindTiming:
		status = http.StatusTooEarly
	case entities.ErrorKindStatePrecondition, entities.ErrorKindDuplicateAction:
		status = http.StatusConflict
	case entities.ErrorKindReferential:
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		log.WithError(err).Error("pool operation failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

type participantView struct {
	Identity string `json:"identity"`
	State    string `json:"state"`
	Index    int    `json:"index,omitempty"`
}

type winnerView struct {
	IntervalIndex int  `json:"interval_index"`
	WinnerIndex   int  `json:"winner_index"`
	Claimed       bool `json:"claimed"`
}

type poolView struct {
	ID                 int64             `json:"id"`
	Creator            string            `json:"creator"`
	State              string            `json:"state"`
	PoolAmount         int64             `json:"pool_amount"`
	DepositShare       int64             `json:"deposit_share"`
	RequiredCount      int               `json:"required_count"`
	AcceptedCount      int               `json:"accepted_count"`
	IntervalType       string            `json:"interval_type"`
	LaunchDeadline     time.Time         `json:"launch_deadline"`
	CycleStart         *time.Time        `json:"cycle_start,omitempty"`
	CycleEnd           *time.Time        `json:"cycle_end,omitempty"`
	NextDepositDue     *time.Time        `json:"next_deposit_due,omitempty"`
	NextRaffleEligible *time.Time        `json:"next_raffle_eligible,omitempty"`
	ActiveIndices      []int             `json:"active_indices,omitempty"`
	Participants       []participantView `json:"participants"`
	Winners            []winnerView      `json:"winners"`
	PendingRaffles     int               `json:"pending_raffles"`
}

func newPoolView(pool *entities.Pool) poolView {
	view := poolView{
		ID:                 pool.ID,
		Creator:            pool.Creator,
		State:              string(pool.State),
		PoolAmount:         pool.PoolAmount,
		DepositShare:       pool.DepositShare(),
		RequiredCount:      pool.RequiredCount,
		AcceptedCount:      pool.AcceptedCount,
		IntervalType:       string(pool.IntervalType),
		LaunchDeadline:     pool.LaunchDeadline,
		CycleStart:         optionalTime(pool.CycleStart),
		CycleEnd:           optionalTime(pool.CycleEnd),
		NextDepositDue:     optionalTime(pool.NextDepositDue),
		NextRaffleEligible: optionalTime(pool.NextRaffleEligible),
		Participants:       []participantView{},
		Winners:            []winnerView{},
		PendingRaffles:     len(pool.PendingRaffles),
	}
	if pool.Active != nil {
		view.ActiveIndices = pool.Active.Indices()
	}

	for _, record := range pool.Participants {
		view.Participants = append(view.Participants, participantView{
			Identity: record.Identity,
			State:    string(record.State),
			Index:    record.Index,
		})
	}
	sort.Slice(view.Participants, func(i, j int) bool {
		return view.Participants[i].Identity < view.Participants[j].Identity
	})

	for interval, winnerIndex := range pool.WinnerByInterval {
		view.Winners = append(view.Winners, winnerView{
			IntervalIndex: interval,
			WinnerIndex:   winnerIndex,
			Claimed:       pool.Claimed[winnerIndex],
		})
	}
	sort.Slice(view.Winners, func(i, j int) bool {
		return view.Winners[i].IntervalIndex < view.Winners[j].IntervalIndex
	})

	return view
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
