package http

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/sandbox"
)

// ChainHandlers serves the chain service and relays signed transactions
type ChainHandlers struct {
	chain *sandbox.Chain
}

func NewChainHandlers(chain *sandbox.Chain) *ChainHandlers {
	return &ChainHandlers{chain: chain}
}

type escrowRequest struct {
	Employer string `json:"employer" binding:"required"`
	Employee string `json:"employee"`
	Contract string `json:"contract" binding:"required"`
	Escrow   string `json:"escrow" binding:"required"`
	Amount   string `json:"amount"`
}

func (h *ChainHandlers) prepare(c *gin.Context, intent core.TxIntent) {
	prep, err := h.chain.Prepare(c.Request.Context(), intent)
	if err != nil {
		abortWithError(c, err)
		return
	}
	body := gin.H{"transaction": prep.Descriptor}
	if prep.ContractAddress != "" {
		body["contract"] = prep.ContractAddress
		body["escrow"] = prep.EscrowAddress
	}
	c.JSON(http.StatusOK, body)
}

func (h *ChainHandlers) InitIdentity(c *gin.Context) {
	var req struct {
		Wallet string `json:"wallet" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "wallet is required")
		return
	}
	h.prepare(c, core.DIDInitIntent{Wallet: req.Wallet})
}

func (h *ChainHandlers) CreateContract(c *gin.Context) {
	var req struct {
		Employer  string `json:"employer" binding:"required"`
		Employee  string `json:"employee" binding:"required"`
		Salary    string `json:"salary" binding:"required"`
		StartDate int64  `json:"startDate"`
		DueDate   int64  `json:"dueDate" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "employer, employee, salary and dueDate are required")
		return
	}
	salary, err := decimal.NewFromString(req.Salary)
	if err != nil {
		badRequest(c, "salary is not a decimal")
		return
	}
	h.prepare(c, core.ContractCreateIntent{
		Employer:  req.Employer,
		Employee:  req.Employee,
		Salary:    salary,
		StartDate: time.Unix(req.StartDate, 0).UTC(),
		DueDate:   time.Unix(req.DueDate, 0).UTC(),
	})
}

func (h *ChainHandlers) FinalizeContract(c *gin.Context) {
	var req escrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "employer, contract and escrow are required")
		return
	}
	h.prepare(c, core.ContractFinalizeIntent{Employer: req.Employer, Contract: req.Contract, Escrow: req.Escrow})
}

func (h *ChainHandlers) ExpireContract(c *gin.Context) {
	var req escrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "employer, contract and escrow are required")
		return
	}
	h.prepare(c, core.ContractExpireIntent{Employer: req.Employer, Contract: req.Contract, Escrow: req.Escrow})
}

func (h *ChainHandlers) EndContract(c *gin.Context) {
	var req escrowRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Employee == "" {
		badRequest(c, "employer, employee, contract and escrow are required")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		badRequest(c, "amount is not a decimal")
		return
	}
	h.prepare(c, core.ContractEndIntent{
		Employer: req.Employer,
		Employee: req.Employee,
		Contract: req.Contract,
		Escrow:   req.Escrow,
		Amount:   amount,
	})
}

func (h *ChainHandlers) LoadContract(c *gin.Context) {
	state, err := h.chain.LoadContract(c.Request.Context(), c.Query("address"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *ChainHandlers) Submit(c *gin.Context) {
	var req struct {
		Tx string `json:"tx" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "tx is required")
		return
	}
	raw, err := base64.StdEncoding.DecodeString(req.Tx)
	if err != nil {
		badRequest(c, "tx is not base64")
		return
	}
	sig, err := h.chain.SendRawTransaction(c.Request.Context(), raw)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signature": sig})
}

func (h *ChainHandlers) TxStatus(c *gin.Context) {
	ok, err := h.chain.Confirmed(c.Request.Context(), c.Param("sig"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"confirmed": ok})
}
