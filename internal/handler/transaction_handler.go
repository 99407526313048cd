package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/IlliaDrahun/multichain/internal/handler/request"
	"github.com/IlliaDrahun/multichain/internal/handler/response"
	"github.com/IlliaDrahun/multichain/internal/service/transaction"
	"github.com/IlliaDrahun/multichain/internal/store"
	"github.com/IlliaDrahun/multichain/pkg/errno"
	"github.com/IlliaDrahun/multichain/pkg/logger"
	"github.com/IlliaDrahun/multichain/pkg/validator"
)

type TransactionHandler struct {
	svc *transaction.Service
}

func NewTransactionHandler(svc *transaction.Service) *TransactionHandler {
	return &TransactionHandler{svc: svc}
}

// Create 受理交易
// POST /api/v1/transactions
func (h *TransactionHandler) Create(c *gin.Context) {
	// 1. 绑定参数
	var req request.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}

	// 2. 写库并入队
	tx, err := h.svc.Create(c.Request.Context(), transaction.CreateRequest{
		ChainID:         req.ChainID,
		ContractAddress: req.ContractAddress,
		Method:          req.Method,
		Args:            req.Args,
		UserAddress:     req.UserAddress,
	})
	if err != nil {
		response.Error(c, toErrno(err))
		return
	}

	response.Success(c, tx)
}

// ListByUser 查询用户的全部交易
// GET /api/v1/transactions/:userAddress
func (h *TransactionHandler) ListByUser(c *gin.Context) {
	var req request.UserTransactionsRequest
	if err := c.ShouldBindUri(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}

	txs, err := h.svc.FindByUserAddress(c.Request.Context(), req.UserAddress)
	if err != nil {
		response.Error(c, toErrno(err))
		return
	}
	response.Success(c, txs)
}

// Get 查询单笔交易
// GET /api/v1/transaction/:id
func (h *TransactionHandler) Get(c *gin.Context) {
	var req request.TransactionIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}

	tx, err := h.svc.Get(c.Request.Context(), req.ID)
	if err != nil {
		response.Error(c, toErrno(err))
		return
	}
	response.Success(c, tx)
}

// Chains 支持的链
// GET /api/v1/chains
func (h *TransactionHandler) Chains(c *gin.Context) {
	response.Success(c, h.svc.SupportedChains())
}

func toErrno(err error) error {
	switch {
	case errors.Is(err, transaction.ErrUnsupportedChain):
		return errno.ErrUnsupportedChain
	case errors.Is(err, transaction.ErrInvalidAddress):
		return errno.ErrInvalidAddress
	case errors.Is(err, store.ErrNotFound):
		return errno.ErrTransactionNotFound
	case errors.Is(err, transaction.ErrEnqueue):
		return errno.ErrQueue
	default:
		logger.Error("Transaction request failed", zap.Error(err))
		return errno.ErrDatabase
	}
}
