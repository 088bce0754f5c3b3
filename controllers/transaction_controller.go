// controllers/transaction_controller.go
package controllers

import (
	"net/http"
	"time"

	"Gin_postgres_redis_lending/app"
	"Gin_postgres_redis_lending/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type TransactionController struct{ *Srv }

func NewTransactionController(s *Srv) *TransactionController { return &TransactionController{Srv: s} }

type CreateTransactionReq struct {
	ID                  string                  `json:"id"`
	ItemID              *string                 `json:"itemId"`
	Action              models.Action           `json:"action" binding:"required,oneof=withdraw return issue"`
	BorrowerID          *string                 `json:"borrowerId"`
	AuthorID            *string                 `json:"authorId"`
	BorrowDate          *time.Time              `json:"borrowDate"`
	DueDate             *time.Time              `json:"dueDate"`
	ReturnDate          *time.Time              `json:"returnDate"`
	InspectionIssue     *models.InspectionIssue `json:"inspectionIssue"`
	AmountDue           *decimal.Decimal        `json:"amountDue"`
	BorrowedAccessories []string                `json:"borrowedAccessories"`
	Note                string                  `json:"note" binding:"max=255"`
}

// 记录一笔借/还/报修，保存后立即交给状态机处理
func (tc *TransactionController) Create(c *gin.Context) {
	var in CreateTransactionReq
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "invalid request: " + err.Error()})
		return
	}
	if in.AmountDue != nil && in.AmountDue.IsNegative() {
		c.JSON(http.StatusBadRequest, app.H{"error": "amountDue must not be negative"})
		return
	}

	tx := &models.Transaction{
		ID:                  in.ID,
		ItemID:              in.ItemID,
		Action:              in.Action,
		BorrowerID:          in.BorrowerID,
		AuthorID:            in.AuthorID,
		DueDate:             in.DueDate,
		ReturnDate:          in.ReturnDate,
		InspectionIssue:     in.InspectionIssue,
		AmountDue:           in.AmountDue,
		BorrowedAccessories: in.BorrowedAccessories,
		Note:                in.Note,
	}
	if tx.ID == "" {
		tx.ID = tc.NewID()
	}
	tx.BorrowDate = tc.Now()
	if in.BorrowDate != nil {
		tx.BorrowDate = *in.BorrowDate
	}
	// 未指定借用人时默认为录入人
	if tx.BorrowerID == nil {
		tx.BorrowerID = tx.AuthorID
	}
	if tx.Action == models.ActionReturn && tx.ReturnDate == nil {
		now := tx.BorrowDate
		tx.ReturnDate = &now
	}

	ctx := c.Request.Context()
	if err := tc.Store.SaveTransaction(ctx, tx); err != nil {
		tc.fail(c, err)
		return
	}
	outcome := tc.Machine.Apply(ctx, tx)

	resp := app.H{"transaction": tx, "outcome": outcome}
	if tx.ItemID != nil {
		if it, err := tc.Store.LoadItem(ctx, *tx.ItemID); err == nil {
			resp["item"] = it
		}
	}
	c.JSON(http.StatusCreated, resp)
}

func (tc *TransactionController) Get(c *gin.Context) {
	tx, err := tc.Store.LoadTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		tc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// 逾期费用试算：?asOf=RFC3339，缺省为当前时间
func (tc *TransactionController) LateFee(c *gin.Context) {
	var asOf time.Time
	if v := c.Query("asOf"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, app.H{"error": "asOf must be RFC3339"})
			return
		}
		asOf = t
	}

	ctx := c.Request.Context()
	tx, err := tc.Store.LoadTransaction(ctx, c.Param("id"))
	if err != nil {
		tc.fail(c, err)
		return
	}
	var item *models.Item
	if tx.ItemID != nil {
		if it, err := tc.Store.LoadItem(ctx, *tx.ItemID); err == nil {
			item = it
		}
	}

	fee, ok := tc.Fees.LateFee(tx, item, asOf)
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, app.H{"error": "late fee not applicable"})
		return
	}
	c.JSON(http.StatusOK, app.H{"transactionId": tx.ID, "daysLate": fee.DaysLate, "lateFee": fee.Fee.StringFixed(2)})
}

type NonReturnChargeReq struct {
	Percentage *decimal.Decimal `json:"percentage"`
}

func (tc *TransactionController) NonReturnCharge(c *gin.Context) {
	var in NonReturnChargeReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, app.H{"error": "invalid request: " + err.Error()})
			return
		}
	}
	res, err := tc.Machine.ProcessNonReturnCharge(c.Request.Context(), c.Param("id"), in.Percentage)
	if err != nil {
		tc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
