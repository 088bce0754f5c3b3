// controllers/item_controller.go
package controllers

import (
	"net/http"
	"strconv"

	"Gin_postgres_redis_lending/app"
	"Gin_postgres_redis_lending/db"

	"github.com/gin-gonic/gin"
)

type ItemController struct{ *Srv }

func NewItemController(s *Srv) *ItemController { return &ItemController{Srv: s} }

// 物品列表（含当前未归还的借出记录）
func (ic *ItemController) ListItems(c *gin.Context) {
	q := db.ItemsQuery{
		Q:      c.Query("q"),
		Status: c.Query("status"), // "", "borrowed", "available", "overdue", "off_cycle"
	}
	q.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	q.Size, _ = strconv.Atoi(c.DefaultQuery("size", "20"))

	res, err := ic.Items.ListItemsWithOpenLoan(c.Request.Context(), q)
	if err != nil {
		ic.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "items": res})
}

func (ic *ItemController) GetItem(c *gin.Context) {
	it, err := ic.Store.LoadItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		ic.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

func (ic *ItemController) PerUseFee(c *gin.Context) {
	it, err := ic.Store.LoadItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		ic.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"itemId": it.ID, "fee": ic.Fees.PerUseFee(it).StringFixed(2)})
}
