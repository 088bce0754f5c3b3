package routes

import (
	"net/http"

	"Gin_postgres_redis_lending/app"
	"Gin_postgres_redis_lending/controllers"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, s *controllers.Srv) {
	// 控制器
	txCtl := controllers.NewTransactionController(s)
	itemCtl := controllers.NewItemController(s)
	accCtl := controllers.NewAccessoryController(s)

	// Health
	r.GET("/healthz", func(c *app.Ctx) { c.JSON(http.StatusOK, app.H{"ok": true}) })

	// ------------------------------
	// 借还记录（写入即触发状态机）
	// ------------------------------
	txs := r.Group("/api/transactions")
	{
		txs.POST("", txCtl.Create)
		txs.GET("/:id", txCtl.Get)
		txs.GET("/:id/late-fee", txCtl.LateFee) // ?asOf=
		txs.POST("/:id/non-return-charge", txCtl.NonReturnCharge)
	}

	// ------------------------------
	// 物品
	// ------------------------------
	items := r.Group("/api/items")
	{
		items.GET("", itemCtl.ListItems) // ?q=&status=&page=&size=
		items.GET("/:id", itemCtl.GetItem)
		items.GET("/:id/per-use-fee", itemCtl.PerUseFee)
	}

	// 配件
	r.POST("/api/accessories/:id/return", accCtl.Return)
}
