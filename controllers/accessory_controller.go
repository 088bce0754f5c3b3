// controllers/accessory_controller.go
package controllers

import (
	"net/http"

	"Gin_postgres_redis_lending/app"

	"github.com/gin-gonic/gin"
)

type AccessoryController struct{ *Srv }

func NewAccessoryController(s *Srv) *AccessoryController { return &AccessoryController{Srv: s} }

// 配件单独归还；missing=true 表示登记丢失
func (ac *AccessoryController) Return(c *gin.Context) {
	var in struct {
		Missing bool `json:"missing"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, app.H{"error": "invalid request: " + err.Error()})
			return
		}
	}
	a, err := ac.Machine.ReturnAccessory(c.Request.Context(), c.Param("id"), in.Missing)
	if err != nil {
		ac.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
