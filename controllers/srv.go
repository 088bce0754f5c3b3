// controllers/srv.go
package controllers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"Gin_postgres_redis_lending/app"
	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/fees"
	"Gin_postgres_redis_lending/inventory"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ItemLister backs the item overview.
type ItemLister interface {
	ListItemsWithOpenLoan(ctx context.Context, q db.ItemsQuery) (*db.PagedItems, error)
}

type Srv struct {
	Store   inventory.Store
	Items   ItemLister
	Machine *inventory.Machine
	Fees    *fees.Calculator
	Log     *slog.Logger
	Now     func() time.Time
	NewID   func() string
}

func GetSrv(a *app.App) *Srv {
	return &Srv{
		Store:   a.Repo,
		Items:   a.Repo,
		Machine: a.Machine,
		Fees:    a.Machine.Fees(),
		Log:     a.Log,
		Now:     time.Now,
		NewID:   uuid.NewString,
	}
}

// --- helpers ---

// 统一错误响应：按错误类型映射状态码
func (s *Srv) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, db.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, db.ErrConflict), errors.Is(err, inventory.ErrAccessoryNotBorrowed):
		status = http.StatusConflict
	case errors.Is(err, inventory.ErrNotChargeable),
		errors.Is(err, inventory.ErrAlreadyReturned),
		errors.Is(err, inventory.ErrNotApplicable):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		s.Log.ErrorContext(c.Request.Context(), "request failed", slog.String("path", c.FullPath()), slog.Any("err", err))
	}
	c.JSON(status, app.H{"error": err.Error()})
}
