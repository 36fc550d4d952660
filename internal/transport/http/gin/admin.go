package httpgin

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/tix-nights/internal/domain"
	"github.com/kirinyoku/tix-nights/internal/payment"
	"github.com/kirinyoku/tix-nights/internal/service"
)

// @Summary  Inventory discrepancy report
// @Security BasicAuth
// @Success  200  {object}  reconcile.Report
// @Failure  401  {object}  ErrorResponse
// @Failure  502  {object}  ErrorResponse
// @Router   /api/admin/sync-inventory [get]
func handleGetDiscrepancies(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := svcs.Reconcile.ComputeDiscrepancies(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// @Summary  Overwrite inventory from the payment ledger
// @Security BasicAuth
// @Success  200  {object}  SyncResponse
// @Failure  401  {object}  ErrorResponse
// @Failure  502  {object}  ErrorResponse
// @Router   /api/admin/sync-inventory [post]
func handleForceSync(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		results, err := svcs.Reconcile.ForceSync(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, SyncResponse{Updated: results})
	}
}

// @Summary  Initialize inventory records
// @Security BasicAuth
// @Param    overwrite  query  bool  false  "zero nights that already have sales"
// @Success  200  {object}  InitInventoryResponse
// @Failure  401  {object}  ErrorResponse
// @Router   /api/admin/init-inventory [post]
func handleInitInventory(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		overwrite, _ := strconv.ParseBool(c.Query("overwrite"))

		n, err := svcs.Reconcile.InitializeInventory(c.Request.Context(), overwrite)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, InitInventoryResponse{Initialized: n})
	}
}

// @Summary  Completed orders
// @Security BasicAuth
// @Success  200  {object}  OrdersResponse
// @Failure  401  {object}  ErrorResponse
// @Router   /api/admin/orders [get]
func handleListOrders(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := svcs.Reconcile.Orders(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, OrdersResponse{Orders: orders, Count: len(orders)})
	}
}

// @Summary  Completed orders as CSV
// @Security BasicAuth
// @Produce  text/csv
// @Success  200
// @Failure  401  {object}  ErrorResponse
// @Router   /api/admin/orders.csv [get]
func handleExportOrdersCSV(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := svcs.Reconcile.Orders(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}

		tiers := catalogTiers(svcs)

		header := []string{"checkout_id", "night", "night_name", "customer_name", "customer_email"}
		for _, t := range tiers {
			header = append(header, payment.MetaTickets(t))
		}
		header = append(header, "amount_total", "currency", "created_at")

		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", `attachment; filename="orders.csv"`)
		c.Status(http.StatusOK)

		w := csv.NewWriter(c.Writer)
		_ = w.Write(header)
		for _, o := range orders {
			row := []string{o.CheckoutID, o.NightKey, o.NightName, o.CustomerName, o.CustomerEmail}
			for _, t := range tiers {
				row = append(row, strconv.Itoa(o.Quantities[t]))
			}
			created := ""
			if !o.CreatedAt.IsZero() {
				created = o.CreatedAt.Format(time.RFC3339)
			}
			row = append(row, strconv.FormatInt(o.AmountTotal, 10), o.Currency, created)
			_ = w.Write(row)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			_ = c.Error(err)
		}
	}
}

// catalogTiers lists every tier sold in the catalog, in first-seen order.
func catalogTiers(svcs *service.Services) []domain.TierID {
	seen := map[domain.TierID]bool{}
	var out []domain.TierID
	for _, n := range svcs.Catalog.List() {
		for _, t := range n.Scheme.Tiers {
			if !seen[t.ID] {
				seen[t.ID] = true
				out = append(out, t.ID)
			}
		}
	}
	return out
}
