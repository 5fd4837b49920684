package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ldttech/poscore/internal/errors"
	"github.com/ldttech/poscore/internal/logging"
	"github.com/ldttech/poscore/internal/models"
)

// newRouter builds the local HTTP API consumed by the terminal UI.
func newRouter(c *core) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", handleHealth)
	mux.HandleFunc("/api/status", c.handleStatus)
	mux.HandleFunc("/api/sync", c.handleSync)
	mux.HandleFunc("/api/queue", c.handleQueueList)
	mux.HandleFunc("/api/queue/", c.handleQueueItem)
	mux.HandleFunc("/api/cart", c.handleCart)
	mux.HandleFunc("/api/cart/items", c.handleCartItems)
	mux.HandleFunc("/api/cart/customer", c.handleCartCustomer)
	mux.HandleFunc("/api/checkout", c.handleCheckout)
	mux.HandleFunc("/api/customers", c.handleCustomers)
	mux.HandleFunc("/api/products", c.handleProducts)
	mux.HandleFunc("/ws", HandleWebSocket(c.hub))

	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error("Failed to encode response", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.CodeOf(err) {
	case errors.ErrValidation, errors.ErrInvalid, errors.ErrEmptyCart, errors.ErrNoCustomer:
		status = http.StatusBadRequest
	case errors.ErrNotFound, errors.ErrQueueItemNotFound:
		status = http.StatusNotFound
	case errors.ErrSyncInProgress:
		status = http.StatusConflict
	case errors.ErrRemoteUnavailable, errors.ErrOffline:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
		"code":  string(errors.CodeOf(err)),
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "poscore"})
}

func (c *core) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := c.queue.Stats()
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"online":      c.monitor.IsOnline(),
		"syncing":     c.engine.Running(),
		"queue":       stats,
		"last_report": c.engine.LastReport(),
	})
}

// handleSync triggers a cycle. ?full=1 runs the full variant.
func (c *core) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var (
		report interface{}
		err    error
	)
	if r.URL.Query().Get("full") == "1" {
		report, err = c.engine.FullSync(r.Context())
	} else {
		report, err = c.engine.AutoSync(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (c *core) handleQueueList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ops, err := c.queue.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"operations": ops})
}

// handleQueueItem serves /api/queue/{id} and /api/queue/{id}/retry.
func (c *core) handleQueueItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/queue/")
	idPart, action, _ := strings.Cut(rest, "/")

	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		writeError(w, errors.New(errors.ErrInvalid, "invalid queue operation id"))
		return
	}

	switch {
	case r.Method == http.MethodGet && action == "":
		op, err := c.queue.Get(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, op)

	case r.Method == http.MethodPost && action == "retry":
		if err := c.queue.Retry(id); err != nil {
			writeError(w, err)
			return
		}
		c.hub.Publish(EventQueueChanged, map[string]interface{}{"id": id, "action": "retry"})
		writeJSON(w, http.StatusOK, map[string]string{"status": "pending"})

	case r.Method == http.MethodDelete && action == "":
		op, err := c.queue.Get(id)
		if err != nil {
			writeError(w, err)
			return
		}
		// Only terminal entries may be removed.
		if op.Status != models.StatusFailed && op.Status != models.StatusCompleted {
			writeError(w, errors.New(errors.ErrInvalid, "only failed or completed operations can be removed"))
			return
		}
		if err := c.queue.Remove(id); err != nil {
			writeError(w, err)
			return
		}
		c.hub.Publish(EventQueueChanged, map[string]interface{}{"id": id, "action": "removed"})
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (c *core) handleCart(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		totals, err := c.register.Totals()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"items":    c.register.Items(),
			"customer": c.register.Customer(),
			"totals":   totals,
		})

	case http.MethodDelete:
		c.register.ClearCart()
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (c *core) handleCartItems(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			ItemCode string  `json:"item_code"`
			Quantity float64 `json:"quantity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errors.Wrap(errors.ErrInvalid, "invalid request body", err))
			return
		}

		products, err := c.repo.GetAllProducts()
		if err != nil {
			writeError(w, err)
			return
		}
		for _, p := range products {
			if p.ItemCode == req.ItemCode {
				c.register.AddProduct(p, req.Quantity)
				writeJSON(w, http.StatusOK, map[string]interface{}{"items": c.register.Items()})
				return
			}
		}
		writeError(w, errors.New(errors.ErrNotFound, "unknown item "+req.ItemCode))

	case http.MethodPut:
		var req struct {
			ItemCode string  `json:"item_code"`
			Quantity float64 `json:"quantity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errors.Wrap(errors.ErrInvalid, "invalid request body", err))
			return
		}
		c.register.UpdateQuantity(req.ItemCode, req.Quantity)
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": c.register.Items()})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (c *core) handleCartCustomer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrInvalid, "invalid request body", err))
		return
	}

	customer, err := c.repo.GetCustomer(req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	if customer == nil {
		writeError(w, errors.New(errors.ErrNotFound, "unknown customer "+req.Name))
		return
	}

	c.register.SetCustomer(customer)
	writeJSON(w, http.StatusOK, customer)
}

func (c *core) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ModeOfPayment string `json:"mode_of_payment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrInvalid, "invalid request body", err))
		return
	}

	result, err := c.register.Checkout(r.Context(), req.ModeOfPayment)
	if err != nil {
		writeError(w, err)
		return
	}
	if result.Queued {
		c.hub.Publish(EventQueueChanged, map[string]interface{}{"order_id": result.OrderID})
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCustomers searches the local cache on GET and creates a
// customer (online direct or offline placeholder) on POST.
func (c *core) handleCustomers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		customers, err := c.repo.SearchCustomersLocal(r.URL.Query().Get("q"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"customers": customers})

	case http.MethodPost:
		var req struct {
			Name  string `json:"name"`
			Phone string `json:"phone"`
			Email string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errors.Wrap(errors.ErrInvalid, "invalid request body", err))
			return
		}

		customer, err := c.register.CreateCustomer(r.Context(), req.Name, req.Phone, req.Email)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, customer)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (c *core) handleProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	term := r.URL.Query().Get("q")
	var (
		products []models.Product
		err      error
	)
	if term == "" {
		products, err = c.repo.GetAllProducts()
	} else {
		products, err = c.repo.SearchProductsLocal(term)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"products": products})
}
