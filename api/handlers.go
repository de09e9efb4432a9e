/*
handlers.go - HTTP API handlers for the loyalty back office

PURPOSE:
  Exposes the loyalty engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Customers:
    GET    /api/customers              List customers (cached)
    POST   /api/customers              Create customer
    GET    /api/customers/{id}         Get customer details
    PUT    /api/customers/{id}         Update descriptive fields
    DELETE /api/customers/{id}         Delete customer (cascades ledger)
    GET    /api/customers/{id}/history Ledger entries for one customer

  Points:
    POST   /api/points/burn            Redeem points
    POST   /api/points/expire          Lapse points
    GET    /api/points/history         Ledger entries (all customers)

  Transactions:
    POST   /api/transactions           Record purchase, earn points
    GET    /api/transactions           List with filters
    GET    /api/transactions/{id}      Get one transaction
    DELETE /api/transactions/{id}      Delete (cascades EARN entry)

  Other:
    GET    /api/dashboard              Aggregate summary
    POST   /api/seed                   Load demo data

ARCHITECTURE:
  Handler struct holds all dependencies behind the domain interfaces,
  so tests run on the in-memory store and production on SQLite without
  any handler change.

REQUEST FLOW:
  1. Decode and validate the request DTO
  2. Call domain logic (engine, recorder, stores)
  3. Map domain errors to HTTP status
  4. Serialize the response DTO

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, insufficient balance
  - 404: Customer or transaction not found
  - 500: Storage failures, including the ledger-append alert path

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are
  public; run behind the back-office gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - loyalty/engine.go: The mutation contract these handlers expose
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/warp/loyalty-engine/cache"
	"github.com/warp/loyalty-engine/loyalty"
	"github.com/warp/loyalty-engine/metrics"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Customers    loyalty.CustomerStore
	History      loyalty.HistoryStore
	Transactions loyalty.TransactionStore

	Engine   *loyalty.Engine
	Recorder *loyalty.Recorder

	Cache  *cache.Client
	Logger *log.Logger
}

// NewHandler wires an engine and recorder over the given stores.
// Cache and metrics are attached separately via UseCache/UseMetrics.
func NewHandler(customers loyalty.CustomerStore, history loyalty.HistoryStore, transactions loyalty.TransactionStore) *Handler {
	engine := loyalty.NewEngine(customers, history)
	return &Handler{
		Customers:    customers,
		History:      history,
		Transactions: transactions,
		Engine:       engine,
		Recorder:     loyalty.NewRecorder(customers, transactions, engine),
	}
}

// UseCache attaches the read cache and routes the engine's
// invalidation signal to it. A nil client is a no-op cache.
func (h *Handler) UseCache(c *cache.Client) {
	h.Cache = c
	if c != nil {
		h.Engine.Invalidator = c
	}
}

// UseMetrics attaches instrumentation to the engine and cache.
func (h *Handler) UseMetrics(m *metrics.Metrics) {
	h.Engine.Metrics = m
	if h.Cache != nil {
		h.Cache.Metrics = m
	}
}

// UseLogger routes engine alerts and cache warnings to one logger.
func (h *Handler) UseLogger(l *log.Logger) {
	h.Logger = l
	h.Engine.Logger = l
	if h.Cache != nil {
		h.Cache.Logger = l
	}
}

// =============================================================================
// CUSTOMER HANDLERS
// =============================================================================

// ListCustomers returns customers matching the query, read-through
// the cache when one is attached.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	opts := parseListOptions(r)

	key := cache.ListKey(opts)
	if cached, ok := h.Cache.GetCustomers(ctx, key); ok {
		writeJSON(w, http.StatusOK, toCustomerDTOs(cached))
		return
	}

	customers, err := h.Customers.ListCustomers(ctx, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list customers", err)
		return
	}
	h.Cache.SetCustomers(ctx, key, customers)

	writeJSON(w, http.StatusOK, toCustomerDTOs(customers))
}

// GetCustomer returns a single customer.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	customer, err := h.Customers.FindCustomer(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err, "Failed to get customer")
		return
	}

	writeJSON(w, http.StatusOK, toCustomerDTO(customer))
}

// CreateCustomer creates a new customer starting at zero points.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid customer", err)
		return
	}

	now := time.Now().UTC()
	status := req.Status
	if status == "" {
		status = "active"
	}
	customer := &loyalty.Customer{
		ID:       loyalty.NewCustomerID(),
		FullName: req.FullName,
		Phone:    req.Phone,
		Email:    req.Email,
		Address:  loyalty.Address{City: req.City, Country: req.Country},
		Status:   status,
		Membership: loyalty.Membership{
			Tier:      loyalty.TierFor(0),
			TierSince: now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.Customers.CreateCustomer(r.Context(), customer); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create customer", err)
		return
	}
	h.invalidateCustomers(r)

	writeJSON(w, http.StatusCreated, toCustomerDTO(customer))
}

// UpdateCustomer updates descriptive fields. Membership is read-only
// here; points move only through the engine.
func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req CustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid customer", err)
		return
	}

	ctx := r.Context()
	customer, err := h.Customers.FindCustomer(ctx, id)
	if err != nil {
		h.writeDomainError(w, err, "Failed to get customer")
		return
	}

	customer.FullName = req.FullName
	customer.Phone = req.Phone
	customer.Email = req.Email
	customer.Address = loyalty.Address{City: req.City, Country: req.Country}
	if req.Status != "" {
		customer.Status = req.Status
	}
	customer.UpdatedAt = time.Now().UTC()

	if err := h.Customers.UpdateCustomer(ctx, customer); err != nil {
		h.writeDomainError(w, err, "Failed to update customer")
		return
	}
	h.invalidateCustomers(r)

	writeJSON(w, http.StatusOK, toCustomerDTO(customer))
}

// DeleteCustomer removes the customer and their ledger entries.
func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Customers.DeleteCustomer(r.Context(), id); err != nil {
		h.writeDomainError(w, err, "Failed to delete customer")
		return
	}
	h.invalidateCustomers(r)

	w.WriteHeader(http.StatusNoContent)
}

// GetCustomerHistory returns the ledger for one customer.
func (h *Handler) GetCustomerHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	// 404 on unknown customer rather than an empty list.
	if _, err := h.Customers.FindCustomer(ctx, id); err != nil {
		h.writeDomainError(w, err, "Failed to get customer")
		return
	}

	opts := parseListOptions(r)
	opts.CustomerID = id
	entries, err := h.History.ListEntries(ctx, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list history", err)
		return
	}

	writeJSON(w, http.StatusOK, toLedgerEntryDTOs(entries))
}

// =============================================================================
// POINTS HANDLERS
// =============================================================================

// BurnPoints redeems points from a customer's available balance.
func (h *Handler) BurnPoints(w http.ResponseWriter, r *http.Request) {
	h.adjustPoints(w, r, loyalty.EntryBurn)
}

// ExpirePoints lapses points. Like burn, the full requested amount
// must be covered by the available balance.
func (h *Handler) ExpirePoints(w http.ResponseWriter, r *http.Request) {
	h.adjustPoints(w, r, loyalty.EntryExpire)
}

func (h *Handler) adjustPoints(w http.ResponseWriter, r *http.Request, kind loyalty.EntryKind) {
	var req AdjustPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid adjustment", err)
		return
	}

	result, err := h.Engine.AdjustPoints(r.Context(), req.CustomerID, req.Points, kind, loyalty.AdjustContext{
		Title: req.Reason,
	})
	if err != nil {
		h.writeDomainError(w, err, "Failed to adjust points")
		return
	}

	writeJSON(w, http.StatusOK, AdjustPointsResponse{
		Entry:      toLedgerEntryDTO(result.Entry),
		NewBalance: result.NewBalance,
		NewTier:    string(result.NewTier),
	})
}

// ListHistory returns ledger entries across all customers.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.History.ListEntries(r.Context(), parseListOptions(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list history", err)
		return
	}

	writeJSON(w, http.StatusOK, toLedgerEntryDTOs(entries))
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// RecordTransaction records a purchase and awards its points.
func (h *Handler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req RecordTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid transaction", err)
		return
	}
	input, err := req.toInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid transaction", err)
		return
	}

	result, err := h.Recorder.RecordTransaction(r.Context(), input)
	if err != nil {
		h.writeDomainError(w, err, "Failed to record transaction")
		return
	}

	writeJSON(w, http.StatusCreated, RecordTransactionResponse{
		Transaction: toTransactionDTO(result.Transaction),
		NewBalance:  result.NewBalance,
		NewTier:     string(result.NewTier),
	})
}

// ListTransactions returns transactions matching the query.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Transactions.ListTransactions(r.Context(), parseListOptions(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list transactions", err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// GetTransaction returns a single transaction.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tx, err := h.Transactions.FindTransaction(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err, "Failed to get transaction")
		return
	}

	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// DeleteTransaction removes a transaction and its EARN entry. Points
// already credited stay on the balance.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Transactions.DeleteTransaction(r.Context(), id); err != nil {
		h.writeDomainError(w, err, "Failed to delete transaction")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// DASHBOARD HANDLER
// =============================================================================

// recentLimit caps the dashboard's activity feeds.
const recentLimit = 10

// GetDashboard aggregates the back-office summary. The three reads
// are independent, so they run concurrently.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	g, ctx := errgroup.WithContext(r.Context())

	var customers []loyalty.Customer
	var txs []loyalty.Transaction
	var entries []loyalty.LedgerEntry

	g.Go(func() error {
		var err error
		customers, err = h.Customers.ListCustomers(ctx, loyalty.ListOptions{})
		return err
	})
	g.Go(func() error {
		var err error
		txs, err = h.Transactions.ListTransactions(ctx, loyalty.ListOptions{})
		return err
	})
	g.Go(func() error {
		var err error
		entries, err = h.History.ListEntries(ctx, loyalty.ListOptions{})
		return err
	})
	if err := g.Wait(); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build dashboard", err)
		return
	}

	dto := DashboardDTO{
		TotalCustomers:    len(customers),
		TotalTransactions: len(txs),
		TiersBreakdown:    make(map[string]int),
	}
	for _, c := range customers {
		dto.TiersBreakdown[string(c.Membership.Tier)]++
		dto.PointsOutstanding += c.Membership.AvailablePoints
		dto.LifetimeEarned += c.Membership.LifetimeEarned
	}
	if len(txs) > recentLimit {
		txs = txs[:recentLimit]
	}
	if len(entries) > recentLimit {
		entries = entries[:recentLimit]
	}
	dto.RecentTransactions = toTransactionDTOs(txs)
	dto.RecentActivity = toLedgerEntryDTOs(entries)

	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// HELPERS
// =============================================================================

// parseListOptions extracts the shared query surface. Unknown sortBy
// values fall through to the store's default ordering.
func parseListOptions(r *http.Request) loyalty.ListOptions {
	q := r.URL.Query()
	opts := loyalty.ListOptions{
		Search:     q.Get("search"),
		CustomerID: q.Get("customerId"),
		SortBy:     q.Get("sortBy"),
		Order:      loyalty.SortOrder(q.Get("order")),
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.From = &t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.To = &t
		}
	}
	if v := q.Get("minSubtotal"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			opts.MinSubtotal = &n
		}
	}
	if v := q.Get("maxSubtotal"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			opts.MaxSubtotal = &n
		}
	}
	return opts
}

// writeDomainError maps domain errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case loyalty.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case loyalty.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Rejected", err)
	case errors.Is(err, loyalty.ErrHistoryAppend):
		// Balance committed but the ledger write failed; the engine
		// has already raised the alert.
		writeError(w, http.StatusInternalServerError, "Ledger write failed", err)
	default:
		writeError(w, http.StatusInternalServerError, fallback, err)
	}
}

func (h *Handler) invalidateCustomers(r *http.Request) {
	if h.Cache != nil {
		h.Cache.CustomersChanged(r.Context())
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
