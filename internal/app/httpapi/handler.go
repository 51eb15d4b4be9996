// Package httpapi exposes the storefront over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/pharmaverte/storefront/internal/app"
	"github.com/pharmaverte/storefront/internal/app/domain/catalog"
	"github.com/pharmaverte/storefront/internal/app/domain/order"
	"github.com/pharmaverte/storefront/internal/app/domain/profile"
	"github.com/pharmaverte/storefront/internal/app/services/checkout"
	"github.com/pharmaverte/storefront/internal/app/services/orders"
	"github.com/pharmaverte/storefront/internal/app/services/prescriptions"
	"github.com/pharmaverte/storefront/internal/app/services/profiles"
	"github.com/pharmaverte/storefront/internal/app/storage"
	"github.com/pharmaverte/storefront/pkg/logger"
)

// maxUploadBytes caps prescription document uploads.
const maxUploadBytes = 10 << 20

// Handler routes storefront requests to the services.
type Handler struct {
	app    *app.Application
	logger *logger.Logger
}

// NewHandler creates the handler.
func NewHandler(application *app.Application) *Handler {
	return &Handler{
		app:    application,
		logger: application.Logger.WithField("component", "httpapi"),
	}
}

// Router builds the route table. Every route is instrumented with the
// metrics middleware.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.Handle("GET /metrics", h.app.Metrics.Handler())

	mux.HandleFunc("POST /api/auth/signup", h.handleSignUp)
	mux.HandleFunc("POST /api/auth/signin", h.handleSignIn)
	mux.HandleFunc("POST /api/auth/signout", h.handleSignOut)
	mux.HandleFunc("GET /api/auth/session", h.handleSession)

	mux.HandleFunc("GET /api/categories", h.handleCategories)
	mux.HandleFunc("GET /api/products", h.handleProducts)
	mux.HandleFunc("GET /api/products/{id}", h.handleProduct)
	mux.HandleFunc("GET /api/search", h.handleSearch)
	mux.HandleFunc("GET /api/search/recent", h.handleRecentSearches)

	mux.HandleFunc("GET /api/favorites", h.handleFavorites)
	mux.HandleFunc("POST /api/favorites/{productID}/toggle", h.handleToggleFavorite)

	mux.HandleFunc("GET /api/cart", h.handleCart)
	mux.HandleFunc("POST /api/cart/items", h.handleCartAdd)
	mux.HandleFunc("PUT /api/cart/items/{productID}", h.handleCartUpdate)
	mux.HandleFunc("DELETE /api/cart/items/{productID}", h.handleCartRemove)
	mux.HandleFunc("DELETE /api/cart", h.handleCartClear)
	mux.HandleFunc("POST /api/checkout", h.handleCheckout)

	mux.HandleFunc("GET /api/orders", h.handleMyOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.handleOrder)

	mux.HandleFunc("GET /api/prescriptions", h.handleMyPrescriptions)
	mux.HandleFunc("POST /api/prescriptions", h.handlePrescriptionUpload)

	mux.HandleFunc("GET /api/profile", h.handleProfile)
	mux.HandleFunc("PUT /api/profile", h.handleProfileUpdate)

	mux.Handle("GET /api/admin/orders", h.requireRole(h.handleAllOrders, profile.RoleStaff, profile.RoleAdmin))
	mux.Handle("POST /api/admin/orders/{id}/status", h.requireRole(h.handleOrderStatus, profile.RoleStaff, profile.RoleAdmin))
	mux.Handle("GET /api/admin/prescriptions/pending", h.requireRole(h.handlePendingPrescriptions, profile.RoleAdmin))
	mux.Handle("POST /api/admin/prescriptions/{id}/review", h.requireRole(h.handlePrescriptionReview, profile.RoleAdmin))
	mux.Handle("POST /api/admin/products", h.requireRole(h.handleProductCreate, profile.RoleAdmin))
	mux.Handle("PUT /api/admin/products/{id}", h.requireRole(h.handleProductUpdate, profile.RoleAdmin))
	mux.Handle("DELETE /api/admin/products/{id}", h.requireRole(h.handleProductDelete, profile.RoleAdmin))
	mux.Handle("GET /api/admin/products/low-stock", h.requireRole(h.handleLowStock, profile.RoleStaff, profile.RoleAdmin))
	mux.Handle("GET /api/admin/profiles", h.requireRole(h.handleAllProfiles, profile.RoleAdmin))
	mux.Handle("POST /api/admin/profiles/{id}/role", h.requireRole(h.handleSetRole, profile.RoleAdmin))

	return h.app.Metrics.Middleware(mux)
}

// requireRole gates a route behind one of the given profile roles.
func (h *Handler) requireRole(next http.HandlerFunc, roles ...profile.Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.app.Session.SignedIn() {
			h.writeError(w, http.StatusUnauthorized, "sign in required")
			return
		}
		for _, role := range roles {
			if h.app.Session.HasRole(role) {
				next(w, r)
				return
			}
		}
		h.writeError(w, http.StatusForbidden, "insufficient role")
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Auth ------------------------------------------------------------------------

type credentialsRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	auth := h.app.Auth()
	if auth == nil {
		h.writeError(w, http.StatusServiceUnavailable, "auth is not configured")
		return
	}
	var req credentialsRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	metadata := map[string]any{}
	if req.FirstName != "" {
		metadata["first_name"] = req.FirstName
	}
	if req.LastName != "" {
		metadata["last_name"] = req.LastName
	}
	sess, err := auth.SignUp(r.Context(), req.Email, req.Password, metadata)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"user": sess.User})
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	auth := h.app.Auth()
	if auth == nil {
		h.writeError(w, http.StatusServiceUnavailable, "auth is not configured")
		return
	}
	var req credentialsRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	sess, err := auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "invalid credentials")
		h.logger.WithError(err).Debug("sign-in failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"user": sess.User})
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	auth := h.app.Auth()
	if auth == nil {
		h.writeError(w, http.StatusServiceUnavailable, "auth is not configured")
		return
	}
	if err := auth.SignOut(r.Context()); err != nil {
		h.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSession(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"signed_in": h.app.Session.SignedIn(),
		"user":      h.app.Session.User(),
		"profile":   h.app.Session.Profile(),
	})
}

// Catalog ---------------------------------------------------------------------

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.app.Catalog.Categories(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, categories)
}

func (h *Handler) handleProducts(w http.ResponseWriter, r *http.Request) {
	filter := catalog.Filter{}
	if raw := r.URL.Query().Get("category"); raw != "" {
		filter.CategoryIDs = strings.Split(raw, ",")
	}
	if raw := r.URL.Query().Get("max_price"); raw != "" {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "max_price must be a number")
			return
		}
		filter.MaxPrice = price
	}

	products, err := h.app.Catalog.Products(r.Context(), filter)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, products)
}

func (h *Handler) handleProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Catalog.Product(r.Context(), r.PathValue("id"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	results, err := h.app.Catalog.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, results)
}

func (h *Handler) handleRecentSearches(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recent, err := h.app.Catalog.RecentSearches(r.Context(), limit)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, recent)
}

func (h *Handler) handleFavorites(w http.ResponseWriter, r *http.Request) {
	favorites, err := h.app.Catalog.Favorites(r.Context())
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, favorites)
}

func (h *Handler) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	on, err := h.app.Catalog.ToggleFavorite(r.Context(), r.PathValue("productID"))
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"favorite": on})
}

// Cart and checkout -----------------------------------------------------------

type cartView struct {
	Lines                []cartLineView `json:"lines"`
	Total                float64        `json:"total"`
	Count                int            `json:"count"`
	RequiresPrescription bool           `json:"requires_prescription"`
}

type cartLineView struct {
	Product  catalog.Product `json:"product"`
	Quantity int             `json:"quantity"`
	Subtotal float64         `json:"subtotal"`
}

func (h *Handler) cartView() cartView {
	lines := h.app.Cart.Lines()
	view := cartView{
		Lines:                make([]cartLineView, 0, len(lines)),
		Total:                h.app.Cart.Total(),
		Count:                h.app.Cart.Count(),
		RequiresPrescription: h.app.Cart.RequiresPrescription(),
	}
	for _, line := range lines {
		view.Lines = append(view.Lines, cartLineView{
			Product:  line.Product,
			Quantity: line.Quantity,
			Subtotal: line.Subtotal(),
		})
	}
	return view
}

func (h *Handler) handleCart(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.cartView())
}

func (h *Handler) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}

	p, err := h.app.Catalog.Product(r.Context(), req.ProductID)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.app.Cart.AddItem(p, req.Quantity)
	h.writeJSON(w, http.StatusOK, h.cartView())
}

func (h *Handler) handleCartUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}
	h.app.Cart.UpdateQuantity(r.PathValue("productID"), req.Quantity)
	h.writeJSON(w, http.StatusOK, h.cartView())
}

func (h *Handler) handleCartRemove(w http.ResponseWriter, r *http.Request) {
	h.app.Cart.RemoveItem(r.PathValue("productID"))
	h.writeJSON(w, http.StatusOK, h.cartView())
}

func (h *Handler) handleCartClear(w http.ResponseWriter, _ *http.Request) {
	h.app.Cart.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	placed, err := h.app.Checkout.Submit(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, placed)
}

// Orders ----------------------------------------------------------------------

func (h *Handler) handleMyOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Orders.Mine(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.app.Orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, o)
}

func (h *Handler) handleAllOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Orders.All(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}
	updated, err := h.app.Orders.Advance(r.Context(), r.PathValue("id"), order.Status(req.Status))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

// Prescriptions ---------------------------------------------------------------

func (h *Handler) handleMyPrescriptions(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Prescriptions.Mine(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handlePrescriptionUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, http.StatusBadRequest, "expected a multipart document upload")
		return
	}
	file, header, err := r.FormFile("document")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "document field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read document")
		return
	}

	created, err := h.app.Prescriptions.Upload(r.Context(), header.Filename, data, header.Header.Get("Content-Type"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handlePendingPrescriptions(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Prescriptions.Pending(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handlePrescriptionReview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Approve bool   `json:"approve"`
		Notes   string `json:"notes"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}
	reviewed, err := h.app.Prescriptions.Review(r.Context(), r.PathValue("id"), req.Approve,
		h.app.Session.UserID(), req.Notes)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reviewed)
}

// Profiles --------------------------------------------------------------------

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Profiles.Mine(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Phone     string `json:"phone"`
		Address   string `json:"address"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}
	updated, err := h.app.Profiles.Update(r.Context(), req.FirstName, req.LastName, req.Phone, req.Address)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleAllProfiles(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Profiles.All(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleSetRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role string `json:"role"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}
	updated, err := h.app.Profiles.SetRole(r.Context(), r.PathValue("id"), profile.Role(req.Role))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.serviceError(w, err)
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

// Admin catalog ---------------------------------------------------------------

func (h *Handler) handleProductCreate(w http.ResponseWriter, r *http.Request) {
	var p catalog.Product
	if !h.decodeJSON(w, r, &p) {
		return
	}
	created, err := h.app.Catalog.CreateProduct(r.Context(), p)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleProductUpdate(w http.ResponseWriter, r *http.Request) {
	var p catalog.Product
	if !h.decodeJSON(w, r, &p) {
		return
	}
	p.ID = r.PathValue("id")
	updated, err := h.app.Catalog.UpdateProduct(r.Context(), p)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleProductDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Catalog.DeleteProduct(r.Context(), r.PathValue("id")); err != nil {
		h.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Catalog.LowStockProducts(r.Context())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// Helpers ---------------------------------------------------------------------

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Error("failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// serviceError maps service errors to HTTP statuses.
func (h *Handler) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, checkout.ErrNotSignedIn),
		errors.Is(err, orders.ErrNotSignedIn),
		errors.Is(err, prescriptions.ErrNotSignedIn),
		errors.Is(err, profiles.ErrNotSignedIn):
		h.writeError(w, http.StatusUnauthorized, "sign in required")
	case errors.Is(err, checkout.ErrPrescriptionRequired):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, orders.ErrForbidden):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, prescriptions.ErrAlreadyReviewed):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not found")
	default:
		h.logger.WithError(err).Error("request failed")
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
