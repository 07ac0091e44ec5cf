package httppresentation

import (
	"net/http"
	"strconv"
	"time"

	appproduct "github.com/Zhima-Mochi/minishop-saga/internal/application/product"
	"github.com/Zhima-Mochi/minishop-saga/internal/domain/failure"
	domproduct "github.com/Zhima-Mochi/minishop-saga/internal/domain/product"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

var errBadAmount = failure.Validation("http: amount must be a positive integer")

type productRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Amount      int             `json:"amount"`
}

func (p productRequest) input() appproduct.ProductInput {
	return appproduct.ProductInput{
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Category:    p.Category,
		Amount:      p.Amount,
	}
}

type productResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       string    `json:"price"`
	Category    string    `json:"category"`
	Amount      int       `json:"amount"`
	Version     int64     `json:"version"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toProductResponse(p *domproduct.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
		Category:    string(p.Category),
		Amount:      p.Amount,
		Version:     p.Version,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toProductResponses(products []*domproduct.Product) []productResponse {
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	return out
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.deps.Products.Products(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponses(products))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Products.Product(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *Handler) productsByCategory(w http.ResponseWriter, r *http.Request) {
	products, err := h.deps.Products.ProductsByCategory(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponses(products))
}

func (h *Handler) productPrice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	price, err := h.deps.Products.Price(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "price": price.StringFixed(2)})
}

func (h *Handler) productName(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	name, err := h.deps.Products.Name(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "name": name})
}

func (h *Handler) productAvailability(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	amount, err := strconv.Atoi(r.URL.Query().Get("amount"))
	if err != nil || amount <= 0 {
		writeDomainError(w, errBadAmount)
		return
	}
	ok, err := h.deps.Stock.IsAvailable(r.Context(), id, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "amount": amount, "available": ok})
}

func (h *Handler) addProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	p, err := h.deps.Products.AddProduct(r.Context(), callerFrom(r).Role, req.input())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(p))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	p, err := h.deps.Products.UpdateProduct(r.Context(), callerFrom(r).Role, chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Products.DeleteProduct(r.Context(), callerFrom(r).Role, chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
