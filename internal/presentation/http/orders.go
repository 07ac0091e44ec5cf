package httppresentation

import (
	"net/http"
	"time"

	apporder "github.com/Zhima-Mochi/minishop-saga/internal/application/order"
	domorder "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"

	"github.com/go-chi/chi/v5"
)

type placeOrderRequest struct {
	Lines []domorder.CartLine `json:"lines"`
}

type placeOrderResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

type lineResponse struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Amount      int     `json:"amount"`
	Price       *string `json:"price"`
}

type orderResponse struct {
	OrderID       string         `json:"orderId"`
	CustomerID    string         `json:"customerId"`
	Status        string         `json:"status"`
	Archived      bool           `json:"archived"`
	OrderDate     time.Time      `json:"orderDate"`
	ExecutionDate *time.Time     `json:"executionDate,omitempty"`
	Total         string         `json:"total"`
	Lines         []lineResponse `json:"lines"`
}

func toOrderResponse(o *domorder.Order) orderResponse {
	lines := make([]lineResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		var price *string
		if l.Price.Valid {
			s := l.Price.Decimal.StringFixed(2)
			price = &s
		}
		lines = append(lines, lineResponse{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Amount:      l.Amount,
			Price:       price,
		})
	}
	return orderResponse{
		OrderID:       o.ID,
		CustomerID:    o.CustomerID,
		Status:        string(o.Status),
		Archived:      o.Archived,
		OrderDate:     o.OrderDate,
		ExecutionDate: o.ExecutionDate,
		Total:         o.Total().StringFixed(2),
		Lines:         lines,
	}
}

func toOrderResponses(orders []*domorder.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	res, err := h.deps.Place.Execute(r.Context(), apporder.PlaceOrderInput{
		CustomerID: uid,
		Lines:      req.Lines,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, placeOrderResponse{OrderID: res.OrderID, Status: string(res.Status)})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.deps.Orders.Orders(r.Context(), callerFrom(r).Role)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *Handler) unarchivedOrders(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	orders, err := h.deps.Orders.UnarchivedOrders(r.Context(), uid)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *Handler) archivedOrders(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	orders, err := h.deps.Orders.ArchivedOrders(r.Context(), uid)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *Handler) unarchivedOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	o, err := h.deps.Orders.UnarchivedOrder(r.Context(), chi.URLParam(r, "orderId"), uid)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) archivedOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	o, err := h.deps.Orders.ArchivedOrder(r.Context(), chi.URLParam(r, "orderId"), uid)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.deps.Orders.CancelOrder(r.Context(), chi.URLParam(r, "orderId"), uid); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) archiveOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.deps.Orders.ArchiveOrder(r.Context(), chi.URLParam(r, "orderId"), uid); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unarchiveOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.deps.Orders.UnarchiveOrder(r.Context(), chi.URLParam(r, "orderId"), uid); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Orders.DeleteOrderByOrderID(r.Context(), chi.URLParam(r, "orderId"), callerFrom(r).Role); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
