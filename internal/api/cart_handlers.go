package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/example/poster-shop/internal/api/middleware"
	"github.com/example/poster-shop/internal/cartstate"
	"github.com/example/poster-shop/internal/domain/cart"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSendBuffer = 16
)

// CartView is the cart as the storefront renders it
type CartView struct {
	SessionID     string          `json:"sessionId"`
	Items         []cart.Item     `json:"items"`
	ItemCount     int             `json:"itemCount"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	ExpiresAt     *time.Time      `json:"expiresAt,omitempty"`
	TimeRemaining string          `json:"timeRemaining,omitempty"`
}

func newCartView(sessionID string, c *cart.Cart, now time.Time) CartView {
	view := CartView{
		SessionID:  sessionID,
		Items:      []cart.Item{},
		ItemCount:  c.ItemCount(),
		TotalPrice: c.TotalPrice(),
	}
	if c != nil {
		view.Items = append(view.Items, c.Items...)
		expiresAt := c.ExpiresAt
		view.ExpiresAt = &expiresAt
		view.TimeRemaining = cart.TimeRemaining(c.ExpiresAt, now)
	}
	return view
}

// wsMessage is pushed over /cart/ws
type wsMessage struct {
	Type   string            `json:"type"`
	Cart   *CartView         `json:"cart,omitempty"`
	Notice *cartstate.Notice `json:"notice,omitempty"`
}

type CartHandlers struct {
	registry *cartstate.Registry
	notices  *NoticeHub
	upgrader websocket.Upgrader
	now      func() time.Time
}

func NewCartHandlers(registry *cartstate.Registry, notices *NoticeHub, allowedOrigins []string) *CartHandlers {
	return &CartHandlers{
		registry: registry,
		notices:  notices,
		upgrader: websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)},
		now:      time.Now,
	}
}

func (h *CartHandlers) reconciler(c *gin.Context) (*cartstate.Reconciler, bool) {
	r, err := h.registry.Get(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return r, true
}

// respondCart answers a cart mutation. A remote write that failed after the
// local change is reported as 202 with the optimistic cart.
func (h *CartHandlers) respondCart(c *gin.Context, r *cartstate.Reconciler, err error) {
	view := newCartView(r.SessionID(), r.Snapshot(), h.now())
	var syncErr *cartstate.SyncError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, view)
	case errors.As(err, &syncErr):
		c.JSON(http.StatusAccepted, gin.H{"status": string(cartstate.NoticeSyncPending), "error": err.Error(), "cart": view})
	default:
		respondError(c, err)
	}
}

// GetCart handles GET /cart
func (h *CartHandlers) GetCart(c *gin.Context) {
	r, ok := h.reconciler(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newCartView(r.SessionID(), r.Snapshot(), h.now()))
}

// AddToCart handles POST /cart/items
func (h *CartHandlers) AddToCart(c *gin.Context) {
	var req struct {
		ProductID string `json:"productId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	r, ok := h.reconciler(c)
	if !ok {
		return
	}
	h.respondCart(c, r, r.AddToCart(c.Request.Context(), req.ProductID))
}

// UpdateQuantity handles PUT /cart/items/:productId
func (h *CartHandlers) UpdateQuantity(c *gin.Context) {
	var req struct {
		Quantity *int `json:"quantity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	r, ok := h.reconciler(c)
	if !ok {
		return
	}
	h.respondCart(c, r, r.UpdateQuantity(c.Request.Context(), c.Param("productId"), *req.Quantity))
}

// RemoveFromCart handles DELETE /cart/items/:productId
func (h *CartHandlers) RemoveFromCart(c *gin.Context) {
	r, ok := h.reconciler(c)
	if !ok {
		return
	}
	h.respondCart(c, r, r.RemoveFromCart(c.Request.Context(), c.Param("productId")))
}

// ClearCart handles DELETE /cart
func (h *CartHandlers) ClearCart(c *gin.Context) {
	r, ok := h.reconciler(c)
	if !ok {
		return
	}
	h.respondCart(c, r, r.Clear(c.Request.Context()))
}

// RefreshCart handles POST /cart/refresh
func (h *CartHandlers) RefreshCart(c *gin.Context) {
	r, ok := h.reconciler(c)
	if !ok {
		return
	}
	h.respondCart(c, r, r.Refresh(c.Request.Context()))
}

// Stream handles GET /cart/ws. The connection receives the cart on every
// change and the session's notices until the client goes away.
func (h *CartHandlers) Stream(c *gin.Context) {
	r, ok := h.reconciler(c)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[API] Websocket upgrade failed for %s: %v", r.SessionID(), err)
		return
	}
	defer conn.Close()

	send := make(chan wsMessage, wsSendBuffer)
	push := func(msg wsMessage) {
		select {
		case send <- msg:
		default:
			log.Printf("[API] Websocket for %s is behind, dropping %s", r.SessionID(), msg.Type)
		}
	}

	stopObserving := r.Observe(func(ct *cart.Cart) {
		view := newCartView(r.SessionID(), ct, h.now())
		push(wsMessage{Type: "cart", Cart: &view})
	})
	defer stopObserving()

	notices, stopListening := h.notices.Listen(r.SessionID())
	defer stopListening()

	initial := newCartView(r.SessionID(), r.Snapshot(), h.now())
	push(wsMessage{Type: "cart", Cart: &initial})

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		var msg wsMessage
		select {
		case <-closed:
			return
		case msg = <-send:
		case n := <-notices:
			msg = wsMessage{Type: "notice", Notice: &n}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("[API] Websocket write to %s failed: %v", r.SessionID(), err)
			return
		}
	}
}
