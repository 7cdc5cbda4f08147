package cart

const AggregateType = "Cart"

// Event types
const (
	EventItemAdded       = "CartItemAdded"
	EventQuantityChanged = "CartQuantityChanged"
	EventItemRemoved     = "CartItemRemoved"
	EventCleared         = "CartCleared"
	EventExpired         = "CartExpired"
	EventConsumed        = "CartConsumed"
)

// ItemAddedEvent is published after a unit was reserved and written to the cart
type ItemAddedEvent struct {
	SessionID  string `json:"sessionId"`
	ProductID  string `json:"productId"`
	Quantity   int    `json:"quantity"`
	StockAfter int    `json:"stockAfter"`
}

type QuantityChangedEvent struct {
	SessionID   string `json:"sessionId"`
	ProductID   string `json:"productId"`
	OldQuantity int    `json:"oldQuantity"`
	NewQuantity int    `json:"newQuantity"`
}

type ItemRemovedEvent struct {
	SessionID string `json:"sessionId"`
	ProductID string `json:"productId"`
	Released  int    `json:"released"`
}

// ReleasedEvent covers clear and expiry; Released maps product to units returned
type ReleasedEvent struct {
	SessionID string         `json:"sessionId"`
	Released  map[string]int `json:"released"`
}

type ConsumedEvent struct {
	SessionID string `json:"sessionId"`
	Items     int    `json:"items"`
}
