package stream

// Client actions.
const (
	ActionSubscribe      = "subscribe"
	ActionUnsubscribe    = "unsubscribe"
	ActionUnsubscribeAll = "unsubscribe_all"
)

// Server message types.
const (
	TypeAck   = "ack"
	TypeError = "error"
	TypePrice = "price"
)

// Request is a message sent by a browser.
type Request struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols,omitempty"`
	ID      string   `json:"id,omitempty"`
}

// Response is a message sent to a browser. Price messages carry a
// model.PriceUpdate in Data.
type Response struct {
	Type    string   `json:"type"`
	ID      string   `json:"id,omitempty"`
	Message string   `json:"message,omitempty"`
	Symbols []string `json:"symbols,omitempty"`
	Data    any      `json:"data,omitempty"`
}
