// Package portfolio owns the user's holdings and keeps their prices live.
//
// Service persists holdings through a Repository and watches every held
// symbol once, however many holdings share it. Each price change updates the
// matching holdings and is passed on to the registered Observers (websocket
// hub, Redis cache, price history writer).
package portfolio
