package handler

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// SubscribeHandler exposes the event stream. It is registered on its own
// router because upgraded connections must bypass the request timeout.
type SubscribeHandler struct {
	hub http.Handler
}

func NewSubscribeHandler(hub http.Handler) *SubscribeHandler {
	return &SubscribeHandler{hub: hub}
}

func (h *SubscribeHandler) RegisterRoutes(router *httprouter.Router) {
	router.Handler(http.MethodGet, SubscribePath, h.hub)
}
