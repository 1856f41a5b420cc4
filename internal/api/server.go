package api

import (
	"bhs-files/internal/config"
	"bhs-files/internal/database"
	"bhs-files/internal/storage"
	"bhs-files/internal/websocket"
)

type Server struct {
	config  *config.Config
	store   *database.Store
	storage *storage.LocalStorage
	wsHub   *websocket.Hub
}

func NewServer(cfg *config.Config, store *database.Store, storage *storage.LocalStorage, wsHub *websocket.Hub) *Server {
	return &Server{
		config:  cfg,
		store:   store,
		storage: storage,
		wsHub:   wsHub,
	}
}
