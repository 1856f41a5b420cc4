// @title           Health Station File Manager API
// @version         1.0
// @host            localhost
// @schemes         http https
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"log"
	"net/http"

	"bhs-files/internal/api"
	"bhs-files/internal/config"
	"bhs-files/internal/database"
	"bhs-files/internal/storage"
	"bhs-files/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "bhs-files/docs"

	httpSwagger "github.com/swaggo/http-swagger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Cannot load configuration: %v", err)
	}

	dbpool, err := pgxpool.New(context.Background(), cfg.DB.Source)
	if err != nil {
		log.Fatalf("Cannot connect to the database: %v", err)
	}
	defer dbpool.Close()

	if err := dbpool.Ping(context.Background()); err != nil {
		log.Fatalf("Cannot ping the database: %v", err)
	}
	log.Println("Connected to the database")

	localStorage, err := storage.NewLocalStorage(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Cannot initialize local storage: %v", err)
	}
	log.Printf("File blobs will be stored in: %s", cfg.Storage.Path)

	wsHub := websocket.NewHub()
	go wsHub.Run()

	store := database.NewStore(dbpool, wsHub)
	server := api.NewServer(cfg, store, localStorage, wsHub)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(api.MetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("https://localhost/swagger/doc.json"),
	))

	r.Get("/ws", server.ServeWsHandler)

	r.Get("/health", server.HealthCheckHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/v1/auth/login", server.LoginHandler)
	r.Post("/api/v1/auth/refresh", server.RefreshTokenHandler)
	r.Post("/api/v1/auth/logout", server.LogoutHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(server.AuthMiddleware)
		r.Get("/me", server.GetCurrentUserHandler)
		r.Get("/me/sessions", server.ListSessionsHandler)
		r.Delete("/me/sessions", server.LogoutAllHandler)
		r.Get("/nodes", server.ListNodesHandler)
		r.Post("/nodes/folder", server.CreateFolderHandler)
		r.Post("/nodes/file", server.UploadFileHandler)
		r.Get("/nodes/{nodeId}", server.GetNodeHandler)
		r.Get("/nodes/{nodeId}/download", server.DownloadFileHandler)
		r.Get("/nodes/{nodeId}/breadcrumb", server.BreadcrumbHandler)
		r.Patch("/nodes/{nodeId}", server.UpdateNodeHandler)
		r.With(server.RequireAdmin).Delete("/nodes/{nodeId}", server.DeleteNodeHandler)
		r.Get("/tree", server.FetchTreeHandler)
		r.Get("/storage/usage", server.GetStorageUsageHandler)
		r.Get("/audit", server.GetAuditHandler)
	})

	log.Printf("Starting server on %s", cfg.Listen)
	if err := http.ListenAndServe(cfg.Listen, r); err != nil {
		log.Fatalf("Cannot start server: %v", err)
	}
}
