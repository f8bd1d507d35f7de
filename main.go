package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"projectpulse/microservices/taskpool-service/clients"
	"projectpulse/microservices/taskpool-service/handlers"
	"projectpulse/microservices/taskpool-service/logging"
	"projectpulse/microservices/taskpool-service/repositories"
	"projectpulse/microservices/taskpool-service/services"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Role, User-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	logging.InitLogger()

	logging.Logger.Info("Event ID: SERVICE_START, Description: Starting Taskpool Service...")
	err := godotenv.Load(".env")
	if err != nil {
		logging.Logger.Warnf("Event ID: ENV_LOAD_ERROR, Description: Error loading .env file: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var store repositories.Store
	if os.Getenv("STORE") == "memory" {
		logging.Logger.Info("Event ID: STORE_MEMORY, Description: Using in-memory store (no persistence).")
		store = repositories.NewMemoryStore()
	} else {
		mongoURI := os.Getenv("MONGO_URI")
		mongoDBName := os.Getenv("MONGO_DB_NAME")

		client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
		if err != nil {
			logging.Logger.Fatalf("Event ID: DB_CONNECTION_FAILED, Description: Database connection for MongoDB failed: %v", err)
		}
		defer client.Disconnect(ctx)

		if err := client.Ping(ctx, nil); err != nil {
			logging.Logger.Fatalf("Event ID: DB_PING_FAILED, Description: MongoDB connection ping error: %v", err)
		}
		logging.Logger.Infof("Event ID: DB_CONNECTED, Description: Successfully connected to MongoDB at %s.", mongoURI)

		mongoStore := repositories.NewMongoStore(client, mongoDBName)
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			logging.Logger.Fatalf("Event ID: DB_INDEX_FAILED, Description: Failed to ensure indexes: %v", err)
		}
		store = mongoStore
	}

	var notifier *clients.NotificationsClient
	if notificationsURL := os.Getenv("NOTIFICATIONS_URL"); notificationsURL != "" {
		notificationsBreaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "notifications-cb",
			MaxRequests: 1,
			Timeout:     5 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logging.Logger.Infof("Event ID: CIRCUIT_BREAKER_STATE_CHANGE, Description: Circuit Breaker '%s' changed from '%s' to '%s'", name, from.String(), to.String())
			},
		})
		notifier = clients.NewNotificationsClient(notificationsURL, notificationsBreaker)
	}

	taskPoolService := services.NewTaskPoolService(store, notifier)
	stageService := services.NewStageService(store)
	leaderboardService := services.NewLeaderboardService(store)
	sweeperService := services.NewSweeperService(store, notifier, 0)

	taskHandler := handlers.NewTaskHandler(taskPoolService)
	stageHandler := handlers.NewStageHandler(stageService)
	leaderboardHandler := handlers.NewLeaderboardHandler(leaderboardService)
	sweepHandler := handlers.NewSweepHandler(sweeperService)

	r := mux.NewRouter()

	r.HandleFunc("/api/tasks", taskHandler.CreateTask).Methods(http.MethodPost)
	r.HandleFunc("/api/tasks/stage/{stageID}", taskHandler.GetTasksByStage).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/{taskID}", taskHandler.GetTask).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/{taskID}", taskHandler.DeleteTask).Methods(http.MethodDelete)
	r.HandleFunc("/api/tasks/{taskID}/assign", taskHandler.AssignTask).Methods(http.MethodPost)
	r.HandleFunc("/api/tasks/{taskID}/unassign", taskHandler.UnassignTask).Methods(http.MethodPost)
	r.HandleFunc("/api/tasks/{taskID}/complete", taskHandler.CompleteTask).Methods(http.MethodPost)
	r.HandleFunc("/api/tasks/{taskID}/progress", taskHandler.UpdateProgress).Methods(http.MethodPatch)

	r.HandleFunc("/api/stages", stageHandler.CreateStage).Methods(http.MethodPost)
	r.HandleFunc("/api/stages/project/{projectID}", stageHandler.GetStagesByProject).Methods(http.MethodGet)
	r.HandleFunc("/api/stages/project/{projectID}/locks", stageHandler.GetStageLockStatus).Methods(http.MethodGet)

	r.HandleFunc("/api/leaderboard/{projectID}", leaderboardHandler.GetLeaderboard).Methods(http.MethodGet)

	r.HandleFunc("/api/internal/sweep", sweepHandler.SweepOverdueTasks).Methods(http.MethodPost)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	corsRouter := enableCORS(r)

	// An external scheduler normally drives the sweep through the endpoint;
	// SWEEP_INTERVAL enables an in-process ticker for deployments without one.
	if interval := os.Getenv("SWEEP_INTERVAL"); interval != "" {
		sweepInterval, err := time.ParseDuration(interval)
		if err != nil {
			logging.Logger.Fatalf("Event ID: CONFIG_ERROR, Description: Invalid SWEEP_INTERVAL value %q: %v", interval, err)
		}
		go func() {
			ticker := time.NewTicker(sweepInterval)
			defer ticker.Stop()
			for range ticker.C {
				if err := sweeperService.SweepOverdueTasks(context.Background()); err != nil {
					logging.Logger.Errorf("Event ID: SWEEP_FAILED, Description: Scheduled deadline sweep failed: %v", err)
				}
			}
		}()
		logging.Logger.Infof("Event ID: SWEEP_SCHEDULED, Description: In-process deadline sweep running every %s", sweepInterval)
	}

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		logging.Logger.Fatalf("Event ID: CONFIG_ERROR, Description: SERVER_PORT is not set in the environment variables.")
	}

	serverAddress := fmt.Sprintf(":%s", serverPort)
	logging.Logger.Infof("Event ID: SERVER_START_INFO, Description: Server running on http://localhost%s", serverAddress)

	if err := http.ListenAndServe(serverAddress, corsRouter); err != nil {
		logging.Logger.Fatalf("Event ID: SERVER_FATAL_ERROR, Description: Server failed to start: %v", err)
	}
}
