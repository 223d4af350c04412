package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/trackhive/user-services/api/handlers"
	"github.com/trackhive/user-services/api/middleware"
	"github.com/trackhive/user-services/api/services"
	"github.com/trackhive/user-services/internal/authn"
	"github.com/trackhive/user-services/internal/email"
	"github.com/trackhive/user-services/internal/events"
	"github.com/trackhive/user-services/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server for handling API requests",
	Run: func(cmd *cobra.Command, args []string) {

		// Load the config, initialize the database and set up logging
		commonSetUp()
		defer userDB.Close()

		// Session signing and tracking secrets come from the environment
		tokenSecret := os.Getenv("SESSION_TOKEN_SECRET")
		if tokenSecret == "" {
			log.Fatal().Msg("SESSION_TOKEN_SECRET environment variable is not set")
		}
		trackingSecret := os.Getenv("TRACKING_ID_SECRET")
		if trackingSecret == "" {
			log.Fatal().Msg("TRACKING_ID_SECRET environment variable is not set")
		}

		// Initialize the Redis-backed session store
		redisClient, err := session.NewRedisClient(appCfg.Redis.Addr, appCfg.Redis.Password)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		sessions := session.NewRedisStore(redisClient)

		// Initialize event publisher
		publisher, err := events.NewEventPublisher(appCfg.Pulsar.URL, appCfg.Pulsar.TopicProducer)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize event publisher")
		}
		defer publisher.Close()

		// Initialize the SES mailer for account offers
		sesClient, err := email.NewSESClient(context.TODO(), appCfg.Email.Region)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize SES client")
		}
		mailer := &email.OfferMailer{
			Client:      sesClient,
			FromAddress: appCfg.Email.FromAddress,
			BaseURL:     appCfg.Email.OfferBaseURL,
		}

		// Initialize the external identity-token verifier
		identityClient := services.NewIdentityClient(appCfg.Identity.URL, appCfg.Identity.ClientId)

		auth := authn.NewAuthenticator([]byte(tokenSecret))

		service := &services.Service{
			Config:         appCfg,
			DB:             userDB,
			Sessions:       sessions,
			Auth:           auth,
			Publisher:      publisher,
			Mailer:         mailer,
			Identity:       identityClient,
			TrackingSecret: []byte(trackingSecret),
		}

		// Create routes
		r := mux.NewRouter()

		// Register the routes
		api := r.PathPrefix(appCfg.BasePath).Subrouter()

		// Apply the middleware to the API routes
		api.Use(middleware.WithLogger)
		api.Use(middleware.SessionMiddleware(auth, sessions))

		// Session routes
		api.HandleFunc("/auth/login", handlers.Login(service)).Methods(http.MethodPost)
		api.HandleFunc("/auth/logout", handlers.Logout(service)).Methods(http.MethodPost)
		api.HandleFunc("/auth/valid-login", handlers.ValidLogin(service)).Methods(http.MethodGet)
		api.HandleFunc("/auth/whoami", handlers.Whoami(service)).Methods(http.MethodGet)

		// User routes
		api.HandleFunc("/users/offer-account", handlers.OfferAccount(service)).Methods(http.MethodPost)
		api.HandleFunc("/users", handlers.CreateUser(service)).Methods(http.MethodPost)
		api.HandleFunc("/users", handlers.GetUsers(service)).Methods(http.MethodGet)
		api.HandleFunc("/users", handlers.UpdateUsers(service)).Methods(http.MethodPut)

		log.Info().Msg(fmt.Sprintf("Server started at %s:%d", host, port))

		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", host, port),
			r); err != nil {

			log.Error().Err(err).Msg("could not start server")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&host, "host", "0.0.0.0", "host to run the server on")
	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run the server on")
}
