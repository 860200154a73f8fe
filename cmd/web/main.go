package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/juho05/log"

	"github.com/juho05/apcalt/config"
	"github.com/juho05/apcalt/handlers"
	"github.com/juho05/apcalt/repos"
	"github.com/juho05/apcalt/repos/backend"
	"github.com/juho05/apcalt/services"
)

func cleanup(ctx context.Context, store repos.ExpiringStore, interval time.Duration) {
	sweeper, ok := store.(repos.Sweeper)
	if !ok || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sweeper.DeleteExpired(ctx)
			if err != nil {
				log.Errorf("Failed to delete expired entries: %s", err)
				continue
			}
			if n > 0 {
				log.Tracef("Deleted %d expired entries", n)
			}
		}
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := backend.Open(ctx, backend.Options{
		Type:         config.SessionType(),
		FilePath:     config.SessionFilePath(),
		FileMode:     config.SessionFileMode(),
		RedisURL:     config.SessionRedisURL(),
		DBConnection: config.SessionDBConnection(),
		AutoMigrate:  config.AutoMigrate(),
	})
	if err != nil {
		if errors.Is(err, backend.ErrUnknownBackend) {
			log.Fatalf("Invalid SESSION_TYPE: %s", err)
		}
		return fmt.Errorf("Failed to open store: %w", err)
	}
	defer store.Close()
	go cleanup(ctx, store, config.CleanupInterval())

	client := &http.Client{
		Timeout: config.HTTPTimeout(),
	}

	handler := handlers.NewHandler()
	handler.SessionService = services.NewSessionService(store, services.SessionOptions{
		CookieName:     config.SessionCookieName(),
		CookieDomain:   config.SessionCookieDomain(),
		CookiePath:     config.SessionCookiePath(),
		CookieHTTPOnly: config.SessionCookieHTTPOnly(),
		CookieSecure:   config.SessionCookieSecure(),
		CookieSameSite: config.SessionCookieSameSite(),
		KeyPrefix:      config.SessionKeyPrefix(),
		Permanent:      config.SessionPermanent(),
		Lifetime:       config.SessionLifetime(),
	})
	handler.AuthService = services.NewAuthService(services.NewCollegeBoardProvider(client, services.ProviderURLs{
		Login:    config.APCLoginURL(),
		Authn:    config.APCAuthnURL(),
		Cookie:   config.APCCookieURL(),
		AWSCreds: config.APCAWSCredsURL(),
		Account:  config.APCAccountURL(),
	}))
	cache := services.NewCache(store, config.CacheKeyPrefix())
	handler.ClassroomService = services.NewClassroomService(client, config.APCAPIURL(), handler.AuthService, cache, config.CacheTTL())
	handler.RegisterRoutes()

	cert := config.TLSCert()
	key := config.TLSKey()

	addr := fmt.Sprintf(":%d", config.Port())
	log.Infof("Listening on %s...", addr)

	if cert != "" && key != "" {
		return http.ListenAndServeTLS(addr, cert, key, handler)
	}
	return http.ListenAndServe(addr, handler)
}

func main() {
	godotenv.Load()

	log.SetSeverity(config.LogLevel())
	log.SetOutput(config.LogFile())

	err := run()
	if err != nil {
		log.Fatalf("%s", err)
	}
}
