package config

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/juho05/log"
)

var (
	valuesLock sync.Mutex
	values     = make(map[string]any)
)

func memo[T any](name string, load func() T) T {
	valuesLock.Lock()
	defer valuesLock.Unlock()
	if v, ok := values[name]; ok {
		return v.(T)
	}
	v := load()
	values[name] = v
	return v
}

func stringValue(name, def string) string {
	return memo(name, func() string {
		v := os.Getenv(name)
		if v == "" {
			return def
		}
		return v
	})
}

func boolValue(name string, def bool) bool {
	return memo(name, func() bool {
		str := os.Getenv(name)
		if str == "" {
			return def
		}
		v, err := strconv.ParseBool(str)
		if err != nil {
			log.Errorf("Invalid value for %s '%s': not a boolean. Using default: %t", name, str, def)
			return def
		}
		return v
	})
}

func durationValue(name string, def time.Duration) time.Duration {
	return memo(name, func() time.Duration {
		str := os.Getenv(name)
		if str == "" {
			return def
		}
		v, err := time.ParseDuration(str)
		if err != nil {
			log.Errorf("Invalid value for %s '%s': not a duration. Using default: %s", name, str, def)
			return def
		}
		return v
	})
}

func intValue(name string, def int) int {
	return memo(name, func() int {
		str := os.Getenv(name)
		if str == "" {
			return def
		}
		v, err := strconv.Atoi(str)
		if err != nil {
			log.Errorf("Invalid value for %s '%s': not a number. Using default: %d", name, str, def)
			return def
		}
		return v
	})
}

func Port() int {
	return intValue("PORT", 8052)
}

func LogLevel() (sev log.Severity) {
	return memo("LOG_LEVEL", func() log.Severity {
		def := log.INFO
		logLevelStr := os.Getenv("LOG_LEVEL")
		if logLevelStr == "" {
			return def
		}
		level, err := strconv.Atoi(logLevelStr)
		if err != nil {
			log.Errorf("Invalid log level '%s': not a number. Using default: %d", logLevelStr, def)
			return def
		}
		if level < int(log.NONE) || level > int(log.TRACE) {
			log.Errorf("Invalid log level. Valid values: 0 (none), 1 (fatal), 2 (error), 3 (warning), 4 (info), 5 (trace). Using default: %d", def)
			return def
		}
		return log.Severity(level)
	})
}

func LogFile() *os.File {
	return memo("LOG_FILE", func() *os.File {
		def := os.Stderr
		if os.Getenv("LOG_FILE") == "" {
			return def
		}
		appnd, _ := strconv.ParseBool(os.Getenv("LOG_APPEND"))
		if appnd {
			file, err := os.OpenFile(os.Getenv("LOG_FILE"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				log.Errorf("Failed to open log file %s. Using default: STDERR", err)
				return def
			}
			return file
		}
		file, err := os.Create(os.Getenv("LOG_FILE"))
		if err != nil {
			log.Errorf("Failed to create log file %s. Using default: STDERR", err)
			return def
		}
		return file
	})
}

func TLSCert() string {
	return stringValue("TLS_CERT", "")
}

func TLSKey() string {
	return stringValue("TLS_KEY", "")
}

func BehindProxy() bool {
	return boolValue("BEHIND_PROXY", false)
}

// CORSOrigins is a comma separated list of origins allowed to call the API
// with credentials.
func CORSOrigins() []string {
	return memo("CORS_ORIGINS", func() []string {
		str := os.Getenv("CORS_ORIGINS")
		if str == "" {
			return nil
		}
		origins := strings.Split(str, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		return origins
	})
}

// SessionType selects the store backend: memory, null, filesystem, remote,
// redis, sqlite or postgres.
func SessionType() string {
	return stringValue("SESSION_TYPE", "null")
}

func SessionCookieName() string {
	return stringValue("SESSION_COOKIE_NAME", "session")
}

func SessionCookieDomain() string {
	return stringValue("SESSION_COOKIE_DOMAIN", "")
}

func SessionCookiePath() string {
	return stringValue("SESSION_COOKIE_PATH", "/")
}

func SessionCookieHTTPOnly() bool {
	return boolValue("SESSION_COOKIE_HTTPONLY", true)
}

func SessionCookieSecure() bool {
	return boolValue("SESSION_COOKIE_SECURE", false)
}

func SessionCookieSameSite() http.SameSite {
	return memo("SESSION_COOKIE_SAMESITE", func() http.SameSite {
		def := http.SameSiteLaxMode
		switch strings.ToLower(os.Getenv("SESSION_COOKIE_SAMESITE")) {
		case "":
			return def
		case "lax":
			return http.SameSiteLaxMode
		case "strict":
			return http.SameSiteStrictMode
		case "none":
			return http.SameSiteNoneMode
		default:
			log.Errorf("Invalid SESSION_COOKIE_SAMESITE. Valid values: lax, strict, none. Using default: lax")
			return def
		}
	})
}

func SessionKeyPrefix() string {
	return stringValue("SESSION_KEY_PREFIX", "session:")
}

func SessionPermanent() bool {
	return boolValue("SESSION_PERMANENT", true)
}

func SessionLifetime() time.Duration {
	return durationValue("SESSION_LIFETIME", 30*24*time.Hour)
}

func SessionFilePath() string {
	return memo("SESSION_FILE_PATH", func() string {
		if p := os.Getenv("SESSION_FILE_PATH"); p != "" {
			return p
		}
		wd, err := os.Getwd()
		if err != nil {
			log.Errorf("Failed to determine working directory: %s", err)
			wd = "."
		}
		return filepath.Join(wd, "apcalt_store")
	})
}

// SessionFileMode is parsed as an octal number, e.g. 600.
func SessionFileMode() os.FileMode {
	return memo("SESSION_FILE_MODE", func() os.FileMode {
		def := os.FileMode(0o600)
		str := os.Getenv("SESSION_FILE_MODE")
		if str == "" {
			return def
		}
		mode, err := strconv.ParseUint(str, 8, 32)
		if err != nil {
			log.Errorf("Invalid SESSION_FILE_MODE '%s': not an octal number. Using default: %o", str, def)
			return def
		}
		return os.FileMode(mode)
	})
}

func SessionRedisURL() string {
	return stringValue("SESSION_REDIS_URL", "redis://localhost:6379")
}

func SessionDBConnection() string {
	return stringValue("SESSION_DB_CONNECTION", "apcalt.sqlite")
}

func AutoMigrate() bool {
	return boolValue("AUTO_MIGRATE", true)
}

// CleanupInterval is the period of the bulk expiry sweep. 0 disables it.
func CleanupInterval() time.Duration {
	return durationValue("CLEANUP_INTERVAL", 10*time.Minute)
}

func CacheKeyPrefix() string {
	return stringValue("CACHE_KEY_PREFIX", "cache:")
}

func CacheTTL() time.Duration {
	return durationValue("CACHE_TTL", time.Hour)
}

func HTTPTimeout() time.Duration {
	return durationValue("HTTP_TIMEOUT", 30*time.Second)
}

// LoginRateLimit is the number of login attempts allowed per IP and minute.
func LoginRateLimit() int {
	return intValue("LOGIN_RATE_LIMIT", 10)
}

func APCLoginURL() string {
	return stringValue("APC_LOGIN_URL", "https://account.collegeboard.org/login/login?appId=366&idp=ECL&DURL=https://myap.collegeboard.org/login")
}

func APCAuthnURL() string {
	return stringValue("APC_AUTHN_URL", "https://prod.idp.collegeboard.org/api/v1/authn")
}

// APCCookieURL is the URL whose cookie jar entry holds the cb_login cookie.
func APCCookieURL() string {
	return stringValue("APC_COOKIE_URL", "https://www.collegeboard.org")
}

func APCAWSCredsURL() string {
	return stringValue("APC_AWS_CREDS_URL", "https://sucred.catapult-prod.collegeboard.org/rel/temp-user-aws-creds")
}

func APCAccountURL() string {
	return stringValue("APC_ACCOUNT_URL", "https://am-accounts-production.collegeboard.org/account/api/")
}

func APCAPIURL() string {
	return stringValue("APC_API_URL", "https://apc-api-production.collegeboard.org")
}
