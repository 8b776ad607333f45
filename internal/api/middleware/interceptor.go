package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/vigil-sec/vigil/internal/captcha"
	"github.com/vigil-sec/vigil/internal/config"
	"github.com/vigil-sec/vigil/internal/logger"
	"github.com/vigil-sec/vigil/internal/metrics"
	"github.com/vigil-sec/vigil/internal/models"
	"github.com/vigil-sec/vigil/internal/policy"
	"github.com/vigil-sec/vigil/internal/store"
	"github.com/vigil-sec/vigil/internal/telemetry"
)

const mockIPHeader = "Mock-IP"

// Interceptor is the enforcement and capture middleware. Every request
// through it is checked against active mitigations, then recorded for
// the analysis pipeline.
type Interceptor struct {
	cfg      *config.Config
	store    store.Store
	verifier captcha.Verifier
	batcher  *telemetry.Batcher
	sink     *telemetry.Sink
}

func NewInterceptor(cfg *config.Config, st store.Store, verifier captcha.Verifier, batcher *telemetry.Batcher, sink *telemetry.Sink) *Interceptor {
	return &Interceptor{cfg: cfg, store: st, verifier: verifier, batcher: batcher, sink: sink}
}

// Handler returns the gin middleware.
func (i *Interceptor) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		clientIP := c.ClientIP()
		if i.cfg.AllowMockIP {
			if mock := c.GetHeader(mockIPHeader); mock != "" {
				clientIP = mock
			}
		}

		body, username, captchaToken := i.readBody(c)
		if username == "" {
			username = subjectFromBearer(c, i.cfg.JWTSecret)
		}

		metrics.IncRequestEvaluated()

		level := i.checkMitigations(c.Request.Context(), clientIP, username)
		decision := policy.Decide(c.Request.Context(), level, captchaToken, i.verifier)

		switch decision {
		case policy.Banned:
			metrics.IncRequestBlocked(decision.String())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "You have been permanently banned due to suspicious activity.",
				"message": "Your access has been permanently blocked due to suspicious activity.",
			})
			return
		case policy.TemporarilyBlocked:
			metrics.IncRequestBlocked(decision.String())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Your account has been temporarily blocked due to suspicious activity.",
				"message": "Your access has been temporarily blocked. Please try again later.",
			})
			return
		case policy.ChallengeRequired:
			metrics.IncRequestBlocked(decision.String())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":            "Captcha required",
				"message":          "Please complete the captcha verification to continue.",
				"requires_captcha": true,
			})
			return
		case policy.ChallengeFailed:
			metrics.IncRequestBlocked(decision.String())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":            "Captcha verification failed",
				"message":          "The captcha verification failed. Please try again.",
				"requires_captcha": true,
			})
			return
		case policy.Delayed:
			time.Sleep(i.cfg.DelayDuration)
		}

		rec := i.buildRecord(c, clientIP, username, body)

		c.Next()

		rec.ResponseStatus = c.Writer.Status()
		rec.ResponseSuccess = rec.ResponseStatus >= 200 && rec.ResponseStatus < 300
		rec.ProcessingTimeMS = float64(time.Since(start).Microseconds()) / 1000.0

		i.batcher.Enqueue(rec)
		go func() {
			if err := i.sink.Save(&rec); err != nil {
				logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("failed to persist request record")
			}
		}()
	}
}

// readBody captures the request body for mutating methods and restores
// it so handlers can read it again. JSON bodies yield the username and
// challenge token the enforcement check needs.
func (i *Interceptor) readBody(c *gin.Context) (body []byte, username, captchaToken string) {
	switch c.Request.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil, "", ""
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("failed to read request body")
		return nil, "", ""
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	if len(body) == 0 {
		return body, "", ""
	}

	var parsed struct {
		Username     string `json:"username"`
		YourUsername string `json:"yourUsername"`
		CaptchaToken string `json:"captcha_token"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return body, "", ""
	}

	username = parsed.Username
	if username == "" {
		username = parsed.YourUsername
	}
	return body, username, parsed.CaptchaToken
}

// checkMitigations resolves the effective enforcement level as the
// stricter of the IP and user mitigations. Store errors fail open so a
// state-store outage never takes the protected API down with it.
func (i *Interceptor) checkMitigations(ctx context.Context, ip, user string) models.Level {
	level := models.LevelNone

	if ip != "" {
		action, ok, err := i.store.Get(ctx, models.EntityIP, ip)
		if err != nil {
			logger.WithFields(map[string]interface{}{"error": err.Error(), "ip": ip}).
				Warn("mitigation lookup failed, failing open")
		} else if ok {
			level = models.MaxLevel(level, action.Level())
		}
	}

	if user != "" {
		action, ok, err := i.store.Get(ctx, models.EntityUser, user)
		if err != nil {
			logger.WithFields(map[string]interface{}{"error": err.Error(), "user": user}).
				Warn("mitigation lookup failed, failing open")
		} else if ok {
			level = models.MaxLevel(level, action.Level())
		}
	}

	return level
}

func (i *Interceptor) buildRecord(c *gin.Context, clientIP, username string, body []byte) models.RequestRecord {
	port := 0
	if _, p, err := net.SplitHostPort(c.Request.RemoteAddr); err == nil {
		port, _ = strconv.Atoi(p)
	}

	rec := models.RequestRecord{
		Timestamp:     time.Now().UTC(),
		Method:        c.Request.Method,
		Path:          c.Request.URL.Path,
		FullURL:       fullURL(c.Request),
		QueryParams:   c.Request.URL.RawQuery,
		ClientIP:      clientIP,
		ClientPort:    port,
		UserAgent:     c.Request.UserAgent(),
		Referer:       c.Request.Referer(),
		Origin:        c.GetHeader("Origin"),
		ContentType:   c.ContentType(),
		Authorization: SanitizeAuthorization(c.GetHeader("Authorization")),
		User:          username,
		BodySize:      len(body),
	}
	if len(body) > 0 {
		rec.BodyRaw = string(body)
		rec.BodySanitized = SanitizeBody(body)
	}
	return rec
}

func fullURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, r.Host, r.URL.RequestURI())
}

func subjectFromBearer(c *gin.Context, secret string) string {
	auth := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) || secret == "" {
		return ""
	}

	token, err := jwt.Parse(strings.TrimPrefix(auth, prefix), func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return ""
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}
