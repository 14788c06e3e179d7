package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edutend/internal/attendance"
	"edutend/internal/auth"
	"edutend/internal/config"
	"edutend/internal/httpmiddleware"
	"edutend/internal/notify"
	"edutend/internal/pinqr"
	"edutend/internal/queue"
	"edutend/internal/session"
	"edutend/internal/settings"
	"edutend/internal/store"
	"edutend/internal/user"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var db *store.DB
	if cfg.KVBackend == "postgres" {
		var err error
		db, err = store.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Printf("warning: db not reachable, falling back to memory store: %v", err)
			db = nil
		}
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var kv store.KV
	if db != nil {
		pg, err := store.NewPostgres(ctx, db.Client)
		if err != nil {
			return err
		}
		kv = pg
	} else {
		kv = store.NewMemory()
	}

	// Same-process views get synchronous callbacks; other processes
	// observe the Redis channel.
	local := notify.NewLocal()
	bus := notify.NewFanout(local, notify.NewRedisBus(redisClient.Client, ""))

	clk := clock.New()
	sessions := session.NewStore(kv, bus, clk)
	prefs := settings.NewStore(kv)
	controller := session.NewController(session.Config{
		Store:    sessions,
		Settings: prefs,
		Clock:    clk,
	})
	records := attendance.NewStore(kv)
	att := attendance.NewService(records, sessions, clk, cfg.AttendanceDedup)
	users := user.NewStore(kv)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "edutend:submissions")
	}

	// Cross-view refresh hook: external renderers subscribe the same way.
	cancelSub := bus.Subscribe(func(evt notify.Event) {
		if evt.Key == store.KeyCourseSessions {
			log.Printf("courseSessions changed (%d bytes), views should refresh", len(evt.Value))
		}
	})
	defer cancelSub()

	// Passive reconciliation keeps state honest even when this process
	// never armed the expiring session's timer.
	go controller.RunSweeper(ctx, cfg.SweepInterval)

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": db != nil})
	})

	r.POST("/v1/auth/signup", func(c *gin.Context) {
		var req struct {
			Name     string `json:"name" binding:"required"`
			Email    string `json:"email" binding:"required"`
			Role     string `json:"role" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		u, err := users.SignUp(c.Request.Context(), req.Name, req.Email, req.Role, req.Password)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": u.ID, "name": u.Name, "email": u.Email, "role": u.Role})
	})

	r.POST("/v1/auth/login", func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		u, err := users.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}
		tokens, err := auth.Issue(u.ID, u.Name, u.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
			"role":          u.Role,
		})
	})

	authGroup := r.Group("/v1", auth.Bearer(cfg.JWTSigningKey, cfg.JWTIssuer))
	lecturerGroup := authGroup.Group("", auth.RequireRole(user.RoleLecturer, user.RoleAdmin))

	lecturerGroup.POST("/sessions", func(c *gin.Context) {
		var req struct {
			CourseCode string `json:"course_code" binding:"required"`
			CourseName string `json:"course_name"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no course selected"})
			return
		}
		claims := mustClaims(c)
		sess, err := controller.Create(c.Request.Context(), req.CourseCode, req.CourseName, session.Lecturer{
			ID:   claims.Subject,
			Name: claims.Name,
		})
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, sess)
	})

	lecturerGroup.POST("/sessions/timer", func(c *gin.Context) {
		var req struct {
			Minutes int `json:"minutes" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := controller.SetTimer(c.Request.Context(), req.Minutes); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "timer set", "minutes": req.Minutes})
	})

	lecturerGroup.POST("/sessions/close", func(c *gin.Context) {
		var req struct {
			CourseCode string `json:"course_code" binding:"required"`
			Confirm    bool   `json:"confirm"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		// The yes/no gate lives with the caller; an unconfirmed request
		// never reaches the controller.
		if !req.Confirm {
			c.JSON(http.StatusBadRequest, gin.H{"error": "confirmation required"})
			return
		}
		if err := controller.Close(c.Request.Context(), req.CourseCode); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "session closed"})
	})

	lecturerGroup.GET("/sessions", func(c *gin.Context) {
		course := c.Query("course")
		var (
			list []session.Session
			err  error
		)
		if course != "" {
			list, err = sessions.ListByCourse(c.Request.Context(), course)
		} else {
			list, err = sessions.List(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": list})
	})

	lecturerGroup.GET("/sessions/recent", func(c *gin.Context) {
		n := 5
		if v := c.Query("n"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				n = parsed
			}
		}
		list, err := sessions.ListRecent(c.Request.Context(), n)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": list})
	})

	lecturerGroup.GET("/attendance", func(c *gin.Context) {
		sessionID := c.Query("session_id")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id required"})
			return
		}
		recs, err := records.ListBySession(c.Request.Context(), sessionID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": recs, "count": len(recs)})
	})

	lecturerGroup.GET("/settings", func(c *gin.Context) {
		c.JSON(http.StatusOK, prefs.Lecturer(c.Request.Context()))
	})

	lecturerGroup.PUT("/settings", func(c *gin.Context) {
		var req settings.Lecturer
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := prefs.SetLecturer(c.Request.Context(), req); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "settings save failed"})
			return
		}
		c.JSON(http.StatusOK, req)
	})

	authGroup.GET("/theme", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"theme": prefs.Theme(c.Request.Context())})
	})

	authGroup.PUT("/theme", func(c *gin.Context) {
		var req struct {
			Theme string `json:"theme" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := prefs.SetTheme(c.Request.Context(), req.Theme); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "theme save failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"theme": req.Theme})
	})

	authGroup.GET("/sessions/active", func(c *gin.Context) {
		course := c.Query("course")
		if course == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "course required"})
			return
		}
		sess, err := sessions.FindActive(c.Request.Context(), course)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if sess == nil {
			c.JSON(http.StatusOK, gin.H{"active": false})
			return
		}
		// PIN withheld: students learn it from the lecturer's display.
		c.JSON(http.StatusOK, gin.H{
			"active":      true,
			"session_id":  sess.SessionID,
			"course_code": sess.CourseCode,
			"course_name": sess.CourseName,
			"expiry_time": sess.ExpiryTime,
		})
	})

	lecturerGroup.GET("/sessions/qr", func(c *gin.Context) {
		course := c.Query("course")
		if course == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "course required"})
			return
		}
		sess, err := sessions.FindActive(c.Request.Context(), course)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if sess == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active session for course"})
			return
		}
		payload, err := session.QRPayload(*sess)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		png, err := pinqr.Encode(payload)
		if err != nil {
			// Session is persisted either way; only the symbol failed.
			log.Printf("qr encode failed for %s: %v", sess.SessionID, err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "qr encoding failed", "pin": sess.PIN})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	})

	authGroup.POST("/attendance", func(c *gin.Context) {
		var req struct {
			CourseCode  string `json:"course_code" binding:"required"`
			PIN         string `json:"pin" binding:"required"`
			StudentName string `json:"student_name" binding:"required"`
			StudentID   string `json:"student_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if cfg.SubmitMode == "queue" {
			sub := queue.Submission{
				CourseCode:  req.CourseCode,
				PIN:         req.PIN,
				StudentName: req.StudentName,
				StudentID:   req.StudentID,
				SubmittedAt: time.Now().UTC(),
			}
			if err := q.Publish(c.Request.Context(), sub); err != nil {
				log.Printf("queue publish failed: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "submission enqueue failed"})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
			return
		}

		rec, err := att.Submit(c.Request.Context(), req.CourseCode, req.PIN, req.StudentName, req.StudentID)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, rec)
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

func mustClaims(c *gin.Context) auth.Claims {
	claimsAny, _ := c.Get("claims")
	claims, _ := claimsAny.(auth.Claims)
	return claims
}

// statusFor maps service errors onto HTTP statuses: precondition errors
// are the caller's to fix, everything else is a server fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNoCourseSelected),
		errors.Is(err, session.ErrNoActivePIN),
		errors.Is(err, session.ErrInvalidMinutes),
		errors.Is(err, attendance.ErrMissingFields),
		errors.Is(err, attendance.ErrWrongPIN),
		errors.Is(err, attendance.ErrAlreadySubmitted):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNoActiveSession),
		errors.Is(err, attendance.ErrNoActiveSession):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
