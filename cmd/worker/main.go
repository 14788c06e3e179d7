package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"

	"edutend/internal/attendance"
	"edutend/internal/config"
	"edutend/internal/notify"
	"edutend/internal/queue"
	"edutend/internal/session"
	"edutend/internal/store"
)

// Worker drains the remote-submission queue and lands each submission in
// the attendance store. This path is unsynchronized with the session
// collection: a submission validated against a session that closed while
// it sat in the queue is rejected here, not silently recorded.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	var kv store.KV
	if cfg.KVBackend == "postgres" {
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect failed: %v", err)
		}
		defer db.Close()
		pg, err := store.NewPostgres(ctx, db.Client)
		if err != nil {
			log.Fatalf("kv init failed: %v", err)
		}
		kv = pg
	} else {
		kv = store.NewMemory()
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "edutend:submissions")
	}

	clk := clock.New()
	bus := notify.NewFanout(notify.NewLocal(), notify.NewRedisBus(redisClient.Client, ""))
	sessions := session.NewStore(kv, bus, clk)
	records := attendance.NewStore(kv)
	att := attendance.NewService(records, sessions, clk, cfg.AttendanceDedup)

	submissions, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for submissions...")
	for sub := range submissions {
		rec, err := att.Submit(ctx, sub.CourseCode, sub.PIN, sub.StudentName, sub.StudentID)
		if err != nil {
			if errors.Is(err, attendance.ErrNoActiveSession) || errors.Is(err, attendance.ErrWrongPIN) {
				log.Printf("submission rejected for %s/%s: %v", sub.CourseCode, sub.StudentID, err)
			} else {
				log.Printf("submission failed for %s/%s: %v", sub.CourseCode, sub.StudentID, err)
			}
			continue
		}
		log.Printf("recorded attendance %s for session %s", rec.ID, rec.SessionID)
	}

	log.Println("worker stopped")
}
