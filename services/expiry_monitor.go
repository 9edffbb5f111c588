package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yeremiapane/restaurant-qr/utils"
)

// ExpiryMonitor periodically expires overdue sessions so tables are pushed
// session_ended even when no client asks for validation.
type ExpiryMonitor struct {
	Sessions *SessionService
	Interval time.Duration

	stopChan chan struct{}
	done     chan struct{}
	once     sync.Once
	started  atomic.Bool
}

func NewExpiryMonitor(sessions *SessionService) *ExpiryMonitor {
	return &ExpiryMonitor{
		Sessions: sessions,
		Interval: time.Minute,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (em *ExpiryMonitor) Start() {
	if !em.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(em.done)
		ticker := time.NewTicker(em.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				em.checkExpired()
			case <-em.stopChan:
				return
			}
		}
	}()
}

// Stop halts the monitor and waits for the loop to exit. Safe to call twice.
func (em *ExpiryMonitor) Stop() {
	em.once.Do(func() {
		close(em.stopChan)
		if em.started.Load() {
			<-em.done
		}
	})
}

func (em *ExpiryMonitor) checkExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), em.Interval)
	defer cancel()

	n, err := em.Sessions.ExpireOverdue(ctx)
	if err != nil {
		utils.ErrorLogger.Printf("Error expiring sessions: %v", err)
		return
	}
	if n > 0 {
		utils.InfoLogger.Printf("Expired %d overdue sessions", n)
	}
}
