package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/Tanzania-AI-Community/twiga/pkg/logger"
)

// MaintenanceFunc runs a periodic housekeeping job.
type MaintenanceFunc func(ctx context.Context) error

// Service runs maintenance jobs on a cron schedule. It keeps a single
// schedule expression and fires the registered function whenever the
// expression is due.
type Service struct {
	expr    string
	fn      MaintenanceFunc
	gronx   *gronx.Gronx
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	nextRun time.Time
}

func NewService(expr string, fn MaintenanceFunc) (*Service, error) {
	g := gronx.New()
	if !g.IsValid(expr) {
		return nil, fmt.Errorf("invalid cron expression: %q", expr)
	}
	return &Service{
		expr:  expr,
		fn:    fn,
		gronx: g,
	}, nil
}

func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("cron service already running")
	}

	next, err := gronx.NextTick(s.expr, false)
	if err != nil {
		return fmt.Errorf("compute next run: %w", err)
	}
	s.nextRun = next
	s.running = true
	s.stopCh = make(chan struct{})

	go s.runLoop(s.stopCh)

	logger.InfoCF("cron", "Maintenance scheduler started", map[string]interface{}{
		"expr":     s.expr,
		"next_run": next.Format(time.RFC3339),
	})
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
	logger.InfoC("cron", "Maintenance scheduler stopped")
}

func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun reports when the next maintenance run is scheduled.
func (s *Service) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}

func (s *Service) runLoop(stopCh chan struct{}) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.checkDue()
		}
	}
}

func (s *Service) checkDue() {
	s.mu.Lock()
	if !s.running || time.Now().Before(s.nextRun) {
		s.mu.Unlock()
		return
	}

	// Advance the schedule before running so a slow job cannot re-fire.
	next, err := gronx.NextTick(s.expr, false)
	if err != nil {
		logger.ErrorCF("cron", "Failed to compute next run", map[string]interface{}{
			"error": err.Error(),
		})
		s.mu.Unlock()
		return
	}
	s.nextRun = next
	s.mu.Unlock()

	s.runMaintenance()
}

func (s *Service) runMaintenance() {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := s.fn(ctx); err != nil {
		logger.ErrorCF("cron", "Maintenance run failed", map[string]interface{}{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return
	}

	logger.InfoCF("cron", "Maintenance run completed", map[string]interface{}{
		"duration_ms": time.Since(start).Milliseconds(),
	})
}
