package app

import (
	"context"
	"fmt"
	"time"

	"snapgraph/internal/shared/util"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
}

type HealthService struct {
	session *Session
}

func NewHealthService(session *Session) *HealthService {
	return &HealthService{session: session}
}

func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "up",
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]string),
	}

	if s.session == nil {
		status.Status = "down"
		status.Components["session"] = "missing"
		return status
	}
	status.Components["session"] = fmt.Sprintf("ok (%d graphs)", len(s.session.Graphs()))

	// Check Store
	if s.session.store != nil {
		if err := s.session.store.Ping(ctx); err != nil {
			status.Status = "degraded"
			status.Components["store"] = "error: " + err.Error()
		} else {
			status.Components["store"] = "ok"
		}
	} else if s.session.Config.DB.Enabled {
		status.Status = "degraded"
		status.Components["store"] = "missing but enabled in config"
	} else {
		status.Components["store"] = "disabled"
	}

	status.Components["runtime"] = util.ReadRuntimeUsage().String()
	return status
}
