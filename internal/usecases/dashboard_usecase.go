package usecases

import (
	"context"
	"encoding/csv"
	"io"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"replygate/internal/entities"
	"replygate/internal/interfaces"
)

const (
	engagementLimit = 10
	searchLimit     = 10
)

type DashboardUsecase struct {
	store interfaces.DashboardStore
}

func NewDashboardUsecase(store interfaces.DashboardStore) *DashboardUsecase {
	return &DashboardUsecase{store: store}
}

// GetStats runs the aggregate queries concurrently. SystemHealth is the
// average intent confidence as a percentage.
func (u *DashboardUsecase) GetStats(ctx context.Context, businessID string) (*entities.DashboardStats, error) {
	var (
		stats entities.DashboardStats
		avg   float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.TotalInteractions, err = u.store.CountMessages(gctx, businessID)
		return err
	})
	g.Go(func() (err error) {
		stats.ActiveSessions, err = u.store.CountConversations(gctx, businessID)
		return err
	})
	g.Go(func() (err error) {
		stats.PendingApprovals, err = u.store.CountPendingApprovals(gctx, businessID)
		return err
	})
	g.Go(func() (err error) {
		avg, err = u.store.AverageConfidence(gctx, businessID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	stats.SystemHealth = avg * 100
	return &stats, nil
}

// GetEngagement merges the latest approvals and actions into one feed.
func (u *DashboardUsecase) GetEngagement(ctx context.Context, businessID string) ([]entities.EngagementItem, error) {
	items, err := u.feed(ctx, businessID, engagementLimit)
	if err != nil {
		return nil, err
	}
	if len(items) > engagementLimit {
		items = items[:engagementLimit]
	}
	return items, nil
}

func (u *DashboardUsecase) feed(ctx context.Context, businessID string, limit int) ([]entities.EngagementItem, error) {
	var (
		approvals []entities.Approval
		actions   []entities.ActionLog
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		approvals, err = u.store.RecentApprovals(gctx, businessID, limit)
		return err
	})
	g.Go(func() (err error) {
		actions, err = u.store.RecentActions(gctx, businessID, limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]entities.EngagementItem, 0, len(approvals)+len(actions))
	for _, a := range approvals {
		content := a.ProposedAction.OriginalText
		if content == "" {
			content = "Inquiry"
		}
		items = append(items, entities.EngagementItem{
			ID:        a.ID,
			Type:      "approval",
			Content:   content,
			Status:    string(a.Status),
			Intent:    a.IntentName,
			CreatedAt: a.CreatedAt,
		})
	}
	for _, l := range actions {
		content, _ := l.Payload["reply_text"].(string)
		if content == "" {
			content = "Auto Response"
		}
		intent, _ := l.Payload["intent"].(string)
		if intent == "" {
			intent = "general"
		}
		status := "SENT"
		if l.Status != entities.ActionSuccess {
			status = "FAILED"
		}
		typ := "auto-reply"
		if l.ApprovalID != nil {
			typ = "approved-reply"
		}
		items = append(items, entities.EngagementItem{
			ID:        l.ID,
			Type:      typ,
			Content:   content,
			Status:    status,
			Intent:    intent,
			CreatedAt: l.CreatedAt,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

// Search matches message content case-insensitively. An empty query
// returns nothing.
func (u *DashboardUsecase) Search(ctx context.Context, businessID, q string) ([]entities.SearchHit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []entities.SearchHit{}, nil
	}
	return u.store.SearchMessages(ctx, businessID, q, searchLimit)
}

var exportHeader = []string{"Date", "Type", "Content", "Intent", "Status"}

// ExportCSV writes the full approval / action history, newest first.
func (u *DashboardUsecase) ExportCSV(ctx context.Context, businessID string, w io.Writer) error {
	items, err := u.feed(ctx, businessID, 0)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, it := range items {
		typ := "Auto-Reply"
		switch it.Type {
		case "approval":
			typ = "Manual Approval"
		case "approved-reply":
			typ = "Approved Reply"
		}
		row := []string{it.CreatedAt.UTC().Format(time.RFC3339), typ, it.Content, it.Intent, it.Status}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
