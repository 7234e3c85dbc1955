package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/noah-isme/sma-behavior-api/internal/gamification"
	"github.com/noah-isme/sma-behavior-api/internal/models"
	"github.com/noah-isme/sma-behavior-api/internal/repository"
	"github.com/noah-isme/sma-behavior-api/pkg/changefeed"
	"github.com/noah-isme/sma-behavior-api/pkg/keylock"
)

// memLedger is an in-memory stand-in for every table the services touch.
type memLedger struct {
	mu            sync.Mutex
	seq           int
	students      map[string]models.Student
	categories    map[string]models.BehaviorCategory
	events        []models.BehaviorEvent
	badges        []models.Badge
	awards        []models.StudentBadge
	rewards       map[string]models.Reward
	redemptions   []models.StudentReward
	snapshots     map[string]models.PointSnapshot
	notifications []models.Notification
	generations   []models.LeaderboardGeneration

	failAward   map[string]bool
	failNotify  bool
	failAppend  bool
	failListAll bool
	failRebuild bool
}

func newMemLedger() *memLedger {
	return &memLedger{
		students:   map[string]models.Student{},
		categories: map[string]models.BehaviorCategory{},
		rewards:    map[string]models.Reward{},
		snapshots:  map[string]models.PointSnapshot{},
		failAward:  map[string]bool{},
	}
}

func (l *memLedger) nextID(prefix string) string {
	l.seq++
	return fmt.Sprintf("%s-%d", prefix, l.seq)
}

func (l *memLedger) addStudent(id, classID, name string, userID string) models.Student {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := models.Student{ID: id, ClassID: classID, FullName: name, Active: true}
	if userID != "" {
		st.UserID = &userID
	}
	l.students[id] = st
	return st
}

func (l *memLedger) addCategory(id, classID string, points int, kind models.CategoryType) models.BehaviorCategory {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := models.BehaviorCategory{ID: id, ClassID: classID, Name: id, PointValue: points, Type: kind}
	l.categories[id] = c
	return c
}

func (l *memLedger) addBadge(id, classID string, kind models.RequirementType, value int) models.Badge {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := models.Badge{ID: id, ClassID: classID, Name: id, RequirementType: kind, RequirementValue: value}
	l.badges = append(l.badges, b)
	return b
}

func (l *memLedger) addReward(id, classID string, cost int, active bool) models.Reward {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := models.Reward{ID: id, ClassID: classID, Name: id, PointCost: cost, IsActive: active}
	l.rewards[id] = r
	return r
}

func (l *memLedger) addEvent(studentID, classID string, points int, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, models.BehaviorEvent{
		ID: l.nextID("ev"), StudentID: studentID, ClassID: classID, CategoryID: "cat", TeacherID: "t1", Points: points, CreatedAt: at,
	})
}

func snapshotKey(studentID, classID string) string { return studentID + "|" + classID }

// rebuildLocked recomputes a snapshot the way the SQL ledger does.
func (l *memLedger) rebuildLocked(studentID, classID string) models.PointSnapshot {
	snap := l.snapshots[snapshotKey(studentID, classID)]
	snap.StudentID, snap.ClassID = studentID, classID
	snap.TotalPoints, snap.GoodBehaviorCount, snap.BadBehaviorCount, snap.SpentPoints = 0, 0, 0, 0
	for _, e := range l.events {
		if e.StudentID != studentID || e.ClassID != classID {
			continue
		}
		snap.TotalPoints += e.Points
		switch {
		case e.Points > 0:
			snap.GoodBehaviorCount++
		case e.Points < 0:
			snap.BadBehaviorCount++
		}
	}
	for _, r := range l.redemptions {
		if r.StudentID == studentID && l.rewards[r.RewardID].ClassID == classID {
			snap.SpentPoints += r.PointsDeducted
		}
	}
	snap.Balance = snap.TotalPoints - snap.SpentPoints
	snap.SnapshotDate = time.Now().UTC()
	l.snapshots[snapshotKey(studentID, classID)] = snap
	return snap
}

type memStudents struct{ *memLedger }

func (s memStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return nil, fmt.Errorf("find student: %w", sql.ErrNoRows)
	}
	return &st, nil
}

func (s memStudents) ListByClass(ctx context.Context, classID string) ([]models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Student{}
	for _, st := range s.students {
		if st.ClassID == classID && st.Active {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type memEvents struct{ *memLedger }

func (s memEvents) Append(ctx context.Context, event *models.BehaviorEvent) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppend {
		return "", errors.New("insert failed")
	}
	if event.ID == "" {
		event.ID = s.nextID("ev")
	}
	s.events = append(s.events, *event)
	return event.ID, nil
}

func (s memEvents) FindByID(ctx context.Context, id string) (*models.BehaviorEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.ID == id {
			ev := e
			return &ev, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s memEvents) match(e models.BehaviorEvent, f models.BehaviorEventFilter) bool {
	if f.StudentID != "" && e.StudentID != f.StudentID {
		return false
	}
	if f.ClassID != "" && e.ClassID != f.ClassID {
		return false
	}
	if f.CategoryID != "" && e.CategoryID != f.CategoryID {
		return false
	}
	if f.DateFrom != nil && e.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && !e.CreatedAt.Before(*f.DateTo) {
		return false
	}
	return true
}

func (s memEvents) ListAll(ctx context.Context, f models.BehaviorEventFilter) ([]models.BehaviorEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failListAll {
		return nil, errors.New("read replica down")
	}
	out := []models.BehaviorEvent{}
	for _, e := range s.events {
		if s.match(e, f) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s memEvents) List(ctx context.Context, f models.BehaviorEventFilter) ([]models.BehaviorEvent, int, error) {
	all, _ := s.ListAll(ctx, f)
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	start := (f.Page - 1) * f.PageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + f.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (s memEvents) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.events {
		if e.ID == id {
			s.events = append(s.events[:i], s.events[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("delete behavior event: %w", sql.ErrNoRows)
}

type memCategories struct{ *memLedger }

func (s memCategories) Create(ctx context.Context, c *models.BehaviorCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = s.nextID("cat")
	}
	s.categories[c.ID] = *c
	return nil
}

func (s memCategories) FindByID(ctx context.Context, id string) (*models.BehaviorCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (s memCategories) ListByClass(ctx context.Context, classID string) ([]models.BehaviorCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.BehaviorCategory{}
	for _, c := range s.categories {
		if c.ClassID == classID {
			out = append(out, c)
		}
	}
	return out, nil
}

type memBadges struct{ *memLedger }

func (s memBadges) Create(ctx context.Context, b *models.Badge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = s.nextID("badge")
	}
	s.badges = append(s.badges, *b)
	return nil
}

func (s memBadges) FindByID(ctx context.Context, id string) (*models.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.badges {
		if b.ID == id {
			out := b
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s memBadges) ListByClass(ctx context.Context, classID string) ([]models.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Badge{}
	for _, b := range s.badges {
		if b.ClassID == classID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s memBadges) ListAwards(ctx context.Context, studentID string) ([]models.StudentBadge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.StudentBadge{}
	for _, a := range s.awards {
		if a.StudentID == studentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s memBadges) ListAwardDetails(ctx context.Context, studentID string) ([]models.StudentBadgeDetail, error) {
	awards, _ := s.ListAwards(ctx, studentID)
	out := make([]models.StudentBadgeDetail, 0, len(awards))
	for _, a := range awards {
		b, _ := s.FindByID(ctx, a.BadgeID)
		out = append(out, models.StudentBadgeDetail{StudentBadge: a, BadgeName: b.Name, RequirementType: b.RequirementType})
	}
	return out, nil
}

func (s memBadges) Award(ctx context.Context, award *models.StudentBadge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAward[award.BadgeID] {
		return false, errors.New("award insert failed")
	}
	for _, a := range s.awards {
		if a.StudentID == award.StudentID && a.BadgeID == award.BadgeID {
			return false, nil
		}
	}
	award.ID = s.nextID("award")
	award.EarnedAt = time.Now().UTC()
	s.awards = append(s.awards, *award)
	return true, nil
}

type memRewards struct{ *memLedger }

func (s memRewards) Create(ctx context.Context, r *models.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = s.nextID("reward")
	}
	s.rewards[r.ID] = *r
	return nil
}

func (s memRewards) FindByID(ctx context.Context, id string) (*models.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rewards[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &r, nil
}

func (s memRewards) ListByClass(ctx context.Context, classID string, activeOnly bool) ([]models.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Reward{}
	for _, r := range s.rewards {
		if r.ClassID == classID && (!activeOnly || r.IsActive) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PointCost < out[j].PointCost })
	return out, nil
}

func (s memRewards) ListRedemptions(ctx context.Context, studentID string) ([]models.StudentReward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.StudentReward{}
	for _, r := range s.redemptions {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s memRewards) Redeem(ctx context.Context, p repository.RedeemParams, decide repository.DebitFunc) (*repository.RedemptionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.redemptions {
		if r.RequestID != p.RequestID {
			continue
		}
		if r.StudentID != p.StudentID || r.RewardID != p.Reward.ID {
			return nil, repository.ErrRequestIDReused
		}
		return &repository.RedemptionResult{Record: r, Snapshot: s.snapshots[snapshotKey(p.StudentID, p.ClassID)], Replayed: true}, nil
	}
	current := s.rebuildLocked(p.StudentID, p.ClassID)
	deducted, err := decide(current.Balance)
	if err != nil {
		return nil, err
	}
	record := models.StudentReward{
		ID: s.nextID("redemption"), StudentID: p.StudentID, RewardID: p.Reward.ID,
		RequestID: p.RequestID, PointsDeducted: deducted, EarnedAt: time.Now().UTC(),
	}
	s.redemptions = append(s.redemptions, record)
	snap := s.rebuildLocked(p.StudentID, p.ClassID)
	return &repository.RedemptionResult{Record: record, Snapshot: snap}, nil
}

type memSnapshots struct{ *memLedger }

func (s memSnapshots) Rebuild(ctx context.Context, studentID, classID string) (*models.PointSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRebuild {
		return nil, errors.New("snapshot write failed")
	}
	snap := s.rebuildLocked(studentID, classID)
	return &snap, nil
}

func (s memSnapshots) Get(ctx context.Context, studentID, classID string) (*models.PointSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[snapshotKey(studentID, classID)]
	if !ok {
		return nil, fmt.Errorf("get snapshot: %w", sql.ErrNoRows)
	}
	return &snap, nil
}

func (s memSnapshots) UpdateRanks(ctx context.Context, classID string, ranks map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for studentID, rank := range ranks {
		key := snapshotKey(studentID, classID)
		snap := s.snapshots[key]
		r := rank
		snap.Rank = &r
		s.snapshots[key] = snap
	}
	return nil
}

type memNotifications struct{ *memLedger }

func (s memNotifications) Create(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNotify {
		return errors.New("notification insert failed")
	}
	n.ID = s.nextID("notif")
	n.CreatedAt = time.Now().UTC()
	s.notifications = append(s.notifications, *n)
	return nil
}

func (s memNotifications) List(ctx context.Context, f models.NotificationFilter) ([]models.Notification, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Notification{}
	for _, n := range s.notifications {
		if n.UserID == f.UserID && (!f.UnreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (s memNotifications) MarkRead(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notifications {
		if n.ID == id && n.UserID == userID {
			s.notifications[i].IsRead = true
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s memNotifications) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.notifications {
		if s.notifications[i].UserID == userID && !s.notifications[i].IsRead {
			s.notifications[i].IsRead = true
			n++
		}
	}
	return n, nil
}

type memGenerations struct{ *memLedger }

func (s memGenerations) Latest(ctx context.Context, classID, window string, limit int) ([]models.LeaderboardGeneration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.LeaderboardGeneration{}
	for i := len(s.generations) - 1; i >= 0 && len(out) < limit; i-- {
		g := s.generations[i]
		if g.ClassID == classID && g.Window == window {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s memGenerations) Save(ctx context.Context, gen *models.LeaderboardGeneration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen.ID = s.nextID("gen")
	gen.Seq = int64(len(s.generations) + 1)
	s.generations = append(s.generations, *gen)
	return nil
}

func (s memGenerations) Prune(ctx context.Context, classID, window string, keep int) (int64, error) {
	return 0, nil
}

// recordingFeed captures published signals.
type recordingFeed struct {
	mu      sync.Mutex
	signals []changefeed.Signal
	err     error
}

func (f *recordingFeed) Publish(ctx context.Context, sig changefeed.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.signals = append(f.signals, sig)
	return nil
}

func (f *recordingFeed) reasons() []changefeed.Reason {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]changefeed.Reason, len(f.signals))
	for i, s := range f.signals {
		out[i] = s.Reason
	}
	return out
}

// engine wires every service over one memLedger.
type engine struct {
	ledger        *memLedger
	feed          *recordingFeed
	metrics       *MetricsService
	notifications *NotificationService
	progress      *ProgressService
	leaderboard   *LeaderboardService
	badges        *BadgeService
	rewards       *RewardService
	behavior      *BehaviorService
	categories    *CategoryService
}

var engineNow = time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) *engine {
	t.Helper()
	ledger := newMemLedger()
	feed := &recordingFeed{}
	metrics := NewMetricsService()
	validate := NewValidator()
	policy := gamification.DefaultPolicy()
	changes := NewChangePublisher(feed, nil, metrics, nil)

	notifications := NewNotificationService(memNotifications{ledger}, validate, metrics, nil)
	progress := NewProgressService(memStudents{ledger}, memEvents{ledger}, memSnapshots{ledger}, nil, metrics, policy, nil)
	progress.now = func() time.Time { return engineNow }
	leaderboard := NewLeaderboardService(memStudents{ledger}, memEvents{ledger}, memGenerations{ledger}, nil, policy, nil)
	leaderboard.now = func() time.Time { return engineNow }
	badges := NewBadgeService(memBadges{ledger}, memStudents{ledger}, progress, notifications, changes, validate, metrics, nil)
	rewards := NewRewardService(memRewards{ledger}, memStudents{ledger}, progress, keylock.New(), notifications, changes, validate, metrics, nil)
	behavior := NewBehaviorService(memEvents{ledger}, memCategories{ledger}, memStudents{ledger}, progress, badges, notifications, changes, validate, metrics, nil)
	behavior.now = func() time.Time { return engineNow }

	return &engine{
		ledger:        ledger,
		feed:          feed,
		metrics:       metrics,
		notifications: notifications,
		progress:      progress,
		leaderboard:   leaderboard,
		badges:        badges,
		rewards:       rewards,
		behavior:      behavior,
		categories:    NewCategoryService(memCategories{ledger}, validate, nil),
	}
}
