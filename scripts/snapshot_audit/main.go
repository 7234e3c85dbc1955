package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-behavior-api/internal/models"
	"github.com/noah-isme/sma-behavior-api/internal/repository"
	"github.com/noah-isme/sma-behavior-api/pkg/config"
	"github.com/noah-isme/sma-behavior-api/pkg/database"
	"github.com/noah-isme/sma-behavior-api/pkg/logger"
)

type auditor interface {
	Audit(ctx context.Context, classID string) ([]models.SnapshotAudit, error)
	Rebuild(ctx context.Context, studentID, classID string) (*models.PointSnapshot, error)
}

type report struct {
	Checked int
	Drifted []models.SnapshotAudit
	Fixed   int
}

func main() {
	var (
		classID string
		fix     bool
		timeout time.Duration
	)
	flag.StringVar(&classID, "class", "", "Audit a single class (default: every class with active students)")
	flag.BoolVar(&fix, "fix", false, "Rebuild drifted snapshots from source rows")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "Overall audit timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("connect database", zap.Error(err))
	}
	defer db.Close()

	classes := []string{classID}
	if classID == "" {
		classes, err = repository.NewStudentRepository(db).ListClassIDs(ctx)
		if err != nil {
			logr.Fatal("list classes", zap.Error(err))
		}
	}

	rep, err := run(ctx, repository.NewSnapshotRepository(db), classes, fix, logr)
	if err != nil {
		logr.Fatal("snapshot audit failed", zap.Error(err))
	}
	printReport(rep)

	if len(rep.Drifted) > rep.Fixed {
		os.Exit(1)
	}
}

func run(ctx context.Context, repo auditor, classes []string, fix bool, logr *zap.Logger) (report, error) {
	var rep report
	for _, classID := range classes {
		rows, err := repo.Audit(ctx, classID)
		if err != nil {
			return rep, err
		}
		rep.Checked += len(rows)
		for _, row := range rows {
			if !row.Drifted() {
				continue
			}
			rep.Drifted = append(rep.Drifted, row)
			if !fix {
				continue
			}
			if _, err := repo.Rebuild(ctx, row.StudentID, row.ClassID); err != nil {
				logr.Warn("rebuild drifted snapshot", zap.String("student_id", row.StudentID), zap.String("class_id", row.ClassID), zap.Error(err))
				continue
			}
			rep.Fixed++
		}
	}
	return rep, nil
}

func printReport(rep report) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CLASS\tSTUDENT\tSTORED TOTAL\tSOURCE TOTAL\tSTORED SPENT\tSOURCE SPENT\tSTORED BALANCE")
	for _, row := range rep.Drifted {
		stored := fmt.Sprintf("%d", row.StoredTotal)
		if !row.HasSnapshot {
			stored = "missing"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n", row.ClassID, row.StudentID, stored, row.SourceTotal, row.StoredSpent, row.SourceSpent, row.StoredBalance)
	}
	_ = w.Flush()
	fmt.Printf("Checked: %d, Drifted: %d, Fixed: %d\n", rep.Checked, len(rep.Drifted), rep.Fixed)
}
