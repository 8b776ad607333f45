package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/vigil-sec/vigil/internal/config"
	"github.com/vigil-sec/vigil/internal/database"
	"github.com/vigil-sec/vigil/internal/history"
	"github.com/vigil-sec/vigil/internal/models"
)

// seedCases gives the calibration engine retrievable precedent on a
// fresh install so its first decisions are not all "no data".
var seedCases = []struct {
	text          string
	meta          history.CaseMeta
	effectiveness int
}{
	{
		text: "120 failed login attempts against 8 accounts in 5 minutes from one address",
		meta: history.CaseMeta{
			EntityType: "ip", Entity: "192.0.2.10", Severity: "high", Mitigation: "temp_block",
			Reason:      "brute force across multiple accounts",
			SourceAgent: "auth", Decision: models.DecisionKeepOriginal,
			Confidence: "high", Outcome: models.OutcomeResolved,
		},
		effectiveness: 92,
	},
	{
		text: "same credential hash sprayed against 40 usernames",
		meta: history.CaseMeta{
			EntityType: "ip", Entity: "192.0.2.33", Severity: "medium", Mitigation: "captcha",
			Reason:      "password spraying detected via repeated body hash",
			SourceAgent: "auth", Decision: models.DecisionAmplify,
			Confidence: "medium", Outcome: models.OutcomeEscalated,
		},
		effectiveness: 35,
	},
	{
		text: "800 paginated product queries in 10 minutes, sequential offsets",
		meta: history.CaseMeta{
			EntityType: "ip", Entity: "198.51.100.7", Severity: "high", Mitigation: "temp_block",
			Reason:      "bulk catalog scraping",
			SourceAgent: "search", Decision: models.DecisionKeepOriginal,
			Confidence: "high", Outcome: models.OutcomeResolved,
		},
		effectiveness: 88,
	},
	{
		text: "systematic user id enumeration via search endpoint",
		meta: history.CaseMeta{
			EntityType: "user", Entity: "crawler9", Severity: "medium", Mitigation: "captcha",
			Reason:      "enumeration attack probing account ids",
			SourceAgent: "search", Decision: models.DecisionDowngrade,
			Confidence: "medium", Outcome: models.OutcomeResolved,
		},
		effectiveness: 75,
	},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.RequestRecord{},
		&models.CalibratedCase{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}
	fmt.Println("✓ Database migrated successfully")

	// Demo login user
	var existing models.User
	if err := db.Where("username = ?", "demo").First(&existing).Error; err != nil {
		user := models.User{Username: "demo", Enabled: true}
		if err := user.SetPassword("demo-password"); err != nil {
			log.Fatal("Failed to hash password:", err)
		}
		if err := db.Create(&user).Error; err != nil {
			log.Fatal("Failed to create demo user:", err)
		}
		fmt.Println("✓ Created demo user (demo / demo-password)")
	} else {
		fmt.Println("✓ Demo user already exists")
	}

	// Seed case history so first calibrations have precedent
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hist := history.NewChromaStore(cfg.ChromaURL)
	if _, err := hist.Stats(ctx); err != nil {
		log.Fatalf("history sidecar unreachable at %s: %v", cfg.ChromaURL, err)
	}

	now := time.Now().UTC()
	for i, sc := range seedCases {
		eff := sc.effectiveness
		meta := sc.meta
		meta.Effectiveness = &eff
		meta.Timestamp = now.Add(-time.Duration(i+1) * time.Hour).Format(time.RFC3339)

		c := history.Case{
			ID:   history.NewCaseID(meta.Entity, now.Add(-time.Duration(i+1)*time.Hour)),
			Text: sc.text,
			Meta: meta,
		}
		if err := hist.Add(ctx, c); err != nil {
			log.Fatalf("Failed to seed case %s: %v", c.ID, err)
		}
	}
	fmt.Printf("✓ Seeded %d historical cases\n", len(seedCases))
}
