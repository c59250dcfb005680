package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/certwise/certprep-backend/internal/config"
	"github.com/certwise/certprep-backend/internal/database"
	"github.com/certwise/certprep-backend/internal/logger"
)

type seedArea struct {
	name   string
	weight float64
}

type seedAnswer struct {
	letter  string
	text    string
	correct bool
}

type seedQuestion struct {
	area          int
	difficulty    string
	minSelections int
	text          string
	explanation   string
	answers       []seedAnswer
}

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	slug := "cloudops-associate"

	fmt.Println("=== Seeding Demo Exam ===")

	// Check if the exam is already there
	var examID uuid.UUID
	err = pool.QueryRow(ctx, "SELECT id FROM exams WHERE slug = $1", slug).Scan(&examID)
	if err == nil {
		fmt.Printf("Exam %q already seeded (ID: %s). Nothing to do.\n", slug, examID)
		return
	}
	if err != pgx.ErrNoRows {
		log.Fatal().Err(err).Msg("Failed to check existing exam")
	}

	areas := []seedArea{
		{name: "Compute & Scaling", weight: 40},
		{name: "Networking & Content Delivery", weight: 35},
		{name: "Monitoring & Observability", weight: 25},
	}
	questions := demoQuestions()

	fmt.Printf("Exam %q not found. Creating it...\n", slug)
	err = pool.QueryRow(ctx,
		`INSERT INTO exams (slug, title, description, certification, passing_score, time_limit_minutes, question_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		slug,
		"CloudOps Associate Practice Exam",
		"Covers core operations topics: compute scaling, networking and observability.",
		"CloudOps Associate",
		70.0, 30, len(questions)).Scan(&examID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}
	fmt.Printf("Created exam with ID: %s\n", examID)

	areaIDs := make([]uuid.UUID, len(areas))
	for i, a := range areas {
		err := pool.QueryRow(ctx,
			`INSERT INTO knowledge_areas (exam_id, name, weight_percent, position)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			examID, a.name, a.weight, i).Scan(&areaIDs[i])
		if err != nil {
			log.Fatal().Err(err).Str("area", a.name).Msg("Failed to create knowledge area")
		}
	}
	fmt.Printf("Created %d knowledge areas\n", len(areas))

	answerCount := 0
	for pos, q := range questions {
		var questionID uuid.UUID
		err := pool.QueryRow(ctx,
			`INSERT INTO questions (exam_id, area_id, position, text, explanation, difficulty, min_selections)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id`,
			examID, areaIDs[q.area], pos, q.text, q.explanation, q.difficulty, q.minSelections).Scan(&questionID)
		if err != nil {
			log.Fatal().Err(err).Int("position", pos).Msg("Failed to create question")
		}
		for _, a := range q.answers {
			_, err := pool.Exec(ctx,
				`INSERT INTO answers (question_id, letter, text, is_correct)
				 VALUES ($1, $2, $3, $4)`,
				questionID, a.letter, a.text, a.correct)
			if err != nil {
				log.Fatal().Err(err).Int("position", pos).Str("letter", a.letter).Msg("Failed to create answer")
			}
			answerCount++
		}
		if (pos+1)%3 == 0 {
			fmt.Printf("Created %d questions...\n", pos+1)
		}
	}

	fmt.Printf("\nSeed completed! Exam %q with %d areas, %d questions, %d answers.\n",
		slug, len(areas), len(questions), answerCount)
}

func demoQuestions() []seedQuestion {
	return []seedQuestion{
		{
			area: 0, difficulty: "easy", minSelections: 1,
			text:        "A stateless web tier must add instances automatically whenever CPU utilization stays above 70% for five minutes. Which component makes that decision?",
			explanation: "Autoscaling policies evaluate aggregate group metrics and adjust capacity. Load balancer health checks only stop routing to unhealthy instances.",
			answers: []seedAnswer{
				{letter: "A", text: "A scheduled job running on each instance"},
				{letter: "B", text: "An autoscaling policy attached to the instance group", correct: true},
				{letter: "C", text: "A manually executed capacity runbook"},
				{letter: "D", text: "The load balancer's health check"},
			},
		},
		{
			area: 0, difficulty: "medium", minSelections: 1,
			text:        "An instance group scales in while some instances are still serving requests. Which setting prevents terminating an instance mid-request?",
			explanation: "Connection draining (deregistration delay) keeps an instance registered until in-flight requests finish before termination proceeds.",
			answers: []seedAnswer{
				{letter: "A", text: "Connection draining with a deregistration delay", correct: true},
				{letter: "B", text: "Session stickiness on the load balancer"},
				{letter: "C", text: "A longer health check interval"},
				{letter: "D", text: "A larger instance type"},
			},
		},
		{
			area: 0, difficulty: "hard", minSelections: 2,
			text:        "Which TWO practices reduce the blast radius of a single-zone outage for a stateful service? (Choose two.)",
			explanation: "Replicating synchronously to a second zone and promoting a healthy replica automatically both keep the service available when one zone is lost.",
			answers: []seedAnswer{
				{letter: "A", text: "Synchronous replication to a second zone", correct: true},
				{letter: "B", text: "Vertically scaling the primary node"},
				{letter: "C", text: "Automated failover with health-based promotion", correct: true},
				{letter: "D", text: "Weekly cold backups stored in the same zone"},
			},
		},
		{
			area: 1, difficulty: "easy", minSelections: 1,
			text:        "Which DNS record type maps a hostname directly to an IPv4 address?",
			explanation: "An A record holds an IPv4 address. CNAME aliases another name, MX routes mail, TXT carries arbitrary text.",
			answers: []seedAnswer{
				{letter: "A", text: "CNAME"},
				{letter: "B", text: "A", correct: true},
				{letter: "C", text: "MX"},
				{letter: "D", text: "TXT"},
			},
		},
		{
			area: 1, difficulty: "medium", minSelections: 1,
			text:        "Users far from the origin region report slow downloads of static assets. What is the standard fix?",
			explanation: "A CDN caches static content at edge locations close to users, cutting round-trip latency without touching the origin.",
			answers: []seedAnswer{
				{letter: "A", text: "Increase the origin instance size"},
				{letter: "B", text: "Serve the assets through a CDN edge cache", correct: true},
				{letter: "C", text: "Enable HTTP keep-alive on the origin"},
				{letter: "D", text: "Move the assets to object storage in the origin region"},
			},
		},
		{
			area: 1, difficulty: "hard", minSelections: 1,
			text:        "A service in a private subnet must call an external HTTPS API without accepting any inbound connections. What do you deploy?",
			explanation: "A NAT gateway in a public subnet gives private instances outbound internet access while keeping them unreachable from outside.",
			answers: []seedAnswer{
				{letter: "A", text: "An internet gateway with a public IP on the instance"},
				{letter: "B", text: "A NAT gateway in a public subnet", correct: true},
				{letter: "C", text: "A site-to-site VPN tunnel to the API provider"},
				{letter: "D", text: "A reverse proxy inside the private subnet"},
			},
		},
		{
			area: 2, difficulty: "easy", minSelections: 1,
			text:        "Which signal tells you what proportion of requests failed over a time window?",
			explanation: "Error rate is failed requests divided by total requests over the window. The others measure resource usage or availability, not request outcomes.",
			answers: []seedAnswer{
				{letter: "A", text: "Error rate", correct: true},
				{letter: "B", text: "CPU utilization"},
				{letter: "C", text: "Disk IOPS"},
				{letter: "D", text: "Host uptime"},
			},
		},
		{
			area: 2, difficulty: "medium", minSelections: 1,
			text:        "A CPU alert pages the on-call for every brief spike. What is the standard remedy for this noise?",
			explanation: "Requiring the condition to hold for a sustained evaluation window filters transient spikes while still catching real saturation.",
			answers: []seedAnswer{
				{letter: "A", text: "Delete the alert"},
				{letter: "B", text: "Require the condition to hold for a sustained evaluation window", correct: true},
				{letter: "C", text: "Raise the threshold to 100%"},
				{letter: "D", text: "Route the pages to a different rotation"},
			},
		},
		{
			area: 2, difficulty: "medium", minSelections: 1,
			text:        "Which kind of telemetry lets you follow a single request as it crosses several services?",
			explanation: "Distributed traces propagate a request ID across service boundaries so one request's full path can be reconstructed.",
			answers: []seedAnswer{
				{letter: "A", text: "Per-host metrics"},
				{letter: "B", text: "Distributed traces with propagated request IDs", correct: true},
				{letter: "C", text: "Unstructured application logs"},
				{letter: "D", text: "Synthetic uptime probes"},
			},
		},
	}
}
