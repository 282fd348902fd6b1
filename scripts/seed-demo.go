package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/modelstation/modelstation/internal/auth"
	"github.com/modelstation/modelstation/internal/model"
	"github.com/modelstation/modelstation/internal/repository"
)

const (
	demoEmail    = "demo@modelstation.ai"
	demoPassword = "modelstation"
	demoName     = "Demo Steward"
)

type demoModel struct {
	name        string
	domain      string
	baseModel   string
	dataset     string
	status      model.ModelStatus
	lastTrained string
	metrics     []string
	highlights  []string
}

var demoModels = []demoModel{
	{
		name:        "Atlas QA Compliance Copilot",
		domain:      "Pharma QA & batch release",
		baseModel:   "GPT-4.1 Enterprise",
		dataset:     "Scoped run: CAPA narratives, protocol deltas, batch sign-off precedents",
		status:      model.ModelStatusLive,
		lastTrained: "3 days ago",
		metrics:     []string{"98.2% rubric adherence", "37 sec MTTR delta"},
		highlights:  []string{"Auto-summarises CAPA resolutions", "Cross-checks protocol clauses in 11 jurisdictions"},
	},
	{
		name:        "AeroWave Flight Line Specialist",
		domain:      "Aviation maintenance & AOG triage",
		baseModel:   "Claude 3 Sonnet",
		dataset:     "Scoped run: OEM bulletins, hangar chat transcripts, torque specs history",
		status:      model.ModelStatusPilot,
		lastTrained: "8 days ago",
		metrics:     []string{"92.7% tool-call accuracy", "38% faster torque sequencing"},
		highlights:  []string{"Pushes real-time task cards to AMOS", "Bilingual troubleshooting guidance"},
	},
	{
		name:        "Sentinel Flow Surveillance Analyst",
		domain:      "Capital markets risk & compliance",
		baseModel:   "Mistral Large 2",
		dataset:     "Scoped run: Escalation workflows, policy rulings, flagged order flows",
		status:      model.ModelStatusQA,
		lastTrained: "Yesterday",
		metrics:     []string{"99.1% policy precision", "5.4% false positive reduction"},
		highlights:  []string{"Structured SAR narratives", "Tier-1 escalation briefings with citations"},
	},
}

type output struct {
	UserID  string   `json:"user_id"`
	Email   string   `json:"email"`
	Created bool     `json:"created"`
	Models  []string `json:"models"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	out, err := seed(ctx, repo)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	switch strings.ToLower(*format) {
	case "plain":
		if out.Created {
			fmt.Printf("seeded %s with %d models\n", out.Email, len(out.Models))
		} else {
			fmt.Printf("%s already exists, nothing to do\n", out.Email)
		}
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}

// seed creates the demo steward and their models. An existing account
// is left untouched.
func seed(ctx context.Context, repo *repository.Repository) (*output, error) {
	existing, err := repo.GetUserByEmail(ctx, demoEmail)
	if err == nil {
		return &output{UserID: existing.ID, Email: existing.Email, Models: []string{}}, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("look up demo user: %w", err)
	}

	hash, err := auth.HashPassword(demoPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:           ulid.Make().String(),
		Email:        demoEmail,
		Name:         demoName,
		Role:         model.RoleAdmin,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create demo user: %w", err)
	}

	out := &output{UserID: user.ID, Email: user.Email, Created: true}
	for i, d := range demoModels {
		rec, err := d.record(user.ID, now.Add(time.Duration(i)*time.Millisecond))
		if err != nil {
			return nil, err
		}
		if err := repo.CreateModel(ctx, rec); err != nil {
			return nil, fmt.Errorf("create model %q: %w", d.name, err)
		}
		out.Models = append(out.Models, rec.ID)
	}
	return out, nil
}

func (d demoModel) record(userID string, at time.Time) (*model.ModelRecord, error) {
	metrics, err := model.EncodeSequence(d.metrics)
	if err != nil {
		return nil, fmt.Errorf("encode metrics for %q: %w", d.name, err)
	}
	highlights, err := model.EncodeSequence(d.highlights)
	if err != nil {
		return nil, fmt.Errorf("encode highlights for %q: %w", d.name, err)
	}

	lastTrained := d.lastTrained
	return &model.ModelRecord{
		ID:          ulid.Make().String(),
		UserID:      userID,
		Name:        d.name,
		Domain:      d.domain,
		BaseModel:   d.baseModel,
		Dataset:     d.dataset,
		Status:      d.status,
		Metrics:     metrics,
		Highlights:  highlights,
		LastTrained: &lastTrained,
		CreatedAt:   at,
		UpdatedAt:   at,
	}, nil
}
