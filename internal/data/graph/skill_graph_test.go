package graph

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/yungbote/neurobridge-mastery/internal/learning/skills"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
	"github.com/yungbote/neurobridge-mastery/internal/platform/neo4jdb"
)

func TestNilClientIsInert(t *testing.T) {
	ctx := context.Background()
	p := NewNeo4jProvider(nil, logger.NewNop())
	_, ok, err := p.Describe(ctx, "css-flexbox")
	if err != nil || ok {
		t.Fatalf("Describe ok=%v err=%v", ok, err)
	}
	if err := SyncCatalog(ctx, nil, logger.NewNop(), []*skills.KnowledgeComponent{{ID: "x"}}); err != nil {
		t.Fatalf("SyncCatalog: %v", err)
	}
}

func TestNeo4jRoundTrip(t *testing.T) {
	uri := strings.TrimSpace(os.Getenv("TEST_NEO4J_URI"))
	if uri == "" {
		t.Skip("TEST_NEO4J_URI not set")
	}
	ctx := context.Background()
	log := logger.NewNop()
	cfg := neo4jdb.ConfigFromEnv()
	cfg.URI = uri
	client, err := neo4jdb.New(log, cfg)
	if err != nil {
		t.Fatalf("neo4jdb.New: %v", err)
	}
	defer client.Close(ctx)

	list := []*skills.KnowledgeComponent{
		{ID: "test-graph-base", Category: "css"},
		{ID: "test-graph-top", Category: "css", Prerequisites: []string{"test-graph-base"}},
	}
	if err := SyncCatalog(ctx, client, log, list); err != nil {
		t.Fatalf("SyncCatalog: %v", err)
	}
	d, ok, err := NewNeo4jProvider(client, log).Describe(ctx, "test-graph-top")
	if err != nil || !ok {
		t.Fatalf("Describe ok=%v err=%v", ok, err)
	}
	if d.Category != "css" || len(d.Prerequisites) != 1 || d.Prerequisites[0] != "test-graph-base" {
		t.Fatalf("unexpected descriptor: %+v", d)
	}
}
