// Package graph mirrors the skill prerequisite graph into Neo4j and serves it
// back to the skill registry. A prerequisite edge points from the required
// skill to the skill that needs it:
//
//	(:Concept {id: "css-box-model"})-[:CONCEPT_PREREQ]->(:Concept {id: "css-flexbox"})
package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/neurobridge-mastery/internal/learning/skills"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
	"github.com/yungbote/neurobridge-mastery/internal/platform/neo4jdb"
)

type Neo4jProvider struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewNeo4jProvider(client *neo4jdb.Client, baseLog *logger.Logger) *Neo4jProvider {
	return &Neo4jProvider{client: client, log: baseLog.With("provider", "Neo4jSkillGraph")}
}

// Describe reports the category and direct prerequisites stored for skillID.
// A nil client never finds anything.
func (p *Neo4jProvider) Describe(ctx context.Context, skillID string) (skills.Descriptor, bool, error) {
	if p == nil || p.client == nil || p.client.Driver == nil {
		return skills.Descriptor{}, false, nil
	}
	skillID = strings.TrimSpace(skillID)
	if skillID == "" {
		return skills.Descriptor{}, false, nil
	}

	session := p.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (s:Concept {id: $id})
OPTIONAL MATCH (p:Concept)-[:CONCEPT_PREREQ]->(s)
RETURN s.category AS category, collect(p.id) AS prerequisites
`, map[string]any{"id": skillID})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			return nil, res.Err()
		}
		rec := res.Record()
		d := skills.Descriptor{}
		if v, ok := rec.Get("category"); ok {
			if s, ok := v.(string); ok {
				d.Category = s
			}
		}
		if v, ok := rec.Get("prerequisites"); ok {
			if list, ok := v.([]any); ok {
				for _, item := range list {
					if s, ok := item.(string); ok {
						d.Prerequisites = append(d.Prerequisites, s)
					}
				}
			}
		}
		return &d, nil
	})
	if err != nil {
		return skills.Descriptor{}, false, fmt.Errorf("neo4j skill graph read: %w", err)
	}
	d, ok := out.(*skills.Descriptor)
	if !ok || d == nil {
		return skills.Descriptor{}, false, nil
	}
	return *d, true, nil
}

// SyncCatalog upserts skill nodes and their prerequisite edges. Existing edges
// not present in the input are left alone.
func SyncCatalog(ctx context.Context, client *neo4jdb.Client, log *logger.Logger, list []*skills.KnowledgeComponent) error {
	if client == nil || client.Driver == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	nodes := make([]map[string]any, 0, len(list))
	edges := make([]map[string]any, 0, len(list))
	for _, kc := range list {
		if kc == nil || kc.ID == "" {
			continue
		}
		nodes = append(nodes, map[string]any{
			"id":         kc.ID,
			"category":   kc.Category,
			"p_mastery0": kc.Params.PMastery0,
			"p_transit":  kc.Params.PTransit,
			"p_slip":     kc.Params.PSlip,
			"p_guess":    kc.Params.PGuess,
			"synced_at":  now,
		})
		for _, pre := range kc.Prerequisites {
			edges = append(edges, map[string]any{
				"from_id":   pre,
				"to_id":     kc.ID,
				"synced_at": now,
			})
		}
	}

	session := client.WriteSession(ctx)
	defer session.Close(ctx)

	// Best effort: restricted users may not be allowed to create constraints.
	if res, err := session.Run(ctx, `CREATE CONSTRAINT concept_id_unique IF NOT EXISTS FOR (s:Concept) REQUIRE s.id IS UNIQUE`, nil); err != nil {
		if log != nil {
			log.Warn("neo4j schema init failed (continuing)", "error", err)
		}
	} else {
		_, _ = res.Consume(ctx)
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if len(nodes) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $nodes AS n
MERGE (s:Concept {id: n.id})
SET s += n
`, map[string]any{"nodes": nodes})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		if len(edges) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $edges AS e
MERGE (a:Concept {id: e.from_id})
MERGE (b:Concept {id: e.to_id})
MERGE (a)-[r:CONCEPT_PREREQ]->(b)
SET r.synced_at = e.synced_at
`, map[string]any{"edges": edges})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("neo4j skill graph sync: %w", err)
	}
	if log != nil {
		log.Info("neo4j skill graph synced", "skills", len(nodes), "edges", len(edges))
	}
	return nil
}
