// Package tiered composes per-aggregate routing across short-term, mid-term,
// and long-term storage tiers. Each tier is a full store bundle; the
// composite routes every aggregate to exactly one tier and closes each
// underlying bundle exactly once.
package tiered

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/youssefsiam38/agentmem/storage"
	"github.com/youssefsiam38/agentmem/storage/document"
	"github.com/youssefsiam38/agentmem/storage/file"
)

// Tier identifies a storage tier.
type Tier string

const (
	// TierShort holds the hottest data: cheap to rebuild, bounded by
	// compaction.
	TierShort Tier = "short-term"

	// TierMid holds everything whose durability matters.
	TierMid Tier = "mid-term"

	// TierLong is provisioned for archival use and only reached through
	// routing overrides.
	TierLong Tier = "long-term"
)

// Aggregate identifies one of the six persisted aggregates for routing
// overrides.
type Aggregate string

const (
	AggregateSessions    Aggregate = "sessions"
	AggregateContexts    Aggregate = "contexts"
	AggregateHistories   Aggregate = "histories"
	AggregateCompactions Aggregate = "compactions"
	AggregateTasks       Aggregate = "tasks"
	AggregateSubTaskRuns Aggregate = "subtask-runs"
)

// TierConfig describes one tier's backing store. Type selects the adapter:
// "file" (BasePath) or "document" (Document config).
type TierConfig struct {
	Type     string
	BasePath string
	Document document.Config
}

// Config configures the tiered composition. Absent tier descriptors default
// to file tiers under <BasePath>/<tier>.
type Config struct {
	// BasePath roots the defaulted file tiers.
	BasePath string

	ShortTerm *TierConfig
	MidTerm   *TierConfig
	LongTerm  *TierConfig

	// Routing overrides the default aggregate placement
	// (contexts → short-term, everything else → mid-term).
	Routing map[Aggregate]Tier
}

// NewBundle builds the composite bundle. Tiers with identical descriptors
// share one underlying bundle.
func NewBundle(cfg Config, log zerolog.Logger) (*storage.Bundle, error) {
	built := make(map[string]*storage.Bundle)

	build := func(tier Tier, tc *TierConfig) (*storage.Bundle, error) {
		if tc == nil {
			tc = &TierConfig{Type: "file", BasePath: filepath.Join(cfg.BasePath, string(tier))}
		}

		key := descriptorKey(tc)
		if bundle, ok := built[key]; ok {
			return bundle, nil
		}

		var bundle *storage.Bundle
		switch tc.Type {
		case "file", "":
			base := tc.BasePath
			if base == "" {
				base = filepath.Join(cfg.BasePath, string(tier))
			}
			bundle = file.NewBundle(base, log)
		case "document":
			bundle = document.NewBundle(tc.Document, log)
		default:
			return nil, fmt.Errorf("%w: tier %s requested backend %q", storage.ErrBackendUnsupported, tier, tc.Type)
		}

		built[key] = bundle
		return bundle, nil
	}

	short, err := build(TierShort, cfg.ShortTerm)
	if err != nil {
		return nil, err
	}
	mid, err := build(TierMid, cfg.MidTerm)
	if err != nil {
		return nil, err
	}
	long, err := build(TierLong, cfg.LongTerm)
	if err != nil {
		return nil, err
	}

	tiers := map[Tier]*storage.Bundle{TierShort: short, TierMid: mid, TierLong: long}
	pick := func(aggregate Aggregate, fallback Tier) *storage.Bundle {
		if tier, ok := cfg.Routing[aggregate]; ok {
			if bundle, ok := tiers[tier]; ok {
				return bundle
			}
		}
		return tiers[fallback]
	}

	sessions := pick(AggregateSessions, TierMid)
	contexts := pick(AggregateContexts, TierShort)
	histories := pick(AggregateHistories, TierMid)
	compactions := pick(AggregateCompactions, TierMid)
	tasks := pick(AggregateTasks, TierMid)
	runs := pick(AggregateSubTaskRuns, TierMid)

	return &storage.Bundle{
		Sessions:    sessions.Sessions,
		Contexts:    contexts.Contexts,
		Histories:   histories.Histories,
		Compactions: compactions.Compactions,
		Tasks:       tasks.Tasks,
		SubTaskRuns: runs.SubTaskRuns,
		CloseFunc:   closeOnce(short, mid, long),
	}, nil
}

func descriptorKey(tc *TierConfig) string {
	if tc.Type == "document" {
		return fmt.Sprintf("document|%s|%s|%s|%s",
			tc.Document.DriverName, tc.Document.ConnectionString,
			tc.Document.DBName, tc.Document.CollectionPrefix)
	}
	return fmt.Sprintf("file|%s", tc.BasePath)
}

// closeOnce closes each distinct underlying bundle exactly once, collecting
// the first error while still closing the rest.
func closeOnce(bundles ...*storage.Bundle) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		seen := make(map[*storage.Bundle]bool, len(bundles))
		var firstErr error
		for _, b := range bundles {
			if b == nil || seen[b] {
				continue
			}
			seen[b] = true
			if err := b.Close(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
}
