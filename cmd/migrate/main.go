// Command migrate is the CLI entry point for the record-migration engine.
// It loads a named TransferConfig from the SQLite config store, runs the
// four-stage pipeline against the source and target environments, and
// either prints a dry-run summary or dispatches the resulting operations
// through the executor.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"dynamics-transfer/internal/config"
	"dynamics-transfer/internal/configstore"
	"dynamics-transfer/internal/executor"
	"dynamics-transfer/internal/metadata"
	"dynamics-transfer/internal/migrate"
	"dynamics-transfer/internal/platform"
	"dynamics-transfer/internal/queue"
	"dynamics-transfer/internal/resilience"
	"dynamics-transfer/internal/telemetry"
)

func main() {
	apply := flag.Bool("apply", false, "dispatch the resolved operations instead of printing a dry-run summary")
	flag.Parse()

	ctx := context.Background()
	instrumenter := telemetry.NewLogInstrumenter(nil)
	ctx = telemetry.WithTraceID(ctx, uuid.NewString())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := configstore.Open(ctx, cfg.ConfigStorePath)
	if err != nil {
		log.Fatalf("open config store: %v", err)
	}
	defer store.Close()

	transferConfig, err := store.Load(ctx, cfg.TransferName)
	if err != nil {
		log.Fatalf("load transfer config %q: %v", cfg.TransferName, err)
	}
	if transferConfig.Mode == migrate.ModeScript {
		log.Fatalf("transfer config %q is script mode; this CLI only drives declarative transforms", cfg.TransferName)
	}
	log.Printf("loaded transfer config %q (%d entity mappings)", transferConfig.Name, len(transferConfig.EntityMappings))

	sourceClient := platform.New(cfg.Source.BaseURL,
		platform.NewTokenSource(platform.OAuthConfig{
			TokenURL: cfg.Source.TokenURL, ClientID: cfg.Source.ClientID,
			ClientSecret: cfg.Source.ClientSecret, Scope: cfg.Source.Scope,
		}, nil), nil)
	targetClient := platform.New(cfg.Target.BaseURL,
		platform.NewTokenSource(platform.OAuthConfig{
			TokenURL: cfg.Target.TokenURL, ClientID: cfg.Target.ClientID,
			ClientSecret: cfg.Target.ClientSecret, Scope: cfg.Target.Scope,
		}, nil), nil)

	// The source environment's schema is the metadata authority: field
	// traversal, navigation names, and lookup detection all key off it. A
	// cross-tenant migration assumes both sides share the same logical
	// schema.
	meta := metadata.NewCachedHTTPService(func(ctx context.Context, logicalName string) (metadata.EntityMetadata, error) {
		return platform.FetchEntityMetadata(ctx, sourceClient, logicalName)
	}, 10*time.Minute)

	warnIfTokenExpiring(ctx, "source", sourceClient.TokenSource())
	warnIfTokenExpiring(ctx, "target", targetClient.TokenSource())

	log.Println("running dry-run pipeline (expand plan -> fetch -> transform -> resolve -> validate)")
	dryRunCtx, dryRunSpan := instrumenter.StartSpan(ctx, "cli", "migrate", "dry_run")
	dryRunSpan.SetEntity(transferConfig.Name, "")
	transfer, err := migrate.DryRun(dryRunCtx, transferConfig, meta, sourceClient, targetClient, targetClient)
	if err != nil {
		dryRunSpan.SetStatus("error")
		dryRunSpan.End()
		log.Fatalf("dry run: %v", err)
	}
	dryRunSpan.SetStatus("ok")
	dryRunSpan.End()
	summarize(transfer)

	if !*apply {
		log.Println("dry-run only; pass -apply to dispatch operations")
		return
	}

	bindings, err := migrate.BuildBindingContext(ctx, transferConfig, meta)
	if err != nil {
		log.Fatalf("build binding context: %v", err)
	}
	items := queue.Build(transfer, bindings, queue.BuildOptions{
		BatchSize:      cfg.BatchSize,
		OrphanHandling: orphanHandling(transferConfig, transfer),
		ConfigName:     transferConfig.Name,
	})
	log.Printf("built %d queue items", len(items))

	exec := executor.New(executor.Config{
		Retry: resilience.RetryConfig{
			MaxAttempts:       cfg.Resilience.MaxAttempts,
			BaseDelay:         cfg.Resilience.BaseDelay(),
			MaxDelay:          cfg.Resilience.MaxDelay(),
			BackoffMultiplier: cfg.Resilience.BackoffMultiplier,
			Jitter:            cfg.Resilience.Jitter,
		},
		RateLimiter: resilience.NewRateLimiter(resilience.RateLimitConfig{
			RequestsPerMinute: cfg.Resilience.RequestsPerMinute,
			BurstCapacity:     cfg.Resilience.BurstCapacity,
			Enabled:           cfg.Resilience.RateLimitEnabled,
		}),
		MaxQueueItems:         cfg.Resilience.MaxQueueItems,
		MaxConcurrentRequests: cfg.Resilience.MaxConcurrentRequests,
	}, targetClient)

	applyCtx, applySpan := instrumenter.StartSpan(ctx, "cli", "migrate", "apply")
	applySpan.SetEntity(transferConfig.Name, "")
	applySpan.SetMetadata("queue_items", len(items))
	results := exec.Run(applyCtx, items)
	for _, r := range results {
		status := "ok"
		if !r.Success {
			status = "error"
		}
		instrumenter.EmitBusinessEvent(applyCtx, "queue_item_dispatched", r.Item.Label, "", map[string]any{
			"status": status, "operations": len(r.Results),
		})
	}
	applySpan.SetStatus("ok")
	applySpan.End()
	reportResults(results)
}

// warnIfTokenExpiring logs when an environment's bearer token lapses within
// ten minutes; a long dry-run would have to re-authenticate mid-flight.
// Errors are swallowed: an opaque (non-JWT) token just means no warning.
func warnIfTokenExpiring(ctx context.Context, env string, tokens *platform.TokenSource) {
	token, err := tokens.Token(ctx)
	if err != nil {
		return
	}
	exp, err := platform.TokenExpiry(token)
	if err != nil {
		return
	}
	if until := time.Until(exp); until < 10*time.Minute {
		log.Printf("%s token expires in %s", env, until.Round(time.Second))
	}
}

// orphanHandling derives each entity set's TargetOnly treatment from its
// mapping's operation filter: deactivates wins over deletes, and neither
// means orphans are ignored.
func orphanHandling(cfg migrate.TransferConfig, transfer migrate.ResolvedTransfer) map[string]queue.OrphanHandling {
	out := map[string]queue.OrphanHandling{}
	for _, em := range cfg.EntityMappings {
		if !em.Operations.Deletes && !em.Operations.Deactivates {
			continue
		}
		for _, ent := range transfer.Entities {
			if ent.TargetEntity != em.TargetEntity {
				continue
			}
			if em.Operations.Deactivates {
				out[ent.EntitySetName] = queue.OrphanDeactivate
			} else {
				out[ent.EntitySetName] = queue.OrphanDelete
			}
		}
	}
	return out
}

func summarize(transfer migrate.ResolvedTransfer) {
	var creates, updates, noChange, targetOnly, skips, errs int
	for _, entity := range transfer.Entities {
		for _, r := range entity.Records {
			switch r.Action {
			case migrate.ActionCreate:
				creates++
			case migrate.ActionUpdate:
				updates++
			case migrate.ActionNoChange:
				noChange++
			case migrate.ActionTargetOnly:
				targetOnly++
			case migrate.ActionSkip:
				skips++
			case migrate.ActionError:
				errs++
				log.Printf("error: %s %s: %v", entity.TargetEntity, r.SourceID, r.Error)
			}
		}
	}
	log.Printf("summary: %d create, %d update, %d no_change, %d target_only, %d skip, %d error",
		creates, updates, noChange, targetOnly, skips, errs)
}

func reportResults(results []executor.ItemResult) {
	ok, failed := 0, 0
	for _, r := range results {
		if r.Success {
			ok++
			continue
		}
		failed++
		log.Printf("queue item failed: %s", r.Item.Label)
	}
	fmt.Printf("dispatched %d queue items: %d succeeded, %d failed\n", len(results), ok, failed)
}
