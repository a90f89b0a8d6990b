package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ferrun/loom/internal/config"
	"github.com/ferrun/loom/internal/eventlog"
	"github.com/ferrun/loom/internal/memory"
	"github.com/ferrun/loom/internal/session"
	"github.com/ferrun/loom/internal/workflow"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// stages of the demo campaign workflow, in execution order.
var stages = []string{
	"Strategic Planning",
	"Market Research",
	"SEO Analysis",
	"Content Creation",
	"Social Media",
	"Quality Validation",
}

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/loom.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not loaded, using defaults", zap.String("path", cfgPath), zap.Error(err))
		cfg = config.Default()
	}

	registry, err := session.NewRegistry(cfg.StorageRoot, cfg.Session.RetentionDays, cfg.Session.AutoCleanup, logger)
	if err != nil {
		logger.Fatal("registry init failed", zap.Error(err))
	}

	handle, err := registry.CreateSession("SmartHub Pro 360", "campaign")
	if err != nil {
		logger.Fatal("session create failed", zap.Error(err))
	}
	logger.Info("session started", zap.String("session", handle.ID))

	mem, err := memory.NewManager(handle.ID, handle.Dir, cfg.StorageRoot, cfg.Memory.CacheSize, cfg.Memory.ApprovalThreshold, logger)
	if err != nil {
		logger.Fatal("memory init failed", zap.Error(err))
	}

	events, err := eventlog.NewLogger(handle.ID, handle.Dir,
		cfg.EventLog.BufferSize, time.Duration(cfg.EventLog.FlushIntervalMS)*time.Millisecond, logger)
	if err != nil {
		logger.Fatal("event log init failed", zap.Error(err))
	}

	tracker := workflow.NewTracker(handle.ID, logger)
	stageTracker := workflow.NewStageTracker(handle.ID, stages)
	metrics := workflow.NewCollector(handle.ID)

	run := &campaignRun{
		cfg:     cfg,
		mem:     mem,
		events:  events,
		tracker: tracker,
		stage:   stageTracker,
		metrics: metrics,
		logger:  logger,
	}

	start := time.Now()
	metrics.MarkStart()
	events.Log(eventlog.Record{
		Type: eventlog.SessionStarted, Level: eventlog.LevelInfo,
		Message: "Campaign workflow started",
		Data:    map[string]interface{}{"product": "SmartHub Pro 360"},
	})

	qualityScore, runErr := run.execute()
	metrics.MarkEnd()

	status := session.StatusCompleted
	if runErr != nil {
		status = session.StatusFailed
		events.Error("Workflow aborted: "+runErr.Error(), "", nil)
	} else if score, ok := mem.LearningSuggestions(memory.ProductInfo{
		Category: "Smart Home Devices",
		Keywords: []string{"smart home", "automation", "hub"},
		Audience: "tech-savvy homeowners",
	}); ok {
		logger.Info("learning suggestion available",
			zap.String("template", score.TemplateID),
			zap.Float64("similarity", score.Similarity))
	}

	duration := time.Since(start).Seconds()
	snap := metrics.Snapshot()
	registry.UpdateSession(handle.ID, session.Update{
		Status:       &status,
		Duration:     &duration,
		AgentCount:   &snap.AgentsExecuted,
		ErrorCount:   &snap.Errors,
		QualityScore: &qualityScore,
	})

	events.Log(eventlog.Record{
		Type: eventlog.SessionCompleted, Level: eventlog.LevelSuccess,
		Message: "Campaign workflow finished",
		Data:    map[string]interface{}{"status": string(status), "quality_score": qualityScore},
	})
	events.Stop()

	if err := tracker.ExportState(filepath.Join(handle.Dir, "results", "workflow_state.json")); err != nil {
		logger.Warn("state export failed", zap.Error(err))
	}
	mem.ClearSessionMemory()

	summary := eventlog.NewStreamer(handle.Dir).Summarize()
	fmt.Printf("session %s: %d events, %d errors, quality %.1f, %.2fs\n",
		handle.ID, summary.TotalEvents, summary.ErrorCount, qualityScore, duration)
}

// campaignRun drives the demo workflow against the subsystem.
type campaignRun struct {
	cfg     *config.Config
	mem     *memory.Manager
	events  *eventlog.Logger
	tracker *workflow.Tracker
	stage   *workflow.StageTracker
	metrics *workflow.Collector
	logger  *zap.Logger
}

// execute registers the task graph, then repeatedly fans out ready
// tasks through a bounded goroutine pool until nothing remains.
func (r *campaignRun) execute() (float64, error) {
	graph := []struct {
		id, name, agent string
		stageIndex      int
		deps            []string
	}{
		{"plan", stages[0], "lead_planner", 0, nil},
		{"research_market", stages[1], "market_research_analyst", 1, []string{"plan"}},
		{"research_seo", stages[2], "seo_specialist", 2, []string{"plan"}},
		{"draft_content", stages[3], "copywriter", 3, []string{"research_market", "research_seo"}},
		{"social", stages[4], "social_media_marketer", 4, []string{"draft_content"}},
		{"validate", stages[5], "quality_validator", 5, []string{"social"}},
	}
	agents := make(map[string]string, len(graph))
	stageIndex := make(map[string]int, len(graph))
	for _, g := range graph {
		if err := r.tracker.RegisterTask(g.id, g.name, g.deps); err != nil {
			return 0, err
		}
		agents[g.id] = g.agent
		stageIndex[g.id] = g.stageIndex
	}

	pool := make(chan struct{}, r.cfg.Workflow.MaxParallel)
	for {
		ready := r.tracker.NextExecutable(r.cfg.Workflow.MaxParallel)
		if len(ready) == 0 {
			break
		}

		var wg sync.WaitGroup
		for _, id := range ready {
			wg.Add(1)
			go func(taskID string) {
				defer wg.Done()
				pool <- struct{}{}        // acquire slot
				defer func() { <-pool }() // release slot

				r.runTask(taskID, agents[taskID], stageIndex[taskID])
			}(id)
		}
		wg.Wait()

		if r.tracker.HasCriticalFailure() {
			return 0, fmt.Errorf("workflow has critical failure")
		}
	}

	progress := r.tracker.GetWorkflowProgress()
	if progress.Completed < progress.Total {
		return 0, fmt.Errorf("workflow stalled at %.0f%%", progress.PercentComplete)
	}
	return r.finalQuality()
}

// runTask simulates one agent stage: it consumes upstream memory,
// produces its own output, and reports progress through the event log.
func (r *campaignRun) runTask(taskID, agentID string, stageIndex int) {
	start := time.Now()
	r.tracker.StartTask(taskID)
	startEvent := r.events.AgentStart(agentID, agentID, taskID)
	r.stage.UpdateStage(stageIndex, 0)

	output := map[string]interface{}{
		"task":     taskID,
		"agent":    agentID,
		"produced": time.Now().Format(time.RFC3339),
	}
	if !r.mem.Store(agentID, taskID+"_output", output, memory.TierEphemeral, []string{taskID}) {
		r.metrics.RecordError()
	}
	r.metrics.RecordMemoryOp()
	r.events.MemoryOp(agentID, "store", string(memory.TierEphemeral), taskID+"_output")

	// Publish for downstream stages.
	r.mem.ShareToAll(agentID, taskID+"_summary", output)
	r.metrics.RecordMemoryOp()

	durationMS := float64(time.Since(start).Microseconds()) / 1000.0
	r.tracker.CompleteTask(taskID, output)
	r.events.AgentDone(agentID, agentID, durationMS, startEvent)
	r.metrics.RecordAgentExecution(durationMS)
	r.stage.UpdateStage(stageIndex, 100)
}

// finalQuality grades the run, persists the score to long-term memory
// and promotes the run to a campaign template when it qualifies.
func (r *campaignRun) finalQuality() (float64, error) {
	const score = 92.0

	r.mem.Store("quality_validator", "last_quality", map[string]interface{}{"quality": score},
		memory.TierLongTerm, []string{"validation"})
	r.events.Log(eventlog.Record{
		Type: eventlog.ValidationResult, Level: eventlog.LevelMetric,
		Message: "Final quality computed",
		AgentID: "quality_validator",
		Data:    map[string]interface{}{"quality_score": score},
	})

	templateID, err := r.mem.SaveCampaignTemplate(
		"SmartHub Pro 360", "Smart Home Devices", score,
		"tech-savvy homeowners",
		[]string{"smart home", "automation", "hub", "voice control"},
		map[string]interface{}{"sections": []string{"title", "bullets", "description"}},
		map[string]interface{}{"stages_completed": len(stages)},
		[]string{"demo"},
	)
	if err != nil {
		// Below-threshold runs simply do not become templates.
		r.logger.Info("run not promoted to template", zap.Error(err))
		return score, nil
	}
	r.logger.Info("campaign template promoted", zap.String("template", templateID))
	return score, nil
}
