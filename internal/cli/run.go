package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vireosec/hd4-controller/internal/archetype"
	"github.com/vireosec/hd4-controller/internal/classifier"
	"github.com/vireosec/hd4-controller/internal/cognition"
	"github.com/vireosec/hd4-controller/internal/config"
	"github.com/vireosec/hd4-controller/internal/correlate"
	"github.com/vireosec/hd4-controller/internal/dispatch"
	"github.com/vireosec/hd4-controller/internal/entity"
	"github.com/vireosec/hd4-controller/internal/store"
	"github.com/vireosec/hd4-controller/internal/trigger"
	"github.com/vireosec/hd4-controller/internal/work"
)

// #region run-cmd

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the controller, reading observations from stdin",
	Long: "Reads newline-delimited JSON observations from stdin and runs one\n" +
		"control cycle per line:\n\n" +
		`  {"trigger_key":"edr.proc.spawn","context":"...","occurred_at":"2026-08-24T12:00:00Z"}` + "\n\n" +
		"Fire events go to Kafka when HD4_KAFKA_BROKERS is set, otherwise to\n" +
		"the in-process bus and the log.",
	RunE: runController,
}

// wireObservation is the stdin ingest format.
type wireObservation struct {
	TriggerKey string    `json:"trigger_key"`
	Context    string    `json:"context,omitempty"`
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

// #endregion run-cmd

// #region wiring

func runController(cmd *cobra.Command, args []string) error {
	log := slog.Default()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	registry, err := trigger.NewRegistry(st.DB())
	if err != nil {
		return err
	}
	graph, err := correlate.NewGraph(st.DB(), 0)
	if err != nil {
		return err
	}

	router := archetype.NewRouter(cfg.RouterSlots)
	if n, err := st.WarmRouter(router); err != nil {
		return err
	} else if n > 0 {
		log.Info("router warmed from cache", "entries", n)
	}

	cls, err := classifier.NewClient(cfg.ClassifierAddr)
	if err != nil {
		return err
	}
	defer cls.Close()

	var dispatcher dispatch.Dispatcher
	if cfg.KafkaBrokers != "" {
		kd := dispatch.NewKafkaDispatcher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kd.Close()
		dispatcher = kd
		log.Info("fire events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		bus := dispatch.NewBus(cfg.ExecutorQueue)
		bus.Subscribe(func(env dispatch.Envelope) {
			log.Info("fire event",
				"event_id", env.EventID, "trigger_key", env.TriggerKey,
				"code", env.Fire.TriggerCode, "action", env.Fire.Action,
				"severity", env.Fire.Severity.String())
		})
		go bus.Run(ctx)
		dispatcher = bus
	}

	executor := work.NewExecutor(cfg.ExecutorWorkers, log)
	defer executor.Shutdown()

	orc := cognition.New(cfg, cognition.Options{
		Registry:   registry,
		Router:     router,
		Entities:   entity.NewStore(),
		Classifier: cls,
		Dispatcher: dispatcher,
		Executor:   executor,
		Recorder:   st,
		Correlator: graph,
		Logger:     log,
	})

	log.Info("controller ready",
		"triggers", registry.Len(), "classifier", cfg.ClassifierAddr, "db", cfg.DBPath)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var obs wireObservation
		if err := json.Unmarshal(line, &obs); err != nil {
			log.Error("bad observation line", "error", err)
			continue
		}

		res, err := orc.Cycle(ctx, cognition.Observation{
			TriggerKey: obs.TriggerKey,
			Context:    obs.Context,
			OccurredAt: obs.OccurredAt,
		})
		switch {
		case errors.Is(err, trigger.ErrUnknownTrigger):
			log.Warn("observation rejected", "trigger_key", obs.TriggerKey, "error", err)
			continue
		case err != nil:
			return fmt.Errorf("cycle for %s: %w", obs.TriggerKey, err)
		}

		log.Debug("cycle complete",
			"cycle_id", res.CycleID, "trigger_key", obs.TriggerKey,
			"posterior", res.Entity.Belief.Posterior.Float(),
			"intensity", res.Entity.Intensity.Float(),
			"level", res.Entity.Belief.Level.String(),
			"escalated", res.Escalated, "degraded", res.Degraded,
			"elapsed", res.Elapsed)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	log.Info("input drained, shutting down")
	return nil
}

// #endregion wiring
