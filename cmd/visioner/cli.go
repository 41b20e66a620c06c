package main

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/dispatcher"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/scene"
	"github.com/sherman-jordan/pf2e-visioner-sub010/pkg/core"
)

// report is the JSON document emitted by the report subcommand.
type report struct {
	Scene       string               `json:"scene"`
	GeneratedAt time.Time            `json:"generatedAt"`
	States      []core.CombinedState `json:"states"`
	Overrides   []core.Override      `json:"overrides,omitempty"`
}

// moveRequest describes one actor movement for the transition subcommand.
type moveRequest struct {
	ActorID     string          `json:"actorId"`
	ObserverIDs []string        `json:"observerIds"`
	To          core.Position3D `json:"to"`
}

// transitionReport pairs each observer with the classified outcome of the move.
type transitionReport struct {
	Scene       string                             `json:"scene"`
	Actor       string                             `json:"actor"`
	GeneratedAt time.Time                          `json:"generatedAt"`
	Transitions map[string]core.PositionTransition `json:"transitions"`
}

func runReport(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("report: missing scene file")
	}
	doc, err := scene.LoadFile(args[0])
	if err != nil {
		return err
	}
	if err := wireScene(args[0], doc); err != nil {
		return err
	}

	if len(args) > 1 && args[1] != "" {
		if err := loadOverrides(args[1]); err != nil {
			return err
		}
	}

	entities, err := doc.Entities()
	if err != nil {
		return fmt.Errorf("report: listing entities: %w", err)
	}
	pairs := make([]core.PairKey, 0, len(entities)*(len(entities)-1))
	for _, obs := range entities {
		for _, tgt := range entities {
			if obs.ID == tgt.ID {
				continue
			}
			pairs = append(pairs, core.PairKey{Observer: obs.ID, Target: tgt.ID})
		}
	}

	txStart := time.Now()
	states := eng.GetBatchCombinedStates(pairs)
	Logger.Info("Computed combined states",
		"pairs", len(pairs), "elapsed", time.Since(txStart))

	pinned, err := overrides.List()
	if err != nil {
		Logger.Warn("Could not list overrides for report", "error", err)
	}

	out := report{
		Scene:       args[0],
		GeneratedAt: time.Now(),
		States:      states,
		Overrides:   pinned,
	}
	dest := ""
	if len(args) > 2 {
		dest = args[2]
	}
	return writeJSON(dest, out)
}

func runTransition(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("transition: need scene file and move file")
	}
	doc, err := scene.LoadFile(args[0])
	if err != nil {
		return err
	}
	if err := wireScene(args[0], doc); err != nil {
		return err
	}

	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("transition: reading move file: %w", err)
	}
	var move moveRequest
	if err := json.Unmarshal(data, &move); err != nil {
		return fmt.Errorf("transition: parsing move file: %w", err)
	}
	if move.ActorID == "" {
		return fmt.Errorf("transition: move file has no actorId")
	}
	if len(move.ObserverIDs) == 0 {
		// Default to everyone else on the map watching the actor.
		entities, err := doc.Entities()
		if err != nil {
			return err
		}
		for _, e := range entities {
			if e.ID != move.ActorID {
				move.ObserverIDs = append(move.ObserverIDs, e.ID)
			}
		}
	}

	start := tracker.CaptureStartPositions(move.ActorID, move.ObserverIDs)

	doc.MoveEntity(move.ActorID, move.To)
	if _, err := events.Dispatch(dispatcher.Event{
		Kind:      dispatcher.EventTokenMoved,
		EntityID:  move.ActorID,
		Timestamp: time.Now(),
	}); err != nil {
		Logger.Warn("Token move event failed", "error", err)
	}

	end := tracker.CalculateEndPositions(move.ActorID, move.ObserverIDs)
	transitions := tracker.AnalyzeTransitions(start, end)

	out := transitionReport{
		Scene:       args[0],
		Actor:       move.ActorID,
		GeneratedAt: time.Now(),
		Transitions: transitions,
	}
	dest := ""
	if len(args) > 2 {
		dest = args[2]
	}
	return writeJSON(dest, out)
}

func runStatus(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("status: missing scene file")
	}
	doc, err := scene.LoadFile(args[0])
	if err != nil {
		return err
	}
	if err := wireScene(args[0], doc); err != nil {
		return err
	}

	// Exercise every pair once so the status reflects the loaded scene
	// rather than an untouched ledger.
	entities, err := doc.Entities()
	if err != nil {
		return err
	}
	for _, obs := range entities {
		for _, tgt := range entities {
			if obs.ID != tgt.ID {
				eng.GetCombinedState(obs.ID, tgt.ID)
			}
		}
	}

	status := eng.GetSystemStatus()
	for tag, st := range status {
		if !st.Available {
			if eng.AttemptSystemRecovery(tag) {
				Logger.Info("System recovered", "system", tag)
			}
		}
	}

	out := map[string]any{
		"scene":           args[0],
		"generatedAt":     time.Now(),
		"systems":         eng.GetSystemStatus(),
		"errors":          eng.GetErrorHistory(""),
		"storageDegraded": overrides.Degraded(),
	}
	return writeJSON("", out)
}

// loadOverrides reads a JSON array of overrides and pins each through the
// engine so the pair cache stays consistent.
func loadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading overrides file: %w", err)
	}
	var pins []core.Override
	if err := json.Unmarshal(data, &pins); err != nil {
		return fmt.Errorf("parsing overrides file: %w", err)
	}
	for i := range pins {
		if err := eng.SetOverride(&pins[i]); err != nil {
			return fmt.Errorf("pinning override %s: %w", pins[i].Pair, err)
		}
	}
	Logger.Info("Loaded overrides", "count", len(pins), "path", path)
	return nil
}

// writeJSON marshals v to dest. An empty dest writes to stdout; a .gz suffix
// gzips the output.
func writeJSON(dest string, v any) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshalling json: %w", err)
	}

	if dest == "" {
		fmt.Println(string(jsonBytes))
		return nil
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("error creating output file: %w", err)
	}
	defer f.Close()

	if strings.HasSuffix(dest, ".gz") {
		gzWriter := gzip.NewWriter(f)
		if _, err := gzWriter.Write(jsonBytes); err != nil {
			return fmt.Errorf("error writing to gzip: %w", err)
		}
		if err := gzWriter.Close(); err != nil {
			return fmt.Errorf("error closing gzip: %w", err)
		}
	} else {
		if _, err := f.Write(jsonBytes); err != nil {
			return fmt.Errorf("error writing output: %w", err)
		}
	}
	Logger.Info("Wrote output", "path", dest, "bytes", len(jsonBytes))
	return nil
}
