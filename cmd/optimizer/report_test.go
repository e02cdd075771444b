package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/constellation-optimizer/decision"
	"github.com/signalsfoundry/constellation-optimizer/model"
	"github.com/signalsfoundry/constellation-optimizer/optimizer"
	"github.com/signalsfoundry/constellation-optimizer/timectrl"
	"github.com/signalsfoundry/constellation-optimizer/visibility"
	"github.com/signalsfoundry/constellation-optimizer/zone"
)

func reportSchema(t *testing.T) *decision.Schema {
	t.Helper()
	z, err := zone.New([]model.GeodeticPoint{{Latitude: 0.8, Longitude: 0.1}}, 0.01)
	if err != nil {
		t.Fatalf("zone.New error: %v", err)
	}
	a, _ := decision.NewReal(decision.VarSemiMajorAxis, 7e6, 7.2e6)
	e, _ := decision.NewReal(decision.VarEccentricity, 0, 0.01)
	inc, _ := decision.NewReal(decision.VarInclination, 0.5, 1.5)
	raan, _ := decision.NewReal(decision.VarRAAN, 0, 2*math.Pi)
	argp, _ := decision.NewReal(decision.VarArgPerigee, 0, 2*math.Pi)
	n, _ := decision.NewInteger(decision.VarNbSat, 1, 3, true)
	s, err := decision.NewSchema(z, []decision.Variable{a, e, inc, raan, argp, n})
	if err != nil {
		t.Fatalf("NewSchema error: %v", err)
	}
	return s
}

func TestReportEncodesInfinitiesAsNull(t *testing.T) {
	s := reportSchema(t)
	res := optimizer.Result{
		RunID:    "run-1",
		Reason:   optimizer.ReasonCanceled,
		BestCost: math.Inf(1),
		Trace: []optimizer.GenerationStats{{
			Generation: 0, Best: math.Inf(1), RunningBest: math.Inf(1), Mean: math.Inf(1),
			Evaluated: 4, Unbounded: 4, Duration: 1500 * time.Millisecond,
		}},
	}
	var buf bytes.Buffer
	if err := newReport(s, res, errors.New("interrupted"), nil, []decision.Advice{{Message: "raise a"}}).write(&buf); err != nil {
		t.Fatalf("write error: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("report is not valid JSON: %v\n%s", err, buf.String())
	}
	if doc["best_cost_seconds"] != nil {
		t.Fatalf("best_cost_seconds = %v, want null", doc["best_cost_seconds"])
	}
	if doc["reason"] != "canceled" || doc["error"] != "interrupted" {
		t.Fatalf("reason/error = %v / %v", doc["reason"], doc["error"])
	}
	gens := doc["generations"].([]any)
	g0 := gens[0].(map[string]any)
	if g0["best"] != nil || g0["duration_ms"] != float64(1500) || g0["unbounded"] != float64(4) {
		t.Fatalf("generation entry = %v", g0)
	}
	if !strings.Contains(buf.String(), "raise a") {
		t.Fatalf("advice missing from report")
	}
}

func TestReportDescribesBestConstellation(t *testing.T) {
	s := reportSchema(t)
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	window := timectrl.Window{Start: epoch, End: epoch.Add(time.Hour)}
	never := visibility.SourceFunc(func(context.Context, model.Satellite, []model.GeodeticPoint, timectrl.Window, float64) ([]visibility.Event, error) {
		return nil, nil
	})
	cf, err := decision.NewCostFunction(s, decision.SinglePlane{Epoch: epoch}, never, window, 0)
	if err != nil {
		t.Fatalf("NewCostFunction error: %v", err)
	}
	best := decision.Genome{
		decision.RealValue(7.1e6), decision.RealValue(0.001),
		decision.RealValue(math.Pi / 4), decision.RealValue(0), decision.RealValue(0),
		decision.IntValue(2),
	}
	ev, err := cf.Evaluate(context.Background(), best)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}

	res := optimizer.Result{RunID: "run-2", Reason: optimizer.ReasonGenerations, Best: best, BestCost: 321}
	r := newReport(s, res, nil, &ev, nil)
	if r.BestCost == nil || *r.BestCost != 321 {
		t.Fatalf("BestCost = %v, want 321", r.BestCost)
	}
	if r.Best[decision.VarNbSat] != int64(2) || r.Best[decision.VarSemiMajorAxis] != 7.1e6 {
		t.Fatalf("best = %v", r.Best)
	}
	if len(r.Satellites) != 2 {
		t.Fatalf("satellites = %d, want 2", len(r.Satellites))
	}
	sat := r.Satellites[1]
	if math.Abs(sat.InclinationDeg-45) > 1e-9 || math.Abs(sat.MeanAnomalyDeg-180) > 1e-9 {
		t.Fatalf("satellite 2 = %+v", sat)
	}
	if len(sat.TLE[0]) != 69 || len(sat.TLE[1]) != 69 {
		t.Fatalf("TLE lines = %q", sat.TLE)
	}
	if r.Worst == nil || r.Worst.Index != 0 || math.Abs(r.Worst.LatitudeDeg-0.8*180/math.Pi) > 1e-9 {
		t.Fatalf("worst point = %+v", r.Worst)
	}
}
