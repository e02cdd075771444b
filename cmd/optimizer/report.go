package main

import (
	"encoding/json"
	"io"
	"math"
	"time"

	"github.com/signalsfoundry/constellation-optimizer/core"
	"github.com/signalsfoundry/constellation-optimizer/decision"
	"github.com/signalsfoundry/constellation-optimizer/optimizer"
)

// report is the JSON document written at the end of a run. Non-finite costs
// are written as null.
type report struct {
	RunID       string             `json:"run_id"`
	Reason      optimizer.Reason   `json:"reason"`
	Error       string             `json:"error,omitempty"`
	BestCost    *float64           `json:"best_cost_seconds"`
	Best        map[string]any     `json:"best,omitempty"`
	Worst       *worstPoint        `json:"worst_point,omitempty"`
	Satellites  []satelliteReport  `json:"satellites,omitempty"`
	Advice      []string           `json:"advice,omitempty"`
	Generations []generationReport `json:"generations"`
}

type worstPoint struct {
	Index        int     `json:"index"`
	LatitudeDeg  float64 `json:"latitude_deg"`
	LongitudeDeg float64 `json:"longitude_deg"`
}

type satelliteReport struct {
	ID             string    `json:"id"`
	SemiMajorAxisM float64   `json:"semi_major_axis_m"`
	Eccentricity   float64   `json:"eccentricity"`
	InclinationDeg float64   `json:"inclination_deg"`
	RAANDeg        float64   `json:"raan_deg"`
	ArgPerigeeDeg  float64   `json:"arg_perigee_deg"`
	MeanAnomalyDeg float64   `json:"mean_anomaly_deg"`
	Epoch          string    `json:"epoch"`
	TLE            [2]string `json:"tle"`
}

type generationReport struct {
	Generation  int      `json:"generation"`
	Best        *float64 `json:"best"`
	RunningBest *float64 `json:"running_best"`
	Mean        *float64 `json:"mean"`
	StdDev      float64  `json:"stddev"`
	Evaluated   int      `json:"evaluated"`
	Failed      int      `json:"failed"`
	Unbounded   int      `json:"unbounded"`
	DurationMS  int64    `json:"duration_ms"`
}

func newReport(s *decision.Schema, res optimizer.Result, runErr error, ev *decision.Evaluation, advice []decision.Advice) report {
	r := report{
		RunID:       res.RunID,
		Reason:      res.Reason,
		BestCost:    finite(res.BestCost),
		Generations: make([]generationReport, 0, len(res.Trace)),
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	for _, a := range advice {
		r.Advice = append(r.Advice, a.Message)
	}
	for _, st := range res.Trace {
		r.Generations = append(r.Generations, generationReport{
			Generation:  st.Generation,
			Best:        finite(st.Best),
			RunningBest: finite(st.RunningBest),
			Mean:        finite(st.Mean),
			StdDev:      st.StdDev,
			Evaluated:   st.Evaluated,
			Failed:      st.Failed,
			Unbounded:   st.Unbounded,
			DurationMS:  st.Duration.Milliseconds(),
		})
	}
	if res.Best != nil {
		r.Best = make(map[string]any, s.Len())
		for name, v := range s.Named(res.Best) {
			if n, err := v.Int(); err == nil {
				r.Best[name] = n
				continue
			}
			r.Best[name] = v.Float()
		}
	}
	if ev == nil || ev.Constellation == nil {
		return r
	}

	if idx := ev.Revisit.WorstIndex; idx >= 0 {
		p := s.Zone().Point(idx)
		r.Worst = &worstPoint{Index: idx, LatitudeDeg: deg(p.Latitude), LongitudeDeg: deg(p.Longitude)}
	}
	for i, sat := range ev.Constellation.Satellites() {
		el := sat.Elements
		sr := satelliteReport{
			ID:             sat.ID,
			SemiMajorAxisM: el.SemiMajorAxis,
			Eccentricity:   el.Eccentricity,
			InclinationDeg: deg(el.Inclination),
			RAANDeg:        deg(el.RAAN),
			ArgPerigeeDeg:  deg(el.ArgumentOfPerigee),
			MeanAnomalyDeg: deg(el.MeanAnomaly),
			Epoch:          sat.Epoch.UTC().Format(time.RFC3339),
		}
		if tle, err := core.SynthesizeTLE(el, sat.Epoch, i+1); err == nil {
			sr.TLE = [2]string{tle.Line1, tle.Line2}
		}
		r.Satellites = append(r.Satellites, sr)
	}
	return r
}

func (r report) write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func finite(x float64) *float64 {
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return nil
	}
	return &x
}

func deg(rad float64) float64 { return rad * 180 / math.Pi }
