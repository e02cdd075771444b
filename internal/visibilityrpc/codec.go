package visibilityrpc

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/constellation-optimizer/model"
	"github.com/signalsfoundry/constellation-optimizer/timectrl"
	"github.com/signalsfoundry/constellation-optimizer/visibility"
)

// ErrMalformed reports a request or response that does not follow the
// ComputeEvents message layout.
var ErrMalformed = errors.New("visibilityrpc: malformed message")

// Request is the decoded ComputeEvents request.
type Request struct {
	Satellite model.Satellite
	Points    []model.GeodeticPoint
	Window    timectrl.Window
	Threshold float64
}

// Message layout, carried in google.protobuf.Struct:
//
//	request:  {satellite: {id, epoch, elements: {a, e, i, raan, argp, m}},
//	           points: [[lat, lon, alt], ...], window: {start, end}, threshold}
//	response: {events: [{point, satellite, time, kind}, ...]}
//
// Times are RFC 3339 with nanoseconds; response events reference request
// points by index so coordinates round-trip exactly.

func encodeRequest(r Request) (*structpb.Struct, error) {
	el := r.Satellite.Elements
	points := make([]any, len(r.Points))
	for i, p := range r.Points {
		points[i] = []any{p.Latitude, p.Longitude, p.Altitude}
	}
	return structpb.NewStruct(map[string]any{
		"satellite": map[string]any{
			"id":    r.Satellite.ID,
			"epoch": formatTime(r.Satellite.Epoch),
			"elements": map[string]any{
				"a":    el.SemiMajorAxis,
				"e":    el.Eccentricity,
				"i":    el.Inclination,
				"raan": el.RAAN,
				"argp": el.ArgumentOfPerigee,
				"m":    el.MeanAnomaly,
			},
		},
		"points": points,
		"window": map[string]any{
			"start": formatTime(r.Window.Start),
			"end":   formatTime(r.Window.End),
		},
		"threshold": r.Threshold,
	})
}

func decodeRequest(s *structpb.Struct) (Request, error) {
	var r Request
	f := s.GetFields()

	sat := f["satellite"].GetStructValue().GetFields()
	if sat == nil {
		return r, fmt.Errorf("%w: missing satellite", ErrMalformed)
	}
	r.Satellite.ID = sat["id"].GetStringValue()
	epoch, err := parseTime(sat["epoch"])
	if err != nil {
		return r, fmt.Errorf("%w: satellite epoch: %v", ErrMalformed, err)
	}
	r.Satellite.Epoch = epoch

	el := sat["elements"].GetStructValue().GetFields()
	if el == nil {
		return r, fmt.Errorf("%w: missing elements", ErrMalformed)
	}
	r.Satellite.Elements = model.OrbitalElements{
		SemiMajorAxis:     el["a"].GetNumberValue(),
		Eccentricity:      el["e"].GetNumberValue(),
		Inclination:       el["i"].GetNumberValue(),
		RAAN:              el["raan"].GetNumberValue(),
		ArgumentOfPerigee: el["argp"].GetNumberValue(),
		MeanAnomaly:       el["m"].GetNumberValue(),
	}

	for i, v := range f["points"].GetListValue().GetValues() {
		c := v.GetListValue().GetValues()
		if len(c) != 3 {
			return r, fmt.Errorf("%w: point %d has %d coordinates", ErrMalformed, i, len(c))
		}
		r.Points = append(r.Points, model.GeodeticPoint{
			Latitude:  c[0].GetNumberValue(),
			Longitude: c[1].GetNumberValue(),
			Altitude:  c[2].GetNumberValue(),
		})
	}

	w := f["window"].GetStructValue().GetFields()
	start, err := parseTime(w["start"])
	if err != nil {
		return r, fmt.Errorf("%w: window start: %v", ErrMalformed, err)
	}
	end, err := parseTime(w["end"])
	if err != nil {
		return r, fmt.Errorf("%w: window end: %v", ErrMalformed, err)
	}
	if r.Window, err = timectrl.NewWindow(start, end); err != nil {
		return r, err
	}

	th, ok := f["threshold"].GetKind().(*structpb.Value_NumberValue)
	if !ok || math.IsNaN(th.NumberValue) {
		return r, fmt.Errorf("%w: threshold", ErrMalformed)
	}
	r.Threshold = th.NumberValue
	return r, nil
}

func encodeResponse(points []model.GeodeticPoint, events []visibility.Event) (*structpb.Struct, error) {
	index := make(map[model.GeodeticPoint]int, len(points))
	for i, p := range points {
		if _, dup := index[p]; !dup {
			index[p] = i
		}
	}
	out := make([]any, 0, len(events))
	for _, ev := range events {
		i, ok := index[ev.Point]
		if !ok {
			return nil, fmt.Errorf("event for point %s not in request", ev.Point)
		}
		out = append(out, map[string]any{
			"point":     float64(i),
			"satellite": ev.SatelliteID,
			"time":      formatTime(ev.Time),
			"kind":      ev.Kind.String(),
		})
	}
	return structpb.NewStruct(map[string]any{"events": out})
}

func decodeResponse(s *structpb.Struct, points []model.GeodeticPoint) ([]visibility.Event, error) {
	values := s.GetFields()["events"].GetListValue().GetValues()
	events := make([]visibility.Event, 0, len(values))
	for n, v := range values {
		f := v.GetStructValue().GetFields()
		idx := f["point"].GetNumberValue()
		if idx != math.Trunc(idx) || idx < 0 || int(idx) >= len(points) {
			return nil, fmt.Errorf("%w: event %d point index %v", ErrMalformed, n, idx)
		}
		t, err := parseTime(f["time"])
		if err != nil {
			return nil, fmt.Errorf("%w: event %d time: %v", ErrMalformed, n, err)
		}
		kind, err := visibility.ParseKind(f["kind"].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("%w: event %d: %v", ErrMalformed, n, err)
		}
		events = append(events, visibility.Event{
			Point:       points[int(idx)],
			SatelliteID: f["satellite"].GetStringValue(),
			Time:        t,
			Kind:        kind,
		})
	}
	return events, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(v *structpb.Value) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v.GetStringValue())
}
