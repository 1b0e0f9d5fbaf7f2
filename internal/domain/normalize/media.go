package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/okian/bowlsense/internal/domain/model"
)

// parameters accepts a list of parameter objects or an object keyed by
// parameter key whose values are objects or bare scores.
func parameters(v any) ([]model.Parameter, error) {
	switch t := v.(type) {
	case nil:
		return []model.Parameter{}, nil
	case []any:
		out := make([]model.Parameter, 0, len(t))
		for i, it := range t {
			pm, ok := it.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: parameter %d is not an object", ErrMalformed, i)
			}
			p, err := parameter("", pm)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	case map[string]any:
		keys := sortedKeys(t)
		out := make([]model.Parameter, 0, len(t))
		for _, k := range keys {
			pm, ok := t[k].(map[string]any)
			if !ok {
				score, _, isNum := number(t[k])
				if !isNum {
					return nil, fmt.Errorf("%w: parameter %q", ErrMalformed, k)
				}
				out = append(out, model.Parameter{Key: k, Name: humanize(k), Score: score})
				continue
			}
			p, err := parameter(k, pm)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: parameters must be a list or an object", ErrMalformed)
	}
}

func parameter(key string, m map[string]any) (model.Parameter, error) {
	fold(m, "key", "id", "slug", "parameter", "code")
	fold(m, "name", "label", "display_name", "title")
	fold(m, "value", "measured", "measured_value", "actual", "measurement")
	fold(m, "unit", "units")
	fold(m, "ideal_min", "min", "ideal_low", "target_min")
	fold(m, "ideal_max", "max", "ideal_high", "target_max")
	fold(m, "feedback", "comment", "advice", "message")
	if r, ok := m["ideal_range"].([]any); ok && len(r) == 2 {
		if !present(m, "ideal_min") {
			m["ideal_min"] = r[0]
		}
		if !present(m, "ideal_max") {
			m["ideal_max"] = r[1]
		}
	}
	if r, ok := m["ideal_range"].(map[string]any); ok {
		if !present(m, "ideal_min") && present(r, "min") {
			m["ideal_min"] = r["min"]
		}
		if !present(m, "ideal_max") && present(r, "max") {
			m["ideal_max"] = r["max"]
		}
	}
	for _, k := range []string{"ideal_min", "ideal_max"} {
		if !present(m, k) {
			delete(m, k)
		}
	}

	var p model.Parameter
	if err := decode(m, &p); err != nil {
		return model.Parameter{}, err
	}
	if p.Key == "" {
		p.Key = key
	}
	if p.Key == "" {
		p.Key = SnakeCase(p.Name)
	}
	if p.Name == "" {
		p.Name = humanize(p.Key)
	}
	p.Rating = model.Rating(SnakeCase(string(p.Rating)))
	return p, nil
}

func clipList(v any) ([]model.Clip, error) {
	items, err := mediaItems(v, "clips")
	if err != nil {
		return nil, err
	}
	out := make([]model.Clip, 0, len(items))
	for _, m := range items {
		fold(m, "url", "video_url", "src", "href", "link")
		fold(m, "label", "name", "title", "type", "phase")
		fold(m, "start_sec", "start", "start_time", "from")
		fold(m, "end_sec", "end", "end_time", "to")
		var c model.Clip
		if err := decode(m, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func snapshotList(v any) ([]model.Snapshot, error) {
	items, err := mediaItems(v, "snapshots")
	if err != nil {
		return nil, err
	}
	out := make([]model.Snapshot, 0, len(items))
	for _, m := range items {
		fold(m, "url", "image_url", "image", "src", "href")
		fold(m, "label", "name", "phase", "title", "type")
		fold(m, "timestamp_sec", "timestamp", "time", "time_sec", "frame_time", "t")
		var s model.Snapshot
		if err := decode(m, &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// mediaItems accepts a list of objects, a list of URLs or an object mapping
// labels to URLs or objects.
func mediaItems(v any, field string) ([]map[string]any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]map[string]any, 0, len(t))
		for i, it := range t {
			switch e := it.(type) {
			case map[string]any:
				out = append(out, e)
			case string:
				out = append(out, map[string]any{"url": e})
			default:
				return nil, fmt.Errorf("%w: %s item %d", ErrMalformed, field, i)
			}
		}
		return out, nil
	case map[string]any:
		out := make([]map[string]any, 0, len(t))
		for _, k := range sortedKeys(t) {
			switch e := t[k].(type) {
			case map[string]any:
				if !present(e, "label") && !present(e, "name") {
					e["label"] = k
				}
				out = append(out, e)
			case string:
				out = append(out, map[string]any{"label": k, "url": e})
			default:
				return nil, fmt.Errorf("%w: %s %q", ErrMalformed, field, k)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s must be a list or an object", ErrMalformed, field)
	}
}

var angleRank = map[string]int{ //nolint:gochecknoglobals // display order
	model.AngleFront: 0,
	model.AngleSide:  1,
	model.AngleBack:  2,
}

func angleList(v any) ([]model.Angle, error) {
	var items []map[string]any
	switch t := v.(type) {
	case nil:
		return []model.Angle{}, nil
	case []any:
		for i, it := range t {
			am, ok := it.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: angle %d is not an object", ErrMalformed, i)
			}
			items = append(items, am)
		}
	case map[string]any:
		for _, k := range sortedKeys(t) {
			am, ok := t[k].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: angle %q is not an object", ErrMalformed, k)
			}
			if !present(am, "name") {
				am["name"] = k
			}
			items = append(items, am)
		}
	default:
		return nil, fmt.Errorf("%w: angles must be a list or an object", ErrMalformed)
	}

	out := make([]model.Angle, 0, len(items))
	for _, m := range items {
		fold(m, "name", "angle", "view", "camera", "camera_angle")
		fold(m, "video_url", "url", "video", "annotated_video_url")
		fold(m, "parameters", "metrics", "biomechanics", "params")
		fold(m, "clips", "video_clips")
		fold(m, "snapshots", "key_frames", "keyframes", "frames")

		params, err := parameters(m["parameters"])
		if err != nil {
			return nil, err
		}
		clips, err := clipList(m["clips"])
		if err != nil {
			return nil, err
		}
		snaps, err := snapshotList(m["snapshots"])
		if err != nil {
			return nil, err
		}
		out = append(out, model.Angle{
			Name:       strings.ToLower(str(m["name"])),
			VideoURL:   str(m["video_url"]),
			Clips:      clips,
			Snapshots:  snaps,
			Parameters: params,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i].Name) < rank(out[j].Name)
	})
	return out, nil
}

func rank(name string) int {
	if r, ok := angleRank[name]; ok {
		return r
	}
	return len(angleRank)
}

// mergeAngles averages per-angle parameters sharing a key, keeping the first
// seen name, unit, ideal window and feedback.
func mergeAngles(angles []model.Angle) []model.Parameter {
	type acc struct {
		p            model.Parameter
		score, value float64
		n            int
	}
	byKey := map[string]*acc{}
	var order []string
	for _, a := range angles {
		for _, p := range a.Parameters {
			e, ok := byKey[p.Key]
			if !ok {
				e = &acc{p: p}
				byKey[p.Key] = e
				order = append(order, p.Key)
			}
			e.score += p.Score
			e.value += p.Value
			e.n++
		}
	}
	out := make([]model.Parameter, 0, len(order))
	for _, k := range order {
		e := byKey[k]
		p := e.p
		p.Score = e.score / float64(e.n)
		p.Value = e.value / float64(e.n)
		out = append(out, p)
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// humanize turns "front_knee_angle" into "Front knee angle".
func humanize(key string) string {
	s := strings.TrimSpace(strings.ReplaceAll(key, "_", " "))
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
