package fakebackend

import (
	"strings"
	"unicode"

	"github.com/okian/bowlsense/internal/domain/model"
)

type preset struct {
	key, name, unit string
	value, score    float64
	min, max        float64
	feedback        string
}

var presets = []preset{ //nolint:gochecknoglobals // scripted results
	{"front_knee_angle", "Front knee angle", "deg", 172, 88, 160, 185, "Strong, braced front leg at release."},
	{"hip_shoulder_separation", "Hip-shoulder separation", "deg", 38, 76, 30, 45, "Good separation; hold it a touch longer."},
	{"release_height", "Release height", "m", 2.05, 81, 1.9, 2.3, "High release point."},
	{"run_up_speed", "Run-up speed", "km/h", 19.2, 58, 20, 28, "Run-up is slower than ideal for your style."},
	{"follow_through", "Follow-through", "", 0, 46, 0, 0, "Follow-through stops short; finish across the body."},
}

// angleOffset shifts per-angle scores so merged results differ from each view.
var angleOffset = map[string]float64{ //nolint:gochecknoglobals // scripted results
	model.AngleFront: 2,
	model.AngleSide:  -2,
	model.AngleBack:  0,
}

func (s *Server) progressBody(j *job) map[string]any {
	st := j.stage()
	pct := st.DefaultPercent()
	msg := st.Label()
	if j.failed {
		msg = s.failMsg
		if msg == "" {
			msg = "Analysis failed"
		}
	}
	if s.naming == Camel {
		return map[string]any{
			"job_id":           j.id,
			"job_status":       string(j.status()),
			"current_stage":    string(st),
			"progress_percent": pct / 100,
			"status_message":   msg,
			"last_updated":     j.updated.UnixMilli(),
		}
	}
	return map[string]any{
		"job_id":     j.id,
		"status":     string(j.status()),
		"stage":      string(st),
		"progress":   pct,
		"message":    msg,
		"updated_at": j.updated.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (s *Server) userBody(a *account) map[string]any {
	if s.naming == Camel {
		return map[string]any{
			"user_id":       a.id,
			"full_name":     a.name,
			"email":         a.email,
			"bowling_style": string(a.style),
			"bowling_arm":   string(a.arm),
			"created_at":    a.created.UnixMilli(),
		}
	}
	return map[string]any{
		"id":            a.id,
		"name":          a.name,
		"email":         a.email,
		"is_guest":      false,
		"bowling_style": string(a.style),
		"bowling_arm":   string(a.arm),
		"created_at":    a.created.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (s *Server) parameterBodies(offset float64) []any {
	out := make([]any, 0, len(presets))
	for _, p := range presets {
		m := map[string]any{
			"key":      p.key,
			"name":     p.name,
			"score":    p.score + offset,
			"feedback": p.feedback,
		}
		if p.unit != "" {
			m["value"] = p.value
			m["unit"] = p.unit
		}
		if p.max > 0 {
			if s.naming == Camel {
				m["ideal_range"] = []any{p.min, p.max}
			} else {
				m["ideal_min"] = p.min
				m["ideal_max"] = p.max
			}
		}
		out = append(out, m)
	}
	return out
}

func media(base string) (clips, snapshots []any) {
	clips = []any{
		map[string]any{"label": "run_up", "url": base + "/clips/run_up.mp4", "start_sec": 0.0, "end_sec": 2.4},
		map[string]any{"label": "delivery_stride", "url": base + "/clips/delivery.mp4", "start_sec": 2.4, "end_sec": 3.1},
	}
	snapshots = []any{
		map[string]any{"label": "back_foot_contact", "url": base + "/frames/bfc.jpg", "timestamp_sec": 2.55},
		map[string]any{"label": "release", "url": base + "/frames/release.jpg", "timestamp_sec": 2.92},
	}
	return clips, snapshots
}

func (s *Server) analysisBody(j *job) map[string]any {
	status := j.status()
	body := map[string]any{
		"id":         j.id,
		"status":     string(status),
		"created_at": j.created.Format("2006-01-02T15:04:05Z07:00"),
	}
	if j.style != model.StyleUnknown {
		body["bowling_style"] = string(j.style)
	}
	if j.arm != model.ArmUnknown {
		body["bowling_arm"] = string(j.arm)
	}
	switch status {
	case model.StatusFailed:
		body["error"] = map[string]any{"message": s.failMsg}
		return body
	case model.StatusCompleted:
	default:
		return body
	}

	base := "https://media.example.test/" + j.id
	clips, snapshots := media(base)
	body["parameters"] = s.parameterBodies(0)
	body["video_url"] = base + "/annotated.mp4"
	body["summary"] = "Solid action with a braced front leg; work on run-up rhythm."
	body["recommendations"] = []any{"Lengthen the run-up by two strides", "Drive the non-bowling arm down harder"}
	body["completed_at"] = j.updated.Format("2006-01-02T15:04:05Z07:00")

	if s.naming == Camel {
		// Camel payloads omit the overall score and key snapshots by label.
		frames := map[string]any{}
		for _, sn := range snapshots {
			m := sn.(map[string]any)
			frames[m["label"].(string)] = m["url"]
		}
		body["key_frames"] = frames
		body["video_clips"] = clips
		return body
	}
	body["overall_score"] = 74.5
	body["clips"] = clips
	body["snapshots"] = snapshots
	return body
}

func (s *Server) multiBody(j *job) map[string]any {
	status := j.status()
	body := map[string]any{
		"id":         j.id,
		"status":     string(status),
		"created_at": j.created.Format("2006-01-02T15:04:05Z07:00"),
	}
	switch status {
	case model.StatusFailed:
		body["error"] = s.failMsg
		return body
	case model.StatusCompleted:
	default:
		return body
	}

	base := "https://media.example.test/" + j.id
	angles := make(map[string]any, len(j.angles))
	list := make([]any, 0, len(j.angles))
	for _, a := range j.angles {
		clips, snapshots := media(base + "/" + a)
		m := map[string]any{
			"angle":      a,
			"video_url":  base + "/" + a + "/annotated.mp4",
			"parameters": s.parameterBodies(angleOffset[a]),
			"clips":      clips,
			"snapshots":  snapshots,
		}
		list = append(list, m)
		angles[a] = m
	}
	body["summary"] = "Angles agree on a strong front leg; side view shows early shoulder opening."
	body["recommendations"] = []any{"Keep the chest closed until back-foot contact"}
	body["completed_at"] = j.updated.Format("2006-01-02T15:04:05Z07:00")

	if s.naming == Camel {
		// Camel payloads key angles by name and leave merging to the client.
		body["views"] = angles
		return body
	}
	body["angles"] = list
	body["parameters"] = s.parameterBodies(0)
	body["overall_score"] = 74.5
	return body
}

// camelKeys rewrites every object key from snake_case to camelCase.
func camelKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[camel(k)] = camelKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = camelKeys(val)
		}
		return out
	default:
		return v
	}
}

func camel(k string) string {
	parts := strings.Split(k, "_")
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		r := []rune(p)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}
