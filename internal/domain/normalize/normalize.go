// Package normalize reconciles the analysis backend's response shapes into
// the canonical domain model.
//
// The backend has shipped snake_case and camelCase payloads, wrapped some of
// them in envelopes and renamed fields between releases. Every entry point
// decodes the raw body, rewrites keys to snake_case, unwraps envelopes, folds
// known aliases onto canonical names and only then decodes into model types,
// so the result is independent of the naming convention used on the wire.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/okian/bowlsense/internal/domain/model"
)

// Object parses raw into a canonical, envelope-free object.
func Object(raw []byte) (map[string]any, error) {
	v, err := parse(raw)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformed)
	}
	return unwrap(m), nil
}

func parse(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return CanonicalKeys(v), nil
}

// Progress normalizes a progress response.
func Progress(raw []byte) (model.Progress, error) {
	m, err := Object(raw)
	if err != nil {
		return model.Progress{}, err
	}
	if pm, ok := m["progress"].(map[string]any); ok {
		delete(m, "progress")
		for k, v := range pm {
			if _, exists := m[k]; !exists {
				m[k] = v
			}
		}
	}
	fold(m, "id", "job_id", "analysis_id", "multi_analysis_id", "task_id")
	fold(m, "percent", "progress", "progress_percent", "percentage", "percent_complete", "pct")
	fold(m, "status", "state", "job_status")
	fold(m, "stage", "current_stage", "step", "phase")
	fold(m, "message", "detail", "status_message", "description")
	fold(m, "updated_at", "timestamp", "last_updated")

	if !present(m, "status") && !present(m, "stage") && !present(m, "percent") {
		return model.Progress{}, fmt.Errorf("%w: status", ErrMissingField)
	}

	status, stage, percent := reconcile(m)
	p := model.Progress{
		JobID:   str(m["id"]),
		Status:  status,
		Stage:   stage,
		Percent: percent,
		Message: str(m["message"]),
	}
	if t, ok := toTime(m["updated_at"]); ok {
		p.UpdatedAt = t
	}
	if status == model.StatusFailed && p.Message == "" {
		p.Message = str(m["error"])
	}
	return p, nil
}

// JobID extracts the job identifier from an upload response.
func JobID(raw []byte) (string, error) {
	m, err := Object(raw)
	if err != nil {
		return "", err
	}
	fold(m, "id", "job_id", "analysis_id", "multi_analysis_id", "task_id")
	id := str(m["id"])
	if id == "" {
		return "", fmt.Errorf("%w: job id", ErrMissingField)
	}
	return id, nil
}

// User normalizes a user profile response.
func User(raw []byte) (model.User, error) {
	m, err := Object(raw)
	if err != nil {
		return model.User{}, err
	}
	if um, ok := m["user"].(map[string]any); ok {
		m = um
	}
	return userFromMap(m)
}

func userFromMap(m map[string]any) (model.User, error) {
	fold(m, "id", "user_id", "uid")
	fold(m, "name", "full_name", "display_name", "username")
	fold(m, "is_guest", "guest", "is_anonymous")
	fold(m, "bowling_style", "style")
	fold(m, "bowling_arm", "arm", "bowling_hand")
	fold(m, "created_at", "joined_at", "registered_at")

	var u struct {
		ID        string    `mapstructure:"id"`
		Name      string    `mapstructure:"name"`
		Email     string    `mapstructure:"email"`
		IsGuest   bool      `mapstructure:"is_guest"`
		CreatedAt time.Time `mapstructure:"created_at"`
	}
	if err := decode(m, &u); err != nil {
		return model.User{}, err
	}
	if u.ID == "" {
		return model.User{}, fmt.Errorf("%w: user id", ErrMissingField)
	}
	return model.User{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		IsGuest:      u.IsGuest,
		BowlingStyle: model.ParseBowlingStyle(str(m["bowling_style"])),
		BowlingArm:   model.ParseBowlingArm(str(m["bowling_arm"])),
		CreatedAt:    u.CreatedAt,
	}, nil
}

// Login normalizes an authentication response into a token and its user.
func Login(raw []byte) (string, model.User, error) {
	m, err := Object(raw)
	if err != nil {
		return "", model.User{}, err
	}
	fold(m, "token", "access_token", "auth_token", "jwt", "id_token")
	token := str(m["token"])
	if token == "" {
		return "", model.User{}, fmt.Errorf("%w: token", ErrMissingField)
	}
	fold(m, "user", "profile", "account")
	um, ok := m["user"].(map[string]any)
	if !ok {
		return "", model.User{}, fmt.Errorf("%w: user", ErrMissingField)
	}
	u, err := userFromMap(um)
	if err != nil {
		return "", model.User{}, err
	}
	return token, u, nil
}

// Analysis normalizes a single-video analysis result.
func Analysis(raw []byte) (model.Analysis, error) {
	m, err := Object(raw)
	if err != nil {
		return model.Analysis{}, err
	}
	return analysisFromMap(m)
}

// AnalysisList normalizes a history listing. Both bare arrays and objects
// holding the list under a known key are accepted.
func AnalysisList(raw []byte) ([]model.Analysis, error) {
	v, err := parse(raw)
	if err != nil {
		return nil, err
	}
	items, ok := v.([]any)
	if !ok {
		m, isMap := v.(map[string]any)
		if !isMap {
			return nil, fmt.Errorf("%w: expected a list of analyses", ErrMalformed)
		}
		fold(m, "items", "analyses", "results", "history", "data", "records")
		if items, ok = m["items"].([]any); !ok {
			if m["items"] == nil {
				return []model.Analysis{}, nil
			}
			return nil, fmt.Errorf("%w: expected a list of analyses", ErrMalformed)
		}
	}
	out := make([]model.Analysis, 0, len(items))
	for i, it := range items {
		im, isMap := it.(map[string]any)
		if !isMap {
			return nil, fmt.Errorf("%w: item %d is not an object", ErrMalformed, i)
		}
		a, err := analysisFromMap(unwrap(im))
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func foldResult(m map[string]any) {
	fold(m, "overall_score", "score", "total_score", "overall", "overall_rating_score")
	fold(m, "parameters", "metrics", "biomechanics", "biomechanical_parameters", "params")
	fold(m, "clips", "video_clips")
	fold(m, "snapshots", "key_frames", "keyframes", "frames")
	fold(m, "status", "state")
	fold(m, "bowling_style", "style")
	fold(m, "bowling_arm", "arm")
	fold(m, "summary", "overall_feedback", "feedback")
	fold(m, "recommendations", "tips", "suggestions", "drills")
	fold(m, "error", "error_message", "failure_reason")
	fold(m, "created_at", "uploaded_at", "timestamp")
	fold(m, "completed_at", "finished_at")
	if !present(m, "completed_at") {
		delete(m, "completed_at")
	}
	if em, ok := m["error"].(map[string]any); ok {
		fold(em, "message", "detail", "reason")
		m["error"] = str(em["message"])
	}
}

// resultStatus resolves a result's status; results without one are
// completed when they already carry scores.
func resultStatus(m map[string]any) model.Status {
	if present(m, "status") {
		return Status(str(m["status"]))
	}
	if present(m, "parameters") || present(m, "overall_score") {
		return model.StatusCompleted
	}
	return model.StatusProcessing
}

func analysisFromMap(m map[string]any) (model.Analysis, error) {
	fold(m, "id", "analysis_id", "job_id")
	fold(m, "video_url", "annotated_video_url", "processed_video_url", "video")
	foldResult(m)

	params, err := parameters(m["parameters"])
	if err != nil {
		return model.Analysis{}, err
	}
	clips, err := clipList(m["clips"])
	if err != nil {
		return model.Analysis{}, err
	}
	snaps, err := snapshotList(m["snapshots"])
	if err != nil {
		return model.Analysis{}, err
	}
	delete(m, "clips")
	delete(m, "snapshots")
	m["recommendations"] = stringList(m["recommendations"])

	var a model.Analysis
	if err := decode(m, &a); err != nil {
		return model.Analysis{}, err
	}
	a.Status = resultStatus(m)
	a.BowlingStyle = model.ParseBowlingStyle(str(m["bowling_style"]))
	a.BowlingArm = model.ParseBowlingArm(str(m["bowling_arm"]))
	a.Rating = model.Rating(SnakeCase(str(m["rating"])))
	a.Parameters = params
	a.Clips = clips
	a.Snapshots = snaps
	return a, nil
}

// MultiAnalysis normalizes an aggregated multi-angle result. When the
// backend omits the aggregate parameters they are averaged from the angles.
func MultiAnalysis(raw []byte) (model.MultiAnalysis, error) {
	m, err := Object(raw)
	if err != nil {
		return model.MultiAnalysis{}, err
	}
	fold(m, "id", "multi_analysis_id", "analysis_id", "job_id")
	fold(m, "parameters", "aggregated_parameters", "combined_parameters")
	fold(m, "angles", "views", "videos", "cameras", "angle_results", "per_angle")
	foldResult(m)

	params, err := parameters(m["parameters"])
	if err != nil {
		return model.MultiAnalysis{}, err
	}
	angles, err := angleList(m["angles"])
	if err != nil {
		return model.MultiAnalysis{}, err
	}
	m["recommendations"] = stringList(m["recommendations"])

	var ma model.MultiAnalysis
	if err := decode(m, &ma); err != nil {
		return model.MultiAnalysis{}, err
	}
	if len(params) == 0 {
		params = mergeAngles(angles)
	}
	ma.Status = resultStatus(m)
	if !present(m, "status") && len(params) > 0 {
		ma.Status = model.StatusCompleted
	}
	ma.BowlingStyle = model.ParseBowlingStyle(str(m["bowling_style"]))
	ma.BowlingArm = model.ParseBowlingArm(str(m["bowling_arm"]))
	ma.Rating = model.Rating(SnakeCase(str(m["rating"])))
	ma.Parameters = params
	ma.Angles = angles
	return ma, nil
}

func decode(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			timeHook,
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		Result: out,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return nil
}

var timeType = reflect.TypeOf(time.Time{}) //nolint:gochecknoglobals // reflect type cache

// timeHook accepts empty strings, unix epochs and a few non-RFC 3339
// layouts the backend has used for timestamps.
func timeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}
	if t, ok := toTime(data); ok {
		return t, nil
	}
	if s, ok := data.(string); ok && strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return data, nil
}

var timeLayouts = []string{ //nolint:gochecknoglobals // fixed layouts
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

const epochMillisThreshold = 1e12

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
		return time.Time{}, false
	case json.Number, float64:
		f, _, ok := number(t)
		if !ok || f <= 0 {
			return time.Time{}, false
		}
		if f >= epochMillisThreshold {
			return time.UnixMilli(int64(f)).UTC(), true
		}
		return time.Unix(int64(f), 0).UTC(), true
	default:
		return time.Time{}, false
	}
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// stringList accepts a string, a list of strings or a list of objects with
// a text-like field.
func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	case []any:
		out := make([]string, 0, len(t))
		for _, it := range t {
			s := str(it)
			if im, ok := it.(map[string]any); ok {
				fold(im, "text", "message", "recommendation", "title", "description")
				s = str(im["text"])
			}
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
