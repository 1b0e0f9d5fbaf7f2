package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/okian/bowlsense/internal/domain/model"
	"github.com/okian/bowlsense/internal/domain/normalize"
)

// Backend routes.
const (
	pathLogin          = "/api/auth/login"
	pathRegister       = "/api/auth/register"
	pathMe             = "/api/users/me"
	pathAnalysis       = "/api/analysis"
	pathUpload         = "/api/analysis/upload"
	pathMultiAnalysis  = "/api/multi-analysis"
	pathMultiUpload    = "/api/multi-analysis/upload"
	defaultHistorySize = 20
)

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Name         string             `json:"name"`
	Email        string             `json:"email"`
	Password     string             `json:"password"`
	BowlingStyle model.BowlingStyle `json:"bowling_style,omitempty"`
	BowlingArm   model.BowlingArm   `json:"bowling_arm,omitempty"`
}

// ProfileUpdate carries the editable profile fields; empty fields are left
// unchanged.
type ProfileUpdate struct {
	Name         string             `json:"name,omitempty"`
	BowlingStyle model.BowlingStyle `json:"bowling_style,omitempty"`
	BowlingArm   model.BowlingArm   `json:"bowling_arm,omitempty"`
}

// Login exchanges credentials for a token and the signed-in user.
func (c *Client) Login(ctx context.Context, email, password string) (string, model.User, error) {
	body, err := c.send(ctx, request{
		method:   http.MethodPost,
		path:     pathLogin,
		endpoint: "login",
		body:     jsonBody(map[string]string{"email": email, "password": password}),
	})
	if err != nil {
		return "", model.User{}, err
	}
	return normalize.Login(body)
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, in RegisterInput) (string, model.User, error) {
	body, err := c.send(ctx, request{
		method:   http.MethodPost,
		path:     pathRegister,
		endpoint: "register",
		body:     jsonBody(in),
	})
	if err != nil {
		return "", model.User{}, err
	}
	return normalize.Login(body)
}

// Me returns the signed-in user's profile.
func (c *Client) Me(ctx context.Context) (model.User, error) {
	body, err := c.send(ctx, request{
		method:   http.MethodGet,
		path:     pathMe,
		endpoint: "me",
		retry:    true,
	})
	if err != nil {
		return model.User{}, err
	}
	return normalize.User(body)
}

// UpdateProfile edits the signed-in user's profile.
func (c *Client) UpdateProfile(ctx context.Context, in ProfileUpdate) (model.User, error) {
	body, err := c.send(ctx, request{
		method:   http.MethodPatch,
		path:     pathMe,
		endpoint: "update_profile",
		body:     jsonBody(in),
	})
	if err != nil {
		return model.User{}, err
	}
	return normalize.User(body)
}

// Progress fetches the progress of a single or multi-angle job.
func (c *Client) Progress(ctx context.Context, kind model.Kind, id string) (model.Progress, error) {
	base := pathAnalysis
	if kind == model.KindMulti {
		base = pathMultiAnalysis
	}
	body, err := c.send(ctx, request{
		method:   http.MethodGet,
		path:     base + "/" + url.PathEscape(id) + "/progress",
		endpoint: string(kind) + "_progress",
		retry:    true,
	})
	if err != nil {
		return model.Progress{}, err
	}
	p, err := normalize.Progress(body)
	if err != nil {
		return model.Progress{}, fmt.Errorf("progress %s: %w", id, err)
	}
	if p.JobID == "" {
		p.JobID = id
	}
	p.Kind = kind
	return p, nil
}

// Analysis fetches a single-video result.
func (c *Client) Analysis(ctx context.Context, id string) (model.Analysis, error) {
	body, err := c.send(ctx, request{
		method:   http.MethodGet,
		path:     pathAnalysis + "/" + url.PathEscape(id),
		endpoint: "analysis",
		retry:    true,
	})
	if err != nil {
		return model.Analysis{}, err
	}
	a, err := normalize.Analysis(body)
	if err != nil {
		return model.Analysis{}, fmt.Errorf("analysis %s: %w", id, err)
	}
	if a.ID == "" {
		a.ID = id
	}
	return a, nil
}

// MultiAnalysis fetches an aggregated multi-angle result.
func (c *Client) MultiAnalysis(ctx context.Context, id string) (model.MultiAnalysis, error) {
	body, err := c.send(ctx, request{
		method:   http.MethodGet,
		path:     pathMultiAnalysis + "/" + url.PathEscape(id),
		endpoint: "multi_analysis",
		retry:    true,
	})
	if err != nil {
		return model.MultiAnalysis{}, err
	}
	a, err := normalize.MultiAnalysis(body)
	if err != nil {
		return model.MultiAnalysis{}, fmt.Errorf("multi-analysis %s: %w", id, err)
	}
	if a.ID == "" {
		a.ID = id
	}
	return a, nil
}

// History lists the user's past analyses, newest first as the backend
// returns them.
func (c *Client) History(ctx context.Context, limit int) ([]model.Analysis, error) {
	if limit <= 0 {
		limit = defaultHistorySize
	}
	body, err := c.send(ctx, request{
		method:   http.MethodGet,
		path:     pathAnalysis + "?limit=" + strconv.Itoa(limit),
		endpoint: "history",
		retry:    true,
	})
	if err != nil {
		return nil, err
	}
	return normalize.AnalysisList(body)
}
