package symbolication

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/tracklight/tracklight/pkg/models"
)

// ArtifactSource lists a release's JSON artifacts, newest first.
type ArtifactSource interface {
	ListJSONArtifacts(ctx context.Context, releaseID uuid.UUID) ([]*models.Artifact, error)
}

// Engine resolves frames against the artifacts attached to a release. Every
// lookup is best-effort: a frame with no matching artifact passes through
// unchanged and a malformed artifact is skipped.
type Engine struct {
	artifacts ArtifactSource
	log       *slog.Logger
}

func NewEngine(artifacts ArtifactSource, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{artifacts: artifacts, log: log}
}

// Symbolicate resolves the given frames for a release. When frames is empty
// and raw stack text is present, the stack is parsed first.
func (e *Engine) Symbolicate(ctx context.Context, releaseID uuid.UUID, frames []models.Frame, stack string) ([]models.Frame, error) {
	if len(frames) == 0 && stack != "" {
		frames = ParseStackTrace(stack)
	}
	if len(frames) == 0 {
		return []models.Frame{}, nil
	}

	arts, err := e.artifacts.ListJSONArtifacts(ctx, releaseID)
	if err != nil {
		return nil, err
	}
	fmap := loadFunctionMap(arts)

	out := make([]models.Frame, 0, len(frames))
	for _, fr := range frames {
		if mapped, ok := fmap[fr.Function]; ok && fr.Function != "" {
			fr.Function = mapped
		}
		if fr.File != "" && fr.Line > 0 {
			if sm := bestSourceMapForFile(arts, fr.File); sm != nil {
				if pos, ok := sm.OriginalPositionFor(fr.Line, fr.Column); ok {
					fr.OrigFile = pos.Source
					fr.OrigLine = pos.Line
					fr.OrigColumn = pos.Column
					if pos.Name != "" {
						fr.Function = pos.Name
					}
				}
			}
		}
		out = append(out, fr)
	}
	return out, nil
}

// loadFunctionMap returns the flat minified->original name map from the
// newest artifact exposing one.
func loadFunctionMap(arts []*models.Artifact) map[string]string {
	for _, art := range arts {
		var doc struct {
			FunctionMap map[string]string `json:"function_map"`
		}
		if err := json.Unmarshal([]byte(art.Content), &doc); err != nil {
			continue
		}
		if doc.FunctionMap != nil {
			return doc.FunctionMap
		}
	}
	return map[string]string{}
}

// bestSourceMapForFile finds the newest parseable source map whose file
// field's trailing path component matches the frame file's trailing path
// component (e.g. app.min.js matches any host path ending in app.min.js).
func bestSourceMapForFile(arts []*models.Artifact, filePath string) *SourceMap {
	tail := pathTail(filePath)
	if tail == "" {
		return nil
	}
	for _, art := range arts {
		var probe struct {
			Version int `json:"version"`
		}
		if err := json.Unmarshal([]byte(art.Content), &probe); err != nil || probe.Version == 0 {
			continue
		}
		sm, err := ParseSourceMap([]byte(art.Content))
		if err != nil {
			continue
		}
		if smTail := pathTail(sm.File); smTail != "" && smTail == tail {
			return sm
		}
	}
	return nil
}

func pathTail(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
