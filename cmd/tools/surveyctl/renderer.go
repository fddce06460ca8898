package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/survey-runner/backend/internal/model/survey"
)

var errMissingAnswer = errors.New("missing answer for required question")

// scriptedRenderer answers every page from a prepared set of answers.
type scriptedRenderer struct {
	answers survey.ResponseMap
	logger  *zap.Logger
}

type pageInfo struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// Render keeps the answers whose key names a page question. When no page
// names a question every answer is returned as is.
func (r *scriptedRenderer) Render(ctx context.Context, pages []survey.Page) (survey.ResponseMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	named := make(map[string]bool)
	for i, page := range pages {
		var info pageInfo
		if err := json.Unmarshal(page, &info); err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		r.logger.Debug("page", zap.Int("index", i), zap.String("type", info.Type), zap.String("name", info.Name))
		if info.Name == "" {
			continue
		}
		named[info.Name] = true
		if _, ok := r.answers[info.Name]; !ok && info.Required {
			return nil, fmt.Errorf("%w: %q", errMissingAnswer, info.Name)
		}
	}

	if len(named) == 0 {
		return r.answers.Clone(), nil
	}

	out := make(survey.ResponseMap, len(named))
	for k, v := range r.answers {
		if !named[k] {
			r.logger.Warn("answer does not match any question", zap.String("question", k))
			continue
		}
		out[k] = v
	}
	return out, nil
}

func loadAnswers(path string) (survey.ResponseMap, error) {
	if path == "" {
		return survey.ResponseMap{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseAnswers(data)
}

func parseAnswers(data []byte) (survey.ResponseMap, error) {
	var answers map[string]any
	if err := yaml.Unmarshal(data, &answers); err != nil {
		return nil, err
	}
	if answers == nil {
		answers = map[string]any{}
	}
	return survey.ResponseMap(answers), nil
}
