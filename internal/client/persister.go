package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/zhouzirui/survey-runner/backend/internal/model/survey"
)

// DefaultResponsesPath is the response endpoint served by cmd/api.
const DefaultResponsesPath = "/api/responses"

// Persister 将收集到的答案提交到服务端
type Persister struct {
	client *Client
	path   string
}

// NewPersister 创建答案提交器, path 为空时使用 DefaultResponsesPath
func NewPersister(c *Client, path string) *Persister {
	if path == "" {
		path = DefaultResponsesPath
	}
	return &Persister{client: c, path: path}
}

// Persist 将每个答案编码为 JSON 字符串并一次性提交
func (p *Persister) Persist(ctx context.Context, sessionID string, responses survey.ResponseMap) (survey.PersistResult, error) {
	encoded, err := survey.EncodeResponses(responses)
	if err != nil {
		return survey.PersistResult{}, fmt.Errorf("persist responses: %w", err)
	}

	header := http.Header{}
	if sessionID != "" {
		header.Set(survey.SessionHeader, sessionID)
	}

	var result survey.PersistResult
	if err := p.client.post(ctx, p.path, encoded, header, &result); err != nil {
		return survey.PersistResult{}, err
	}
	return result, nil
}
