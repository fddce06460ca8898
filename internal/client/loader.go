package client

import (
	"context"

	"github.com/zhouzirui/survey-runner/backend/internal/model/survey"
)

// DefaultTrialsPath is the trial endpoint served by cmd/api.
const DefaultTrialsPath = "/api/trials"

// TrialLoader 获取并解析会话的试次集
type TrialLoader struct {
	client *Client
	path   string
}

// NewTrialLoader 创建试次加载器, path 为空时使用 DefaultTrialsPath
func NewTrialLoader(c *Client, path string) *TrialLoader {
	if path == "" {
		path = DefaultTrialsPath
	}
	return &TrialLoader{client: c, path: path}
}

// LoadTrials 按服务端返回顺序为每条试次记录返回一个页面
func (l *TrialLoader) LoadTrials(ctx context.Context, sessionID string) ([]survey.Page, error) {
	var trials []survey.Trial
	if err := l.client.PostJSON(ctx, l.path, survey.TrialRequest{SessionID: sessionID}, &trials); err != nil {
		return nil, &TrialLoadError{SessionID: sessionID, Err: err}
	}

	pages, err := survey.DecodeTrials(trials)
	if err != nil {
		return nil, &TrialLoadError{
			SessionID: sessionID,
			Err:       &DecodeError{What: "trial payload", Err: err},
		}
	}
	return pages, nil
}
