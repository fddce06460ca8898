package survey

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidPage is returned when a trial payload is not valid JSON.
var ErrInvalidPage = errors.New("trial payload is not valid json")

// Trial is one record served by the trial endpoint. JSON holds an encoded page definition.
type Trial struct {
	JSON string `json:"json"`
}

// Page is a decoded trial payload. It is passed to the renderer untouched.
type Page = json.RawMessage

// TrialRequest 试次接口的请求体
type TrialRequest struct {
	SessionID string `json:"session_id"`
}

// Page 解析内嵌的页面定义
func (t Trial) Page() (Page, error) {
	raw := []byte(t.JSON)
	if !json.Valid(raw) {
		return nil, ErrInvalidPage
	}
	return append(Page(nil), raw...), nil
}

// DecodeTrials turns trial records into pages, keeping the order they were received in.
func DecodeTrials(trials []Trial) ([]Page, error) {
	pages := make([]Page, 0, len(trials))
	for i, trial := range trials {
		page, err := trial.Page()
		if err != nil {
			return nil, fmt.Errorf("trial %d: %w", i, err)
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// EncodeTrials DecodeTrials 的逆操作, 导入试次集时使用
func EncodeTrials(pages []Page) ([]Trial, error) {
	trials := make([]Trial, 0, len(pages))
	for i, page := range pages {
		if !json.Valid(page) {
			return nil, fmt.Errorf("page %d: %w", i, ErrInvalidPage)
		}
		trials = append(trials, Trial{JSON: string(page)})
	}
	return trials, nil
}
