package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"orderflow/internal/model"
	"orderflow/internal/orderflow"
	"orderflow/pkg/metrics"
	"orderflow/pkg/trace"
)

// ErrInvalidResult 质检服务返回了无法使用的结果
var ErrInvalidResult = errors.New("evaluator returned invalid result")

// HTTPEvaluator 调用外部质检服务 POST {baseURL}/evaluate
type HTTPEvaluator struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPEvaluator(baseURL string, timeout time.Duration) *HTTPEvaluator {
	return &HTTPEvaluator{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type evaluateRequest struct {
	OrderID     int                    `json:"order_id"`
	ProjectType model.ProjectType      `json:"project_type"`
	Status      model.OrderStatus      `json:"order_status"`
	CheckType   model.QualityCheckType `json:"check_type"`
}

func (e *HTTPEvaluator) Evaluate(ctx context.Context, order *model.Order, checkType model.QualityCheckType) (orderflow.EvaluationResult, error) {
	var result orderflow.EvaluationResult

	b, err := json.Marshal(evaluateRequest{
		OrderID:     order.ID,
		ProjectType: order.ProjectType,
		Status:      order.Status,
		CheckType:   checkType,
	})
	if err != nil {
		return result, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/evaluate", bytes.NewReader(b))
	if err != nil {
		return result, err
	}
	req.Header.Set("Content-Type", "application/json")
	// 传播 trace_id
	if traceID := trace.FromContext(ctx); traceID != "" {
		req.Header.Set(trace.HeaderName, traceID)
	}

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		metrics.RecordEvaluatorCallLatency(string(checkType), "error", time.Since(start))
		return result, fmt.Errorf("call evaluator: %w", err)
	}
	defer resp.Body.Close()
	metrics.RecordEvaluatorCallLatency(string(checkType), strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return result, fmt.Errorf("evaluator responded %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return result, fmt.Errorf("decode evaluator response: %w", err)
	}

	if !result.Status.Final() {
		return orderflow.EvaluationResult{}, fmt.Errorf("%w: status %q", ErrInvalidResult, result.Status)
	}
	if result.Score != nil && (*result.Score < 0 || *result.Score > 100) {
		return orderflow.EvaluationResult{}, fmt.Errorf("%w: score %d", ErrInvalidResult, *result.Score)
	}
	return result, nil
}
