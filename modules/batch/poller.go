package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"manga-promo-server/modules/common/gemini"
	"manga-promo-server/modules/common/model"
)

// DefaultPollInterval - suggested delay between polls when the provider
// gives no hint
const DefaultPollInterval = 5 * time.Second

// Poller - caller-driven batch polling and result reconciliation. Poll is a
// single non-blocking-per-call observation; the embedding application owns
// the loop, backoff and timeout.
type Poller struct {
	client *gemini.Client
}

// NewPoller - poller bound to a REST client
func NewPoller(client *gemini.Client) *Poller {
	return &Poller{client: client}
}

func isTerminalFailureState(upper string) bool {
	return strings.Contains(upper, "FAILED") ||
		strings.Contains(upper, "CANCELLED") ||
		strings.Contains(upper, "EXPIRED")
}

// Poll - fetch one snapshot of a batch job and, on terminal success,
// reconcile the per-item results
func (p *Poller) Poll(ctx context.Context, jobName string) (*Snapshot, error) {
	op, err := p.client.GetBatchOperation(ctx, jobName)
	if err != nil {
		return nil, err
	}

	normalized, err := gemini.NormalizeJobName(op.Name)
	if err != nil {
		normalized, _ = gemini.NormalizeJobName(jobName)
	}

	state := op.State()
	upper := strings.ToUpper(state)

	if op.Error != nil {
		return &Snapshot{
			Done:         true,
			State:        state,
			JobName:      normalized,
			ErrorMessage: fmt.Sprintf("batch %s failed: %s", normalized, op.Error.Message),
		}, nil
	}

	if strings.Contains(upper, "SUCCEEDED") {
		return p.reconcile(ctx, op, normalized, state), nil
	}

	if isTerminalFailureState(upper) {
		return &Snapshot{
			Done:         true,
			State:        state,
			JobName:      normalized,
			ErrorMessage: fmt.Sprintf("batch %s ended in state %s", normalized, state),
		}, nil
	}

	if op.Done {
		return &Snapshot{
			Done:         true,
			State:        state,
			JobName:      normalized,
			ErrorMessage: fmt.Sprintf("batch %s finished in unrecognized state %q", normalized, state),
		}, nil
	}

	return &Snapshot{
		Done:      false,
		State:     state,
		JobName:   normalized,
		PollAfter: DefaultPollInterval,
	}, nil
}

// reconcile - terminal-success extraction: inline per-item results first,
// then the result file. One item's failure never invalidates the batch; a
// total failure is only reported when neither path yields any entry.
func (p *Poller) reconcile(ctx context.Context, op *gemini.BatchOperation, jobName, state string) *Snapshot {
	var (
		results    []ImageResult
		itemErrors []string
	)

	inlineCount := 0
	if op.Response != nil && op.Response.InlinedResponses != nil {
		items := op.Response.InlinedResponses.InlinedResponses
		inlineCount = len(items)
		for _, item := range items {
			result, errText := reconcileInlineItem(item)
			if errText != "" {
				itemErrors = append(itemErrors, errText)
				continue
			}
			results = append(results, *result)
		}
	}

	if inlineCount == 0 && op.Response != nil && op.Response.ResponsesFile != "" {
		fileResults, fileErrors, err := p.reconcileResultFile(ctx, op.Response.ResponsesFile)
		if err != nil {
			return &Snapshot{
				Done:         true,
				State:        state,
				JobName:      jobName,
				ErrorMessage: fmt.Sprintf("batch %s result file unreadable: %v", jobName, err),
			}
		}
		results = append(results, fileResults...)
		itemErrors = append(itemErrors, fileErrors...)
	}

	if len(results) == 0 && len(itemErrors) == 0 {
		return &Snapshot{
			Done:         true,
			State:        state,
			JobName:      jobName,
			ErrorMessage: fmt.Sprintf("batch %s completed but produced no results", jobName),
		}
	}

	log.Printf("🏁 Batch %s reconciled: %d results, %d item errors", jobName, len(results), len(itemErrors))

	return &Snapshot{
		Done:         true,
		State:        state,
		JobName:      jobName,
		Results:      results,
		ErrorMessage: strings.Join(itemErrors, "; "),
	}
}

// keyFromMetadata - prefer the decoded metadata fields the inline transport
// carries; the encoded key string is the fallback and the only channel the
// file transport has
func keyFromMetadata(meta map[string]string) (DecodedKey, error) {
	if meta["patternId"] != "" && model.IsValidLayout(meta["layout"]) {
		return DecodedKey{
			PatternID:    meta["patternId"],
			Layout:       model.Layout(meta["layout"]),
			PatternType:  model.NormalizePatternType(meta["patternType"]),
			PatternTitle: meta["patternTitle"],
		}, nil
	}
	if meta["key"] != "" {
		return DecodeKey(meta["key"])
	}
	return DecodedKey{}, fmt.Errorf("batch item carries no decodable metadata")
}

// reconcileInlineItem - returns the decoded result or a per-item error text
func reconcileInlineItem(item gemini.InlinedResponse) (*ImageResult, string) {
	decoded, err := keyFromMetadata(item.Metadata)
	if err != nil {
		return nil, err.Error()
	}

	label := decoded.PatternID + "/" + string(decoded.Layout)

	if item.Error != nil {
		return nil, fmt.Sprintf("%s: %s", label, item.Error.Message)
	}
	if item.Response == nil {
		return nil, fmt.Sprintf("%s: empty response", label)
	}
	if item.Response.Error != nil {
		return nil, fmt.Sprintf("%s: %s", label, item.Response.Error.Message)
	}

	dataURL, err := gemini.ExtractImageDataURL(item.Response)
	if err != nil {
		return nil, fmt.Sprintf("%s: no image payload", label)
	}

	return &ImageResult{
		PatternID:    decoded.PatternID,
		PatternType:  decoded.PatternType,
		PatternTitle: decoded.PatternTitle,
		Layout:       decoded.Layout,
		ImageDataURL: dataURL,
	}, ""
}

// resultLine - one NDJSON record of a result file. The response is kept raw
// because some API versions wrap it in an extra "response" envelope.
type resultLine struct {
	Key      string               `json:"key"`
	Response json.RawMessage      `json:"response,omitempty"`
	Error    *gemini.APIErrorBody `json:"error,omitempty"`
}

// decodeResultResponse - bare GenerateResponse or {"response": {...}} envelope
func decodeResultResponse(raw json.RawMessage) (*gemini.GenerateResponse, error) {
	var direct gemini.GenerateResponse
	if err := json.Unmarshal(raw, &direct); err == nil && len(direct.Candidates) > 0 {
		return &direct, nil
	}

	var envelope struct {
		Response *gemini.GenerateResponse `json:"response"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Response != nil && len(envelope.Response.Candidates) > 0 {
		return envelope.Response, nil
	}

	return nil, fmt.Errorf("unrecognized result record shape")
}

// reconcileResultFile - download and parse the NDJSON result file
func (p *Poller) reconcileResultFile(ctx context.Context, fileRef string) ([]ImageResult, []string, error) {
	file, err := p.client.GetFile(ctx, fileRef)
	if err != nil {
		return nil, nil, err
	}

	content, err := p.client.DownloadFileContent(ctx, file)
	if err != nil {
		return nil, nil, err
	}

	var (
		results    []ImageResult
		itemErrors []string
	)

	for _, rawLine := range strings.Split(string(content), "\n") {
		rawLine = strings.TrimSpace(rawLine)
		if rawLine == "" {
			continue
		}

		var line resultLine
		if err := json.Unmarshal([]byte(rawLine), &line); err != nil {
			itemErrors = append(itemErrors, fmt.Sprintf("unparseable result record: %v", err))
			continue
		}

		decoded, err := DecodeKey(line.Key)
		if err != nil {
			itemErrors = append(itemErrors, err.Error())
			continue
		}
		label := decoded.PatternID + "/" + string(decoded.Layout)

		if line.Error != nil {
			itemErrors = append(itemErrors, fmt.Sprintf("%s: %s", label, line.Error.Message))
			continue
		}
		if line.Response == nil {
			itemErrors = append(itemErrors, fmt.Sprintf("%s: empty response", label))
			continue
		}

		response, err := decodeResultResponse(line.Response)
		if err != nil {
			itemErrors = append(itemErrors, fmt.Sprintf("%s: %v", label, err))
			continue
		}

		dataURL, err := gemini.ExtractImageDataURL(response)
		if err != nil {
			itemErrors = append(itemErrors, fmt.Sprintf("%s: no image payload", label))
			continue
		}

		results = append(results, ImageResult{
			PatternID:    decoded.PatternID,
			PatternType:  decoded.PatternType,
			PatternTitle: decoded.PatternTitle,
			Layout:       decoded.Layout,
			ImageDataURL: dataURL,
		})
	}

	return results, itemErrors, nil
}

// PollAll - one polling round over several jobs, status requests issued in
// parallel. Result order follows jobNames; a failed status call yields a nil
// snapshot with its error in errs.
func (p *Poller) PollAll(ctx context.Context, jobNames []string) ([]*Snapshot, []error) {
	snapshots := make([]*Snapshot, len(jobNames))
	errs := make([]error, len(jobNames))

	var wg sync.WaitGroup
	for i, jobName := range jobNames {
		wg.Add(1)
		go func(i int, jobName string) {
			defer wg.Done()
			snapshots[i], errs[i] = p.Poll(ctx, jobName)
		}(i, jobName)
	}
	wg.Wait()

	return snapshots, errs
}
