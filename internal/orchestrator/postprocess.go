package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"unicode"

	"stmtpipe/internal/blobstore"
)

// postProcess chains the summary job onto a successful extraction: request
// the summary CSVs, download them from the output container, and hand the
// bundle to the publish sink. Any failure here is terminal for the run; the
// extraction result has already been recorded and stays inspectable.
func (o *Orchestrator) postProcess(ctx context.Context, result map[string][]string) (string, error) {
	keys := flattenResult(result)
	files, err := o.jobs.Summarize(ctx, keys)
	if err != nil {
		return "", &PublishError{Cause: err}
	}

	sheets := make([]Sheet, 0, len(files))
	for _, f := range files {
		data, err := o.objects.Get(ctx, blobstore.ContainerOutput, f.Key)
		if err != nil {
			return "", &PublishError{Cause: fmt.Errorf("fetch summary %q: %w", f.Key, err)}
		}
		sheets = append(sheets, Sheet{Name: f.Sheet, CSV: data})
	}

	title := o.workbookTitle()
	id, err := o.publisher.Publish(ctx, title, sheets)
	if err != nil {
		return "", &PublishError{Cause: err}
	}
	o.logger.Info("run.published", "published_id", id, "sheets", len(sheets))
	return id, nil
}

func (o *Orchestrator) workbookTitle() string {
	name := capitalize(o.clientName)
	if current := o.tracker.Current(); current != nil {
		return fmt.Sprintf("%s Transactions %s", name, current.ID)
	}
	return fmt.Sprintf("%s Transactions", name)
}

// flattenResult collapses the per-item artifact map into one sorted key
// list for the summary request.
func flattenResult(result map[string][]string) []string {
	var keys []string
	for _, artifacts := range result {
		keys = append(keys, artifacts...)
	}
	sort.Strings(keys)
	return keys
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
