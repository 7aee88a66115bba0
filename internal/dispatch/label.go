package dispatch

import (
	"context"
	"fmt"
	"strings"
)

// ResolveLabel returns the id of the label called name, creating it when no
// existing label matches case-insensitively.
func ResolveLabel(ctx context.Context, api LabelAPI, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}
	labels, err := api.ListLabels(ctx)
	if err != nil {
		return "", fmt.Errorf("list labels: %w", err)
	}
	for _, l := range labels {
		if strings.EqualFold(l.Name, name) {
			return l.ID, nil
		}
	}
	created, err := api.CreateLabel(ctx, name)
	if err != nil {
		return "", fmt.Errorf("create label %q: %w", name, err)
	}
	return created.ID, nil
}
