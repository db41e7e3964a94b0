package tasks

import "fmt"

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase, 0 when unknown
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	FetchFavorites Phase = iota
	StoreFavorites
	ProvisionPlaylists
	PushPlaylists
	ExportLabels
)

func (p Phase) String() string {
	switch p {
	case FetchFavorites:
		return "fetch_favorites"
	case StoreFavorites:
		return "store_favorites"
	case ProvisionPlaylists:
		return "provision_playlists"
	case PushPlaylists:
		return "push_playlists"
	case ExportLabels:
		return "export_labels"
	default:
		return ""
	}
}

func fetchPageUpdate(page, offset, limit int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchFavorites,
		Step:    page,
		Message: fmt.Sprintf("Fetching favorites %d-%d...", offset+1, offset+limit),
	}
}

func pageAppliedUpdate(page, items, inserted int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   StoreFavorites,
		Step:    page,
		Message: fmt.Sprintf("Page %d: %d new of %d", page, inserted, items),
	}
}

func provisionedUpdate(step, total int, label string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ProvisionPlaylists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Created playlist for %s", label),
	}
}

func pushedUpdate(step, total int, label string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PushPlaylists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Pushed %s", label),
	}
}

func exportCompletedUpdate(step, total int, name string, path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportLabels,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%s)", step, total, name, path),
	}
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportLabels,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}
