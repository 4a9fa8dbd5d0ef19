package sync

import (
	"fmt"
	"strings"
	"time"
)

// Kind selects which HubDB table a run targets.
type Kind string

const (
	Modules  Kind = "modules"
	Courses  Kind = "courses"
	Pathways Kind = "pathways"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Modules, Courses, Pathways:
		return k, nil
	}
	return "", fmt.Errorf("unknown content kind %q (want modules, courses or pathways)", s)
}

// Archive strategies for rows whose content moved to the archive dir.
const (
	ArchiveTag    = "tag"
	ArchiveDelete = "delete"
)

type Options struct {
	DryRun bool
	// DeleteMissing removes (or archives) table rows that have no content file.
	DeleteMissing   bool
	ArchiveStrategy string
	// ArchivedSlugs are lowercased slugs found in the archive dir.
	ArchivedSlugs map[string]bool
	// Protected paths are never deleted or archived.
	Protected      map[string]bool
	StripLeadingH1 bool
	RowDelay       time.Duration
}

// Summary counts what a run did. Failed rows do not stop the run.
type Summary struct {
	Kind      Kind `json:"kind"`
	DryRun    bool `json:"dryRun,omitempty"`
	Planned   int  `json:"planned"`
	Created   int  `json:"created"`
	Updated   int  `json:"updated"`
	Unchanged int  `json:"unchanged"`
	Deleted   int  `json:"deleted"`
	Archived  int  `json:"archived"`
	Failed    int  `json:"failed"`
	Published bool `json:"published"`
}

func (s Summary) String() string {
	if s.DryRun {
		return fmt.Sprintf("%s: dry run, %d row(s) validated, %d failed", s.Kind, s.Planned, s.Failed)
	}
	return fmt.Sprintf("%s: %d created, %d updated, %d unchanged, %d deleted, %d archived, %d failed",
		s.Kind, s.Created, s.Updated, s.Unchanged, s.Deleted, s.Archived, s.Failed)
}
