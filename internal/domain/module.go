package domain

// Difficulty levels accepted in module front matter.
const (
	Beginner     = "beginner"
	Intermediate = "intermediate"
	Advanced     = "advanced"
)

// Module is a single lesson, read from content/modules/<dir>/README.md.
// Front matter fields map one to one; Body is the markdown after the front matter.
type Module struct {
	Title            string   `yaml:"title" json:"title"`
	Slug             string   `yaml:"slug" json:"slug"`
	Difficulty       string   `yaml:"difficulty" json:"difficulty"`
	EstimatedMinutes int      `yaml:"estimated_minutes" json:"estimated_minutes"`
	Version          string   `yaml:"version" json:"version,omitempty"`
	ValidatedOn      string   `yaml:"validated_on" json:"validated_on,omitempty"`
	Tags             []string `yaml:"tags" json:"tags"`
	Description      string   `yaml:"description" json:"description"`
	Order            int      `yaml:"order" json:"order,omitempty"`
	Archived         bool     `yaml:"archived" json:"archived,omitempty"`
	SocialImage      string   `yaml:"social_image" json:"social_image,omitempty"`

	Body string `yaml:"-" json:"-"`
	// Dir is the directory name under modules/.
	Dir string `yaml:"-" json:"-"`
	// Meta holds the optional meta.json next to the README.
	Meta *ModuleMeta `yaml:"-" json:"-"`
}

// ModuleMeta is the optional meta.json sidecar.
type ModuleMeta struct {
	Prerequisites      []string `json:"prerequisites,omitempty"`
	LearningObjectives []string `json:"learning_objectives,omitempty"`
}
