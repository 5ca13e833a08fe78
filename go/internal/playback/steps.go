package playback

import "github.com/mcdev12/signage/go/internal/models"

// NoImage marks a step that renders a custom layout rather than an image.
const NoImage = -1

// ContentGroup is one menu in a display's rotation, in caller order.
type ContentGroup struct {
	Kind   models.MenuKind
	Images []models.ImageRef
}

// Step points at a single slide: a group, and an image inside it when the
// group is an image set.
type Step struct {
	GroupIndex int
	ImageIndex int
}

// IsCustom reports whether the step shows a custom layout.
func (s Step) IsCustom() bool {
	return s.ImageIndex == NoImage
}

// BuildStepSequence flattens groups into the ordered list of steps.
// A custom group contributes one step; an image set contributes one step
// per image in its given order. Groups of any other kind contribute nothing.
func BuildStepSequence(groups []ContentGroup) []Step {
	steps := make([]Step, 0, len(groups))
	for gi, g := range groups {
		switch g.Kind {
		case models.MenuKindCustom:
			steps = append(steps, Step{GroupIndex: gi, ImageIndex: NoImage})
		case models.MenuKindImageSet:
			for ii := range g.Images {
				steps = append(steps, Step{GroupIndex: gi, ImageIndex: ii})
			}
		}
	}
	return steps
}
