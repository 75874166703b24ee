package profiles

import (
	"github.com/elabsync/elabsync/internal/core"
	"github.com/elabsync/elabsync/internal/elabftw"
)

func init() {
	registerExperiments()
}

// registerExperiments declares the lab-notebook experiment profile.
// Experiments have no category, so imports need nothing selected beyond
// the file itself.
func registerExperiments() {
	core.Register(core.Profile{
		Info: core.ProfileInfo{
			Key:   "experiments",
			Label: "Experiments",
			Kind:  elabftw.KindExperiment,
		},
		Fields: []core.FieldSpec{
			{
				Name:          "id",
				Aliases:       []string{"experiment_id"},
				PatchRequired: true,
				Normalizer:    core.NormalizeID,
			},
			{
				Name:           "title",
				CreateRequired: true,
			},
			{Name: "tags"},
			{Name: "body"},
			{
				Name:    "files_path",
				Aliases: []string{"file_path", "attachments_path", "attachments"},
			},
		},
	})
}
