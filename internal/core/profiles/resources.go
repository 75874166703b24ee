package profiles

import (
	"github.com/elabsync/elabsync/internal/core"
	"github.com/elabsync/elabsync/internal/elabftw"
)

func init() {
	registerResources()
}

// registerResources declares the database-item profile. Resources live
// inside a category, so every run needs one selected up front; the
// category and template columns are claimed to keep stray copies of the
// category id out of extra fields.
func registerResources() {
	core.Register(core.Profile{
		Info: core.ProfileInfo{
			Key:   "resources",
			Label: "Resources",
			Kind:  elabftw.KindResource,
		},
		NeedsCategory: true,
		Fields: []core.FieldSpec{
			{
				Name:          "id",
				Aliases:       []string{"resource_id", "item_id"},
				PatchRequired: true,
				Normalizer:    core.NormalizeID,
			},
			{
				Name:           "title",
				Aliases:        []string{"name"},
				CreateRequired: true,
			},
			{Name: "tags"},
			{Name: "body", Aliases: []string{"description"}},
			{Name: "category", Aliases: []string{"category_id", "template"}},
			{
				Name:    "files_path",
				Aliases: []string{"file_path", "attachments_path", "attachments"},
			},
		},
	})
}
