// conf/validate.go settings validation
package conf

import (
	"fmt"

	"github.com/shroudml/shroud-go/internal/errors"
)

// ValidateSettings checks the loaded settings for values that would leave
// the store in an unusable state.
func ValidateSettings(settings *Settings) error {
	var errs []error

	if settings.Store.ModelsPath == "" {
		errs = append(errs, errors.Newf("store.modelspath must not be empty").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build())
	}

	if settings.Store.MaxModelStore < 0 {
		errs = append(errs, errors.Newf("store.maxmodelstore must not be negative, got %d", settings.Store.MaxModelStore).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build())
	}

	if settings.Sealing.KeyPath == "" {
		errs = append(errs, errors.Newf("sealing.keypath must not be empty").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build())
	}

	for i := range settings.Store.LoadModels {
		lm := &settings.Store.LoadModels[i]
		if err := validateLoadModel(i, lm); err != nil {
			errs = append(errs, err)
		}
	}

	if settings.WebServer.Enabled && settings.WebServer.Port == "" {
		errs = append(errs, errors.Newf("webserver.port must not be empty when the web server is enabled").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build())
	}

	return errors.Join(errs...)
}

func validateLoadModel(index int, lm *LoadModelConfig) error {
	if lm.Path == "" {
		return configErrorf("store.loadmodels[%d].path must not be empty", index)
	}
	if lm.ModelID == "" {
		return configErrorf("store.loadmodels[%d].modelid must not be empty", index)
	}
	for _, facts := range [][]ModelFactConfig{lm.InputFacts, lm.OutputFacts} {
		for _, fact := range facts {
			for _, dim := range fact.Dims {
				if dim < 0 {
					return configErrorf("store.loadmodels[%d] (%s): tensor dims must not be negative", index, lm.ModelID)
				}
			}
		}
	}
	return nil
}

func configErrorf(format string, args ...any) error {
	return errors.New(fmt.Errorf(format, args...)).
		Component("conf").
		Category(errors.CategoryConfiguration).
		Build()
}
